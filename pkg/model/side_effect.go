package model

// SideEffect is a closed set of state changes an agent asks the dispatcher to perform.
// Only the types in this file implement it.
type SideEffect interface {
	EffectName() string
	sideEffect()
}

type AddNote struct {
	Note *BrandNote
}

type SaveGeneration struct {
	Record *GenerationRecord
}

type UpdateProfile struct {
	Profile *VoiceProfile
}

type UpdateCustomerState struct {
	State *CustomerOnboardingState
}

type SaveFeedback struct {
	Record *CopyFeedbackRecord
}

type SaveExemplar struct {
	Exemplars []*Exemplar
}

type UpdateGenerationTelemetry struct {
	GenerationID GenerationID
	ChannelID    string
	Telemetry    *Telemetry
}

func (AddNote) EffectName() string                   { return "add_note" }
func (SaveGeneration) EffectName() string            { return "save_generation" }
func (UpdateProfile) EffectName() string             { return "update_profile" }
func (UpdateCustomerState) EffectName() string       { return "update_customer_state" }
func (SaveFeedback) EffectName() string              { return "save_feedback" }
func (SaveExemplar) EffectName() string              { return "save_exemplar" }
func (UpdateGenerationTelemetry) EffectName() string { return "update_generation_telemetry" }

func (AddNote) sideEffect()                   {}
func (SaveGeneration) sideEffect()            {}
func (UpdateProfile) sideEffect()             {}
func (UpdateCustomerState) sideEffect()       {}
func (SaveFeedback) sideEffect()              {}
func (SaveExemplar) sideEffect()              {}
func (UpdateGenerationTelemetry) sideEffect() {}
