package model

import (
	"strings"
	"time"
)

// VoiceProfile describes a brand's tone, phrase rules and value-proposition angles. There is
// exactly one per channel; the channel ID is the storage key.
type VoiceProfile struct {
	ChannelID        string    `json:"-" firestore:"channel_id"`
	BrandName        string    `json:"brand_name" firestore:"brand_name"`
	Summary          string    `json:"summary" firestore:"summary"`
	Tone             string    `json:"tone" firestore:"tone"`
	Audience         string    `json:"audience" firestore:"audience"`
	Angles           []string  `json:"angles" firestore:"angles"`
	BannedPhrases    []string  `json:"banned_phrases" firestore:"banned_phrases"`
	MandatoryPhrases []string  `json:"mandatory_phrases" firestore:"mandatory_phrases"`
	Version          int       `json:"-" firestore:"version"`
	CreatedBy        string    `json:"-" firestore:"created_by"`
	UpdatedAt        time.Time `json:"-" firestore:"updated_at"`
}

// FindBanned returns banned phrases contained in text, compared case-insensitively.
func (p *VoiceProfile) FindBanned(text string) []string {
	if p == nil {
		return nil
	}
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range p.BannedPhrases {
		phrase = strings.TrimSpace(phrase)
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			found = append(found, phrase)
		}
	}
	return found
}

// FindMissingMandatory returns mandatory phrases that text does not contain.
func (p *VoiceProfile) FindMissingMandatory(text string) []string {
	if p == nil {
		return nil
	}
	lower := strings.ToLower(text)
	var missing []string
	for _, phrase := range p.MandatoryPhrases {
		phrase = strings.TrimSpace(phrase)
		if phrase != "" && !strings.Contains(lower, strings.ToLower(phrase)) {
			missing = append(missing, phrase)
		}
	}
	return missing
}

type NoteID string

func NewNoteID() NoteID {
	return NoteID(newID())
}

type NoteKind string

const (
	NoteKindContext  NoteKind = "context"
	NoteKindFeedback NoteKind = "feedback"
)

// BrandNote is a free-text note attached to a channel.
type BrandNote struct {
	ID        NoteID    `firestore:"id"`
	ChannelID string    `firestore:"channel_id"`
	Kind      NoteKind  `firestore:"kind"`
	Text      string    `firestore:"text"`
	Author    string    `firestore:"author"`
	CreatedAt time.Time `firestore:"created_at"`
}
