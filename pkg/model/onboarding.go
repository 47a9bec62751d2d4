package model

import "time"

// CustomerOnboardingState tracks one actor's onboarding interview.
//
// Step 0 means not started. Step k (1..Q) means question k was asked and its answer is
// pending. Step Q+1 means every question was answered and profile extraction is pending.
// Step never decreases, and no transition happens once Complete is set; Reset starts a
// fresh record.
type CustomerOnboardingState struct {
	ActorID         string            `firestore:"actor_id"`
	Step            int               `firestore:"step"`
	Answers         map[string]string `firestore:"answers"`
	ActiveChannelID string            `firestore:"active_channel_id"`
	ActiveThreadTS  string            `firestore:"active_thread_ts"`
	Complete        bool              `firestore:"complete"`
	StartedAt       time.Time         `firestore:"started_at"`
	UpdatedAt       time.Time         `firestore:"updated_at"`
}

// InProgress reports whether an interview was started and not finished.
func (x *CustomerOnboardingState) InProgress() bool {
	return x != nil && x.Step > 0 && !x.Complete
}

// IsActiveThread reports whether replies in the given thread are interview answers.
func (x *CustomerOnboardingState) IsActiveThread(channelID, threadTS string) bool {
	return x.InProgress() && x.ActiveChannelID == channelID && x.ActiveThreadTS == threadTS
}

// Copy returns a deep copy so that a transition never mutates a snapshot shared with
// other readers.
func (x *CustomerOnboardingState) Copy() *CustomerOnboardingState {
	if x == nil {
		return nil
	}
	c := *x
	c.Answers = make(map[string]string, len(x.Answers))
	for k, v := range x.Answers {
		c.Answers[k] = v
	}
	return &c
}
