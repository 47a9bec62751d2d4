package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrNotFound               = goerr.New("not found")
	ErrAlreadyExists          = goerr.New("already exists")
	ErrInsightInactive        = goerr.New("insight is not active")
	ErrInvalidInsightCategory = goerr.New("invalid insight category")
	ErrInvalidFeedbackAction  = goerr.New("invalid feedback action")
	ErrNoProfile              = goerr.New("voice profile is not configured")
)

// ThreadError marks a failure that happened after the agent opened its own thread.
// Failure replies belong in that thread.
type ThreadError struct {
	ThreadTS string
	err      error
}

func InThread(err error, threadTS string) error {
	if err == nil {
		return nil
	}
	return &ThreadError{ThreadTS: threadTS, err: err}
}

func (x *ThreadError) Error() string { return x.err.Error() }
func (x *ThreadError) Unwrap() error { return x.err }
