package normalizer

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

const (
	EnvelopeURLVerification = "url_verification"
	EnvelopeEventCallback   = "event_callback"
)

// Envelope is the Events API webhook body
type Envelope struct {
	Type           string          `json:"type"`
	Challenge      string          `json:"challenge,omitempty"`
	TeamID         string          `json:"team_id,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	EventTime      int64           `json:"event_time,omitempty"`
	Authorizations []Authorization `json:"authorizations,omitempty"`
	Event          *RawEvent       `json:"event,omitempty"`
}

type Authorization struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	IsBot  bool   `json:"is_bot"`
}

// BotUserID returns the bot user the delivery was authorized for
func (x *Envelope) BotUserID() string {
	for _, a := range x.Authorizations {
		if a.IsBot {
			return a.UserID
		}
	}
	if len(x.Authorizations) > 0 {
		return x.Authorizations[0].UserID
	}
	return ""
}

// RawEvent is the union of the inner event shapes the bot understands
type RawEvent struct {
	Type        string    `json:"type"`
	Subtype     string    `json:"subtype,omitempty"`
	User        string    `json:"user,omitempty"`
	BotID       string    `json:"bot_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	ChannelType string    `json:"channel_type,omitempty"`
	TS          string    `json:"ts,omitempty"`
	ThreadTS    string    `json:"thread_ts,omitempty"`
	EventTS     string    `json:"event_ts,omitempty"`
	Team        string    `json:"team,omitempty"`
	Files       []RawFile `json:"files,omitempty"`

	// file_shared fields
	FileID    string   `json:"file_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	ChannelID string   `json:"channel_id,omitempty"`
	File      *RawFile `json:"file,omitempty"`
}

type RawFile struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
}

// ParseEnvelope decodes a webhook body
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, goerr.Wrap(err, "failed to decode event envelope")
	}

	switch env.Type {
	case EnvelopeURLVerification:
		if env.Challenge == "" {
			return nil, goerr.New("url_verification without challenge")
		}
	case EnvelopeEventCallback:
		if env.Event == nil {
			return nil, goerr.New("event_callback without event", goerr.V("event_id", env.EventID))
		}
		if env.EventID == "" {
			return nil, goerr.New("event_callback without event_id")
		}
	default:
		return nil, goerr.New("unsupported envelope type", goerr.V("type", env.Type))
	}

	return &env, nil
}
