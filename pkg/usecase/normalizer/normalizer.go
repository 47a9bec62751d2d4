// Package normalizer converts raw webhook events into model.EventContext. It performs no
// I/O.
package normalizer

import (
	"strings"

	"github.com/adforge/copybot/pkg/model"
)

const (
	rawMessage             = "message"
	rawFileShared          = "file_shared"
	rawMemberJoinedChannel = "member_joined_channel"

	channelTypeIM = "im"
)

// Normalize returns the canonical event, or nil when the event must be dropped: bot
// echoes, messages with a subtype and unsupported event types.
func Normalize(env *Envelope) *model.EventContext {
	if env == nil || env.Type != EnvelopeEventCallback || env.Event == nil {
		return nil
	}

	ev := env.Event
	base := model.EventContext{
		DeliveryID:  env.EventID,
		WorkspaceID: env.TeamID,
		BotUserID:   env.BotUserID(),
	}

	switch ev.Type {
	case rawMessage:
		return normalizeMessage(base, ev)
	case rawFileShared:
		return normalizeFileShared(base, ev)
	case rawMemberJoinedChannel:
		return normalizeMemberJoined(base, ev)
	default:
		return nil
	}
}

func isBot(base model.EventContext, ev *RawEvent, actor string) bool {
	return ev.BotID != "" || (base.BotUserID != "" && actor == base.BotUserID)
}

func normalizeMessage(base model.EventContext, ev *RawEvent) *model.EventContext {
	if ev.Subtype != "" || ev.User == "" || ev.Channel == "" || ev.TS == "" {
		return nil
	}
	if isBot(base, ev, ev.User) {
		return nil
	}

	x := base
	x.Kind = model.EventKindMessage
	x.ActorID = ev.User
	x.ChannelID = ev.Channel
	x.Text = strings.TrimSpace(ev.Text)
	x.MessageTS = ev.TS
	x.IsDM = ev.ChannelType == channelTypeIM

	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		x.ThreadTS = ev.ThreadTS
		x.IsThread = true
		x.ParentTS = ev.ThreadTS
	} else {
		x.ParentTS = ev.TS
	}

	return &x
}

func normalizeFileShared(base model.EventContext, ev *RawEvent) *model.EventContext {
	fileID := ev.FileID
	if fileID == "" && ev.File != nil {
		fileID = ev.File.ID
	}
	if fileID == "" || ev.ChannelID == "" || ev.UserID == "" {
		return nil
	}
	if isBot(base, ev, ev.UserID) {
		return nil
	}

	x := base
	x.Kind = model.EventKindFileUpload
	x.ActorID = ev.UserID
	x.ChannelID = ev.ChannelID
	x.MessageTS = ev.EventTS
	x.ParentTS = ev.EventTS
	x.IsDM = strings.HasPrefix(ev.ChannelID, "D")
	x.File = &model.FileDescriptor{ID: fileID}
	if ev.File != nil {
		x.File.Name = ev.File.Name
		x.File.MIMEType = ev.File.Mimetype
	}

	return &x
}

func normalizeMemberJoined(base model.EventContext, ev *RawEvent) *model.EventContext {
	if ev.User == "" || ev.Channel == "" {
		return nil
	}

	x := base
	x.Kind = model.EventKindMemberJoined
	x.ActorID = ev.User
	x.ChannelID = ev.Channel
	x.MessageTS = ev.EventTS
	x.ParentTS = ev.EventTS
	x.IsDM = ev.ChannelType == channelTypeIM

	return &x
}

// IsSelfJoin reports whether a membership event is the bot joining a channel
func IsSelfJoin(ev *model.EventContext) bool {
	return ev.Kind == model.EventKindMemberJoined && ev.BotUserID != "" && ev.ActorID == ev.BotUserID
}
