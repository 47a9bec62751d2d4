package model

type EventKind string

const (
	EventKindMessage      EventKind = "message"
	EventKindFileUpload   EventKind = "file_upload"
	EventKindMemberJoined EventKind = "member_joined"
)

// FileDescriptor identifies an uploaded file. Name, MIMEType and URL are filled after the
// file info is fetched from the chat platform.
type FileDescriptor struct {
	ID       string `json:"id" firestore:"id"`
	Name     string `json:"name,omitempty" firestore:"name"`
	MIMEType string `json:"mime_type,omitempty" firestore:"mime_type"`
	URL      string `json:"url,omitempty" firestore:"url"`
	Size     int    `json:"size,omitempty" firestore:"size"`
}

// EventContext is the canonical form of one inbound chat event. It is created by the
// normalizer and must not be modified afterwards.
type EventContext struct {
	Kind        EventKind
	DeliveryID  string
	WorkspaceID string
	BotUserID   string
	ActorID     string
	ChannelID   string
	Text        string

	// ThreadTS is the thread root timestamp, empty for top-level messages.
	ThreadTS  string
	MessageTS string
	// ParentTS is the anchor replies are threaded under. It equals ThreadTS for thread
	// replies and the message's own timestamp otherwise.
	ParentTS string

	File *FileDescriptor

	IsDM     bool
	IsThread bool
}

// ConversationKey identifies the (channel, thread) unit of work.
func (x *EventContext) ConversationKey() string {
	return x.ChannelID + ":" + x.ParentTS
}
