package model

import "context"

type AgentName string

const (
	AgentWelcome            AgentName = "welcome"
	AgentOnboarding         AgentName = "onboarding"
	AgentCopyGeneration     AgentName = "copy_generation"
	AgentCompetitorAnalysis AgentName = "competitor_analysis"
	AgentConversation       AgentName = "conversation"
	AgentCommand            AgentName = "command"
	AgentBrandContext       AgentName = "brand_context"
)

// RouteMeta is opaque routing metadata handed to the selected agent.
type RouteMeta map[string]string

// Get returns the value for key, or an empty string for a nil map.
func (x RouteMeta) Get(key string) string {
	if x == nil {
		return ""
	}
	return x[key]
}

// Route is the router's decision for one event.
type Route struct {
	Agent AgentName
	Meta  RouteMeta
	// ByLLM is set when the tier-2 classifier made the decision.
	ByLLM bool
}

// FileUpload is a file to be attached to an outgoing message.
type FileUpload struct {
	Name    string
	Title   string
	Content []byte
}

// Message is one outgoing chat message. An empty ThreadTS posts top-level.
type Message struct {
	ChannelID string
	ThreadTS  string
	Text      string
	Pin       bool
	File      *FileUpload
}

// AgentResult is what every agent returns.
type AgentResult struct {
	Messages        []*Message
	SideEffects     []SideEffect
	TriggerLearning bool
}

// Agent is the calling convention every registered handler satisfies.
type Agent interface {
	Handle(ctx context.Context, ev *EventContext, bc *BrandContext, meta RouteMeta) (*AgentResult, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, ev *EventContext, bc *BrandContext, meta RouteMeta) (*AgentResult, error)

func (f AgentFunc) Handle(ctx context.Context, ev *EventContext, bc *BrandContext, meta RouteMeta) (*AgentResult, error) {
	return f(ctx, ev, bc, meta)
}
