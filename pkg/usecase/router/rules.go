package router

import (
	"regexp"
	"strings"

	"github.com/adforge/copybot/pkg/model"
)

// ShortMessageFloor is the length at or under which a top-level message is not worth an
// LLM classification call.
const ShortMessageFloor = 10

const (
	MetaCommand       = "command"
	MetaSelf          = "self"
	MetaURL           = "url"
	MetaSourceType    = "source_type"
	MetaGenerationID  = "generation_id"
	MetaClassifiedBy  = "classified_by"
	MetaOnboardingCmd = "onboarding"
)

const (
	CommandSetup    = "setup"
	CommandRestart  = "restart"
	CommandHelp     = "help"
	CommandHint     = "hint"
	CommandProfile  = "profile"
	CommandInsights = "insights"
	CommandStatus   = "status"
)

var commandAgents = map[string]model.AgentName{
	CommandSetup:    model.AgentOnboarding,
	CommandRestart:  model.AgentOnboarding,
	CommandHelp:     model.AgentCommand,
	CommandProfile:  model.AgentCommand,
	CommandInsights: model.AgentCommand,
	CommandStatus:   model.AgentCommand,
}

var (
	mentionPattern = regexp.MustCompile(`^(<@[A-Z0-9]+>\s*)+`)
	urlPattern     = regexp.MustCompile(`https?://[^\s<>|]+`)
	// competitorSignal matches words that, next to a link, mark a request to analyze
	// someone else's ad.
	competitorSignal = regexp.MustCompile(`(?i)\b(competitors?|competition|rivals?|their ads?|this ad|analy[sz]e|analysis|break ?down|teardown|spy|swipe|what do you think of)\b`)
)

// ParseCommand returns the command word if text is exactly one command, ignoring case, a
// leading bot mention and a leading "/" or "!".
func ParseCommand(text string) (string, bool) {
	t := strings.TrimSpace(mentionPattern.ReplaceAllString(strings.TrimSpace(text), ""))
	t = strings.TrimLeft(t, "/!")
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimRight(t, ".!?")
	if _, ok := commandAgents[t]; ok {
		return t, true
	}
	return "", false
}

func commandRoute(cmd string) *model.Route {
	agent, ok := commandAgents[cmd]
	if !ok {
		agent = model.AgentCommand
	}
	return &model.Route{
		Agent: agent,
		Meta:  model.RouteMeta{MetaCommand: cmd},
	}
}

// ExtractURL returns the first link in text. Slack wraps links as <url|label>.
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}

// IsCompetitorRequest reports whether text pairs a link with a competitor signal word
func IsCompetitorRequest(text string) (string, bool) {
	url := ExtractURL(text)
	if url == "" {
		return "", false
	}
	if !competitorSignal.MatchString(urlPattern.ReplaceAllString(text, " ")) {
		return "", false
	}
	return url, true
}

// IsShort reports whether text is at or under the length floor
func IsShort(text string) bool {
	t := strings.TrimSpace(mentionPattern.ReplaceAllString(strings.TrimSpace(text), ""))
	return len([]rune(t)) <= ShortMessageFloor
}
