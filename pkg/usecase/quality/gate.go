// Package quality is the deterministic last check on agent output before it is posted.
// It never blocks a message; the only rewrite it performs is stripping code fences.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/usecase/render"
)

const (
	// LengthFloor exempts short status messages
	LengthFloor = 200
	// LongFormFloor is the length above which mandatory phrases are expected
	LongFormFloor = 600
	// MinPrimaryText is the length under which a primary text block looks truncated
	MinPrimaryText = 40
)

type Severity string

const (
	SeverityMajor Severity = "major"
	SeverityMinor Severity = "minor"
	SeverityFlag  Severity = "flag"
)

type CheckName string

const (
	CheckLeakedJSON        CheckName = "leaked_json"
	CheckCodeFence         CheckName = "code_fence"
	CheckUnbalanced        CheckName = "unbalanced_emphasis"
	CheckBannedPhrase      CheckName = "banned_phrase"
	CheckMissingMandatory  CheckName = "missing_mandatory"
	CheckDuplicateHeadline CheckName = "duplicate_headline"
	CheckTruncation        CheckName = "truncation"
)

type Issue struct {
	Message  int
	Check    CheckName
	Severity Severity
	Detail   string
	Fixed    bool
}

func (x Issue) String() string {
	s := fmt.Sprintf("%s/%s: %s", x.Severity, x.Check, x.Detail)
	if x.Fixed {
		s += " (fixed)"
	}
	return s
}

type Report struct {
	Issues []Issue
}

func (x *Report) add(msg int, check CheckName, sev Severity, detail string) {
	x.Issues = append(x.Issues, Issue{Message: msg, Check: check, Severity: sev, Detail: detail})
}

// HasMajor reports whether any major issue was found
func (x *Report) HasMajor() bool {
	for _, issue := range x.Issues {
		if issue.Severity == SeverityMajor {
			return true
		}
	}
	return false
}

// Strings returns one line per issue, for telemetry
func (x *Report) Strings() []string {
	out := make([]string, 0, len(x.Issues))
	for _, issue := range x.Issues {
		out = append(out, issue.String())
	}
	return out
}

var (
	jsonFragment = regexp.MustCompile(`(?m)("[A-Za-z_]+"\s*:\s*["\[{0-9tfn])|(^\s*\[?\{\s*$)|(^\s*\}\]?,?\s*$)`)
	fenceMarker  = regexp.MustCompile("```[A-Za-z0-9_-]*\\n?")
	slackLink    = regexp.MustCompile(`<[^>\s]+>`)
	bulletStar   = regexp.MustCompile(`(?m)^\s*\*\s`)
	underscoreEm = regexp.MustCompile(`(^|[\s(])_|_($|[\s.,!?:;)])`)
	headlineLine = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(render.HeadlineLabel) + `\s*(.+)$`)
	primaryBlock = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(render.PrimaryTextLabel) + `\s*(.*?)\s*(?:` +
		regexp.QuoteMeta(render.CTALabel) + `|\*Variant \d|\z)`)
)

// Check inspects every message of result in place. Code fences are removed from the
// message text; every other finding is only reported.
func Check(result *model.AgentResult, profile *model.VoiceProfile) *Report {
	report := &Report{}
	if result == nil {
		return report
	}

	for i, msg := range result.Messages {
		if msg == nil || utf8.RuneCountInString(msg.Text) <= LengthFloor {
			continue
		}
		checkMessage(report, i, msg, profile)
	}
	return report
}

func checkMessage(report *Report, idx int, msg *model.Message, profile *model.VoiceProfile) {
	text := msg.Text

	if m := jsonFragment.FindString(text); m != "" {
		report.add(idx, CheckLeakedJSON, SeverityFlag, fmt.Sprintf("JSON-like fragment %q", strings.TrimSpace(m)))
	}

	if strings.Contains(text, "```") {
		text = strings.TrimSpace(fenceMarker.ReplaceAllString(text, ""))
		text = strings.ReplaceAll(text, "```", "")
		msg.Text = text
		report.Issues = append(report.Issues, Issue{
			Message: idx, Check: CheckCodeFence, Severity: SeverityFlag,
			Detail: "code fence markers removed", Fixed: true,
		})
	}

	if detail := unbalanced(text); detail != "" {
		report.add(idx, CheckUnbalanced, SeverityFlag, detail)
	}

	for _, phrase := range profile.FindBanned(text) {
		report.add(idx, CheckBannedPhrase, SeverityMajor, fmt.Sprintf("banned phrase %q", phrase))
	}

	if utf8.RuneCountInString(text) > LongFormFloor {
		for _, phrase := range profile.FindMissingMandatory(text) {
			report.add(idx, CheckMissingMandatory, SeverityMinor, fmt.Sprintf("mandatory phrase %q missing", phrase))
		}
	}

	seen := map[string]bool{}
	for _, m := range headlineLine.FindAllStringSubmatch(text, -1) {
		h := strings.ToLower(strings.TrimSpace(m[1]))
		if seen[h] {
			report.add(idx, CheckDuplicateHeadline, SeverityMajor, fmt.Sprintf("headline %q appears more than once", strings.TrimSpace(m[1])))
		}
		seen[h] = true
	}

	for _, m := range primaryBlock.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if n := utf8.RuneCountInString(body); n < MinPrimaryText {
			report.add(idx, CheckTruncation, SeverityFlag, fmt.Sprintf("primary text is only %d characters", n))
		}
	}
}

func unbalanced(text string) string {
	t := slackLink.ReplaceAllString(text, "")
	t = bulletStar.ReplaceAllString(t, "")

	var issues []string
	if n := strings.Count(t, "*"); n%2 != 0 {
		issues = append(issues, fmt.Sprintf("odd number of * markers (%d)", n))
	}
	if n := len(underscoreEm.FindAllString(t, -1)); n%2 != 0 {
		issues = append(issues, fmt.Sprintf("odd number of _ markers (%d)", n))
	}
	return strings.Join(issues, ", ")
}
