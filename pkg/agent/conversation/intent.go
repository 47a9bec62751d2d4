package conversation

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

type IntentKind string

const (
	IntentExport   IntentKind = "export"
	IntentRevise   IntentKind = "revise"
	IntentReject   IntentKind = "reject"
	IntentApprove  IntentKind = "approve"
	IntentQuestion IntentKind = "question"
)

// Intent is the deterministic reading of a thread reply on a generation
type Intent struct {
	Kind IntentKind
	// Indexes are 1-based variant indexes, sorted and unique. Empty means the whole set.
	Indexes []int
	// Explicit is set when the reply used a revision verb or an approval/rejection word,
	// as opposed to falling through to the default.
	Explicit bool
}

var (
	indexList    = regexp.MustCompile(`(?i)\b(?:variants?|versions?|options?|copy|v|no\.?|number)\s*#?\s*([1-9](?:\s*(?:,|and|&|\+|/)\s*#?[1-9])*)\b`)
	indexAfterOp = regexp.MustCompile(`(?i)\b(?:approve|reject|use|love|like|revise|rewrite|tweak|redo|pick|keep)\s+#?([1-9](?:\s*(?:,|and|&)\s*#?[1-9])*)\b`)
	indexHash    = regexp.MustCompile(`#([1-9])\b`)
	indexLeading = regexp.MustCompile(`^\s*([1-9])\s*[:.)\-]`)
	digit        = regexp.MustCompile(`[1-9]`)

	exportPattern = regexp.MustCompile(`(?i)\b(export|download|as a (file|doc|txt)|send (me )?(a|the) file)\b`)
	revisePattern = regexp.MustCompile(`(?i)\b(make|change|rewrite|rework|revise|tweak|shorten|shorter|longer|punchier|more|less|add|remove|drop|swap|replace|instead|fix|simplify)\b`)
	// a revise verb opening the reply, optionally after "Variant 2:" or "please"
	leadingRevise = regexp.MustCompile(`(?i)^\s*(?:(?:(?:variants?|versions?|options?|v|no\.?|number)\s*)?#?[1-9]\s*[:.)\-,]\s*)?(?:please\s+)?(make|change|rewrite|rework|revise|tweak|shorten|shorter|longer|punchier|more|less|add|remove|drop|swap|replace|fix|simplify)\b`)
	// "looks good, but make #2 shorter"
	contrastRevise  = regexp.MustCompile(`(?i)\b(but|except|though|although|just)\b[^.!?]*\b(make|change|rewrite|rework|revise|tweak|shorten|swap|replace|fix|simplify)\b`)
	rejectPattern   = regexp.MustCompile(`(?i)(\b(reject(ed)?|hate|do not like|not (good|right|working)|miss(es)? the mark|scrap|terrible|nope)\b|\bdon'?t like\b|👎|:-1:|:thumbsdown:)`)
	approvePattern  = regexp.MustCompile(`(?i)(\b(approved?|approving|love (it|this|these|them|that)|looks? (great|good)|perfect|ship (it|these|them)|lgtm|go with|we'?ll use|winners?|nailed it)\b|👍|:\+1:|:thumbsup:|✅|:white_check_mark:)`)
	questionPattern = regexp.MustCompile(`(?i)^\s*(why|what|how|which|can|could|would|should|is|are|do|does|did)\b`)
)

// ParseIndexes returns the variant indexes mentioned in text, restricted to 1..max
func ParseIndexes(text string, max int) []int {
	var found []int
	add := func(s string) {
		for _, d := range digit.FindAllString(s, -1) {
			n, _ := strconv.Atoi(d)
			if n >= 1 && n <= max && !slices.Contains(found, n) {
				found = append(found, n)
			}
		}
	}

	for _, m := range indexList.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range indexAfterOp.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range indexHash.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	if m := indexLeading.FindStringSubmatch(text); m != nil {
		add(m[1])
	}

	slices.Sort(found)
	return found
}

// ParseIntent classifies a reply. The order is export, a reply opening with a revise
// verb, rejection, approval (unless a contrast clause asks for an edit), any other
// revise word, question, and revision as the default.
func ParseIntent(text string, max int) Intent {
	t := strings.TrimSpace(text)
	intent := Intent{Indexes: ParseIndexes(t, max)}

	switch {
	case exportPattern.MatchString(t):
		intent.Kind = IntentExport
		intent.Explicit = true
	case leadingRevise.MatchString(t):
		intent.Kind = IntentRevise
		intent.Explicit = true
	case rejectPattern.MatchString(t):
		intent.Kind = IntentReject
		intent.Explicit = true
	case approvePattern.MatchString(t) && !contrastRevise.MatchString(t):
		intent.Kind = IntentApprove
		intent.Explicit = true
	case revisePattern.MatchString(t):
		intent.Kind = IntentRevise
		intent.Explicit = true
	case strings.HasSuffix(t, "?") || questionPattern.MatchString(t):
		intent.Kind = IntentQuestion
	default:
		intent.Kind = IntentRevise
	}
	return intent
}
