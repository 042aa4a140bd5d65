package discovery

type MatchType string

const (
	MatchDirect     MatchType = "direct"
	MatchSemantic   MatchType = "semantic"
	MatchContextual MatchType = "contextual"
	MatchNone       MatchType = "none"
)

func (t MatchType) Valid() bool {
	switch t {
	case MatchDirect, MatchSemantic, MatchContextual, MatchNone:
		return true
	default:
		return false
	}
}

// Result is the validated verdict of a full-tier discovery call.
type Result struct {
	IsMatch           bool      `json:"isMatch"`
	RelevanceScore    float64   `json:"relevanceScore"`
	MatchType         MatchType `json:"matchType"`
	Reasoning         string    `json:"reasoning"`
	Signals           []string  `json:"signals"`
	SuggestedKeywords []string  `json:"suggestedKeywords"`
}

// QuickResult is the verdict of the cheap pre-filter tier.
type QuickResult struct {
	IsMatch    bool    `json:"isMatch"`
	Confidence float64 `json:"confidence"`
}

// Meta is the telemetry attached to every LLM call for cost accounting.
type Meta struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	LatencyMs        int64   `json:"latencyMs"`
	Cost             float64 `json:"cost"`
	Cached           bool    `json:"cached,omitempty"`
}

type Outcome struct {
	Result Result `json:"result"`
	Meta   Meta   `json:"meta"`
}

type QuickOutcome struct {
	QuickResult
	Meta Meta `json:"meta"`
}

const (
	TierFull  = "full"
	TierQuick = "quick"
)
