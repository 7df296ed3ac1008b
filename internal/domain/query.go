package domain

import (
	"fmt"
	"strings"
	"time"
)

type ExpansionMode string

const (
	ExpansionAuto ExpansionMode = "auto"
	ExpansionOn   ExpansionMode = "on"
	ExpansionOff  ExpansionMode = "off"
)

// ParseExpansionMode accepts "auto", "on" or "off"; the empty string means auto.
func ParseExpansionMode(s string) (ExpansionMode, error) {
	switch m := ExpansionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ExpansionAuto, nil
	case ExpansionAuto, ExpansionOn, ExpansionOff:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown expansion mode %q", ErrBadConfig, s)
	}
}

type Strategy string

const (
	StrategyNone       Strategy = "none"
	StrategyHyDE       Strategy = "hyde"
	StrategyMultiQuery Strategy = "multi_query"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyHyDE, nil
	case StrategyHyDE, StrategyMultiQuery:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown expansion strategy %q", ErrBadConfig, s)
	}
}

// ExpandedQuery is scoped to a single query. Expansions are the texts handed
// to the semantic channel in place of (hyde) or next to (multi_query) the original.
type ExpandedQuery struct {
	Original   string   `json:"original"`
	Expansions []string `json:"expansions,omitempty"`
	Strategy   Strategy `json:"strategy"`
}

// SemanticTexts returns the texts the semantic channel should embed.
func (q ExpandedQuery) SemanticTexts() []string {
	switch {
	case len(q.Expansions) == 0:
		return []string{q.Original}
	case q.Strategy == StrategyMultiQuery:
		return append([]string{q.Original}, q.Expansions...)
	default:
		return q.Expansions
	}
}

type DecisionReason string

const (
	ReasonForcedOn      DecisionReason = "forced_on"
	ReasonForcedOff     DecisionReason = "forced_off"
	ReasonShortQuery    DecisionReason = "short_query"
	ReasonLowPriorScore DecisionReason = "low_prior_score"
	ReasonPassthrough   DecisionReason = "passthrough"
)

type Decision struct {
	Expand bool           `json:"expand"`
	Reason DecisionReason `json:"reason"`
}

type Request struct {
	Query     string
	TopK      int // 0 = configured default
	Expansion ExpansionMode
	// PriorMaxScore is an optional hint: the best score a previous attempt at
	// this query achieved. Below the configured threshold it triggers expansion.
	PriorMaxScore *float64
}

type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"
	StatusNoIndex     Status = "no_index"
	StatusUnavailable Status = "unavailable"
)

// SignalReport describes one retrieval channel for one query. TopScore is
// the channel's own best raw score (BM25 or similarity), which is what a
// caller should feed back as Request.PriorMaxScore.
type SignalReport struct {
	Attempted  bool          `json:"attempted"`
	OK         bool          `json:"ok"`
	Candidates int           `json:"candidates"`
	TopScore   float64       `json:"top_score"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
}

type ExpansionReport struct {
	Mode     ExpansionMode `json:"mode"`
	Decision Decision      `json:"decision"`
	Strategy Strategy      `json:"strategy"`
	Fired    bool          `json:"fired"`
	FellBack bool          `json:"fell_back"`
	Texts    []string      `json:"texts,omitempty"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

type Report struct {
	QueryID         string          `json:"query_id"`
	Query           string          `json:"query"`
	Status          Status          `json:"status"`
	IndexGeneration uint64          `json:"index_generation"`
	Lexical         SignalReport    `json:"lexical"`
	Semantic        SignalReport    `json:"semantic"`
	Expansion       ExpansionReport `json:"expansion"`
	FusionLatency   time.Duration   `json:"fusion_latency"`
	Rerank          SignalReport    `json:"rerank"`
	Total           time.Duration   `json:"total"`
	CacheHit        bool            `json:"cache_hit"`
}

// Outcome is what the hybrid retriever produces before results are joined
// with chunk text.
type Outcome struct {
	Fused  []FusedResult
	Report Report
}

// Result is one answer passage. Score is always the fused RRF score; when
// reranking ran, results are ordered by RerankScore instead.
type Result struct {
	ChunkID      string            `json:"chunk_id"`
	DocID        string            `json:"doc_id"`
	Text         string            `json:"text"`
	Score        float64           `json:"score"`
	Sources      Sources           `json:"sources"`
	LexicalRank  int               `json:"lexical_rank,omitempty"`
	SemanticRank int               `json:"semantic_rank,omitempty"`
	RerankScore  float64           `json:"rerank_score,omitempty"`
	Start        int               `json:"start"`
	End          int               `json:"end"`
	Path         string            `json:"path,omitempty"`
	Title        string            `json:"title,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
	Report  Report   `json:"report"`
}
