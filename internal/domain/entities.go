package domain

import "time"

type Document struct {
	ID       string            `json:"id"`
	Path     string            `json:"path"`
	Title    string            `json:"title"`
	ModTime  time.Time         `json:"mod_time"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a contiguous slice of a document. Start and End are rune offsets
// into the document text, End exclusive.
type Chunk struct {
	ID    string `json:"id"`
	DocID string `json:"doc_id"`
	Seq   int    `json:"seq"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

type Signal string

const (
	SignalLexical  Signal = "lexical"
	SignalSemantic Signal = "semantic"
)

type ScoredCandidate struct {
	ChunkID string
	Score   float64
	Signal  Signal
}

// FusedResult carries the 1-based rank the chunk held in each input list;
// zero means the chunk was absent from that list.
type FusedResult struct {
	ChunkID      string  `json:"chunk_id"`
	Score        float64 `json:"score"`
	LexicalRank  int     `json:"lexical_rank,omitempty"`
	SemanticRank int     `json:"semantic_rank,omitempty"`
}

func (r FusedResult) Sources() Sources {
	return Sources{Lexical: r.LexicalRank > 0, Semantic: r.SemanticRank > 0}
}

type Sources struct {
	Lexical  bool `json:"lexical"`
	Semantic bool `json:"semantic"`
}

type Stats struct {
	TotalDocs   int
	TotalChunks int
	AvgChunkLen float64
}
