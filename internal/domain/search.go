package domain

import "strings"

// SearchMode selects the retrieval strategy for a knowledge store query
type SearchMode string

const (
	SearchModeLexical SearchMode = "lexical"
	SearchModeVector  SearchMode = "vector"
)

// Search limit bounds enforced on every request
const (
	MinSearchLimit = 1
	MaxSearchLimit = 50
)

// SourceIDPrefix namespaces result identifiers that refer to ingested sources.
// Only source-backed results are eligible for citation-grounded answers.
const SourceIDPrefix = "source:"

// NoteIDPrefix namespaces result identifiers that refer to user notes
const NoteIDPrefix = "note:"

// Query represents a normalized knowledge store search request
type Query struct {
	Text          string
	Mode          SearchMode
	SearchSources bool
	SearchNotes   bool
	Limit         int
	MinimumScore  *float64
}

// Validate checks query invariants before any store call is made
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuery
	}
	if q.Limit < MinSearchLimit || q.Limit > MaxSearchLimit {
		return ErrLimitOutOfRange
	}
	switch q.Mode {
	case SearchModeLexical, SearchModeVector:
		return nil
	default:
		return ErrInvalidSearchMode
	}
}

// ResultItem is a raw, store-shaped search result row. Matches carry the
// highlighted fragments the store produced for the query; Title is the parent
// document title used as a fallback when no fragment is available.
type ResultItem struct {
	ID         string
	Matches    []string
	Title      string
	ParentID   string
	Similarity *float64
}

// Chunk is the minimal unit of retrieved text carrying a stable citation id.
// Chunks are derived deterministically from ResultItems, live for the duration
// of a single request, and are never persisted.
type Chunk struct {
	ID       string
	Text     string
	SourceID string
	Score    *float64
	Title    string
}
