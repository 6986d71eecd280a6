package service

import (
	"strings"

	"github.com/readstack/readstack/internal/domain"
)

// VerifyCitations returns the subset of chunks actually cited in the answer
// text, in the order the chunks were presented to the model. A chunk counts
// as used when any of the bracketed or bare forms of its id, or of its
// simplified id (the part after the last ':'), occurs in the answer. The bare
// containment rule intentionally over-matches; it mirrors the observed
// behavior of the original pipeline. Returned chunk text is capped for
// transport.
func VerifyCitations(answer string, chunks []*domain.Chunk) []*domain.Chunk {
	used := make([]*domain.Chunk, 0, len(chunks))

	for _, c := range chunks {
		if c == nil || c.ID == "" {
			continue
		}
		if citationMatches(answer, c.ID) {
			used = append(used, truncateChunk(c))
		}
	}

	return used
}

func citationMatches(answer, id string) bool {
	simplified := id
	if idx := strings.LastIndex(id, ":"); idx >= 0 {
		simplified = id[idx+1:]
	}

	return strings.Contains(answer, "["+id+"]") ||
		strings.Contains(answer, "["+simplified+"]") ||
		strings.Contains(answer, id) ||
		strings.Contains(answer, simplified)
}
