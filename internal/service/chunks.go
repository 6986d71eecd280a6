package service

import (
	"fmt"
	"strings"

	"github.com/readstack/readstack/internal/domain"
)

const (
	// formatterMaxChars caps chunk text in the plain search-result formatter
	formatterMaxChars = 800
	// transportMaxChars caps cited chunk text in answer responses
	transportMaxChars = 1000
)

// ProjectChunks turns raw store results into citation-ready chunks. An item
// with N>1 matches yields N chunks with ids <id>:match1..<id>:matchN; a single
// match keeps the original id; an item with no matches falls back to its
// title, and is dropped silently when the title is empty too. When sourceOnly
// is set, items outside the source namespace are skipped entirely.
func ProjectChunks(items []*domain.ResultItem, sourceOnly bool) []*domain.Chunk {
	var chunks []*domain.Chunk

	for _, item := range items {
		if item == nil || item.ID == "" {
			continue
		}
		if sourceOnly && !strings.HasPrefix(item.ID, domain.SourceIDPrefix) {
			continue
		}

		if len(item.Matches) > 0 {
			for i, match := range item.Matches {
				text := strings.TrimSpace(match)
				id := item.ID
				if len(item.Matches) > 1 {
					id = fmt.Sprintf("%s:match%d", item.ID, i+1)
				}
				chunks = append(chunks, &domain.Chunk{
					ID:       id,
					Text:     text,
					SourceID: item.ParentID,
					Score:    item.Similarity,
					Title:    item.Title,
				})
			}
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		chunks = append(chunks, &domain.Chunk{
			ID:       item.ID,
			Text:     title,
			SourceID: item.ParentID,
			Score:    item.Similarity,
			Title:    item.Title,
		})
	}

	return chunks
}

// FormatResultsJSON renders store results as a JSON document for logging and
// inspection. Unlike the prompt payload, text is truncated to 800 characters
// with an ellipsis marker and escaped by hand for embedding in a JSON string
// literal.
func FormatResultsJSON(items []*domain.ResultItem) string {
	if len(items) == 0 {
		return `{"query": "No relevant information found", "results": []}`
	}

	formatted := make([]string, 0, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("chunk_%d", i+1)
		}

		text := ""
		if len(item.Matches) > 0 {
			text = item.Matches[0]
		} else {
			text = item.Title
		}
		text = strings.TrimSpace(text)
		if capped, cut := truncateRunes(text, formatterMaxChars); cut {
			text = capped + "..."
		}
		text = escapeJSONLiteral(text)

		formatted = append(formatted, fmt.Sprintf(`{"id": "%s", "text": "%s"}`, id, text))
	}

	return fmt.Sprintf(`{"query": "User query", "results": [%s]}`, strings.Join(formatted, ","))
}

func escapeJSONLiteral(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return replacer.Replace(s)
}

// truncateChunk returns a copy of the chunk with its text capped for
// transport.
func truncateChunk(c *domain.Chunk) *domain.Chunk {
	out := *c
	out.Text, _ = truncateRunes(out.Text, transportMaxChars)
	return &out
}

// truncateRunes caps s at max characters, never splitting a multibyte rune.
// The caps are character counts, so the byte length is only a cheap
// first check.
func truncateRunes(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]), true
}
