package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/readstack/readstack/internal/domain"
)

// FallbackAnswer is the canonical answer returned when the retrieved evidence
// is insufficient. The prompt template instructs the model to emit this exact
// sentence, and the empty-result short-circuit returns it without any
// generation call.
const FallbackAnswer = "Based on the provided text, I cannot answer this question."

// systemInstruction reinforces the citation requirement as the system turn of
// every grounded generation call.
const systemInstruction = "You are an expert assistant that answers questions based on provided text chunks. Always cite your sources using the chunk IDs in brackets [chunk_id]."

const promptTemplate = `You are an expert AI assistant tasked with answering a user's question based ONLY on a provided set of search results. Follow these instructions precisely.

**Instructions:**

1. **Synthesize an Answer:** Carefully read the user's QUESTION and all the text chunks in the SEARCH RESULTS. Synthesize a single, comprehensive, and accurate answer to the question.
2. **Filter for Relevance:** Critically evaluate each text chunk. If a chunk is not relevant to the user's QUESTION, you MUST ignore it and not include its information in your answer.
3. **Cite Your Sources:** For EVERY piece of information you use from a text chunk, you MUST cite its corresponding ` + "`id`" + ` immediately after the sentence or clause containing that information. Use the format ` + "`[id]`" + `. For example: "The bicycle was invented in the 19th century [source:abc:match1]."
4. **No Outside Information:** Do NOT use any knowledge you have outside of the provided SEARCH RESULTS. If the search results do not contain enough information to answer the question, you must state: "` + FallbackAnswer + `"
5. **Be Concise:** Do not repeat information. Combine facts from multiple sources into a single, coherent narrative.

---

**User's QUESTION:**
%s

**SEARCH RESULTS:**
%s

---

**Answer:**`

// PromptChunk is one entry of the prompt payload
type PromptChunk struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PromptPayload is the exact JSON document embedded into the generation
// prompt and mirrored for logging. Chunk text is carried untruncated.
type PromptPayload struct {
	Query   string        `json:"query"`
	Results []PromptChunk `json:"results"`
}

// EncodePayload serializes the payload without escaping HTML or non-ASCII
// characters so the model sees chunk text as ingested.
func EncodePayload(p PromptPayload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("failed to encode prompt payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ComposePrompt builds the grounded-answer prompt for a question and its
// retrieved chunks. It returns the encoded payload (for logging) and the full
// instruction-wrapped prompt sent to the generation service.
func ComposePrompt(question string, chunks []*domain.Chunk) (payload string, prompt string, err error) {
	results := make([]PromptChunk, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		results = append(results, PromptChunk{ID: c.ID, Text: c.Text})
	}

	payload, err = EncodePayload(PromptPayload{Query: question, Results: results})
	if err != nil {
		return "", "", err
	}

	prompt = fmt.Sprintf(promptTemplate, question, payload)
	return payload, prompt, nil
}
