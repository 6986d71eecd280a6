package service

import (
	"context"
	"strings"

	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/metrics"
	"github.com/readstack/readstack/internal/telemetry"
)

// answerMaxTokens is the output ceiling for every grounded generation call
const answerMaxTokens = 3000

// GenerationClient defines the interface for single round-trip completions
type GenerationClient interface {
	Generate(ctx context.Context, model, system, prompt string, maxTokens int) (string, error)
}

// AnswerService produces citation-grounded answers over the knowledge store
type AnswerService struct {
	store     KnowledgeStore
	embedding EmbeddingClient
	models    ModelCatalog
	gen       GenerationClient
}

// NewAnswerService creates a new AnswerService instance
func NewAnswerService(store KnowledgeStore, embedding EmbeddingClient, models ModelCatalog, gen GenerationClient) *AnswerService {
	return &AnswerService{
		store:     store,
		embedding: embedding,
		models:    models,
		gen:       gen,
	}
}

// Synthesize performs one generation call with the fixed two-message shape:
// the citation system instruction followed by the composed prompt. Failures
// surface as GenerationError and are never retried.
func (s *AnswerService) Synthesize(ctx context.Context, prompt, modelID string) (string, error) {
	answer, err := s.gen.Generate(ctx, modelID, systemInstruction, prompt, answerMaxTokens)
	metrics.ObserveGeneration("answer", err)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "failed to generate answer", err)
	}
	return answer, nil
}

// ChunkAskInput describes a chunk-grounded ask request
type ChunkAskInput struct {
	Question      string
	ModelID       string
	SearchSources bool
	SearchNotes   bool
	Limit         int
	MinimumScore  *float64
}

// ChunkAskOutput carries the grounded answer plus the full retrieval trace
type ChunkAskOutput struct {
	Answer           string
	Question         string
	ChunksUsed       []*domain.Chunk
	Results          []*domain.ResultItem
	SearchCount      int
	FormattedResults string
	Prompt           string
}

// ChunkAsk runs the single-pass search-then-synthesize flow: vector search,
// chunk projection, prompt composition, one generation call and citation
// verification. Zero search results or zero projectable chunks short-circuit
// to the fallback answer without calling the generation service.
func (s *AnswerService) ChunkAsk(ctx context.Context, input ChunkAskInput) (*ChunkAskOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.ChunkAsk", telemetry.SpanAttributes{
		Operation: "chunk_ask",
		ModelID:   input.ModelID,
	})
	defer span.End()

	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if input.Limit < domain.MinSearchLimit || input.Limit > domain.MaxSearchLimit {
		return nil, domain.ErrLimitOutOfRange
	}

	if _, err := s.models.GetModel(ctx, input.ModelID); err != nil {
		return nil, err
	}

	ok, err := s.models.HasEmbeddingModel(ctx)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "failed to check embedding model", err)
	}
	if !ok {
		return nil, domain.ErrNoEmbeddingModel
	}

	embedding, err := s.embedding.GenerateEmbedding(ctx, input.Question)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "failed to embed question", err)
	}

	results, err := s.store.SearchVector(ctx, embedding, StoreOptions{
		Sources:      input.SearchSources,
		Notes:        input.SearchNotes,
		Limit:        input.Limit,
		MinimumScore: input.MinimumScore,
	})
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "vector search failed", err)
	}

	formatted := FormatResultsJSON(results)

	if len(results) == 0 {
		return &ChunkAskOutput{
			Answer:           FallbackAnswer,
			Question:         input.Question,
			ChunksUsed:       []*domain.Chunk{},
			Results:          []*domain.ResultItem{},
			SearchCount:      0,
			FormattedResults: formatted,
			Prompt:           "",
		}, nil
	}

	chunks := ProjectChunks(results, true)
	if len(chunks) == 0 {
		// Results existed but none were citation-eligible; same fallback,
		// still no generation call.
		return &ChunkAskOutput{
			Answer:           FallbackAnswer,
			Question:         input.Question,
			ChunksUsed:       []*domain.Chunk{},
			Results:          results,
			SearchCount:      len(results),
			FormattedResults: formatted,
			Prompt:           "",
		}, nil
	}

	_, prompt, err := ComposePrompt(input.Question, chunks)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to compose prompt", err)
	}

	answer, err := s.Synthesize(ctx, prompt, input.ModelID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &ChunkAskOutput{
		Answer:           answer,
		Question:         input.Question,
		ChunksUsed:       VerifyCitations(answer, chunks),
		Results:          results,
		SearchCount:      len(results),
		FormattedResults: formatted,
		Prompt:           prompt,
	}, nil
}
