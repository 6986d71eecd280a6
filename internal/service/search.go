package service

import (
	"context"
	"strings"

	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/telemetry"
)

// StoreOptions narrows a knowledge store search to sources and/or notes
type StoreOptions struct {
	Sources      bool
	Notes        bool
	Limit        int
	MinimumScore *float64
}

// KnowledgeStore defines the search surface of the knowledge store. Result
// ordering is store-defined relevance order and must be preserved by callers.
type KnowledgeStore interface {
	SearchLexical(ctx context.Context, query string, opts StoreOptions) ([]*domain.ResultItem, error)
	SearchVector(ctx context.Context, embedding []float32, opts StoreOptions) ([]*domain.ResultItem, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ModelCatalog resolves model identifiers and reports embedding capability
type ModelCatalog interface {
	GetModel(ctx context.Context, id string) (*domain.Model, error)
	HasEmbeddingModel(ctx context.Context) (bool, error)
}

// SearchService dispatches a normalized query against the knowledge store
type SearchService struct {
	store     KnowledgeStore
	embedding EmbeddingClient
	models    ModelCatalog
}

// NewSearchService creates a new SearchService instance
func NewSearchService(store KnowledgeStore, embedding EmbeddingClient, models ModelCatalog) *SearchService {
	return &SearchService{
		store:     store,
		embedding: embedding,
		models:    models,
	}
}

// Search validates the query, dispatches one store call for the requested
// mode and returns results in store order. Vector mode fails before any
// store call when no embedding model is registered.
func (s *SearchService) Search(ctx context.Context, query domain.Query) ([]*domain.ResultItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Operation: "search",
		Mode:      string(query.Mode),
	})
	defer span.End()

	if err := query.Validate(); err != nil {
		return nil, err
	}

	opts := StoreOptions{
		Sources:      query.SearchSources,
		Notes:        query.SearchNotes,
		Limit:        query.Limit,
		MinimumScore: query.MinimumScore,
	}

	if query.Mode == domain.SearchModeVector {
		ok, err := s.models.HasEmbeddingModel(ctx)
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "failed to check embedding model", err)
		}
		if !ok {
			return nil, domain.ErrNoEmbeddingModel
		}

		embedding, err := s.embedding.GenerateEmbedding(ctx, strings.TrimSpace(query.Text))
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "failed to embed query", err)
		}

		results, err := s.store.SearchVector(ctx, embedding, opts)
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "vector search failed", err)
		}
		return results, nil
	}

	results, err := s.store.SearchLexical(ctx, strings.TrimSpace(query.Text), opts)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStore, "lexical search failed", err)
	}
	return results, nil
}
