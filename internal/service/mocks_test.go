package service

import (
	"context"

	"github.com/readstack/readstack/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockKnowledgeStore is a mock implementation of KnowledgeStore
type MockKnowledgeStore struct {
	mock.Mock
}

func (m *MockKnowledgeStore) SearchLexical(ctx context.Context, query string, opts StoreOptions) ([]*domain.ResultItem, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ResultItem), args.Error(1)
}

func (m *MockKnowledgeStore) SearchVector(ctx context.Context, embedding []float32, opts StoreOptions) ([]*domain.ResultItem, error) {
	args := m.Called(ctx, embedding, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ResultItem), args.Error(1)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockModelCatalog is a mock implementation of ModelCatalog
type MockModelCatalog struct {
	mock.Mock
}

func (m *MockModelCatalog) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Model), args.Error(1)
}

func (m *MockModelCatalog) HasEmbeddingModel(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// MockGenerationClient is a mock implementation of GenerationClient
type MockGenerationClient struct {
	mock.Mock
}

func (m *MockGenerationClient) Generate(ctx context.Context, model, system, prompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, model, system, prompt, maxTokens)
	return args.String(0), args.Error(1)
}

// catalogWithModels wires a MockModelCatalog that resolves every given id and
// reports an embedding model as present.
func catalogWithModels(ids ...string) *MockModelCatalog {
	catalog := new(MockModelCatalog)
	for _, id := range ids {
		catalog.On("GetModel", mock.Anything, id).
			Return(&domain.Model{ID: id, Name: id, Provider: "openai", Type: domain.ModelTypeLanguage}, nil)
	}
	catalog.On("HasEmbeddingModel", mock.Anything).Return(true, nil)
	return catalog
}
