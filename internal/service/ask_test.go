package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/readstack/readstack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testAskModels = AskModels{
	StrategyModel:    "strategy-m",
	AnswerModel:      "answer-m",
	FinalAnswerModel: "final-m",
}

const twoSearchStrategy = `{"reasoning": "split into two angles", "searches": [` +
	`{"term": "first angle", "instructions": "extract basics"},` +
	`{"term": "second angle", "instructions": "extract details"}]}`

// newAskFixture wires an AskService whose store returns one source chunk for
// every sub-query.
func newAskFixture(t *testing.T, cfg AskConfig) (*MockKnowledgeStore, *MockEmbeddingClient, *MockGenerationClient, *AskService) {
	t.Helper()
	mockStore := new(MockKnowledgeStore)
	mockEmbedding := new(MockEmbeddingClient)
	mockGen := new(MockGenerationClient)
	catalog := catalogWithModels("strategy-m", "answer-m", "final-m")
	svc := NewAskServiceWithConfig(mockStore, mockEmbedding, catalog, mockGen, cfg)
	return mockStore, mockEmbedding, mockGen, svc
}

func collectEvents(t *testing.T, events <-chan domain.StageEvent) []domain.StageEvent {
	t.Helper()
	var out []domain.StageEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func promptContains(sub string) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, sub)
	})
}

func TestAskService_Ask_EventOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("two-step strategy emits strategy, both answers, final answer, complete", func(t *testing.T) {
		mockStore, mockEmbedding, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return(twoSearchStrategy, nil)
		mockEmbedding.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(make([]float32, 1536), nil)
		mockStore.On("SearchVector", mock.Anything, mock.Anything, mock.Anything).
			Return([]*domain.ResultItem{{ID: "source:abc", Matches: []string{"evidence"}}}, nil)
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, promptContains("first angle"), mock.Anything).
			Return("draft one [source:abc]", nil)
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, promptContains("second angle"), mock.Anything).
			Return("draft two [source:abc]", nil)
		mockGen.On("Generate", mock.Anything, "final-m", mock.Anything, mock.Anything, mock.Anything).
			Return("the consolidated answer", nil)

		events, err := svc.Ask(ctx, "What is X?", testAskModels)
		require.NoError(t, err)

		got := collectEvents(t, events)
		require.Len(t, got, 5)
		assert.Equal(t, domain.StageEventStrategy, got[0].Type)
		require.NotNil(t, got[0].Strategy)
		assert.Equal(t, "split into two angles", got[0].Strategy.Reasoning)
		require.Len(t, got[0].Strategy.Searches, 2)

		assert.Equal(t, domain.StageEventAnswer, got[1].Type)
		assert.Equal(t, "draft one [source:abc]", got[1].Content)
		assert.Equal(t, domain.StageEventAnswer, got[2].Type)
		assert.Equal(t, "draft two [source:abc]", got[2].Content)

		assert.Equal(t, domain.StageEventFinalAnswer, got[3].Type)
		assert.Equal(t, "the consolidated answer", got[3].Content)
		assert.Equal(t, domain.StageEventComplete, got[4].Type)
		assert.Equal(t, "the consolidated answer", got[4].Content)
	})

	t.Run("answers emit in planned order even when drafts finish out of order", func(t *testing.T) {
		cfg := DefaultAskConfig()
		cfg.DraftConcurrency = 2
		mockStore, mockEmbedding, mockGen, svc := newAskFixture(t, cfg)

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return(twoSearchStrategy, nil)
		mockEmbedding.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(make([]float32, 1536), nil)
		mockStore.On("SearchVector", mock.Anything, mock.Anything, mock.Anything).
			Return([]*domain.ResultItem{{ID: "source:abc", Matches: []string{"evidence"}}}, nil)

		// First planned draft is slow; second completes immediately.
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, promptContains("first angle"), mock.Anything).
			After(100*time.Millisecond).Return("slow first draft", nil)
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, promptContains("second angle"), mock.Anything).
			Return("fast second draft", nil)
		mockGen.On("Generate", mock.Anything, "final-m", mock.Anything, mock.Anything, mock.Anything).
			Return("final", nil)

		events, err := svc.Ask(ctx, "What is X?", testAskModels)
		require.NoError(t, err)

		got := collectEvents(t, events)
		require.Len(t, got, 5)
		assert.Equal(t, "slow first draft", got[1].Content)
		assert.Equal(t, "fast second draft", got[2].Content)
	})

	t.Run("unparseable strategy output falls back to searching the question itself", func(t *testing.T) {
		mockStore, mockEmbedding, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return("I think we should look into several things.", nil)
		mockEmbedding.On("GenerateEmbedding", mock.Anything, "What is X?").Return(make([]float32, 1536), nil)
		mockStore.On("SearchVector", mock.Anything, mock.Anything, mock.Anything).
			Return([]*domain.ResultItem{{ID: "source:abc", Matches: []string{"evidence"}}}, nil)
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, mock.Anything, mock.Anything).
			Return("draft", nil)
		mockGen.On("Generate", mock.Anything, "final-m", mock.Anything, mock.Anything, mock.Anything).
			Return("final", nil)

		events, err := svc.Ask(ctx, "What is X?", testAskModels)
		require.NoError(t, err)

		got := collectEvents(t, events)
		require.NotEmpty(t, got)
		require.Equal(t, domain.StageEventStrategy, got[0].Type)
		require.Len(t, got[0].Strategy.Searches, 1)
		assert.Equal(t, "What is X?", got[0].Strategy.Searches[0].Term)
	})

	t.Run("sub-query with no chunks drafts the fallback without a generation call", func(t *testing.T) {
		mockStore, mockEmbedding, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		singleSearch := `{"reasoning": "one search", "searches": [{"term": "only angle", "instructions": ""}]}`
		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return(singleSearch, nil)
		mockEmbedding.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(make([]float32, 1536), nil)
		mockStore.On("SearchVector", mock.Anything, mock.Anything, mock.Anything).
			Return([]*domain.ResultItem{}, nil)
		mockGen.On("Generate", mock.Anything, "final-m", mock.Anything, mock.Anything, mock.Anything).
			Return("final from fallback", nil)

		events, err := svc.Ask(ctx, "What is X?", testAskModels)
		require.NoError(t, err)

		got := collectEvents(t, events)
		require.Len(t, got, 4)
		assert.Equal(t, FallbackAnswer, got[1].Content)
		mockGen.AssertNotCalled(t, "Generate", mock.Anything, "answer-m", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAskService_Ask_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("strategy failure terminates the stream with a single error event", func(t *testing.T) {
		_, _, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("model offline"))

		events, err := svc.Ask(ctx, "What is X?", testAskModels)
		require.NoError(t, err)

		got := collectEvents(t, events)
		require.Len(t, got, 1)
		assert.Equal(t, domain.StageEventError, got[0].Type)
		assert.Contains(t, got[0].Message, "failed to generate strategy")
	})

	t.Run("draft failure preserves already emitted events and ends with error", func(t *testing.T) {
		mockStore, mockEmbedding, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return(twoSearchStrategy, nil)
		mockEmbedding.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(make([]float32, 1536), nil)
		mockStore.On("SearchVector", mock.Anything, mock.Anything, mock.Anything).
			Return([]*domain.ResultItem{{ID: "source:abc", Matches: []string{"evidence"}}}, nil)
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, promptContains("first angle"), mock.Anything).
			Return("", errors.New("rate limited"))
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, promptContains("second angle"), mock.Anything).
			Return("unused", nil).Maybe()

		events, err := svc.Ask(ctx, "What is X?", testAskModels)
		require.NoError(t, err)

		got := collectEvents(t, events)
		require.NotEmpty(t, got)
		assert.Equal(t, domain.StageEventStrategy, got[0].Type)
		last := got[len(got)-1]
		assert.Equal(t, domain.StageEventError, last.Type)
		// Exactly one terminal event, at the end.
		for _, ev := range got[:len(got)-1] {
			assert.False(t, ev.Terminal())
		}
	})

	t.Run("precondition violations are synchronous", func(t *testing.T) {
		cases := []struct {
			name    string
			mutate  func(*MockModelCatalog)
			q       string
			wantErr error
		}{
			{
				name:    "empty question",
				q:       "  ",
				wantErr: domain.ErrEmptyQuestion,
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, _, _, svc := newAskFixture(t, DefaultAskConfig())
				events, err := svc.Ask(ctx, tc.q, testAskModels)
				assert.Nil(t, events)
				assert.ErrorIs(t, err, tc.wantErr)
			})
		}
	})

	t.Run("unresolved model rejected before any event", func(t *testing.T) {
		catalog := new(MockModelCatalog)
		catalog.On("GetModel", mock.Anything, "strategy-m").Return(nil, domain.ErrModelNotFound)
		svc := NewAskService(new(MockKnowledgeStore), new(MockEmbeddingClient), catalog, new(MockGenerationClient))

		events, err := svc.Ask(ctx, "What is X?", testAskModels)

		assert.Nil(t, events)
		assert.ErrorIs(t, err, domain.ErrModelNotFound)
	})

	t.Run("missing embedding model rejected before any event", func(t *testing.T) {
		catalog := new(MockModelCatalog)
		for _, id := range []string{"strategy-m", "answer-m", "final-m"} {
			catalog.On("GetModel", mock.Anything, id).
				Return(&domain.Model{ID: id, Type: domain.ModelTypeLanguage}, nil)
		}
		catalog.On("HasEmbeddingModel", mock.Anything).Return(false, nil)
		svc := NewAskService(new(MockKnowledgeStore), new(MockEmbeddingClient), catalog, new(MockGenerationClient))

		events, err := svc.Ask(ctx, "What is X?", testAskModels)

		assert.Nil(t, events)
		assert.ErrorIs(t, err, domain.ErrNoEmbeddingModel)
	})
}

func TestAskService_AskSimple(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the same final answer a streaming caller would see", func(t *testing.T) {
		mockStore, mockEmbedding, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return(twoSearchStrategy, nil)
		mockEmbedding.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(make([]float32, 1536), nil)
		mockStore.On("SearchVector", mock.Anything, mock.Anything, mock.Anything).
			Return([]*domain.ResultItem{{ID: "source:abc", Matches: []string{"evidence"}}}, nil)
		mockGen.On("Generate", mock.Anything, "answer-m", mock.Anything, mock.Anything, mock.Anything).
			Return("draft", nil)
		mockGen.On("Generate", mock.Anything, "final-m", mock.Anything, mock.Anything, mock.Anything).
			Return("the final answer", nil)

		answer, err := svc.AskSimple(ctx, "What is X?", testAskModels)

		require.NoError(t, err)
		assert.Equal(t, "the final answer", answer)
	})

	t.Run("error event becomes a generation error", func(t *testing.T) {
		_, _, mockGen, svc := newAskFixture(t, DefaultAskConfig())

		mockGen.On("Generate", mock.Anything, "strategy-m", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("model offline"))

		_, err := svc.AskSimple(ctx, "What is X?", testAskModels)

		require.Error(t, err)
		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeGeneration, domainErr.Code)
	})
}

func TestParseStrategy(t *testing.T) {
	t.Run("tolerates code fences and surrounding prose", func(t *testing.T) {
		raw := "Sure, here is the plan:\n```json\n" + twoSearchStrategy + "\n```\nLet me know."
		strategy := parseStrategy(raw)
		require.NotNil(t, strategy)
		assert.Len(t, strategy.Searches, 2)
	})

	t.Run("drops searches with empty terms", func(t *testing.T) {
		raw := `{"reasoning": "r", "searches": [{"term": "  ", "instructions": "x"}, {"term": "real", "instructions": ""}]}`
		strategy := parseStrategy(raw)
		require.NotNil(t, strategy)
		require.Len(t, strategy.Searches, 1)
		assert.Equal(t, "real", strategy.Searches[0].Term)
	})

	t.Run("returns nil when no JSON object is present", func(t *testing.T) {
		assert.Nil(t, parseStrategy("no json here"))
	})
}
