package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAskService struct {
	mock.Mock
}

func (m *MockAskService) Ask(ctx context.Context, question string, models service.AskModels) (<-chan domain.StageEvent, error) {
	args := m.Called(ctx, question, models)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan domain.StageEvent), args.Error(1)
}

func (m *MockAskService) AskSimple(ctx context.Context, question string, models service.AskModels) (string, error) {
	args := m.Called(ctx, question, models)
	return args.String(0), args.Error(1)
}

type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) ChunkAsk(ctx context.Context, input service.ChunkAskInput) (*service.ChunkAskOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChunkAskOutput), args.Error(1)
}

func eventChannel(events ...domain.StageEvent) <-chan domain.StageEvent {
	ch := make(chan domain.StageEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

var askRequestBody = map[string]interface{}{
	"question":           "What is X?",
	"strategy_model":     "strategy-m",
	"answer_model":       "answer-m",
	"final_answer_model": "final-m",
}

func TestAskHandler_Ask(t *testing.T) {
	t.Run("streams events as ordered NDJSON lines", func(t *testing.T) {
		mockAsk := new(MockAskService)
		mockLog := new(MockAuditLogRepository)
		h := NewAskHandler(mockAsk, nil, mockLog)

		strategy := &domain.Strategy{
			Reasoning: "two angles",
			Searches: []domain.PlannedSearch{
				{Term: "first", Instructions: "basics"},
				{Term: "second", Instructions: "details"},
			},
		}
		mockAsk.On("Ask", mock.Anything, "What is X?", service.AskModels{
			StrategyModel:    "strategy-m",
			AnswerModel:      "answer-m",
			FinalAnswerModel: "final-m",
		}).Return(eventChannel(
			domain.StageEvent{Type: domain.StageEventStrategy, Strategy: strategy},
			domain.StageEvent{Type: domain.StageEventAnswer, Content: "draft one"},
			domain.StageEvent{Type: domain.StageEventAnswer, Content: "draft two"},
			domain.StageEvent{Type: domain.StageEventFinalAnswer, Content: "final"},
			domain.StageEvent{Type: domain.StageEventComplete, Content: "final"},
		), nil)
		mockLog.On("CreateAskLog", mock.Anything, mock.MatchedBy(func(e service.AskLogEntry) bool {
			return e.EventCount == 5 && e.Outcome == service.AskOutcomeComplete
		})).Return("log-1", nil)

		w := postJSON(t, h.Ask, askRequestBody)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

		var lines []map[string]interface{}
		scanner := bufio.NewScanner(w.Body)
		for scanner.Scan() {
			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			lines = append(lines, line)
		}
		require.Len(t, lines, 5)
		assert.Equal(t, "strategy", lines[0]["type"])
		assert.Equal(t, "two angles", lines[0]["reasoning"])
		assert.Len(t, lines[0]["searches"], 2)
		assert.Equal(t, "answer", lines[1]["type"])
		assert.Equal(t, "draft one", lines[1]["content"])
		assert.Equal(t, "answer", lines[2]["type"])
		assert.Equal(t, "final_answer", lines[3]["type"])
		assert.Equal(t, "complete", lines[4]["type"])
		assert.Equal(t, "final", lines[4]["final_answer"])
		mockLog.AssertExpectations(t)
	})

	t.Run("precondition failures are a clean 400, no stream", func(t *testing.T) {
		mockAsk := new(MockAskService)
		h := NewAskHandler(mockAsk, nil, nil)

		mockAsk.On("Ask", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, domain.ErrNoEmbeddingModel)

		w := postJSON(t, h.Ask, askRequestBody)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	})

	t.Run("error event ends the stream and is recorded as an error outcome", func(t *testing.T) {
		mockAsk := new(MockAskService)
		mockLog := new(MockAuditLogRepository)
		h := NewAskHandler(mockAsk, nil, mockLog)

		mockAsk.On("Ask", mock.Anything, mock.Anything, mock.Anything).Return(eventChannel(
			domain.StageEvent{Type: domain.StageEventStrategy, Strategy: &domain.Strategy{}},
			domain.StageEvent{Type: domain.StageEventError, Message: "model offline"},
		), nil)
		mockLog.On("CreateAskLog", mock.Anything, mock.MatchedBy(func(e service.AskLogEntry) bool {
			return e.Outcome == service.AskOutcomeError
		})).Return("log-1", nil)

		w := postJSON(t, h.Ask, askRequestBody)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"type":"error"`)
		assert.Contains(t, w.Body.String(), "model offline")
		mockLog.AssertExpectations(t)
	})
}

func TestAskHandler_AskSimple(t *testing.T) {
	t.Run("returns answer and question", func(t *testing.T) {
		mockAsk := new(MockAskService)
		h := NewAskHandler(mockAsk, nil, nil)

		mockAsk.On("AskSimple", mock.Anything, "What is X?", mock.Anything).Return("the answer", nil)

		w := postJSON(t, h.AskSimple, askRequestBody)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AskSimpleResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "the answer", resp.Answer)
		assert.Equal(t, "What is X?", resp.Question)
	})

	t.Run("internal error when no answer was produced", func(t *testing.T) {
		mockAsk := new(MockAskService)
		h := NewAskHandler(mockAsk, nil, nil)

		mockAsk.On("AskSimple", mock.Anything, mock.Anything, mock.Anything).
			Return("", domain.NewDomainError(domain.ErrCodeInternalError, "no answer generated"))

		w := postJSON(t, h.AskSimple, askRequestBody)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAskHandler_ChunkAsk(t *testing.T) {
	chunkBody := map[string]interface{}{
		"question":       "What is X?",
		"model_id":       "model-1",
		"search_sources": true,
		"limit":          5,
	}

	t.Run("returns the full retrieval trace", func(t *testing.T) {
		mockAnswer := new(MockAnswerService)
		h := NewAskHandler(nil, mockAnswer, nil)

		score := 0.8
		mockAnswer.On("ChunkAsk", mock.Anything, service.ChunkAskInput{
			Question:      "What is X?",
			ModelID:       "model-1",
			SearchSources: true,
			Limit:         5,
		}).Return(&service.ChunkAskOutput{
			Answer:   "X is a test [source:abc].",
			Question: "What is X?",
			ChunksUsed: []*domain.Chunk{
				{ID: "source:abc", Text: "X is a test."},
			},
			Results: []*domain.ResultItem{
				{ID: "source:abc", Matches: []string{"X is a test."}, Title: "Doc", ParentID: "source:parent", Similarity: &score},
			},
			SearchCount:      1,
			FormattedResults: `{"query": "User query", "results": []}`,
			Prompt:           "the prompt",
		}, nil)

		w := postJSON(t, h.ChunkAsk, chunkBody)

		require.Equal(t, http.StatusOK, w.Code)
		var resp ChunkAskResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "X is a test [source:abc].", resp.Answer)
		require.Len(t, resp.ChunksUsed, 1)
		assert.Equal(t, "source:abc", resp.ChunksUsed[0].ID)
		require.Len(t, resp.VectorSearchResults, 1)
		require.NotNil(t, resp.VectorSearchResults[0].SourceID)
		assert.Equal(t, "source:parent", *resp.VectorSearchResults[0].SourceID)
		assert.Equal(t, 1, resp.SearchCount)
		assert.Equal(t, "the prompt", resp.PromptSentToLLM)
		require.Len(t, resp.RawSearchResults, 1)
	})

	t.Run("missing limit defaults to ten", func(t *testing.T) {
		mockAnswer := new(MockAnswerService)
		h := NewAskHandler(nil, mockAnswer, nil)

		mockAnswer.On("ChunkAsk", mock.Anything, mock.MatchedBy(func(in service.ChunkAskInput) bool {
			return in.Limit == defaultChunkAskLimit
		})).Return(&service.ChunkAskOutput{Answer: service.FallbackAnswer, Question: "q"}, nil)

		w := postJSON(t, h.ChunkAsk, map[string]interface{}{
			"question": "q",
			"model_id": "model-1",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		mockAnswer.AssertExpectations(t)
	})

	t.Run("empty question maps to 400", func(t *testing.T) {
		mockAnswer := new(MockAnswerService)
		h := NewAskHandler(nil, mockAnswer, nil)

		mockAnswer.On("ChunkAsk", mock.Anything, mock.Anything).Return(nil, domain.ErrEmptyQuestion)

		w := postJSON(t, h.ChunkAsk, map[string]interface{}{
			"question": "",
			"model_id": "model-1",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown model maps to 400", func(t *testing.T) {
		mockAnswer := new(MockAnswerService)
		h := NewAskHandler(nil, mockAnswer, nil)

		mockAnswer.On("ChunkAsk", mock.Anything, mock.Anything).Return(nil, domain.ErrModelNotFound)

		w := postJSON(t, h.ChunkAsk, chunkBody)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		h := NewAskHandler(nil, new(MockAnswerService), nil)

		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		h.ChunkAsk(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
