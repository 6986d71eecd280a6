package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/readstack/readstack/internal/api"
	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/service"
)

const defaultChunkAskLimit = 10

type AskService interface {
	Ask(ctx context.Context, question string, m service.AskModels) (<-chan domain.StageEvent, error)
	AskSimple(ctx context.Context, question string, m service.AskModels) (string, error)
}

type AnswerService interface {
	ChunkAsk(ctx context.Context, input service.ChunkAskInput) (*service.ChunkAskOutput, error)
}

type AskHandler struct {
	ask     AskService
	answer  AnswerService
	logRepo service.AuditLogRepository
}

func NewAskHandler(ask AskService, answer AnswerService, logRepo service.AuditLogRepository) *AskHandler {
	return &AskHandler{ask: ask, answer: answer, logRepo: logRepo}
}

type AskRequest struct {
	Question         string `json:"question"`
	StrategyModel    string `json:"strategy_model"`
	AnswerModel      string `json:"answer_model"`
	FinalAnswerModel string `json:"final_answer_model"`
}

type AskSimpleResponse struct {
	Answer   string `json:"answer"`
	Question string `json:"question"`
}

type plannedSearchJSON struct {
	Term         string `json:"term"`
	Instructions string `json:"instructions"`
}

// streamEvent is the wire shape of one line in the ask event stream. Field
// presence depends on the event type.
type streamEvent struct {
	Type        string              `json:"type"`
	Reasoning   string              `json:"reasoning,omitempty"`
	Searches    []plannedSearchJSON `json:"searches,omitempty"`
	Content     string              `json:"content,omitempty"`
	FinalAnswer string              `json:"final_answer,omitempty"`
	Message     string              `json:"message,omitempty"`
}

func stageEventToWire(ev domain.StageEvent) streamEvent {
	out := streamEvent{Type: string(ev.Type)}
	switch ev.Type {
	case domain.StageEventStrategy:
		if ev.Strategy != nil {
			out.Reasoning = ev.Strategy.Reasoning
			out.Searches = make([]plannedSearchJSON, 0, len(ev.Strategy.Searches))
			for _, s := range ev.Strategy.Searches {
				out.Searches = append(out.Searches, plannedSearchJSON{Term: s.Term, Instructions: s.Instructions})
			}
		}
	case domain.StageEventAnswer, domain.StageEventFinalAnswer:
		out.Content = ev.Content
	case domain.StageEventComplete:
		out.FinalAnswer = ev.Content
	case domain.StageEventError:
		out.Message = ev.Message
	}
	return out
}

// Ask streams the multi-stage answer pipeline as newline-delimited JSON.
// Preconditions are checked before the first byte is written so violations
// still produce a clean 400.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	models := service.AskModels{
		StrategyModel:    req.StrategyModel,
		AnswerModel:      req.AnswerModel,
		FinalAnswerModel: req.FinalAnswerModel,
	}

	started := time.Now()
	events, err := h.ask.Ask(r.Context(), req.Question, models)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	flusher, canFlush := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	eventCount := 0
	outcome := service.AskOutcomeComplete

	for ev := range events {
		if err := enc.Encode(stageEventToWire(ev)); err != nil {
			// Client is gone; drain so the producer can finish.
			for range events {
			}
			break
		}
		if canFlush {
			flusher.Flush()
		}
		eventCount++
		if ev.Type == domain.StageEventError {
			outcome = service.AskOutcomeError
		}
	}

	h.recordAsk(r.Context(), req, eventCount, outcome, time.Since(started))
}

// AskSimple runs the same pipeline but returns only the terminal answer.
func (h *AskHandler) AskSimple(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	models := service.AskModels{
		StrategyModel:    req.StrategyModel,
		AnswerModel:      req.AnswerModel,
		FinalAnswerModel: req.FinalAnswerModel,
	}

	started := time.Now()
	answer, err := h.ask.AskSimple(r.Context(), req.Question, models)
	outcome := service.AskOutcomeComplete
	if err != nil {
		outcome = service.AskOutcomeError
	}
	h.recordAsk(r.Context(), req, 0, outcome, time.Since(started))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, AskSimpleResponse{
		Answer:   answer,
		Question: req.Question,
	})
}

type ChunkAskRequest struct {
	Question      string   `json:"question"`
	ModelID       string   `json:"model_id"`
	SearchSources *bool    `json:"search_sources"`
	SearchNotes   *bool    `json:"search_notes"`
	Limit         *int     `json:"limit"`
	MinimumScore  *float64 `json:"minimum_score"`
}

type ChunkJSON struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type VectorSearchResultJSON struct {
	ID       string   `json:"id"`
	Content  []string `json:"content"`
	Title    *string  `json:"title"`
	SourceID *string  `json:"source_id"`
	Score    *float64 `json:"score"`
}

type rawResultJSON struct {
	ID         string   `json:"id"`
	Matches    []string `json:"matches"`
	Title      string   `json:"title"`
	ParentID   string   `json:"parent_id"`
	Similarity *float64 `json:"similarity"`
}

type ChunkAskResponse struct {
	Answer                 string                    `json:"answer"`
	Question               string                    `json:"question"`
	ChunksUsed             []ChunkJSON               `json:"chunks_used"`
	VectorSearchResults    []*VectorSearchResultJSON `json:"vector_search_results"`
	SearchCount            int                       `json:"search_count"`
	FormattedSearchResults string                    `json:"formatted_search_results"`
	RawSearchResults       []rawResultJSON           `json:"raw_search_results"`
	PromptSentToLLM        string                    `json:"prompt_sent_to_llm"`
}

func vectorResultToResponse(item *domain.ResultItem) *VectorSearchResultJSON {
	out := &VectorSearchResultJSON{
		ID:      item.ID,
		Content: item.Matches,
		Score:   item.Similarity,
	}
	if out.Content == nil {
		out.Content = []string{}
	}
	if item.Title != "" {
		title := item.Title
		out.Title = &title
	}
	if item.ParentID != "" {
		parent := item.ParentID
		out.SourceID = &parent
	}
	return out
}

// ChunkAsk answers a question grounded in retrieved chunks, returning the
// full retrieval trace alongside the answer.
func (h *AskHandler) ChunkAsk(w http.ResponseWriter, r *http.Request) {
	var req ChunkAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.ChunkAskInput{
		Question:      req.Question,
		ModelID:       req.ModelID,
		SearchSources: boolOrDefault(req.SearchSources, true),
		SearchNotes:   boolOrDefault(req.SearchNotes, false),
		Limit:         intOrDefault(req.Limit, defaultChunkAskLimit),
		MinimumScore:  req.MinimumScore,
	}

	output, err := h.answer.ChunkAsk(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	chunks := make([]ChunkJSON, 0, len(output.ChunksUsed))
	for _, c := range output.ChunksUsed {
		chunks = append(chunks, ChunkJSON{ID: c.ID, Text: c.Text})
	}

	vectorResults := make([]*VectorSearchResultJSON, 0, len(output.Results))
	raw := make([]rawResultJSON, 0, len(output.Results))
	for _, item := range output.Results {
		vectorResults = append(vectorResults, vectorResultToResponse(item))
		matches := item.Matches
		if matches == nil {
			matches = []string{}
		}
		raw = append(raw, rawResultJSON{
			ID:         item.ID,
			Matches:    matches,
			Title:      item.Title,
			ParentID:   item.ParentID,
			Similarity: item.Similarity,
		})
	}

	api.JSON(w, http.StatusOK, ChunkAskResponse{
		Answer:                 output.Answer,
		Question:               output.Question,
		ChunksUsed:             chunks,
		VectorSearchResults:    vectorResults,
		SearchCount:            output.SearchCount,
		FormattedSearchResults: output.FormattedResults,
		RawSearchResults:       raw,
		PromptSentToLLM:        output.Prompt,
	})
}

func (h *AskHandler) recordAsk(ctx context.Context, req AskRequest, eventCount int, outcome string, elapsed time.Duration) {
	if h.logRepo == nil {
		return
	}
	// The request context may already be canceled when a streaming client
	// disconnects; the log entry should still land.
	ctx = context.WithoutCancel(ctx)
	_, _ = h.logRepo.CreateAskLog(ctx, service.AskLogEntry{
		Question:         req.Question,
		StrategyModel:    req.StrategyModel,
		AnswerModel:      req.AnswerModel,
		FinalAnswerModel: req.FinalAnswerModel,
		EventCount:       eventCount,
		Outcome:          outcome,
		DurationMs:       int(elapsed.Milliseconds()),
	})
}
