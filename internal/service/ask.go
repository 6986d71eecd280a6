package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/metrics"
	"github.com/readstack/readstack/internal/telemetry"
)

// askState is one state of the ask orchestration machine
type askState int

const (
	stateStrategize askState = iota
	stateSearch
	stateDraft
	stateFinalize
	stateDone
	stateErrored
)

func (s askState) String() string {
	switch s {
	case stateStrategize:
		return "strategize"
	case stateSearch:
		return "search"
	case stateDraft:
		return "draft"
	case stateFinalize:
		return "finalize"
	case stateDone:
		return "done"
	case stateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// askTransitions is the legal transition table. Errored is absorbing and
// reachable from every working state.
var askTransitions = map[askState][]askState{
	stateStrategize: {stateSearch, stateFinalize, stateErrored},
	stateSearch:     {stateDraft, stateErrored},
	stateDraft:      {stateSearch, stateFinalize, stateErrored},
	stateFinalize:   {stateDone, stateErrored},
}

// AskModels names the three models driving an ask session
type AskModels struct {
	StrategyModel    string
	AnswerModel      string
	FinalAnswerModel string
}

// AskConfig controls orchestration behavior
type AskConfig struct {
	// MaxSearches caps how many planned sub-queries are executed
	MaxSearches int
	// SearchLimit is the per-sub-query store result limit
	SearchLimit int
	// DraftConcurrency bounds parallel search/draft work. Emission order is
	// always the planned order regardless of scheduling.
	DraftConcurrency int
	// StreamBuffer sizes the event channel
	StreamBuffer int
}

// DefaultAskConfig returns the default orchestration configuration
func DefaultAskConfig() AskConfig {
	return AskConfig{
		MaxSearches:      5,
		SearchLimit:      10,
		DraftConcurrency: 2,
		StreamBuffer:     defaultStreamBuffer,
	}
}

// AskService coordinates the multi-stage strategize, search, draft and
// finalize pipeline and emits an ordered stream of stage events.
type AskService struct {
	store     KnowledgeStore
	embedding EmbeddingClient
	models    ModelCatalog
	gen       GenerationClient
	cfg       AskConfig
}

// NewAskService creates a new AskService instance
func NewAskService(store KnowledgeStore, embedding EmbeddingClient, models ModelCatalog, gen GenerationClient) *AskService {
	return NewAskServiceWithConfig(store, embedding, models, gen, DefaultAskConfig())
}

// NewAskServiceWithConfig creates a new AskService with explicit configuration
func NewAskServiceWithConfig(store KnowledgeStore, embedding EmbeddingClient, models ModelCatalog, gen GenerationClient, cfg AskConfig) *AskService {
	if cfg.MaxSearches <= 0 {
		cfg.MaxSearches = 5
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.DraftConcurrency <= 0 {
		cfg.DraftConcurrency = 1
	}
	return &AskService{
		store:     store,
		embedding: embedding,
		models:    models,
		gen:       gen,
		cfg:       cfg,
	}
}

// Ask validates preconditions and starts a streaming ask session. Precondition
// violations are returned synchronously, before any event exists. The returned
// channel delivers events in strict stage order and closes after exactly one
// terminal event (complete or error). Cancelling ctx stops further generation
// calls; events already emitted stay delivered.
func (s *AskService) Ask(ctx context.Context, question string, m AskModels) (<-chan domain.StageEvent, error) {
	if err := s.checkPreconditions(ctx, question, m); err != nil {
		return nil, err
	}

	emitter := NewEmitter(s.cfg.StreamBuffer)
	go s.run(ctx, question, m, emitter)
	return emitter.Events(), nil
}

// AskSimple runs the same state machine to completion and returns only the
// terminal final answer. Given identical inputs it produces the identical
// answer a streaming caller would see.
func (s *AskService) AskSimple(ctx context.Context, question string, m AskModels) (string, error) {
	events, err := s.Ask(ctx, question, m)
	if err != nil {
		return "", err
	}

	finalAnswer := ""
	for ev := range events {
		switch ev.Type {
		case domain.StageEventFinalAnswer:
			finalAnswer = ev.Content
		case domain.StageEventError:
			return "", domain.NewDomainError(domain.ErrCodeGeneration, ev.Message)
		}
	}

	if finalAnswer == "" {
		return "", domain.NewDomainError(domain.ErrCodeInternalError, "no answer generated")
	}
	return finalAnswer, nil
}

func (s *AskService) checkPreconditions(ctx context.Context, question string, m AskModels) error {
	if strings.TrimSpace(question) == "" {
		return domain.ErrEmptyQuestion
	}

	for _, id := range []string{m.StrategyModel, m.AnswerModel, m.FinalAnswerModel} {
		if _, err := s.models.GetModel(ctx, id); err != nil {
			return err
		}
	}

	ok, err := s.models.HasEmbeddingModel(ctx)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStore, "failed to check embedding model", err)
	}
	if !ok {
		return domain.ErrNoEmbeddingModel
	}
	return nil
}

// run drives the state machine and owns the emitter. It is the single writer
// of the event stream.
func (s *AskService) run(ctx context.Context, question string, m AskModels, emitter *Emitter) {
	defer emitter.Close()

	ctx, span := telemetry.StartSpan(ctx, "AskService.run", telemetry.SpanAttributes{
		Operation: "ask",
		ModelID:   m.FinalAnswerModel,
	})
	defer span.End()

	state := stateStrategize

	fail := func(err error) {
		span.SetError(err)
		state = s.transition(state, stateErrored)
		emitter.Emit(ctx, domain.StageEvent{
			Type:    domain.StageEventError,
			Message: err.Error(),
		})
	}

	strategy, err := s.strategize(ctx, question, m.StrategyModel)
	if err != nil {
		fail(err)
		return
	}
	if !emitter.Emit(ctx, domain.StageEvent{Type: domain.StageEventStrategy, Strategy: strategy}) {
		return
	}

	planned := strategy.Searches
	if len(planned) > s.cfg.MaxSearches {
		planned = planned[:s.cfg.MaxSearches]
	}

	drafts, err := s.runDrafts(ctx, question, planned, m.AnswerModel, func(content string) bool {
		// Transitions track the planned order of emission, not scheduling.
		state = s.transition(state, stateSearch)
		state = s.transition(state, stateDraft)
		return emitter.Emit(ctx, domain.StageEvent{Type: domain.StageEventAnswer, Content: content})
	})
	if err != nil {
		fail(err)
		return
	}
	if drafts == nil {
		// Consumer went away mid-stream.
		return
	}

	state = s.transition(state, stateFinalize)
	finalAnswer, err := s.finalize(ctx, question, drafts, m.FinalAnswerModel)
	if err != nil {
		fail(err)
		return
	}
	if !emitter.Emit(ctx, domain.StageEvent{Type: domain.StageEventFinalAnswer, Content: finalAnswer}) {
		return
	}

	state = s.transition(state, stateDone)
	_ = state
	emitter.Emit(ctx, domain.StageEvent{Type: domain.StageEventComplete, Content: finalAnswer})
}

// transition validates a state change against the transition table. An
// illegal transition is a programming error, not a runtime condition.
func (s *AskService) transition(from, to askState) askState {
	for _, allowed := range askTransitions[from] {
		if allowed == to {
			return to
		}
	}
	panic(fmt.Sprintf("ask: illegal transition %s -> %s", from, to))
}

const strategyTemplate = `You are planning how to answer a question against a private library of ingested documents and notes. Break the question into focused search queries.

Respond with a single JSON object and nothing else, in this shape:
{"reasoning": "why these searches cover the question", "searches": [{"term": "search query", "instructions": "what to extract from the results"}]}

Plan at most %d searches.

**QUESTION:**
%s`

// strategize asks the strategy model for a plan of sub-queries. When the
// model's output cannot be parsed as a strategy, the question itself becomes
// the single planned search rather than failing the session.
func (s *AskService) strategize(ctx context.Context, question, modelID string) (*domain.Strategy, error) {
	prompt := fmt.Sprintf(strategyTemplate, s.cfg.MaxSearches, question)

	raw, err := s.gen.Generate(ctx, modelID, systemInstruction, prompt, answerMaxTokens)
	metrics.ObserveGeneration("strategy", err)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "failed to generate strategy", err)
	}

	strategy := parseStrategy(raw)
	if strategy == nil || len(strategy.Searches) == 0 {
		strategy = &domain.Strategy{
			Reasoning: strings.TrimSpace(raw),
			Searches:  []domain.PlannedSearch{{Term: question, Instructions: "Answer the question directly from the results."}},
		}
	}
	return strategy, nil
}

// parseStrategy extracts a strategy JSON object from model output, tolerating
// code fences and surrounding prose. Returns nil when no object parses.
func parseStrategy(raw string) *domain.Strategy {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil
	}

	var parsed struct {
		Reasoning string `json:"reasoning"`
		Searches  []struct {
			Term         string `json:"term"`
			Instructions string `json:"instructions"`
		} `json:"searches"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil
	}

	strategy := &domain.Strategy{Reasoning: parsed.Reasoning}
	for _, sq := range parsed.Searches {
		term := strings.TrimSpace(sq.Term)
		if term == "" {
			continue
		}
		strategy.Searches = append(strategy.Searches, domain.PlannedSearch{
			Term:         term,
			Instructions: strings.TrimSpace(sq.Instructions),
		})
	}
	return strategy
}

type draftResult struct {
	content string
	err     error
}

// runDrafts executes the search/draft loop over the planned sub-queries.
// Work may fan out up to DraftConcurrency wide, but completed drafts are
// buffered and released through emit strictly in planned order. The first
// failing sub-query cancels the rest. Returns nil drafts (and nil error)
// when the consumer stopped accepting events.
func (s *AskService) runDrafts(ctx context.Context, question string, planned []domain.PlannedSearch, modelID string, emit func(content string) bool) ([]string, error) {
	if len(planned) == 0 {
		return []string{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]draftResult, len(planned))
	done := make([]chan struct{}, len(planned))
	sem := make(chan struct{}, s.cfg.DraftConcurrency)

	for i := range planned {
		done[i] = make(chan struct{})
		go func(i int) {
			defer close(done[i])
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = draftResult{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			content, err := s.draftOne(ctx, question, planned[i], modelID)
			results[i] = draftResult{content: content, err: err}
		}(i)
	}

	drafts := make([]string, 0, len(planned))
	for i := range planned {
		select {
		case <-done[i]:
		case <-ctx.Done():
			return nil, nil
		}
		if err := results[i].err; err != nil {
			return nil, err
		}
		if !emit(results[i].content) {
			return nil, nil
		}
		drafts = append(drafts, results[i].content)
	}

	return drafts, nil
}

const draftTemplate = `Answer the user's question using ONLY the search results below. Follow the extra instructions when drafting, cite chunk ids in brackets, and if the results do not help answer the question reply exactly: "%s"

**QUESTION:**
%s

**INSTRUCTIONS:**
%s

**SEARCH RESULTS:**
%s

**Answer:**`

// draftOne runs one sub-query against the store and drafts a partial answer
// from its results. A sub-query with no usable chunks yields the fallback
// sentence without a generation call.
func (s *AskService) draftOne(ctx context.Context, question string, planned domain.PlannedSearch, modelID string) (string, error) {
	embedding, err := s.embedding.GenerateEmbedding(ctx, planned.Term)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeStore, "failed to embed sub-query", err)
	}

	items, err := s.store.SearchVector(ctx, embedding, StoreOptions{
		Sources: true,
		Notes:   true,
		Limit:   s.cfg.SearchLimit,
	})
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeStore, "sub-query search failed", err)
	}

	chunks := ProjectChunks(items, false)
	if len(chunks) == 0 {
		return FallbackAnswer, nil
	}

	payload, err := EncodePayload(chunkPayload(planned.Term, chunks))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to encode draft payload", err)
	}

	instructions := planned.Instructions
	if instructions == "" {
		instructions = "Answer the question directly from the results."
	}
	prompt := fmt.Sprintf(draftTemplate, FallbackAnswer, question, instructions, payload)

	content, err := s.gen.Generate(ctx, modelID, systemInstruction, prompt, answerMaxTokens)
	metrics.ObserveGeneration("draft", err)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "failed to draft partial answer", err)
	}
	return content, nil
}

const finalTemplate = `Write the final answer to the user's question by consolidating the partial answers below. Keep every citation marker that supports a claim, merge duplicated facts, and do not introduce information absent from the partial answers. If none of the partial answers contain useful information reply exactly: "%s"

**QUESTION:**
%s

**PARTIAL ANSWERS:**
%s

**Final answer:**`

// finalize consolidates the partial answers into one final answer
func (s *AskService) finalize(ctx context.Context, question string, drafts []string, modelID string) (string, error) {
	if len(drafts) == 0 {
		return FallbackAnswer, nil
	}

	var sb strings.Builder
	for i, draft := range drafts {
		fmt.Fprintf(&sb, "--- Partial answer %d ---\n%s\n\n", i+1, draft)
	}

	prompt := fmt.Sprintf(finalTemplate, FallbackAnswer, question, sb.String())

	answer, err := s.gen.Generate(ctx, modelID, systemInstruction, prompt, answerMaxTokens)
	metrics.ObserveGeneration("final_answer", err)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "failed to write final answer", err)
	}
	return answer, nil
}

func chunkPayload(query string, chunks []*domain.Chunk) PromptPayload {
	results := make([]PromptChunk, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		results = append(results, PromptChunk{ID: c.ID, Text: c.Text})
	}
	return PromptPayload{Query: query, Results: results}
}
