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

const defaultSearchLimit = 10

type SearchService interface {
	Search(ctx context.Context, query domain.Query) ([]*domain.ResultItem, error)
}

type SearchHandler struct {
	svc     SearchService
	logRepo service.AuditLogRepository
}

func NewSearchHandler(svc SearchService, logRepo service.AuditLogRepository) *SearchHandler {
	return &SearchHandler{svc: svc, logRepo: logRepo}
}

type SearchRequest struct {
	Query         string   `json:"query"`
	Type          string   `json:"type"`
	Limit         *int     `json:"limit"`
	SearchSources *bool    `json:"search_sources"`
	SearchNotes   *bool    `json:"search_notes"`
	MinimumScore  *float64 `json:"minimum_score"`
}

type SearchResultItem struct {
	ID         string   `json:"id"`
	Matches    []string `json:"matches"`
	Title      string   `json:"title,omitempty"`
	ParentID   string   `json:"parent_id,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}

type SearchResponse struct {
	Results    []*SearchResultItem `json:"results"`
	TotalCount int                 `json:"total_count"`
	SearchType string              `json:"search_type"`
}

func resultToResponse(item *domain.ResultItem) *SearchResultItem {
	matches := item.Matches
	if matches == nil {
		matches = []string{}
	}
	return &SearchResultItem{
		ID:         item.ID,
		Matches:    matches,
		Title:      item.Title,
		ParentID:   item.ParentID,
		Similarity: item.Similarity,
	}
}

// boolOrDefault unwraps an optional request flag.
func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// intOrDefault unwraps an optional request limit. An explicit out-of-range
// value is passed through so validation rejects it.
func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := domain.Query{
		Text:          req.Query,
		Mode:          domain.SearchMode(req.Type),
		SearchSources: boolOrDefault(req.SearchSources, true),
		SearchNotes:   boolOrDefault(req.SearchNotes, true),
		Limit:         intOrDefault(req.Limit, defaultSearchLimit),
		MinimumScore:  req.MinimumScore,
	}

	started := time.Now()
	results, err := h.svc.Search(r.Context(), query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	h.recordSearch(r.Context(), query, len(results), time.Since(started))

	items := make([]*SearchResultItem, 0, len(results))
	for _, item := range results {
		items = append(items, resultToResponse(item))
	}

	api.JSON(w, http.StatusOK, SearchResponse{
		Results:    items,
		TotalCount: len(items),
		SearchType: string(query.Mode),
	})
}

// recordSearch persists the audit entry; failures are logged upstream and
// never affect the response.
func (h *SearchHandler) recordSearch(ctx context.Context, query domain.Query, count int, elapsed time.Duration) {
	if h.logRepo == nil {
		return
	}
	_, _ = h.logRepo.CreateSearchLog(ctx, service.SearchLogEntry{
		Query:       query.Text,
		Mode:        query.Mode,
		Limit:       query.Limit,
		ResultCount: count,
		DurationMs:  int(elapsed.Milliseconds()),
	})
}
