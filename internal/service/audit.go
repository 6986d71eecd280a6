package service

import (
	"context"
	"time"

	"github.com/readstack/readstack/internal/domain"
)

// SearchLogEntry records one search request for later evaluation
type SearchLogEntry struct {
	Query       string
	Mode        domain.SearchMode
	Limit       int
	ResultCount int
	DurationMs  int
}

// AskLogEntry records one ask session and its outcome
type AskLogEntry struct {
	Question         string
	StrategyModel    string
	AnswerModel      string
	FinalAnswerModel string
	EventCount       int
	Outcome          string
	DurationMs       int
}

// Ask session outcomes
const (
	AskOutcomeComplete = "complete"
	AskOutcomeError    = "error"
)

// AuditLogRepository stores search and ask logs. Logging is best-effort;
// handlers ignore its failures.
type AuditLogRepository interface {
	CreateSearchLog(ctx context.Context, entry SearchLogEntry) (string, error)
	CreateAskLog(ctx context.Context, entry AskLogEntry) (string, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
