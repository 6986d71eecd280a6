package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readstack/readstack/internal/service"
)

// AuditLogRepository stores search and ask logs for evaluation
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(pool *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{pool: pool}
}

func (r *AuditLogRepository) CreateSearchLog(ctx context.Context, entry service.SearchLogEntry) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"mode":         string(entry.Mode),
		"limit":        entry.Limit,
		"result_count": entry.ResultCount,
	})

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO audit_logs (kind, query, payload, duration_ms)
		 VALUES ('search', $1, $2, $3)
		 RETURNING id`,
		entry.Query, payload, entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *AuditLogRepository) CreateAskLog(ctx context.Context, entry service.AskLogEntry) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"strategy_model":     entry.StrategyModel,
		"answer_model":       entry.AnswerModel,
		"final_answer_model": entry.FinalAnswerModel,
		"event_count":        entry.EventCount,
		"outcome":            entry.Outcome,
	})

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO audit_logs (kind, query, payload, duration_ms)
		 VALUES ('ask', $1, $2, $3)
		 RETURNING id`,
		entry.Question, payload, entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// PruneBefore deletes audit rows older than the cutoff and returns how many
// were removed.
func (r *AuditLogRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}
