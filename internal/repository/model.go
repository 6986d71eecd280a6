package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readstack/readstack/internal/domain"
)

// ModelRepository persists the model registry
type ModelRepository struct {
	pool *pgxpool.Pool
}

func NewModelRepository(pool *pgxpool.Pool) *ModelRepository {
	return &ModelRepository{pool: pool}
}

// Create registers a new model
func (r *ModelRepository) Create(ctx context.Context, m *domain.Model) error {
	if err := domain.ValidateModel(m); err != nil {
		return err
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO models (id, name, provider, type, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Provider, string(m.Type), createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrModelAlreadyExists
		}
		return err
	}
	return nil
}

// GetModel resolves a model by id
func (r *ModelRepository) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	var m domain.Model
	var modelType string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, provider, type, created_at FROM models WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Provider, &modelType, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrModelNotFound
		}
		return nil, err
	}
	m.Type = domain.ModelType(modelType)
	return &m, nil
}

// List returns all registered models, newest first
func (r *ModelRepository) List(ctx context.Context) ([]*domain.Model, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, provider, type, created_at FROM models ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*domain.Model
	for rows.Next() {
		var m domain.Model
		var modelType string
		if err := rows.Scan(&m.ID, &m.Name, &m.Provider, &modelType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = domain.ModelType(modelType)
		models = append(models, &m)
	}
	return models, rows.Err()
}

// HasEmbeddingModel reports whether any embedding-capable model is registered
func (r *ModelRepository) HasEmbeddingModel(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM models WHERE type = $1)`,
		string(domain.ModelTypeEmbedding),
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
