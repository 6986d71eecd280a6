package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/service"
)

// StoreRepository implements lexical and vector search over ingested sources
// and notes. Result identifiers are namespaced source:<uuid> / note:<uuid>.
type StoreRepository struct {
	pool *pgxpool.Pool
}

func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// lexicalSnippets caps how many highlighted fragments one document contributes
const lexicalSnippets = 3

// SearchLexical performs keyword search. Sources are matched per chunk and
// aggregated per document with up to three ts_headline fragments as matches;
// notes match on their own content. Ordering is rank-descending and must be
// preserved by callers.
func (r *StoreRepository) SearchLexical(ctx context.Context, query string, opts service.StoreOptions) ([]*domain.ResultItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var parts []string
	args := []interface{}{query, limit}

	if opts.Sources {
		parts = append(parts, `
			SELECT 'source:' || s.id AS id,
			       (array_agg(ts_headline('english', c.content, websearch_to_tsquery('english', $1),
			            'MaxFragments=1,MaxWords=60,MinWords=10,StartSel=,StopSel=')
			            ORDER BY ts_rank(c.tsv, websearch_to_tsquery('english', $1)) DESC))[1:` + fmt.Sprint(lexicalSnippets) + `] AS matches,
			       s.title AS title,
			       '' AS parent_id,
			       NULL::float8 AS similarity,
			       max(ts_rank(c.tsv, websearch_to_tsquery('english', $1))) AS rank
			FROM source_chunks c
			JOIN sources s ON s.id = c.source_id
			WHERE c.tsv @@ websearch_to_tsquery('english', $1)
			GROUP BY s.id, s.title`)
	}
	if opts.Notes {
		parts = append(parts, `
			SELECT 'note:' || n.id AS id,
			       ARRAY[ts_headline('english', n.content, websearch_to_tsquery('english', $1),
			            'MaxFragments=1,MaxWords=60,MinWords=10,StartSel=,StopSel=')] AS matches,
			       n.title AS title,
			       '' AS parent_id,
			       NULL::float8 AS similarity,
			       ts_rank(n.tsv, websearch_to_tsquery('english', $1)) AS rank
			FROM notes n
			WHERE n.tsv @@ websearch_to_tsquery('english', $1)`)
	}
	if len(parts) == 0 {
		return []*domain.ResultItem{}, nil
	}

	sql := unionQuery(parts) + ` ORDER BY rank DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResultItems(rows, false)
}

// SearchVector performs nearest-neighbor retrieval. Sources are matched per
// chunk (one item per chunk, the chunk content as its single match, the parent
// document as ParentID); notes match on their own embedding. Results below
// MinimumScore are excluded here, in SQL, not re-filtered by callers.
func (r *StoreRepository) SearchVector(ctx context.Context, embedding []float32, opts service.StoreOptions) ([]*domain.ResultItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	minScore := 0.0
	if opts.MinimumScore != nil {
		minScore = *opts.MinimumScore
	}

	vec := pgvector.NewVector(embedding)

	var parts []string
	args := []interface{}{vec, minScore, limit}

	if opts.Sources {
		parts = append(parts, `
			SELECT 'source:' || c.id AS id,
			       ARRAY[c.content] AS matches,
			       s.title AS title,
			       'source:' || s.id AS parent_id,
			       1 - (c.embedding <=> $1) AS similarity
			FROM source_chunks c
			JOIN sources s ON s.id = c.source_id
			WHERE c.embedding IS NOT NULL
			  AND 1 - (c.embedding <=> $1) >= $2`)
	}
	if opts.Notes {
		parts = append(parts, `
			SELECT 'note:' || n.id AS id,
			       ARRAY[n.content] AS matches,
			       n.title AS title,
			       '' AS parent_id,
			       1 - (n.embedding <=> $1) AS similarity
			FROM notes n
			WHERE n.embedding IS NOT NULL
			  AND 1 - (n.embedding <=> $1) >= $2`)
	}
	if len(parts) == 0 {
		return []*domain.ResultItem{}, nil
	}

	sql := unionQuery(parts) + ` ORDER BY similarity DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResultItems(rows, true)
}

func unionQuery(parts []string) string {
	if len(parts) == 1 {
		return "SELECT * FROM (" + parts[0] + ") q"
	}
	return "SELECT * FROM ((" + parts[0] + ") UNION ALL (" + parts[1] + ")) q"
}

func scanResultItems(rows pgx.Rows, vector bool) ([]*domain.ResultItem, error) {
	var results []*domain.ResultItem
	for rows.Next() {
		var item domain.ResultItem
		var matches []string
		var similarity *float64

		if vector {
			if err := rows.Scan(&item.ID, &matches, &item.Title, &item.ParentID, &similarity); err != nil {
				return nil, err
			}
		} else {
			var rank float64
			if err := rows.Scan(&item.ID, &matches, &item.Title, &item.ParentID, &similarity, &rank); err != nil {
				return nil, err
			}
		}

		for _, m := range matches {
			if m != "" {
				item.Matches = append(item.Matches, m)
			}
		}
		item.Similarity = similarity
		results = append(results, &item)
	}
	return results, rows.Err()
}
