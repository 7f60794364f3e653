package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Repository is the local SQLite cache of the recipe collection. Rows
// store the full recipe as JSON; title is duplicated into its own column
// for search.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a recipe cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts or replaces one cached recipe.
func (r *Repository) Save(ctx context.Context, rec Recipe) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recipe: %w", err)
	}

	query := `INSERT INTO recipes (id, title, data, cached_at)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET title = excluded.title, data = excluded.data, cached_at = excluded.cached_at`
	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.Title, string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

// ReplaceAll swaps the whole cache for the given collection in one
// transaction, used after a full sync from the server.
func (r *Repository) ReplaceAll(ctx context.Context, recipes []Recipe) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipes`); err != nil {
		return fmt.Errorf("failed to clear recipe cache: %w", err)
	}

	now := time.Now()
	for _, rec := range recipes {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal recipe %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recipes (id, title, data, cached_at) VALUES (?, ?, ?, ?)`,
			rec.ID, rec.Title, string(data), now); err != nil {
			return fmt.Errorf("failed to insert recipe %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns one cached recipe, or nil when it is not cached.
func (r *Repository) Get(ctx context.Context, id string) (*Recipe, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM recipes WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}

	var rec Recipe
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipe: %w", err)
	}
	return &rec, nil
}

// Search lists cached recipes whose title contains the query, newest
// first. An empty query lists everything.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Recipe, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM recipes WHERE title LIKE ? COLLATE NOCASE ORDER BY cached_at DESC LIMIT ?`,
		"%"+strings.TrimSpace(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan recipe row: %w", err)
		}
		var rec Recipe
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipe: %w", err)
		}
		recipes = append(recipes, rec)
	}
	return recipes, rows.Err()
}

// Count returns the number of cached recipes.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recipes: %w", err)
	}
	return count, nil
}
