package primary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
)

const createPrototypeTable = `
	CREATE TABLE IF NOT EXISTS category_prototypes (
		id         UUID PRIMARY KEY,
		model      TEXT NOT NULL,
		category   TEXT NOT NULL,
		example    TEXT NOT NULL,
		embedding  vector NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (model, category, example)
	)`

// PrototypeStore keeps category prototype embeddings in a pgvector column.
type PrototypeStore struct {
	db *sql.DB
}

// NewPrototypeStore wraps a database/sql handle opened with the pgx driver.
func NewPrototypeStore(db *sql.DB) *PrototypeStore {
	return &PrototypeStore{db: db}
}

// EnsureSchema enables the vector extension and creates the prototype table.
func (s *PrototypeStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createPrototypeTable); err != nil {
		return fmt.Errorf("failed to create category_prototypes table: %w", err)
	}
	return nil
}

// LoadPrototypes returns the stored vectors for model keyed by category name.
func (s *PrototypeStore) LoadPrototypes(ctx context.Context, model string) (map[string][]pgvector.Vector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, embedding FROM category_prototypes WHERE model = $1 ORDER BY category, created_at`, model)
	if err != nil {
		return nil, fmt.Errorf("load category prototypes: %w", err)
	}
	defer rows.Close()

	out := map[string][]pgvector.Vector{}
	for rows.Next() {
		var (
			category string
			vec      pgvector.Vector
		)
		if err := rows.Scan(&category, &vec); err != nil {
			return nil, fmt.Errorf("scan category prototype: %w", err)
		}
		out[category] = append(out[category], vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load category prototypes: %w", err)
	}
	return out, nil
}

// SavePrototypes upserts one row per example in a single transaction.
func (s *PrototypeStore) SavePrototypes(ctx context.Context, model, category string, examples []string, vecs []pgvector.Vector) (err error) {
	if len(examples) != len(vecs) {
		return fmt.Errorf("got %d examples and %d vectors for %q", len(examples), len(vecs), category)
	}
	if len(vecs) == 0 {
		return errors.New("no prototypes to save")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prototype transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warnf("Prototype rollback failed: %v", rbErr)
			}
		}
	}()

	const query = `
		INSERT INTO category_prototypes (id, model, category, example, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model, category, example) DO UPDATE SET embedding = EXCLUDED.embedding`
	for i, example := range examples {
		if _, err = tx.ExecContext(ctx, query, uuid.NewString(), model, category, example, vecs[i]); err != nil {
			return fmt.Errorf("save prototype for %q: %w", category, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit prototypes: %w", err)
	}
	return nil
}
