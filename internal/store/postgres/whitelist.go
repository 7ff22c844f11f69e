package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/michrafnabil/facegate/internal/store"
)

// Store persists the whitelist in PostgreSQL with pgvector columns.
// It implements store.Store.
type Store struct {
	pool *Pool
}

// NewStore creates a whitelist store on top of an existing pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// SaveWhitelist replaces the stored whitelist in a single transaction.
func (s *Store) SaveWhitelist(ctx context.Context, wl *store.Whitelist) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM persons"); err != nil {
		return fmt.Errorf("clear whitelist: %w", err)
	}

	for _, name := range wl.Persons() {
		proto := pgvector.NewVector(wl.Prototypes[name])
		_, err := tx.ExecContext(ctx,
			"INSERT INTO persons (name, prototype) VALUES ($1, $2)",
			name, proto,
		)
		if err != nil {
			return fmt.Errorf("insert person %s: %w", name, err)
		}

		for _, ref := range wl.References[name] {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO reference_embeddings (person, embedding) VALUES ($1, $2)",
				name, pgvector.NewVector(ref),
			)
			if err != nil {
				return fmt.Errorf("insert reference for %s: %w", name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit whitelist: %w", err)
	}
	return nil
}

// LoadPrototypes loads the per-person prototypes.
func (s *Store) LoadPrototypes(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.pool.db.QueryContext(ctx, "SELECT name, prototype FROM persons ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query prototypes: %w", err)
	}
	defer rows.Close()

	prototypes := make(map[string][]float32)
	for rows.Next() {
		var name string
		var proto pgvector.Vector
		if err := rows.Scan(&name, &proto); err != nil {
			return nil, fmt.Errorf("scan prototype: %w", err)
		}
		prototypes[name] = proto.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prototypes: %w", err)
	}

	if len(prototypes) == 0 {
		return nil, store.ErrNotBuilt
	}
	return prototypes, nil
}

// LoadWhitelist loads prototypes and reference embeddings.
func (s *Store) LoadWhitelist(ctx context.Context) (*store.Whitelist, error) {
	prototypes, err := s.LoadPrototypes(ctx)
	if err != nil {
		return nil, err
	}

	wl := &store.Whitelist{
		Prototypes: prototypes,
		References: make(map[string][][]float32),
	}

	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT person, embedding FROM reference_embeddings ORDER BY person, id")
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var person string
		var emb pgvector.Vector
		if err := rows.Scan(&person, &emb); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		wl.References[person] = append(wl.References[person], emb.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}

	return wl, nil
}
