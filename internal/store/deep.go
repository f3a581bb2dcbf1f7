package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
)

// DeepIndexStore backs the Deep tier with pgvector. Demotion to Deep runs an
// explicit Upsert here so tests can assert the sync deterministically; there
// is no implicit background job.
type DeepIndexStore struct {
	db *pgxpool.Pool
}

func NewDeepIndexStore(db *pgxpool.Pool) *DeepIndexStore {
	return &DeepIndexStore{db: db}
}

func (s *DeepIndexStore) Upsert(ctx context.Context, id uuid.UUID, vector []float32, metadata map[string]any) error {
	vec := pgvector.NewVector(vector)
	_, err := s.db.Exec(ctx,
		`INSERT INTO deep_facts (id, embedding, content, origin, source_timestamp, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET embedding = EXCLUDED.embedding,
		     content = EXCLUDED.content,
		     origin = EXCLUDED.origin,
		     source_timestamp = EXCLUDED.source_timestamp,
		     metadata = EXCLUDED.metadata,
		     updated_at = NOW()`,
		id, vec, metadata["content"], metadata["origin"], metadata["timestamp"], metadata,
	)
	if err != nil {
		return fmt.Errorf("deep upsert: %w", err)
	}
	return nil
}

func (s *DeepIndexStore) Search(ctx context.Context, vector []float32, k int) ([]domain.DeepIndexEntry, error) {
	if k <= 0 {
		k = 10
	}
	vec := pgvector.NewVector(vector)

	rows, err := s.db.Query(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS score
		 FROM deep_facts
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, k,
	)
	if err != nil {
		return nil, fmt.Errorf("deep search: %w", err)
	}
	defer rows.Close()

	var entries []domain.DeepIndexEntry
	for rows.Next() {
		var e domain.DeepIndexEntry
		if err := rows.Scan(&e.ID, &e.Score); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Fetch resolves a Deep-tier fact back into a full node, used by
// reactivation. The embedding is never recomputed.
func (s *DeepIndexStore) Fetch(ctx context.Context, id uuid.UUID) (*domain.FactNode, error) {
	f := &domain.FactNode{ID: id, Tier: domain.TierDeep}
	var vec pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT embedding, content, origin, source_timestamp, created_at
		 FROM deep_facts WHERE id = $1`,
		id,
	).Scan(&vec, &f.Content, &f.Source.Origin, &f.Source.Timestamp, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.Vector = vec.Slice()
	return f, nil
}
