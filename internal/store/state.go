package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/plasmakit/ionmix/internal/domain"
)

type StateStore struct {
	db *pgxpool.Pool
}

func NewStateStore(db *pgxpool.Pool) *StateStore {
	return &StateStore{db: db}
}

func (s *StateStore) Save(ctx context.Context, cs *domain.ConvergedState) error {
	vec := pgvector.NewVector(cs.Vector)
	return s.db.QueryRow(ctx,
		`INSERT INTO converged_states (run_id, basis_key, time, vector)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		cs.RunID, cs.BasisKey, cs.Time, vec,
	).Scan(&cs.CreatedAt)
}

func (s *StateStore) GetByRun(ctx context.Context, runID uuid.UUID) (*domain.ConvergedState, error) {
	cs := &domain.ConvergedState{}
	var vec pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT run_id, basis_key, time, vector, created_at
		 FROM converged_states WHERE run_id = $1`,
		runID,
	).Scan(&cs.RunID, &cs.BasisKey, &cs.Time, &vec, &cs.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cs.Vector = vec.Slice()
	return cs, nil
}

// FindNearest returns prior converged states on the same basis, nearest to the
// probe vector first. Distance is Euclidean; states from a different basis are
// never comparable and are excluded by the key.
func (s *StateStore) FindNearest(ctx context.Context, basisKey string, probe []float32, limit int) ([]domain.ConvergedState, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(probe)

	rows, err := s.db.Query(ctx,
		`SELECT run_id, basis_key, time, vector, created_at
		 FROM converged_states
		 WHERE basis_key = $1
		 ORDER BY vector <-> $2
		 LIMIT $3`,
		basisKey, vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find nearest query: %w", err)
	}
	defer rows.Close()

	var states []domain.ConvergedState
	for rows.Next() {
		var cs domain.ConvergedState
		var v pgvector.Vector
		if err := rows.Scan(&cs.RunID, &cs.BasisKey, &cs.Time, &v, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan nearest row: %w", err)
		}
		cs.Vector = v.Slice()
		states = append(states, cs)
	}
	return states, rows.Err()
}

func (s *StateStore) DeleteByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM converged_states WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
