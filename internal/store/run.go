package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plasmakit/ionmix/internal/domain"
)

type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, r *domain.SolveRun) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = domain.StatusRunning
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO solve_runs (id, label, status, iterations, residual_norm, measurements, dim, warm_started, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		r.ID, r.Label, r.Status, r.Iterations, r.ResidualNorm, r.Measurements, r.Dim, r.WarmStarted, r.Error,
	).Scan(&r.CreatedAt)
}

func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SolveRun, error) {
	r := &domain.SolveRun{}
	err := s.db.QueryRow(ctx,
		`SELECT id, label, status, iterations, residual_norm, measurements, dim, warm_started, error, created_at, finished_at
		 FROM solve_runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Label, &r.Status, &r.Iterations, &r.ResidualNorm, &r.Measurements, &r.Dim, &r.WarmStarted, &r.Error, &r.CreatedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *RunStore) UpdateOutcome(ctx context.Context, id uuid.UUID, status domain.SolveStatus, iterations int, residualNorm float64, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE solve_runs
		 SET status = $1, iterations = $2, residual_norm = $3, error = $4, finished_at = NOW()
		 WHERE id = $5`,
		status, iterations, residualNorm, errMsg, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RunStore) List(ctx context.Context, limit int) ([]domain.SolveRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, label, status, iterations, residual_norm, measurements, dim, warm_started, error, created_at, finished_at
		 FROM solve_runs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.SolveRun
	for rows.Next() {
		var r domain.SolveRun
		if err := rows.Scan(&r.ID, &r.Label, &r.Status, &r.Iterations, &r.ResidualNorm, &r.Measurements, &r.Dim, &r.WarmStarted, &r.Error, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM solve_runs WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RunStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM solve_runs WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
