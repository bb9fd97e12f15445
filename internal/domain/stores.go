package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RunStore interface {
	Create(ctx context.Context, r *SolveRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*SolveRun, error)
	UpdateOutcome(ctx context.Context, id uuid.UUID, status SolveStatus, iterations int, residualNorm float64, errMsg string) error
	List(ctx context.Context, limit int) ([]SolveRun, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type StateStore interface {
	Save(ctx context.Context, s *ConvergedState) error
	GetByRun(ctx context.Context, runID uuid.UUID) (*ConvergedState, error)
	// FindNearest returns prior converged states on the same basis ordered by
	// vector similarity to the probe, nearest first.
	FindNearest(ctx context.Context, basisKey string, probe []float32, limit int) ([]ConvergedState, error)
	DeleteByRun(ctx context.Context, runID uuid.UUID) (int64, error)
}

type ProvenanceStore interface {
	SaveEdges(ctx context.Context, runID uuid.UUID, edges []DerivationEdge) error
	// SaveDocument persists the full exported PROV-style document (entities,
	// activities, agents) as opaque JSON alongside the flattened edges.
	SaveDocument(ctx context.Context, runID uuid.UUID, doc []byte) error
	GetByRun(ctx context.Context, runID uuid.UUID) ([]DerivationEdge, error)
	GetDocument(ctx context.Context, runID uuid.UUID) ([]byte, error)
	DeleteByRun(ctx context.Context, runID uuid.UUID) (int64, error)
}
