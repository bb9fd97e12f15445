package domain

import (
	"time"

	"github.com/google/uuid"
)

// SolveStatus is the terminal outcome of one solver run. A solve always
// produces a result carrying one of these; it never claims Converged unless
// the configured tolerance was actually met.
type SolveStatus string

const (
	// StatusRunning marks a persisted run whose solve has not finished yet.
	// The solver itself never returns it.
	StatusRunning               SolveStatus = "running"
	StatusConverged             SolveStatus = "converged"
	StatusMaxIterationsExceeded SolveStatus = "max_iterations_exceeded"
	StatusDiverged              SolveStatus = "diverged"
	StatusCancelled             SolveStatus = "cancelled"
	StatusFailed                SolveStatus = "failed"
)

func ValidSolveStatus(s string) bool {
	switch SolveStatus(s) {
	case StatusRunning, StatusConverged, StatusMaxIterationsExceeded, StatusDiverged, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// SolveRun is the persisted record of one solve.
type SolveRun struct {
	ID           uuid.UUID   `json:"id"`
	Label        string      `json:"label,omitempty"`
	Status       SolveStatus `json:"status"`
	Iterations   int         `json:"iterations"`
	ResidualNorm float64     `json:"residual_norm"`
	Measurements int         `json:"measurements"`
	Dim          int         `json:"dim"`
	WarmStarted  bool        `json:"warm_started"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// ConvergedState is a converged state vector persisted for warm starts.
// The vector doubles as a similarity embedding: a new solve on the same basis
// can seed its initial guess from the nearest prior converged state.
type ConvergedState struct {
	RunID     uuid.UUID `json:"run_id"`
	BasisKey  string    `json:"basis_key"`
	Time      float64   `json:"time"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// DerivationEdge is one exported provenance triple: entity was derived from
// input by activity. The full DAG for a run is the set of its edges.
type DerivationEdge struct {
	Entity   string `json:"entity"`
	Activity string `json:"activity"`
	Input    string `json:"input"`
}
