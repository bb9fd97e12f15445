package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/plasmakit/ionmix/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// OperatorSource resolves the forward model registered for a diagnostic.
type OperatorSource interface {
	ForDiagnostic(id domain.DiagnosticID) (domain.Operator, bool)
}

// SkippedPair records a (measurement, operator) pair excluded from an
// iteration, with the reason.
type SkippedPair struct {
	MeasurementID string              `json:"measurement_id"`
	Diagnostic    domain.DiagnosticID `json:"diagnostic"`
	Reason        string              `json:"reason"`
}

// RowSource maps one residual row back to the measurement component that
// produced it.
type RowSource struct {
	MeasurementID string
	Diagnostic    domain.DiagnosticID
	Component     int
	Sigma         float64
}

// System is the weighted residual vector and Jacobian assembled at one state.
// It is consumed by the update step and discarded; only provenance metadata
// outlives it.
type System struct {
	Residual *mat.VecDense
	Jacobian *mat.Dense
	Rows     []RowSource
	// MeasurementIDs are the measurements that contributed rows.
	MeasurementIDs []string
	Skipped        []SkippedPair
}

func (s *System) NumRows() int {
	return len(s.Rows)
}

// Norm is the RMS of the weighted residual, so the convergence tolerance is
// independent of how many diagnostics happen to be present.
func (s *System) Norm() float64 {
	if s.Residual == nil {
		return 0
	}
	n := s.Residual.Len()
	sum := 0.0
	for i := 0; i < n; i++ {
		v := s.Residual.AtVec(i)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

type pairEval struct {
	residual []float64
	jacobian [][]float64
	skip     *SkippedPair
}

// Assembler evaluates every applicable (measurement, operator) pair against a
// candidate state and assembles the inverse-uncertainty-weighted system.
// Evaluations are independent and side-effect-free, so they are fanned out
// across a bounded worker pool and gathered before assembly; no partial
// results are used.
type Assembler struct {
	src          OperatorSource
	measurements []domain.Measurement
	workers      int
	logger       *zap.Logger
}

func NewAssembler(src OperatorSource, measurements []domain.Measurement, workers int, logger *zap.Logger) *Assembler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Assembler{
		src:          src,
		measurements: measurements,
		workers:      workers,
		logger:       logger,
	}
}

// Assemble evaluates all pairs at the given state. Pairs whose operator is
// missing, inapplicable, or reports the state out of its valid domain are
// skipped, never fatal. A NaN or Inf anywhere in the evaluated rows aborts
// the assembly with ErrNonFinite so the iterator can damp and retry.
func (a *Assembler) Assemble(ctx context.Context, state *domain.PlasmaState) (*System, error) {
	dim := state.Dim()
	results := make([]pairEval, len(a.measurements))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i := range a.measurements {
		i, m := i, a.measurements[i]

		op, ok := a.src.ForDiagnostic(m.Diagnostic)
		if !ok {
			results[i].skip = &SkippedPair{MeasurementID: m.ID, Diagnostic: m.Diagnostic, Reason: "no operator registered"}
			continue
		}
		if !op.Applicable(m.Tag) {
			results[i].skip = &SkippedPair{MeasurementID: m.ID, Diagnostic: m.Diagnostic, Reason: "operator not applicable to chord/time"}
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pred, err := op.Predict(state, m.Tag)
			var ood *domain.OutOfDomainError
			if errors.As(err, &ood) {
				results[i].skip = &SkippedPair{MeasurementID: m.ID, Diagnostic: m.Diagnostic, Reason: ood.Reason}
				return nil
			}
			if err != nil {
				return fmt.Errorf("predict %s for %s: %w", m.Diagnostic, m.ID, err)
			}
			if len(pred) != m.Rows() {
				return fmt.Errorf("operator %s predicted %d values for measurement %s with %d", m.Diagnostic, len(pred), m.ID, m.Rows())
			}

			sens, err := op.Sensitivity(state, m.Tag)
			if err != nil {
				return fmt.Errorf("sensitivity %s for %s: %w", m.Diagnostic, m.ID, err)
			}
			if len(sens) != m.Rows() {
				return fmt.Errorf("operator %s returned %d sensitivity rows for measurement %s with %d values", m.Diagnostic, len(sens), m.ID, m.Rows())
			}

			res := make([]float64, m.Rows())
			jac := make([][]float64, m.Rows())
			for k := 0; k < m.Rows(); k++ {
				w := 1.0 / m.Sigmas[k]
				res[k] = (pred[k] - m.Values[k]) * w
				if !isFinite(res[k]) {
					return fmt.Errorf("%w: residual for %s component %d", ErrNonFinite, m.ID, k)
				}
				if len(sens[k]) != dim {
					return fmt.Errorf("operator %s sensitivity row has %d columns, state has %d", m.Diagnostic, len(sens[k]), dim)
				}
				row := make([]float64, dim)
				for j, v := range sens[k] {
					row[j] = v * w
					if !isFinite(row[j]) {
						return fmt.Errorf("%w: jacobian for %s component %d column %d", ErrNonFinite, m.ID, k, j)
					}
				}
				jac[k] = row
			}
			results[i] = pairEval{residual: res, jacobian: jac}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sys := &System{}
	totalRows := 0
	for i := range results {
		if results[i].skip == nil && results[i].residual != nil {
			totalRows += len(results[i].residual)
		}
	}

	residual := make([]float64, 0, totalRows)
	jacobian := make([]float64, 0, totalRows*dim)
	for i, r := range results {
		m := a.measurements[i]
		if r.skip != nil {
			sys.Skipped = append(sys.Skipped, *r.skip)
			a.logger.Debug("pair skipped",
				zap.String("measurement_id", r.skip.MeasurementID),
				zap.String("diagnostic", string(r.skip.Diagnostic)),
				zap.String("reason", r.skip.Reason))
			continue
		}
		for k := range r.residual {
			residual = append(residual, r.residual[k])
			jacobian = append(jacobian, r.jacobian[k]...)
			sys.Rows = append(sys.Rows, RowSource{
				MeasurementID: m.ID,
				Diagnostic:    m.Diagnostic,
				Component:     k,
				Sigma:         m.Sigmas[k],
			})
		}
		sys.MeasurementIDs = append(sys.MeasurementIDs, m.ID)
	}

	if totalRows > 0 {
		sys.Residual = mat.NewVecDense(totalRows, residual)
		sys.Jacobian = mat.NewDense(totalRows, dim, jacobian)
	}
	return sys, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
