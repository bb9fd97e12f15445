package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/plasmakit/ionmix/internal/domain"
	"go.uber.org/zap"
)

// Recorder receives provenance events from a running solve. Implementations
// must tolerate concurrent calls only if they also subscribe to per-operator
// events; the solver itself invokes these hooks sequentially.
type Recorder interface {
	SolveStarted(measurements []domain.Measurement, initial *domain.PlasmaState) error
	IterationAccepted(iter int, residualNorm float64, measurementIDs []string, next *domain.PlasmaState) error
	CovariancePropagated(conditionNumber float64) error
}

// Result is what every solve returns, regardless of outcome. Status is only
// Converged when the configured tolerance was actually met; an exhausted
// iteration budget still yields the last state, flagged accordingly.
type Result struct {
	State           *domain.PlasmaState
	Status          domain.SolveStatus
	Iterations      int
	ResidualNorm    float64
	Covariance      [][]float64
	ConditionNumber float64
	// CovarianceErr carries an IllConditionedError when the covariance could
	// not be stably computed. It never aborts the solve.
	CovarianceErr error
	Skipped       []SkippedPair
}

// Solver drives a candidate plasma state toward consistency with all
// diagnostics via damped Gauss-Newton iteration. The outer loop is strictly
// sequential: each step depends on the previous state. Parallelism lives
// inside the assembler.
type Solver struct {
	src    OperatorSource
	opts   Options
	logger *zap.Logger
	rec    Recorder
}

func New(src OperatorSource, opts Options, logger *zap.Logger) (*Solver, error) {
	if src == nil {
		return nil, &ConfigError{Option: "operators", Reason: "operator source is required"}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{src: src, opts: opts, logger: logger}, nil
}

// SetRecorder attaches a provenance recorder. A nil recorder disables
// provenance capture.
func (s *Solver) SetRecorder(rec Recorder) {
	s.rec = rec
}

func (s *Solver) Options() Options {
	return s.opts
}

// Solve iterates from the initial guess until convergence, divergence,
// cancellation, or iteration budget exhaustion. Fatal conditions (invalid
// measurements, a rank-deficient system) return an error before the first
// step; every other outcome returns a Result carrying its status.
func (s *Solver) Solve(ctx context.Context, measurements []domain.Measurement, initial *domain.PlasmaState) (*Result, error) {
	if initial == nil {
		return nil, fmt.Errorf("solver: initial guess is required")
	}
	if !initial.Physical() {
		return nil, fmt.Errorf("solver: initial guess is non-physical")
	}
	if len(measurements) == 0 {
		return nil, &UnderdeterminedError{Rank: 0, Dim: initial.Dim()}
	}
	for i := range measurements {
		if err := measurements[i].Validate(); err != nil {
			return nil, err
		}
	}

	if s.rec != nil {
		if err := s.rec.SolveStarted(measurements, initial); err != nil {
			return nil, err
		}
	}

	asm := NewAssembler(s.src, measurements, s.opts.Workers, s.logger)

	cur := initial
	curSys, err := asm.Assemble(ctx, cur)
	if errors.Is(err, ErrNonFinite) {
		// No previous step to shrink from; the guess itself is unusable.
		s.logger.Warn("initial assembly non-finite", zap.Error(err))
		return &Result{State: cur, Status: domain.StatusDiverged}, nil
	}
	if isContextErr(err) {
		// Cancelled before any step completed: the initial guess is the last
		// fully-completed state.
		return &Result{State: cur, Status: domain.StatusCancelled}, nil
	}
	if err != nil {
		return nil, err
	}

	dim := cur.Dim()
	if curSys.Jacobian == nil {
		return nil, &UnderdeterminedError{Rank: 0, Dim: dim}
	}
	rank, cond, err := rankAndCond(curSys.Jacobian)
	if err != nil {
		return nil, err
	}
	if rank < dim {
		return nil, &UnderdeterminedError{Rank: rank, Dim: dim}
	}
	s.logger.Debug("system well-posed",
		zap.Int("rows", curSys.NumRows()),
		zap.Int("dim", dim),
		zap.Float64("condition", cond))

	norm := curSys.Norm()
	iterations := 0
	divergeRun := 0
	var status domain.SolveStatus

	if norm < s.opts.Tolerance {
		status = domain.StatusConverged
	}

	for status == "" && iterations < s.opts.MaxIterations {
		// A cancel between iterations stops here. One that lands mid-assembly
		// surfaces as a context error from backtrack below; both keep the last
		// accepted state.
		if ctx.Err() != nil {
			status = domain.StatusCancelled
			break
		}

		iter := iterations + 1
		delta, err := solveDamped(curSys.Jacobian, curSys.Residual, s.opts.Damping)
		if err != nil {
			s.logger.Warn("update step unsolvable", zap.Int("iteration", iter), zap.Error(err))
			status = domain.StatusDiverged
			break
		}

		next, nextSys, ok, err := s.backtrack(ctx, asm, cur, delta, iter)
		if err != nil {
			if isContextErr(err) {
				status = domain.StatusCancelled
				break
			}
			return nil, err
		}
		if !ok {
			status = domain.StatusDiverged
			break
		}

		newNorm := nextSys.Norm()
		iterations = iter
		if s.rec != nil {
			if err := s.rec.IterationAccepted(iter, newNorm, nextSys.MeasurementIDs, next); err != nil {
				return nil, err
			}
		}
		s.logger.Debug("iteration accepted",
			zap.Int("iteration", iter),
			zap.Float64("residual_norm", newNorm),
			zap.Int("skipped_pairs", len(nextSys.Skipped)))

		if newNorm > s.opts.DivergenceRatio*norm {
			divergeRun++
		} else {
			divergeRun = 0
		}

		relChange := next.MaxRelChange(cur)
		cur, curSys, norm = next, nextSys, newNorm

		switch {
		case divergeRun >= s.opts.DivergenceRuns:
			status = domain.StatusDiverged
		case norm < s.opts.Tolerance:
			status = domain.StatusConverged
		case s.opts.StateTolerance > 0 && relChange < s.opts.StateTolerance:
			status = domain.StatusConverged
		}
	}

	if status == "" {
		status = domain.StatusMaxIterationsExceeded
	}

	result := &Result{
		State:        cur,
		Status:       status,
		Iterations:   iterations,
		ResidualNorm: norm,
		Skipped:      curSys.Skipped,
	}

	cov, covCond, err := Propagate(curSys.Jacobian, s.opts.ConditionLimit)
	if err != nil {
		result.CovarianceErr = err
		s.logger.Warn("covariance not propagated", zap.Error(err))
	} else {
		result.Covariance = cov
		result.ConditionNumber = covCond
		if s.rec != nil {
			if err := s.rec.CovariancePropagated(covCond); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Info("solve finished",
		zap.String("status", string(status)),
		zap.Int("iterations", iterations),
		zap.Float64("residual_norm", norm))
	return result, nil
}

// backtrack applies the proposed update with a step-size limiter: a full step
// that lands on a non-physical state or a non-finite evaluation is halved and
// retried up to the backtrack budget.
func (s *Solver) backtrack(ctx context.Context, asm *Assembler, cur *domain.PlasmaState, delta []float64, iter int) (*domain.PlasmaState, *System, bool, error) {
	base := cur.Vector()
	alpha := 1.0

	for bt := 0; bt <= s.opts.MaxBacktracks; bt++ {
		cand := make([]float64, len(base))
		for i := range base {
			cand[i] = base[i] + alpha*delta[i]
		}
		candState, err := cur.WithVector(cand)
		if err != nil {
			return nil, nil, false, err
		}

		if !candState.Physical() {
			s.logger.Debug("step rejected: non-physical state",
				zap.Int("iteration", iter), zap.Float64("step", alpha))
			alpha *= s.opts.StepShrink
			continue
		}

		candSys, err := asm.Assemble(ctx, candState)
		if errors.Is(err, ErrNonFinite) {
			s.logger.Debug("step rejected: non-finite evaluation",
				zap.Int("iteration", iter), zap.Float64("step", alpha))
			alpha *= s.opts.StepShrink
			continue
		}
		if err != nil {
			return nil, nil, false, err
		}
		if candSys.Jacobian == nil {
			// Every pair out of domain at the candidate: shrink toward the
			// last good state instead of failing.
			alpha *= s.opts.StepShrink
			continue
		}
		return candState, candSys, true, nil
	}
	return nil, nil, false, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
