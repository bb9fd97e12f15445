package solver

import "fmt"

const (
	DefaultTolerance       = 1e-6
	DefaultStateTolerance  = 0.0
	DefaultMaxIterations   = 50
	DefaultDamping         = 1e-3
	DefaultStepShrink      = 0.5
	DefaultMaxBacktracks   = 6
	DefaultDivergenceRatio = 1.5
	DefaultDivergenceRuns  = 3
	DefaultConditionLimit  = 1e8
	DefaultWorkers         = 4
)

// Options is the convergence criterion and numerical policy for one solve.
// It is supplied once, validated before any computation, and never altered
// during the run. The damping and divergence knobs are policy, not law:
// deployments tune them per machine.
type Options struct {
	// Tolerance is the weighted residual RMS below which the solve converges.
	Tolerance float64 `json:"tolerance"`
	// StateTolerance, if positive, also declares convergence when the largest
	// relative state change of an accepted step falls below it.
	StateTolerance float64 `json:"state_tolerance"`
	// MaxIterations bounds the outer loop. Exhausting it is a reported,
	// non-fatal outcome.
	MaxIterations int `json:"max_iterations"`
	// Damping is the Levenberg regularization added to the normal equations,
	// scaled by the normal-matrix diagonal so it is invariant under parameter
	// rescaling.
	Damping float64 `json:"damping"`
	// StepShrink is the factor applied to a rejected step before retrying.
	StepShrink float64 `json:"step_shrink"`
	// MaxBacktracks bounds step halving before the solve reports Diverged.
	MaxBacktracks int `json:"max_backtracks"`
	// DivergenceRatio: an accepted step whose residual norm exceeds the
	// previous norm by this factor counts toward divergence.
	DivergenceRatio float64 `json:"divergence_ratio"`
	// DivergenceRuns is how many consecutive growing steps trigger Diverged.
	DivergenceRuns int `json:"divergence_runs"`
	// ConditionLimit is the condition-number cutoff beyond which the
	// covariance is reported ill-conditioned instead of returned.
	ConditionLimit float64 `json:"condition_limit"`
	// Workers caps concurrent operator evaluations within one iteration.
	Workers int `json:"workers"`
}

func DefaultOptions() Options {
	return Options{
		Tolerance:       DefaultTolerance,
		StateTolerance:  DefaultStateTolerance,
		MaxIterations:   DefaultMaxIterations,
		Damping:         DefaultDamping,
		StepShrink:      DefaultStepShrink,
		MaxBacktracks:   DefaultMaxBacktracks,
		DivergenceRatio: DefaultDivergenceRatio,
		DivergenceRuns:  DefaultDivergenceRuns,
		ConditionLimit:  DefaultConditionLimit,
		Workers:         DefaultWorkers,
	}
}

// ConfigError reports an invalid option value. It is fatal and surfaced
// before any computation begins.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("solver config: %s %s", e.Option, e.Reason)
}

func (o Options) Validate() error {
	if o.Tolerance <= 0 {
		return &ConfigError{Option: "tolerance", Reason: "must be positive"}
	}
	if o.StateTolerance < 0 {
		return &ConfigError{Option: "state_tolerance", Reason: "must be non-negative"}
	}
	if o.MaxIterations <= 0 {
		return &ConfigError{Option: "max_iterations", Reason: "must be positive"}
	}
	if o.Damping <= 0 {
		return &ConfigError{Option: "damping", Reason: "must be positive"}
	}
	if o.StepShrink <= 0 || o.StepShrink >= 1 {
		return &ConfigError{Option: "step_shrink", Reason: "must be in (0,1)"}
	}
	if o.MaxBacktracks <= 0 {
		return &ConfigError{Option: "max_backtracks", Reason: "must be positive"}
	}
	if o.DivergenceRatio <= 1 {
		return &ConfigError{Option: "divergence_ratio", Reason: "must exceed 1"}
	}
	if o.DivergenceRuns <= 0 {
		return &ConfigError{Option: "divergence_runs", Reason: "must be positive"}
	}
	if o.ConditionLimit <= 1 {
		return &ConfigError{Option: "condition_limit", Reason: "must exceed 1"}
	}
	if o.Workers <= 0 {
		return &ConfigError{Option: "workers", Reason: "must be positive"}
	}
	return nil
}
