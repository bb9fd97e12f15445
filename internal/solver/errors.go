package solver

import (
	"errors"
	"fmt"
)

// ErrNonFinite marks a residual or sensitivity evaluation that produced NaN
// or Inf. It invalidates the iteration that saw it and triggers step damping;
// it only becomes terminal when the retry budget is exhausted.
var ErrNonFinite = errors.New("solver: non-finite value in evaluation")

// UnderdeterminedError reports a rank-deficient residual system: the supplied
// measurements cannot constrain every degree of freedom. This is a
// configuration/data error, surfaced before any iteration proceeds.
type UnderdeterminedError struct {
	Rank int
	Dim  int
}

func (e *UnderdeterminedError) Error() string {
	return fmt.Sprintf("solver: residual system underdetermined: rank %d for %d degrees of freedom", e.Rank, e.Dim)
}

// IllConditionedError reports that the covariance matrix could not be
// stably inverted. It is surfaced as a status on the result, never an abort.
type IllConditionedError struct {
	Condition float64
	Limit     float64
}

func (e *IllConditionedError) Error() string {
	return fmt.Sprintf("solver: covariance ill-conditioned: condition number %.3g exceeds limit %.3g", e.Condition, e.Limit)
}
