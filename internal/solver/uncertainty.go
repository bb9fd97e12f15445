package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Propagate computes the linearized covariance of the terminal state,
// Cov(state) ≈ (JᵀWJ)⁻¹, where J is the weighted Jacobian assembled at that
// state (rows already scaled by inverse uncertainty, so W is folded in).
// The inverse is formed from the SVD, and the condition number of JᵀWJ is
// checked first: past the configured limit the covariance is refused with an
// IllConditionedError rather than returned unstable.
func Propagate(J *mat.Dense, conditionLimit float64) ([][]float64, float64, error) {
	_, n := J.Dims()

	var svd mat.SVD
	if !svd.Factorize(J, mat.SVDThin) {
		return nil, 0, &IllConditionedError{Condition: math.Inf(1), Limit: conditionLimit}
	}
	sv := svd.Values(nil)
	if len(sv) < n || sv[n-1] <= 0 {
		return nil, 0, &IllConditionedError{Condition: math.Inf(1), Limit: conditionLimit}
	}

	// cond(JᵀJ) is the square of cond(J).
	ratio := sv[0] / sv[n-1]
	cond := ratio * ratio
	if cond > conditionLimit {
		return nil, cond, &IllConditionedError{Condition: cond, Limit: conditionLimit}
	}

	var v mat.Dense
	svd.VTo(&v)

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += v.At(i, k) * v.At(j, k) / (sv[k] * sv[k])
			}
			cov[i][j] = sum
			cov[j][i] = sum
		}
	}
	return cov, cond, nil
}
