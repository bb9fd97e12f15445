package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const machineEps = 2.220446049250313e-16

// solveDamped solves the regularized normal equations
// (JᵀJ + λ·diag(JᵀJ))Δ = −Jᵀr for the proposed update Δ. Scaling the
// regularization by the normal-matrix diagonal keeps the step invariant under
// rescaling of the state parameters, which matters when densities and
// temperatures differ by twenty orders of magnitude. If the factorization
// fails the regularization is increased tenfold a few times before giving up:
// with enough damping the matrix is positive definite unless the system is
// numerically hopeless.
func solveDamped(J *mat.Dense, r *mat.VecDense, lambda float64) ([]float64, error) {
	_, n := J.Dims()

	var jtj mat.Dense
	jtj.Mul(J.T(), J)

	var jtr mat.VecDense
	jtr.MulVec(J.T(), r)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetVec(i, -jtr.AtVec(i))
	}

	maxDiag := 0.0
	for i := 0; i < n; i++ {
		if d := jtj.At(i, i); d > maxDiag {
			maxDiag = d
		}
	}

	lam := lambda
	for attempt := 0; attempt < 5; attempt++ {
		sym := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := jtj.At(i, j)
				if i == j {
					d := jtj.At(i, i)
					if d <= 0 {
						d = maxDiag
					}
					v += lam * d
				}
				sym.SetSym(i, j, v)
			}
		}

		var chol mat.Cholesky
		if chol.Factorize(sym) {
			var delta mat.VecDense
			if err := chol.SolveVecTo(&delta, b); err == nil {
				out := make([]float64, n)
				for i := 0; i < n; i++ {
					out[i] = delta.AtVec(i)
				}
				return out, nil
			}
		}
		lam *= 10
	}
	return nil, fmt.Errorf("solver: normal equations could not be factorized even with damping %g", lam)
}

// rankAndCond returns the numerical rank and condition number of J.
func rankAndCond(J *mat.Dense) (int, float64, error) {
	m, n := J.Dims()

	var svd mat.SVD
	if !svd.Factorize(J, mat.SVDNone) {
		return 0, 0, fmt.Errorf("solver: SVD failed to converge")
	}
	sv := svd.Values(nil)
	if len(sv) == 0 || sv[0] == 0 {
		return 0, math.Inf(1), nil
	}

	larger := m
	if n > larger {
		larger = n
	}
	tol := float64(larger) * machineEps * sv[0]

	rank := 0
	for _, s := range sv {
		if s > tol {
			rank++
		}
	}

	smin := sv[len(sv)-1]
	cond := math.Inf(1)
	if smin > 0 {
		cond = sv[0] / smin
	}
	return rank, cond, nil
}
