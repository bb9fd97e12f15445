package diagnostics

import (
	"fmt"

	"github.com/plasmakit/ionmix/internal/domain"
)

// LinearChannel is one channel of a linear-response diagnostic: its predicted
// reading is Coeffs·state + Offset.
type LinearChannel struct {
	Tag    domain.GeometryTag `json:"tag"`
	Coeffs []float64          `json:"coeffs"`
	Offset float64            `json:"offset"`
}

// LinearOperator models a diagnostic whose response is linear in the state
// vector. Many calibrated channels reduce to this form after the
// instrument-specific physics is folded into the coefficient row.
type LinearOperator struct {
	id       domain.DiagnosticID
	dim      int
	channels map[domain.GeometryTag]LinearChannel
}

func NewLinearOperator(id domain.DiagnosticID, dim int, channels []LinearChannel) (*LinearOperator, error) {
	if id == "" {
		return nil, fmt.Errorf("linear operator: empty diagnostic id")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("linear operator %s: non-positive state dimension", id)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("linear operator %s: no channels", id)
	}
	byTag := make(map[domain.GeometryTag]LinearChannel, len(channels))
	for _, ch := range channels {
		if len(ch.Coeffs) != dim {
			return nil, fmt.Errorf("linear operator %s channel %s: %d coefficients for state dimension %d", id, ch.Tag, len(ch.Coeffs), dim)
		}
		if _, dup := byTag[ch.Tag]; dup {
			return nil, fmt.Errorf("linear operator %s: duplicate channel %s", id, ch.Tag)
		}
		byTag[ch.Tag] = ch
	}
	return &LinearOperator{id: id, dim: dim, channels: byTag}, nil
}

func (o *LinearOperator) Diagnostic() domain.DiagnosticID { return o.id }

func (o *LinearOperator) Applicable(tag domain.GeometryTag) bool {
	_, ok := o.channels[tag]
	return ok
}

func (o *LinearOperator) Predict(state *domain.PlasmaState, tag domain.GeometryTag) ([]float64, error) {
	ch, ok := o.channels[tag]
	if !ok {
		return nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("no channel %s", tag)}
	}
	if state.Dim() != o.dim {
		return nil, fmt.Errorf("linear operator %s: state dimension %d, expected %d", o.id, state.Dim(), o.dim)
	}
	vec := state.Vector()
	sum := ch.Offset
	for i, c := range ch.Coeffs {
		sum += c * vec[i]
	}
	return []float64{sum}, nil
}

func (o *LinearOperator) Sensitivity(state *domain.PlasmaState, tag domain.GeometryTag) ([][]float64, error) {
	ch, ok := o.channels[tag]
	if !ok {
		return nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("no channel %s", tag)}
	}
	row := append([]float64(nil), ch.Coeffs...)
	return [][]float64{row}, nil
}
