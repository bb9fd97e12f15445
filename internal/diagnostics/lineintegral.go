package diagnostics

import (
	"fmt"
	"math"

	"github.com/plasmakit/ionmix/internal/domain"
)

// Chord is one line of sight through the plasma: Weights[i] is the path
// length the chord spends in the i-th radial shell.
type Chord struct {
	Name    string    `json:"name"`
	Weights []float64 `json:"weights"`
}

// ChordOperator models a line-integrated diagnostic (interferometry-style):
// the predicted reading for a chord is the path-weighted sum of one field's
// profile. Applicability can be restricted to a time window.
type ChordOperator struct {
	id       domain.DiagnosticID
	field    domain.Field
	chords   map[string]Chord
	timeFrom float64
	timeTo   float64
}

// NewChordOperator builds a line-integral operator for the given field.
// timeFrom/timeTo bound the operator's temporal applicability; pass
// (0, math.MaxFloat64) for always-applicable.
func NewChordOperator(id domain.DiagnosticID, field domain.Field, chords []Chord, timeFrom, timeTo float64) (*ChordOperator, error) {
	if id == "" {
		return nil, fmt.Errorf("chord operator: empty diagnostic id")
	}
	if len(chords) == 0 {
		return nil, fmt.Errorf("chord operator %s: no chords", id)
	}
	if timeTo < timeFrom {
		return nil, fmt.Errorf("chord operator %s: time window [%g,%g] inverted", id, timeFrom, timeTo)
	}
	byName := make(map[string]Chord, len(chords))
	for _, c := range chords {
		if c.Name == "" {
			return nil, fmt.Errorf("chord operator %s: chord with empty name", id)
		}
		if len(c.Weights) == 0 {
			return nil, fmt.Errorf("chord operator %s chord %s: no weights", id, c.Name)
		}
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("chord operator %s: duplicate chord %s", id, c.Name)
		}
		byName[c.Name] = c
	}
	return &ChordOperator{id: id, field: field, chords: byName, timeFrom: timeFrom, timeTo: timeTo}, nil
}

func (o *ChordOperator) Diagnostic() domain.DiagnosticID { return o.id }

func (o *ChordOperator) Applicable(tag domain.GeometryTag) bool {
	if _, ok := o.chords[tag.Chord]; !ok {
		return false
	}
	return tag.Time >= o.timeFrom && tag.Time <= o.timeTo
}

func (o *ChordOperator) Predict(state *domain.PlasmaState, tag domain.GeometryTag) ([]float64, error) {
	chord, ok := o.chords[tag.Chord]
	if !ok {
		return nil, fmt.Errorf("chord operator %s: unknown chord %s", o.id, tag.Chord)
	}
	profile, err := state.Profile(o.field)
	if err != nil {
		return nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("state has no %s profile", o.field)}
	}
	if len(chord.Weights) != len(profile) {
		return nil, fmt.Errorf("chord operator %s chord %s: %d weights for grid of %d", o.id, tag.Chord, len(chord.Weights), len(profile))
	}
	sum := 0.0
	for i, w := range chord.Weights {
		if profile[i] < 0 {
			return nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("negative %s at grid point %d", o.field, i)}
		}
		sum += w * profile[i]
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: "non-finite line integral"}
	}
	return []float64{sum}, nil
}

func (o *ChordOperator) Sensitivity(state *domain.PlasmaState, tag domain.GeometryTag) ([][]float64, error) {
	chord, ok := o.chords[tag.Chord]
	if !ok {
		return nil, fmt.Errorf("chord operator %s: unknown chord %s", o.id, tag.Chord)
	}
	basis := state.Basis()
	row := make([]float64, state.Dim())
	for i, w := range chord.Weights {
		col, err := basis.Column(o.field, i)
		if err != nil {
			return nil, err
		}
		row[col] = w
	}
	return [][]float64{row}, nil
}
