package diagnostics

import (
	"fmt"
	"math"

	"github.com/plasmakit/ionmix/internal/domain"
)

// EmissionOperator models a chord-integrated emission diagnostic whose local
// emissivity follows a power law in density and temperature:
//
//	reading = Σ_i w_i · C · n_i^a · T_i^b
//
// This is the generic shape of bremsstrahlung/line-radiation channels once
// the atomic physics is reduced to fitted exponents. The operator is only
// valid above a minimum temperature, below which the power-law fit does not
// apply; states outside that range are reported out of domain.
type EmissionOperator struct {
	id       domain.DiagnosticID
	density  domain.Field
	temp     domain.Field
	chords   map[string]Chord
	scale    float64
	expN     float64
	expT     float64
	minTemp  float64
	timeFrom float64
	timeTo   float64
}

type EmissionParams struct {
	Scale    float64 `json:"scale"`
	DensExp  float64 `json:"density_exponent"`
	TempExp  float64 `json:"temperature_exponent"`
	MinTemp  float64 `json:"min_temperature"`
	TimeFrom float64 `json:"time_from"`
	TimeTo   float64 `json:"time_to"`
}

func NewEmissionOperator(id domain.DiagnosticID, density, temp domain.Field, chords []Chord, p EmissionParams) (*EmissionOperator, error) {
	if id == "" {
		return nil, fmt.Errorf("emission operator: empty diagnostic id")
	}
	if len(chords) == 0 {
		return nil, fmt.Errorf("emission operator %s: no chords", id)
	}
	if p.Scale <= 0 {
		return nil, fmt.Errorf("emission operator %s: scale must be positive", id)
	}
	if p.MinTemp < 0 {
		return nil, fmt.Errorf("emission operator %s: negative minimum temperature", id)
	}
	byName := make(map[string]Chord, len(chords))
	for _, c := range chords {
		if c.Name == "" || len(c.Weights) == 0 {
			return nil, fmt.Errorf("emission operator %s: invalid chord %q", id, c.Name)
		}
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("emission operator %s: duplicate chord %s", id, c.Name)
		}
		byName[c.Name] = c
	}
	to := p.TimeTo
	if to == 0 {
		to = math.MaxFloat64
	}
	return &EmissionOperator{
		id:       id,
		density:  density,
		temp:     temp,
		chords:   byName,
		scale:    p.Scale,
		expN:     p.DensExp,
		expT:     p.TempExp,
		minTemp:  p.MinTemp,
		timeFrom: p.TimeFrom,
		timeTo:   to,
	}, nil
}

func (o *EmissionOperator) Diagnostic() domain.DiagnosticID { return o.id }

func (o *EmissionOperator) Applicable(tag domain.GeometryTag) bool {
	if _, ok := o.chords[tag.Chord]; !ok {
		return false
	}
	return tag.Time >= o.timeFrom && tag.Time <= o.timeTo
}

func (o *EmissionOperator) profiles(state *domain.PlasmaState) ([]float64, []float64, error) {
	n, err := state.Profile(o.density)
	if err != nil {
		return nil, nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("state has no %s profile", o.density)}
	}
	t, err := state.Profile(o.temp)
	if err != nil {
		return nil, nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("state has no %s profile", o.temp)}
	}
	for i := range n {
		if n[i] <= 0 {
			return nil, nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("non-positive density at grid point %d", i)}
		}
		if t[i] < o.minTemp {
			return nil, nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("temperature below model applicability at grid point %d", i)}
		}
		if t[i] <= 0 {
			return nil, nil, &domain.OutOfDomainError{Diagnostic: o.id, Reason: fmt.Sprintf("non-positive temperature at grid point %d", i)}
		}
	}
	return n, t, nil
}

func (o *EmissionOperator) Predict(state *domain.PlasmaState, tag domain.GeometryTag) ([]float64, error) {
	chord, ok := o.chords[tag.Chord]
	if !ok {
		return nil, fmt.Errorf("emission operator %s: unknown chord %s", o.id, tag.Chord)
	}
	n, t, err := o.profiles(state)
	if err != nil {
		return nil, err
	}
	if len(chord.Weights) != len(n) {
		return nil, fmt.Errorf("emission operator %s chord %s: %d weights for grid of %d", o.id, tag.Chord, len(chord.Weights), len(n))
	}
	sum := 0.0
	for i, w := range chord.Weights {
		sum += w * o.scale * math.Pow(n[i], o.expN) * math.Pow(t[i], o.expT)
	}
	return []float64{sum}, nil
}

func (o *EmissionOperator) Sensitivity(state *domain.PlasmaState, tag domain.GeometryTag) ([][]float64, error) {
	chord, ok := o.chords[tag.Chord]
	if !ok {
		return nil, fmt.Errorf("emission operator %s: unknown chord %s", o.id, tag.Chord)
	}
	n, t, err := o.profiles(state)
	if err != nil {
		return nil, err
	}

	basis := state.Basis()
	row := make([]float64, state.Dim())
	for i, w := range chord.Weights {
		local := o.scale * math.Pow(n[i], o.expN) * math.Pow(t[i], o.expT)

		nCol, err := basis.Column(o.density, i)
		if err != nil {
			return nil, err
		}
		row[nCol] += w * o.expN * local / n[i]

		tCol, err := basis.Column(o.temp, i)
		if err != nil {
			return nil, err
		}
		row[tCol] += w * o.expT * local / t[i]
	}
	return [][]float64{row}, nil
}
