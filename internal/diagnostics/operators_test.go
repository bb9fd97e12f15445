package diagnostics

import (
	"errors"
	"math"
	"testing"

	"github.com/plasmakit/ionmix/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ne = domain.Field{Species: "electron", Quantity: domain.QuantityDensity}
	te = domain.Field{Species: "electron", Quantity: domain.QuantityTemperature}
)

func twoFieldState(t *testing.T, n, temp []float64) *domain.PlasmaState {
	t.Helper()
	rho := make([]float64, len(n))
	for i := range rho {
		rho[i] = float64(i) / float64(len(n)-1)
	}
	basis, err := domain.NewBasis(rho, ne, te)
	require.NoError(t, err)
	s, err := domain.NewPlasmaState(basis, 0.1, append(append([]float64{}, n...), temp...))
	require.NoError(t, err)
	return s
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	op, err := NewLinearOperator("pol", 2, []LinearChannel{
		{Tag: domain.GeometryTag{Chord: "ch1", Time: 0}, Coeffs: []float64{1, 0}},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Register(op))
	assert.Error(t, reg.Register(op), "duplicate registration must fail")

	got, ok := reg.ForDiagnostic("pol")
	assert.True(t, ok)
	assert.Equal(t, domain.DiagnosticID("pol"), got.Diagnostic())

	_, ok = reg.ForDiagnostic("missing")
	assert.False(t, ok)

	assert.Equal(t, []domain.DiagnosticID{"pol"}, reg.IDs())
}

func TestLinearOperator_PredictAndSensitivity(t *testing.T) {
	tag := domain.GeometryTag{Chord: "ch1", Time: 0.1}
	op, err := NewLinearOperator("pol", 4, []LinearChannel{
		{Tag: tag, Coeffs: []float64{2, 0, 1, 0}, Offset: 3},
	})
	require.NoError(t, err)

	state := twoFieldState(t, []float64{1, 2}, []float64{3, 4})

	assert.True(t, op.Applicable(tag))
	assert.False(t, op.Applicable(domain.GeometryTag{Chord: "other", Time: 0.1}))

	pred, err := op.Predict(state, tag)
	require.NoError(t, err)
	// 2*1 + 1*3 + 3 = 8
	assert.InDelta(t, 8.0, pred[0], 1e-12)

	sens, err := op.Sensitivity(state, tag)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 1, 0}, sens[0])
}

func TestLinearOperator_Validation(t *testing.T) {
	tag := domain.GeometryTag{Chord: "ch1"}
	_, err := NewLinearOperator("", 2, []LinearChannel{{Tag: tag, Coeffs: []float64{1, 2}}})
	assert.Error(t, err)
	_, err = NewLinearOperator("pol", 2, nil)
	assert.Error(t, err)
	_, err = NewLinearOperator("pol", 2, []LinearChannel{{Tag: tag, Coeffs: []float64{1}}})
	assert.Error(t, err, "coefficient count must match dimension")
}

func TestChordOperator_LineIntegral(t *testing.T) {
	tag := domain.GeometryTag{Chord: "mid", Time: 0.1}
	op, err := NewChordOperator("interferometer", ne, []Chord{
		{Name: "mid", Weights: []float64{0.5, 1.0}},
	}, 0, math.MaxFloat64)
	require.NoError(t, err)

	state := twoFieldState(t, []float64{2e19, 1e19}, []float64{1000, 500})

	pred, err := op.Predict(state, tag)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*2e19+1.0*1e19, pred[0], 1e6)

	sens, err := op.Sensitivity(state, tag)
	require.NoError(t, err)
	// Sensitivity lands on the density columns only.
	assert.Equal(t, []float64{0.5, 1.0, 0, 0}, sens[0])
}

func TestChordOperator_TimeWindow(t *testing.T) {
	op, err := NewChordOperator("interferometer", ne, []Chord{
		{Name: "mid", Weights: []float64{1, 1}},
	}, 0.1, 0.2)
	require.NoError(t, err)

	assert.True(t, op.Applicable(domain.GeometryTag{Chord: "mid", Time: 0.15}))
	assert.False(t, op.Applicable(domain.GeometryTag{Chord: "mid", Time: 0.3}))
	assert.False(t, op.Applicable(domain.GeometryTag{Chord: "edge", Time: 0.15}))
}

func TestChordOperator_OutOfDomain(t *testing.T) {
	tag := domain.GeometryTag{Chord: "mid", Time: 0.1}
	op, err := NewChordOperator("interferometer", ne, []Chord{
		{Name: "mid", Weights: []float64{1, 1}},
	}, 0, math.MaxFloat64)
	require.NoError(t, err)

	// Negative density is outside the model's valid range.
	basis, _ := domain.NewBasis([]float64{0, 1}, ne, te)
	state, _ := domain.NewPlasmaState(basis, 0.1, []float64{-1e18, 1e19, 100, 100})

	_, predErr := op.Predict(state, tag)
	var ood *domain.OutOfDomainError
	require.True(t, errors.As(predErr, &ood))
	assert.Equal(t, domain.DiagnosticID("interferometer"), ood.Diagnostic)
}

func TestEmissionOperator_SensitivityMatchesFiniteDifference(t *testing.T) {
	tag := domain.GeometryTag{Chord: "mid", Time: 0.1}
	op, err := NewEmissionOperator("sxr", ne, te, []Chord{
		{Name: "mid", Weights: []float64{0.7, 1.3}},
	}, EmissionParams{Scale: 2.5, DensExp: 2, TempExp: 0.5})
	require.NoError(t, err)

	n := []float64{1.5, 2.5}
	temp := []float64{3.0, 4.0}
	state := twoFieldState(t, n, temp)

	sens, err := op.Sensitivity(state, tag)
	require.NoError(t, err)

	base, err := op.Predict(state, tag)
	require.NoError(t, err)

	vec := state.Vector()
	const h = 1e-7
	for col := range vec {
		bumped := append([]float64(nil), vec...)
		bumped[col] += h
		bumpedState, err := state.WithVector(bumped)
		require.NoError(t, err)

		pred, err := op.Predict(bumpedState, tag)
		require.NoError(t, err)

		fd := (pred[0] - base[0]) / h
		assert.InDelta(t, fd, sens[0][col], 1e-3*math.Abs(fd)+1e-6, "column %d", col)
	}
}

func TestEmissionOperator_MinTemperature(t *testing.T) {
	tag := domain.GeometryTag{Chord: "mid", Time: 0.1}
	op, err := NewEmissionOperator("sxr", ne, te, []Chord{
		{Name: "mid", Weights: []float64{1, 1}},
	}, EmissionParams{Scale: 1, DensExp: 1, TempExp: 1, MinTemp: 10})
	require.NoError(t, err)

	state := twoFieldState(t, []float64{1, 1}, []float64{5, 50})

	_, predErr := op.Predict(state, tag)
	var ood *domain.OutOfDomainError
	require.True(t, errors.As(predErr, &ood), "temperature below applicability must be out of domain")
}

func TestBuildRegistry(t *testing.T) {
	cfgs := []OperatorConfig{
		{
			Type:       TypeLinear,
			Diagnostic: "pol",
			Dim:        4,
			Channels:   []LinearChannel{{Tag: domain.GeometryTag{Chord: "ch1"}, Coeffs: []float64{1, 0, 0, 0}}},
		},
		{
			Type:       TypeChord,
			Diagnostic: "interferometer",
			Field:      ne,
			Chords:     []Chord{{Name: "mid", Weights: []float64{1, 1}}},
		},
	}

	reg, err := BuildRegistry(cfgs)
	require.NoError(t, err)
	assert.Len(t, reg.IDs(), 2)

	_, err = BuildRegistry([]OperatorConfig{{Type: "bogus", Diagnostic: "x"}})
	assert.Error(t, err)
}
