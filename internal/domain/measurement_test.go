package domain

import (
	"math"
	"testing"
)

func TestMeasurement_Validate(t *testing.T) {
	valid := Measurement{
		ID:         "interf-ch1-t0",
		Diagnostic: "interferometer",
		Tag:        GeometryTag{Chord: "ch1", Time: 0.1},
		Values:     []float64{2.3e19},
		Sigmas:     []float64{1.1e18},
	}

	tests := []struct {
		name    string
		mutate  func(m *Measurement)
		wantErr bool
	}{
		{"valid", func(m *Measurement) {}, false},
		{"missing id", func(m *Measurement) { m.ID = "" }, true},
		{"missing diagnostic", func(m *Measurement) { m.Diagnostic = "" }, true},
		{"no values", func(m *Measurement) { m.Values = nil }, true},
		{"sigma count mismatch", func(m *Measurement) { m.Sigmas = []float64{1, 2} }, true},
		{"zero sigma", func(m *Measurement) { m.Sigmas = []float64{0} }, true},
		{"negative sigma", func(m *Measurement) { m.Sigmas = []float64{-1} }, true},
		{"nan value", func(m *Measurement) { m.Values = []float64{math.NaN()} }, true},
		{"inf sigma", func(m *Measurement) { m.Sigmas = []float64{math.Inf(1)} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.Values = append([]float64(nil), valid.Values...)
			m.Sigmas = append([]float64(nil), valid.Sigmas...)
			tt.mutate(&m)
			if err := m.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
