package domain

import (
	"fmt"
	"math"
)

type DiagnosticID string

// GeometryTag identifies what a measurement physically corresponds to: a
// named line of sight (or channel) and the time point it was taken at.
type GeometryTag struct {
	Chord string  `json:"chord"`
	Time  float64 `json:"time"`
}

func (t GeometryTag) String() string {
	return fmt.Sprintf("%s@%g", t.Chord, t.Time)
}

// Measurement is one calibrated observation supplied by a diagnostic.
// Values and Sigmas are parallel: Sigmas[i] is the standard deviation of
// Values[i]. Measurements are immutable once constructed and live for the
// duration of a single solve.
type Measurement struct {
	ID         string       `json:"id"`
	Diagnostic DiagnosticID `json:"diagnostic"`
	Tag        GeometryTag  `json:"tag"`
	Values     []float64    `json:"values"`
	Sigmas     []float64    `json:"sigmas"`
}

// Rows is the number of residual rows this measurement contributes.
func (m *Measurement) Rows() int {
	return len(m.Values)
}

func (m *Measurement) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("measurement: missing id")
	}
	if m.Diagnostic == "" {
		return fmt.Errorf("measurement %s: missing diagnostic", m.ID)
	}
	if len(m.Values) == 0 {
		return fmt.Errorf("measurement %s: no values", m.ID)
	}
	if len(m.Sigmas) != len(m.Values) {
		return fmt.Errorf("measurement %s: %d sigmas for %d values", m.ID, len(m.Sigmas), len(m.Values))
	}
	for i, v := range m.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("measurement %s: value %d is not finite", m.ID, i)
		}
		if m.Sigmas[i] <= 0 || math.IsNaN(m.Sigmas[i]) || math.IsInf(m.Sigmas[i], 0) {
			return fmt.Errorf("measurement %s: sigma %d must be positive and finite", m.ID, i)
		}
	}
	return nil
}
