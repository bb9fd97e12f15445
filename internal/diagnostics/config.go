package diagnostics

import (
	"fmt"
	"math"

	"github.com/plasmakit/ionmix/internal/domain"
)

type OperatorType string

const (
	TypeLinear   OperatorType = "linear"
	TypeChord    OperatorType = "chord"
	TypeEmission OperatorType = "emission"
)

// OperatorConfig is the wire form of a generic operator. Diagnostic-specific
// physics beyond these shapes is supplied by code registering its own
// domain.Operator implementation.
type OperatorConfig struct {
	Type       OperatorType        `json:"type"`
	Diagnostic domain.DiagnosticID `json:"diagnostic"`

	// linear
	Dim      int             `json:"dim,omitempty"`
	Channels []LinearChannel `json:"channels,omitempty"`

	// chord and emission
	Field    domain.Field `json:"field,omitempty"`
	Chords   []Chord      `json:"chords,omitempty"`
	TimeFrom float64      `json:"time_from,omitempty"`
	TimeTo   float64      `json:"time_to,omitempty"`

	// emission
	DensityField     domain.Field   `json:"density_field,omitempty"`
	TemperatureField domain.Field   `json:"temperature_field,omitempty"`
	Params           EmissionParams `json:"params,omitempty"`
}

func Build(cfg OperatorConfig) (domain.Operator, error) {
	switch cfg.Type {
	case TypeLinear:
		return NewLinearOperator(cfg.Diagnostic, cfg.Dim, cfg.Channels)
	case TypeChord:
		to := cfg.TimeTo
		if to == 0 {
			to = math.MaxFloat64
		}
		return NewChordOperator(cfg.Diagnostic, cfg.Field, cfg.Chords, cfg.TimeFrom, to)
	case TypeEmission:
		p := cfg.Params
		p.TimeFrom = cfg.TimeFrom
		if cfg.TimeTo != 0 {
			p.TimeTo = cfg.TimeTo
		}
		return NewEmissionOperator(cfg.Diagnostic, cfg.DensityField, cfg.TemperatureField, cfg.Chords, p)
	default:
		return nil, fmt.Errorf("diagnostics: unknown operator type %q", cfg.Type)
	}
}

// BuildRegistry constructs a registry from wire configs, one operator per
// diagnostic.
func BuildRegistry(cfgs []OperatorConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range cfgs {
		op, err := Build(cfg)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(op); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
