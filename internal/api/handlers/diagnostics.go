package handlers

import (
	"net/http"

	"github.com/plasmakit/ionmix/internal/diagnostics"
)

type DiagnosticsHandler struct{}

func NewDiagnosticsHandler() *DiagnosticsHandler {
	return &DiagnosticsHandler{}
}

type operatorTypeInfo struct {
	Type        diagnostics.OperatorType `json:"type"`
	Description string                   `json:"description"`
	ConfigKeys  []string                 `json:"config_keys"`
}

// List describes the generic operator forms a solve request can instantiate.
// Diagnostic-specific physics beyond these shapes lives in external operator
// implementations.
func (h *DiagnosticsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operator_types": []operatorTypeInfo{
			{
				Type:        diagnostics.TypeLinear,
				Description: "linear response: reading = coeffs . state + offset, one channel per geometry tag",
				ConfigKeys:  []string{"diagnostic", "dim", "channels"},
			},
			{
				Type:        diagnostics.TypeChord,
				Description: "line integral of one field along named chords, optionally windowed in time",
				ConfigKeys:  []string{"diagnostic", "field", "chords", "time_from", "time_to"},
			},
			{
				Type:        diagnostics.TypeEmission,
				Description: "chord-integrated power-law emission in density and temperature",
				ConfigKeys:  []string{"diagnostic", "density_field", "temperature_field", "chords", "params"},
			},
		},
	})
}
