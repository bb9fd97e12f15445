package domain

import "fmt"

// Operator wraps one diagnostic's forward model. Implementations must be
// stateless with respect to the plasma state: Predict and Sensitivity are
// pure functions of their inputs and must be safe to call concurrently.
//
// Predict returns the modelled reading for the given line of sight and time.
// Sensitivity returns the local derivative of that prediction with respect to
// the state vector, one row per predicted value, one column per state degree
// of freedom. Sensitivity must be evaluable wherever Predict succeeds.
type Operator interface {
	Diagnostic() DiagnosticID
	// Applicable reports whether this operator can model the given chord/time.
	// Inapplicable pairs are skipped by the assembler, never an error.
	Applicable(tag GeometryTag) bool
	Predict(state *PlasmaState, tag GeometryTag) ([]float64, error)
	Sensitivity(state *PlasmaState, tag GeometryTag) ([][]float64, error)
}

// OutOfDomainError is returned by Predict when the candidate state falls
// outside the operator's physically valid range (negative density, a
// temperature below model applicability, ...). The assembler recovers by
// excluding the pair from the current iteration.
type OutOfDomainError struct {
	Diagnostic DiagnosticID
	Reason     string
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("operator %s: state outside valid domain: %s", e.Diagnostic, e.Reason)
}
