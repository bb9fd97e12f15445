package provenance

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/plasmakit/ionmix/internal/domain"
)

// SolveRecorder translates solver progress into provenance records: one
// residual-assembly activity and one iteration activity per accepted step,
// with the new state derived from the previous state and the residual, which
// in turn derives from the measurements actually used. Safe for concurrent
// use.
type SolveRecorder struct {
	mu      sync.Mutex
	tracker *Tracker
	session *Session

	measurementEntities map[string]string
	roots               []string
	lastStateID         string
	iteration           int
}

func NewSolveRecorder(tracker *Tracker, session *Session) *SolveRecorder {
	return &SolveRecorder{
		tracker:             tracker,
		session:             session,
		measurementEntities: make(map[string]string),
	}
}

func stateEntityID(iter int, s *domain.PlasmaState) string {
	vec := s.Vector()
	var b strings.Builder
	for _, v := range vec {
		b.WriteString(strconv.FormatFloat(v, 'g', 17, 64))
		b.WriteByte(',')
	}
	return HashID("state", map[string]string{
		"iteration": strconv.Itoa(iter),
		"time":      strconv.FormatFloat(s.Time(), 'g', 17, 64),
		"vector":    b.String(),
	})
}

// SolveStarted registers the raw measurements and the initial guess as the
// root entities of this solve's derivation graph.
func (r *SolveRecorder) SolveStarted(measurements []domain.Measurement, initial *domain.PlasmaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range measurements {
		id := "measurement:" + m.ID
		if err := r.tracker.AddEntity(Entity{
			ID:   id,
			Kind: EntityMeasurement,
			Attrs: map[string]string{
				"diagnostic": string(m.Diagnostic),
				"chord":      m.Tag.Chord,
				"time":       strconv.FormatFloat(m.Tag.Time, 'g', -1, 64),
			},
		}); err != nil {
			return err
		}
		r.measurementEntities[m.ID] = id
		r.roots = append(r.roots, id)
	}

	initID := stateEntityID(0, initial)
	if err := r.tracker.AddEntity(Entity{
		ID:    initID,
		Kind:  EntityState,
		Attrs: map[string]string{"iteration": "0", "role": "initial_guess"},
	}); err != nil {
		return err
	}
	r.roots = append(r.roots, initID)
	r.lastStateID = initID
	return nil
}

// IterationAccepted records one accepted solver step. measurementIDs names
// the measurements that contributed residual rows this iteration; pairs
// skipped as out of domain contribute nothing.
func (r *SolveRecorder) IterationAccepted(iter int, residualNorm float64, measurementIDs []string, next *domain.PlasmaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prevStateID := r.lastStateID
	usedInputs := []string{prevStateID}
	for _, mid := range measurementIDs {
		eid, ok := r.measurementEntities[mid]
		if !ok {
			return fmt.Errorf("provenance: iteration %d used unregistered measurement %s", iter, mid)
		}
		usedInputs = append(usedInputs, eid)
	}

	asmAct, err := r.session.NewActivity(ActivityAssembly, map[string]string{
		"iteration": strconv.Itoa(iter),
	})
	if err != nil {
		return err
	}
	residualID := HashID("residual", map[string]string{
		"state":     prevStateID,
		"iteration": strconv.Itoa(iter),
	})
	if err := r.tracker.AddEntity(Entity{
		ID:   residualID,
		Kind: EntityResidual,
		Attrs: map[string]string{
			"iteration": strconv.Itoa(iter),
			"norm":      strconv.FormatFloat(residualNorm, 'g', -1, 64),
		},
	}); err != nil {
		return err
	}
	if err := r.tracker.Record(residualID, asmAct.ID, usedInputs); err != nil {
		return err
	}

	iterAct, err := r.session.NewActivity(ActivityIteration, map[string]string{
		"iteration":     strconv.Itoa(iter),
		"residual_norm": strconv.FormatFloat(residualNorm, 'g', -1, 64),
	})
	if err != nil {
		return err
	}
	stateID := stateEntityID(iter, next)
	if err := r.tracker.AddEntity(Entity{
		ID:    stateID,
		Kind:  EntityState,
		Attrs: map[string]string{"iteration": strconv.Itoa(iter)},
	}); err != nil {
		return err
	}
	if err := r.tracker.Record(stateID, iterAct.ID, []string{prevStateID, residualID}); err != nil {
		return err
	}

	r.lastStateID = stateID
	r.iteration = iter
	return nil
}

// CovariancePropagated records the uncertainty estimate on the terminal state.
func (r *SolveRecorder) CovariancePropagated(conditionNumber float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	act, err := r.session.NewActivity(ActivityPropagation, nil)
	if err != nil {
		return err
	}
	covID := HashID("covariance", map[string]string{"state": r.lastStateID})
	if err := r.tracker.AddEntity(Entity{
		ID:   covID,
		Kind: EntityCovariance,
		Attrs: map[string]string{
			"condition_number": strconv.FormatFloat(conditionNumber, 'g', -1, 64),
		},
	}); err != nil {
		return err
	}

	inputs := []string{r.lastStateID}
	for _, eid := range r.measurementEntities {
		inputs = append(inputs, eid)
	}
	return r.tracker.Record(covID, act.ID, inputs)
}

// Roots returns the entity IDs every derived value must be reachable from.
func (r *SolveRecorder) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.roots...)
}

// FinalStateID returns the entity ID of the most recently accepted state.
func (r *SolveRecorder) FinalStateID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStateID
}
