package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/plasmakit/ionmix/internal/diagnostics"
	"github.com/plasmakit/ionmix/internal/domain"
	"github.com/plasmakit/ionmix/internal/provenance"
	"github.com/plasmakit/ionmix/internal/solver"
	"github.com/plasmakit/ionmix/internal/store"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound        = errors.New("solve run not found")
	ErrNoMeasurements     = errors.New("at least one measurement is required")
	ErrNoOperators        = errors.New("at least one operator config is required")
	ErrNoInitialGuess     = errors.New("an initial guess is required")
	ErrBasisMissing       = errors.New("a basis (grid and fields) is required")
	ErrInitialGuessLength = errors.New("initial guess length does not match the basis")
)

const defaultUserID = "anonymous"

// SolveRequest carries everything one solve needs: the state discretization,
// an initial guess, the measurement set and the operator configurations that
// predict them.
type SolveRequest struct {
	Label        string                       `json:"label,omitempty"`
	UserID       string                       `json:"user_id,omitempty"`
	Rho          []float64                    `json:"rho"`
	Fields       []domain.Field               `json:"fields"`
	Time         float64                      `json:"time"`
	Initial      []float64                    `json:"initial"`
	Measurements []domain.Measurement         `json:"measurements"`
	Operators    []diagnostics.OperatorConfig `json:"operators"`
	Options      *solver.Options              `json:"options,omitempty"`
}

// SolveOutcome is the synchronous result of one solve, persisted under
// Run.ID for later retrieval.
type SolveOutcome struct {
	Run             *domain.SolveRun     `json:"run"`
	Vector          []float64            `json:"vector"`
	Covariance      [][]float64          `json:"covariance,omitempty"`
	ConditionNumber float64              `json:"condition_number,omitempty"`
	CovarianceNote  string               `json:"covariance_note,omitempty"`
	Skipped         []solver.SkippedPair `json:"skipped,omitempty"`
	WarmStarted     bool                 `json:"warm_started"`
	// Provenance is the exported PROV-style document of this solve: entities,
	// activities, agents and the derivation edges between them.
	Provenance *provenance.Document `json:"provenance,omitempty"`
}

// SolveService orchestrates a full solve: operator registry construction,
// warm start, the damped Gauss-Newton run with provenance capture, and
// persistence of the run record, the converged state and the derivation
// edges.
type SolveService struct {
	runStore   domain.RunStore
	stateStore domain.StateStore
	provStore  domain.ProvenanceStore
	warmStart  *WarmStartService
	logger     *zap.Logger
	version    string
}

func NewSolveService(rs domain.RunStore, ss domain.StateStore, ps domain.ProvenanceStore, version string, logger *zap.Logger) *SolveService {
	return &SolveService{
		runStore:   rs,
		stateStore: ss,
		provStore:  ps,
		logger:     logger,
		version:    version,
	}
}

// SetWarmStart enables warm-start initial guesses. Nil disables them.
func (s *SolveService) SetWarmStart(ws *WarmStartService) {
	s.warmStart = ws
}

func (s *SolveService) Solve(ctx context.Context, req *SolveRequest) (*SolveOutcome, error) {
	if len(req.Measurements) == 0 {
		return nil, ErrNoMeasurements
	}
	if len(req.Operators) == 0 {
		return nil, ErrNoOperators
	}
	if len(req.Rho) == 0 || len(req.Fields) == 0 {
		return nil, ErrBasisMissing
	}
	if len(req.Initial) == 0 {
		return nil, ErrNoInitialGuess
	}

	basis, err := domain.NewBasis(req.Rho, req.Fields...)
	if err != nil {
		return nil, err
	}
	if len(req.Initial) != basis.Dim() {
		return nil, ErrInitialGuessLength
	}

	registry, err := diagnostics.BuildRegistry(req.Operators)
	if err != nil {
		return nil, err
	}

	opts := solver.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	sol, err := solver.New(registry, opts, s.logger)
	if err != nil {
		return nil, err
	}

	guess := req.Initial
	warmStarted := false
	if s.warmStart != nil {
		guess, warmStarted = s.warmStart.InitialGuess(ctx, basis, req.Initial)
	}
	initial, err := domain.NewPlasmaState(basis, req.Time, guess)
	if err != nil {
		return nil, err
	}

	run := &domain.SolveRun{
		Label:        req.Label,
		Status:       domain.StatusRunning,
		Measurements: len(req.Measurements),
		Dim:          basis.Dim(),
		WarmStarted:  warmStarted,
	}
	if err := s.runStore.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create solve run: %w", err)
	}

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}
	tracker := provenance.NewTracker()
	session, err := provenance.NewSession(tracker, userID, s.version)
	if err != nil {
		return nil, err
	}
	sol.SetRecorder(provenance.NewSolveRecorder(tracker, session))

	res, err := sol.Solve(ctx, req.Measurements, initial)
	if err != nil {
		if uerr := s.runStore.UpdateOutcome(ctx, run.ID, domain.StatusFailed, 0, 0, err.Error()); uerr != nil {
			s.logger.Warn("failed to record solve failure", zap.String("run_id", run.ID.String()), zap.Error(uerr))
		}
		return nil, err
	}

	if err := s.runStore.UpdateOutcome(ctx, run.ID, res.Status, res.Iterations, res.ResidualNorm, ""); err != nil {
		s.logger.Warn("failed to record solve outcome", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	run.Status = res.Status
	run.Iterations = res.Iterations
	run.ResidualNorm = res.ResidualNorm

	if res.Status == domain.StatusConverged {
		vec := res.State.Vector()
		stored := make([]float32, len(vec))
		for i, v := range vec {
			stored[i] = float32(v)
		}
		cs := &domain.ConvergedState{
			RunID:    run.ID,
			BasisKey: basis.Key(),
			Time:     res.State.Time(),
			Vector:   stored,
		}
		if err := s.stateStore.Save(ctx, cs); err != nil {
			s.logger.Warn("failed to persist converged state", zap.String("run_id", run.ID.String()), zap.Error(err))
		}
	}

	if edges := tracker.Edges(); len(edges) > 0 {
		if err := s.provStore.SaveEdges(ctx, run.ID, edges); err != nil {
			s.logger.Warn("failed to persist provenance edges", zap.String("run_id", run.ID.String()), zap.Error(err))
		}
	}
	doc := tracker.Export()
	if payload, merr := json.Marshal(doc); merr != nil {
		s.logger.Warn("failed to encode provenance document", zap.String("run_id", run.ID.String()), zap.Error(merr))
	} else if err := s.provStore.SaveDocument(ctx, run.ID, payload); err != nil {
		s.logger.Warn("failed to persist provenance document", zap.String("run_id", run.ID.String()), zap.Error(err))
	}

	out := &SolveOutcome{
		Run:             run,
		Vector:          res.State.Vector(),
		Covariance:      res.Covariance,
		ConditionNumber: res.ConditionNumber,
		Skipped:         res.Skipped,
		WarmStarted:     warmStarted,
		Provenance:      doc,
	}
	if res.CovarianceErr != nil {
		out.CovarianceNote = res.CovarianceErr.Error()
	}
	return out, nil
}

func (s *SolveService) GetRun(ctx context.Context, id uuid.UUID) (*domain.SolveRun, error) {
	run, err := s.runStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SolveService) ListRuns(ctx context.Context, limit int) ([]domain.SolveRun, error) {
	return s.runStore.List(ctx, limit)
}

// GetState returns the persisted converged state for a run, if the run
// converged.
func (s *SolveService) GetState(ctx context.Context, id uuid.UUID) (*domain.ConvergedState, error) {
	cs, err := s.stateStore.GetByRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return cs, nil
}

// ProvenanceView is the externally served provenance of one run: the full
// PROV-style document plus the flattened derivation edges.
type ProvenanceView struct {
	RunID    uuid.UUID               `json:"run_id"`
	Document json.RawMessage         `json:"document,omitempty"`
	Edges    []domain.DerivationEdge `json:"edges"`
}

// GetProvenance returns the persisted PROV document and derivation edges of a
// run. Runs persisted before document export existed carry edges only.
func (s *SolveService) GetProvenance(ctx context.Context, id uuid.UUID) (*ProvenanceView, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	edges, err := s.provStore.GetByRun(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.provStore.GetDocument(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &ProvenanceView{RunID: id, Document: doc, Edges: edges}, nil
}

// DeleteRun removes a run together with its converged state and provenance.
func (s *SolveService) DeleteRun(ctx context.Context, id uuid.UUID) error {
	if _, err := s.provStore.DeleteByRun(ctx, id); err != nil {
		return err
	}
	if _, err := s.stateStore.DeleteByRun(ctx, id); err != nil {
		return err
	}
	if err := s.runStore.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRunNotFound
		}
		return err
	}
	return nil
}
