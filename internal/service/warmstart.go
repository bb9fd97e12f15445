package service

import (
	"context"
	"math"

	"github.com/plasmakit/ionmix/internal/domain"
	"go.uber.org/zap"
)

const defaultWarmStartCandidates = 3

// WarmStartService seeds a solve's initial guess from the nearest previously
// converged state on the same basis. A good seed typically saves several
// Newton iterations on repeat solves of the same discharge. It only ever
// improves the starting point: any lookup failure falls back to the
// caller-supplied guess.
type WarmStartService struct {
	stateStore domain.StateStore
	logger     *zap.Logger
	candidates int
}

func NewWarmStartService(ss domain.StateStore, logger *zap.Logger) *WarmStartService {
	return &WarmStartService{
		stateStore: ss,
		logger:     logger,
		candidates: defaultWarmStartCandidates,
	}
}

func (s *WarmStartService) SetCandidates(n int) {
	if n > 0 {
		s.candidates = n
	}
}

// InitialGuess returns the warm-start vector for the given basis, or the
// fallback if no usable prior state exists. The second return reports whether
// a prior state was used.
func (s *WarmStartService) InitialGuess(ctx context.Context, basis *domain.Basis, fallback []float64) ([]float64, bool) {
	probe := make([]float32, len(fallback))
	for i, v := range fallback {
		probe[i] = float32(v)
	}

	states, err := s.stateStore.FindNearest(ctx, basis.Key(), probe, s.candidates)
	if err != nil {
		s.logger.Warn("warm start lookup failed", zap.Error(err))
		return fallback, false
	}

	for _, cs := range states {
		if len(cs.Vector) != basis.Dim() {
			continue
		}
		guess := make([]float64, len(cs.Vector))
		usable := true
		for i, v := range cs.Vector {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
				usable = false
				break
			}
			guess[i] = f
		}
		if !usable {
			continue
		}
		s.logger.Info("warm start from prior converged state",
			zap.String("run_id", cs.RunID.String()),
			zap.String("basis_key", cs.BasisKey))
		return guess, true
	}
	return fallback, false
}
