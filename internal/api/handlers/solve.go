package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plasmakit/ionmix/internal/service"
	"github.com/plasmakit/ionmix/internal/solver"
)

type SolveHandler struct {
	svc *service.SolveService
}

func NewSolveHandler(svc *service.SolveService) *SolveHandler {
	return &SolveHandler{svc: svc}
}

// Create runs one solve synchronously and returns the outcome. The run is
// persisted whatever the outcome, so clients can fetch it again later.
func (h *SolveHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.Solve(r.Context(), &req)
	if err != nil {
		status, msg := solveErrorStatus(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func solveErrorStatus(err error) (int, string) {
	var cfgErr *solver.ConfigError
	var underErr *solver.UnderdeterminedError
	switch {
	case errors.Is(err, service.ErrNoMeasurements),
		errors.Is(err, service.ErrNoOperators),
		errors.Is(err, service.ErrNoInitialGuess),
		errors.Is(err, service.ErrBasisMissing),
		errors.Is(err, service.ErrInitialGuessLength):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &underErr):
		// A well-formed request whose measurement set cannot constrain the
		// state is a semantic problem, not a malformed one.
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (h *SolveHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *SolveHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	run, err := h.svc.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "solve run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetState returns the persisted converged state vector of a run.
func (h *SolveHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	cs, err := h.svc.GetState(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "no converged state for this run")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// GetProvenance returns the PROV document and derivation edges recorded
// during the solve.
func (h *SolveHandler) GetProvenance(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetProvenance(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "solve run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SolveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteRun(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "solve run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}
