package diagnostics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/plasmakit/ionmix/internal/domain"
)

// Registry maps diagnostic identifiers to the forward models that predict
// them. Safe for concurrent use; the solver reads from it while handlers may
// inspect it.
type Registry struct {
	mu  sync.RWMutex
	ops map[domain.DiagnosticID]domain.Operator
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[domain.DiagnosticID]domain.Operator)}
}

func (r *Registry) Register(op domain.Operator) error {
	id := op.Diagnostic()
	if id == "" {
		return fmt.Errorf("registry: operator with empty diagnostic id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ops[id]; dup {
		return fmt.Errorf("registry: diagnostic %s already registered", id)
	}
	r.ops[id] = op
	return nil
}

// ForDiagnostic implements solver.OperatorSource.
func (r *Registry) ForDiagnostic(id domain.DiagnosticID) (domain.Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[id]
	return op, ok
}

func (r *Registry) IDs() []domain.DiagnosticID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.DiagnosticID, 0, len(r.ops))
	for id := range r.ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
