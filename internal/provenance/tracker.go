package provenance

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plasmakit/ionmix/internal/domain"
)

type AgentKind string

const (
	AgentPerson   AgentKind = "person"
	AgentSoftware AgentKind = "software"
)

type Agent struct {
	ID   string
	Kind AgentKind
	// DelegateOf names the agent this one acts on behalf of, if any.
	DelegateOf string
}

type EntityKind string

const (
	EntityMeasurement EntityKind = "measurement"
	EntityState       EntityKind = "plasma_state"
	EntityResidual    EntityKind = "residual"
	EntityCovariance  EntityKind = "covariance"
)

type Entity struct {
	ID    string
	Kind  EntityKind
	Attrs map[string]string
}

type ActivityKind string

const (
	ActivitySession     ActivityKind = "session"
	ActivityAssembly    ActivityKind = "residual_assembly"
	ActivityIteration   ActivityKind = "iteration"
	ActivityPropagation ActivityKind = "uncertainty_propagation"
)

type Activity struct {
	ID        string
	Kind      ActivityKind
	Agent     string
	StartedAt time.Time
	EndedAt   time.Time
	Attrs     map[string]string
}

// Tracker accumulates the derivation graph of one solve. It is append-only:
// nodes and edges are added, never removed, for the lifetime of the solve.
// All methods are safe for concurrent use, so parallel operator evaluations
// may record sibling entities; only the DAG structure matters, not insertion
// order.
type Tracker struct {
	mu         sync.Mutex
	agents     map[string]Agent
	entities   map[string]Entity
	activities map[string]Activity
	// inputs[e] holds the entity IDs e was derived from.
	inputs map[string][]string
	// genBy[e] is the activity that produced e.
	genBy map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{
		agents:     make(map[string]Agent),
		entities:   make(map[string]Entity),
		activities: make(map[string]Activity),
		inputs:     make(map[string][]string),
		genBy:      make(map[string]string),
	}
}

func (t *Tracker) AddAgent(a Agent) error {
	if a.ID == "" {
		return fmt.Errorf("provenance: agent with empty id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents[a.ID] = a
	return nil
}

func (t *Tracker) AddEntity(e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("provenance: entity with empty id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.entities[e.ID]; dup {
		return fmt.Errorf("provenance: duplicate entity %s", e.ID)
	}
	t.entities[e.ID] = e
	return nil
}

func (t *Tracker) AddActivity(a Activity) error {
	if a.ID == "" {
		return fmt.Errorf("provenance: activity with empty id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.activities[a.ID]; dup {
		return fmt.Errorf("provenance: duplicate activity %s", a.ID)
	}
	t.activities[a.ID] = a
	return nil
}

// Record states that entity was generated by activity from the given input
// entities. All referenced nodes must already exist, and the edge must not
// close a cycle: no entity may transitively depend on itself.
func (t *Tracker) Record(entityID, activityID string, inputIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entities[entityID]; !ok {
		return fmt.Errorf("provenance: record references unknown entity %s", entityID)
	}
	if _, ok := t.activities[activityID]; !ok {
		return fmt.Errorf("provenance: record references unknown activity %s", activityID)
	}
	for _, in := range inputIDs {
		if _, ok := t.entities[in]; !ok {
			return fmt.Errorf("provenance: record references unknown input %s", in)
		}
		if in == entityID || t.dependsOnLocked(in, entityID) {
			return fmt.Errorf("provenance: recording %s from %s would create a cycle", entityID, in)
		}
	}

	if prev, ok := t.genBy[entityID]; ok && prev != activityID {
		return fmt.Errorf("provenance: entity %s already generated by %s", entityID, prev)
	}
	t.genBy[entityID] = activityID
	t.inputs[entityID] = append(t.inputs[entityID], inputIDs...)
	return nil
}

// dependsOnLocked reports whether entity id transitively depends on target.
func (t *Tracker) dependsOnLocked(id, target string) bool {
	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, in := range t.inputs[cur] {
			if in == target {
				return true
			}
			stack = append(stack, in)
		}
	}
	return false
}

// Acyclic re-verifies the full graph invariant. Record already refuses
// cycle-closing edges, so this holds by construction; exports assert it.
func (t *Tracker) Acyclic() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.entities {
		if t.dependsOnLocked(id, id) {
			return false
		}
	}
	return true
}

// Orphans returns derived entities not transitively reachable from the given
// roots (the raw measurements and the initial guess). A clean solve has none.
func (t *Tracker) Orphans(rootIDs ...string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	roots := make(map[string]bool, len(rootIDs))
	for _, r := range rootIDs {
		roots[r] = true
	}

	var orphans []string
	for id := range t.entities {
		if roots[id] {
			continue
		}
		if len(t.inputs[id]) == 0 {
			orphans = append(orphans, id)
			continue
		}
		if !t.rootedLocked(id, roots, make(map[string]int)) {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// rootedLocked reports whether every derivation chain from id bottoms out in
// a root. memo: 0 unknown, 1 rooted, 2 not rooted.
func (t *Tracker) rootedLocked(id string, roots map[string]bool, memo map[string]int) bool {
	if roots[id] {
		return true
	}
	switch memo[id] {
	case 1:
		return true
	case 2:
		return false
	}
	ins := t.inputs[id]
	if len(ins) == 0 {
		memo[id] = 2
		return false
	}
	for _, in := range ins {
		if !t.rootedLocked(in, roots, memo) {
			memo[id] = 2
			return false
		}
	}
	memo[id] = 1
	return true
}

// Edges flattens the derivation graph into persistable triples.
func (t *Tracker) Edges() []domain.DerivationEdge {
	t.mu.Lock()
	defer t.mu.Unlock()

	var edges []domain.DerivationEdge
	for entity, ins := range t.inputs {
		activity := t.genBy[entity]
		for _, in := range ins {
			edges = append(edges, domain.DerivationEdge{
				Entity:   entity,
				Activity: activity,
				Input:    in,
			})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Entity != edges[j].Entity {
			return edges[i].Entity < edges[j].Entity
		}
		return edges[i].Input < edges[j].Input
	})
	return edges
}
