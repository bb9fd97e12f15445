package provenance

import (
	"fmt"
	"sync"
	"testing"
)

func addEntity(t *testing.T, tr *Tracker, id string, kind EntityKind) {
	t.Helper()
	if err := tr.AddEntity(Entity{ID: id, Kind: kind}); err != nil {
		t.Fatalf("AddEntity(%s): %v", id, err)
	}
}

func addActivity(t *testing.T, tr *Tracker, id string, kind ActivityKind) {
	t.Helper()
	if err := tr.AddActivity(Activity{ID: id, Kind: kind}); err != nil {
		t.Fatalf("AddActivity(%s): %v", id, err)
	}
}

func TestTracker_RecordAndEdges(t *testing.T) {
	tr := NewTracker()
	addEntity(t, tr, "m1", EntityMeasurement)
	addEntity(t, tr, "s0", EntityState)
	addEntity(t, tr, "s1", EntityState)
	addActivity(t, tr, "iter1", ActivityIteration)

	if err := tr.Record("s1", "iter1", []string{"s0", "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edges := tr.Edges()
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	for _, e := range edges {
		if e.Entity != "s1" || e.Activity != "iter1" {
			t.Errorf("unexpected edge %+v", e)
		}
	}
}

func TestTracker_RecordUnknownNodes(t *testing.T) {
	tr := NewTracker()
	addEntity(t, tr, "s0", EntityState)
	addActivity(t, tr, "iter1", ActivityIteration)

	if err := tr.Record("missing", "iter1", []string{"s0"}); err == nil {
		t.Error("expected error for unknown entity")
	}
	if err := tr.Record("s0", "missing", nil); err == nil {
		t.Error("expected error for unknown activity")
	}
	addEntity(t, tr, "s1", EntityState)
	if err := tr.Record("s1", "iter1", []string{"missing"}); err == nil {
		t.Error("expected error for unknown input")
	}
}

func TestTracker_RejectsCycles(t *testing.T) {
	tr := NewTracker()
	addEntity(t, tr, "a", EntityState)
	addEntity(t, tr, "b", EntityState)
	addEntity(t, tr, "c", EntityState)
	addActivity(t, tr, "act1", ActivityIteration)
	addActivity(t, tr, "act2", ActivityIteration)
	addActivity(t, tr, "act3", ActivityIteration)

	if err := tr.Record("b", "act1", []string{"a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Record("c", "act2", []string{"b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a derived from c would close a -> b -> c -> a.
	if err := tr.Record("a", "act3", []string{"c"}); err == nil {
		t.Error("expected cycle rejection")
	}
	// Self-derivation is the degenerate cycle.
	if err := tr.Record("a", "act3", []string{"a"}); err == nil {
		t.Error("expected self-cycle rejection")
	}

	if !tr.Acyclic() {
		t.Error("graph should remain acyclic after rejected records")
	}
}

func TestTracker_Orphans(t *testing.T) {
	tr := NewTracker()
	addEntity(t, tr, "m1", EntityMeasurement)
	addEntity(t, tr, "s0", EntityState)
	addEntity(t, tr, "s1", EntityState)
	addEntity(t, tr, "stray", EntityResidual)
	addActivity(t, tr, "iter1", ActivityIteration)

	if err := tr.Record("s1", "iter1", []string{"s0", "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orphans := tr.Orphans("m1", "s0")
	if len(orphans) != 1 || orphans[0] != "stray" {
		t.Errorf("Orphans = %v, want [stray]", orphans)
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker()
	addEntity(t, tr, "s0", EntityState)
	addActivity(t, tr, "asm", ActivityAssembly)

	const n = 64
	for i := 0; i < n; i++ {
		addEntity(t, tr, fmt.Sprintf("r%d", i), EntityResidual)
	}

	// Sibling records within one iteration may land in any order.
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tr.Record(fmt.Sprintf("r%d", i), "asm", []string{"s0"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("record %d: %v", i, err)
		}
	}
	if got := len(tr.Edges()); got != n {
		t.Errorf("got %d edges, want %d", got, n)
	}
	if !tr.Acyclic() {
		t.Error("graph should be acyclic")
	}
	if orphans := tr.Orphans("s0"); len(orphans) != 0 {
		t.Errorf("unexpected orphans: %v", orphans)
	}
}

func TestTracker_Export(t *testing.T) {
	tr := NewTracker()
	if err := tr.AddAgent(Agent{ID: "person:ms", Kind: AgentPerson}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addEntity(t, tr, "m1", EntityMeasurement)
	addEntity(t, tr, "s0", EntityState)
	addEntity(t, tr, "s1", EntityState)
	if err := tr.AddActivity(Activity{ID: "iter1", Kind: ActivityIteration, Agent: "person:ms"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Record("s1", "iter1", []string{"s0", "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := tr.Export()
	if doc.Namespace != DefaultNamespace {
		t.Errorf("namespace = %s", doc.Namespace)
	}
	if len(doc.Entities) != 3 || len(doc.Activities) != 1 || len(doc.Agents) != 1 {
		t.Errorf("unexpected node counts: %d entities, %d activities, %d agents",
			len(doc.Entities), len(doc.Activities), len(doc.Agents))
	}
	if len(doc.Generations) != 1 || doc.Generations[0].Entity != "s1" {
		t.Errorf("unexpected generations: %+v", doc.Generations)
	}
	if len(doc.Derivations) != 2 {
		t.Errorf("got %d derivations, want 2", len(doc.Derivations))
	}
	if len(doc.Associations) != 1 || doc.Associations[0].Agent != "person:ms" {
		t.Errorf("unexpected associations: %+v", doc.Associations)
	}
}
