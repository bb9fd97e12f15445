package provenance

import (
	"sort"
	"time"
)

// DefaultNamespace qualifies exported identifiers so documents from different
// deployments can be merged downstream.
const DefaultNamespace = "ionmix"

// Document is a serialization-independent PROV-style view of a tracker:
// entities, activities and agents plus generation, derivation and association
// edges. Consumers may render it as PROV-JSON, DOT, or anything else.
type Document struct {
	Namespace    string        `json:"namespace"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Agents       []Agent       `json:"agents"`
	Entities     []Entity      `json:"entities"`
	Activities   []Activity    `json:"activities"`
	Generations  []Generation  `json:"generations"`
	Derivations  []Derivation  `json:"derivations"`
	Associations []Association `json:"associations"`
}

// Generation: entity was generated by activity.
type Generation struct {
	Entity   string `json:"entity"`
	Activity string `json:"activity"`
}

// Derivation: entity was derived from input during activity.
type Derivation struct {
	Entity   string `json:"entity"`
	Input    string `json:"input"`
	Activity string `json:"activity"`
}

// Association: activity was carried out by agent.
type Association struct {
	Activity string `json:"activity"`
	Agent    string `json:"agent"`
}

// Export snapshots the tracker into a Document. The tracker remains usable
// afterwards; exporting does not consume it.
func (t *Tracker) Export() *Document {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc := &Document{
		Namespace:   DefaultNamespace,
		GeneratedAt: time.Now().UTC(),
	}

	for _, a := range t.agents {
		doc.Agents = append(doc.Agents, a)
	}
	sort.Slice(doc.Agents, func(i, j int) bool { return doc.Agents[i].ID < doc.Agents[j].ID })

	for _, e := range t.entities {
		doc.Entities = append(doc.Entities, e)
	}
	sort.Slice(doc.Entities, func(i, j int) bool { return doc.Entities[i].ID < doc.Entities[j].ID })

	for _, a := range t.activities {
		doc.Activities = append(doc.Activities, a)
		if a.Agent != "" {
			doc.Associations = append(doc.Associations, Association{Activity: a.ID, Agent: a.Agent})
		}
	}
	sort.Slice(doc.Activities, func(i, j int) bool { return doc.Activities[i].ID < doc.Activities[j].ID })
	sort.Slice(doc.Associations, func(i, j int) bool { return doc.Associations[i].Activity < doc.Associations[j].Activity })

	for entity, activity := range t.genBy {
		doc.Generations = append(doc.Generations, Generation{Entity: entity, Activity: activity})
	}
	sort.Slice(doc.Generations, func(i, j int) bool { return doc.Generations[i].Entity < doc.Generations[j].Entity })

	for entity, ins := range t.inputs {
		activity := t.genBy[entity]
		for _, in := range ins {
			doc.Derivations = append(doc.Derivations, Derivation{Entity: entity, Input: in, Activity: activity})
		}
	}
	sort.Slice(doc.Derivations, func(i, j int) bool {
		if doc.Derivations[i].Entity != doc.Derivations[j].Entity {
			return doc.Derivations[i].Entity < doc.Derivations[j].Entity
		}
		return doc.Derivations[i].Input < doc.Derivations[j].Input
	})

	return doc
}
