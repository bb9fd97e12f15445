package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"time"
)

// HashID builds a deterministic identifier of the form "<kind>:<hash>" from
// key/value pairs. Identical inputs always produce the same identifier, so
// re-running a solve on the same data yields the same provenance node names.
func HashID(kind string, kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte(":"))
		h.Write([]byte(kv[k]))
		h.Write([]byte(","))
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Session represents one use of the software for provenance purposes. It owns
// the agent delegation stack: the bottom agent is the responsible user, and
// responsibility can be delegated to further agents (e.g. the service itself)
// and taken back.
type Session struct {
	tracker   *Tracker
	id        string
	agents    []Agent
	startedAt time.Time
	seq       int
}

// NewSession registers the user and software agents and the session activity
// on the tracker. userID identifies the person responsible for the solve;
// version is the running software version.
func NewSession(tracker *Tracker, userID, version string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("provenance: session requires a user id")
	}

	started := time.Now().UTC()
	host, _ := os.Hostname()

	user := Agent{ID: "person:" + userID, Kind: AgentPerson}
	software := Agent{
		ID:         "software:ionmix-" + version,
		Kind:       AgentSoftware,
		DelegateOf: user.ID,
	}
	if err := tracker.AddAgent(user); err != nil {
		return nil, err
	}
	if err := tracker.AddAgent(software); err != nil {
		return nil, err
	}

	sessionID := HashID("session", map[string]string{
		"user":    userID,
		"host":    host,
		"started": started.Format(time.RFC3339Nano),
	})
	if err := tracker.AddActivity(Activity{
		ID:        sessionID,
		Kind:      ActivitySession,
		Agent:     user.ID,
		StartedAt: started,
		Attrs:     map[string]string{"host": host, "version": version},
	}); err != nil {
		return nil, err
	}

	return &Session{
		tracker:   tracker,
		id:        sessionID,
		agents:    []Agent{user, software},
		startedAt: started,
	}, nil
}

func (s *Session) ID() string { return s.id }

// Agent returns the agent currently in immediate control of execution.
func (s *Session) Agent() Agent {
	return s.agents[len(s.agents)-1]
}

// PushAgent delegates responsibility to another agent. The delegate is
// registered on the tracker as acting on behalf of the current agent.
func (s *Session) PushAgent(a Agent) error {
	a.DelegateOf = s.Agent().ID
	if err := s.tracker.AddAgent(a); err != nil {
		return err
	}
	s.agents = append(s.agents, a)
	return nil
}

// PopAgent takes responsibility back from the most recent delegate.
// The user agent at the bottom of the stack cannot be popped.
func (s *Session) PopAgent() (Agent, error) {
	if len(s.agents) <= 1 {
		return Agent{}, fmt.Errorf("provenance: cannot pop the session's root agent")
	}
	top := s.agents[len(s.agents)-1]
	s.agents = s.agents[:len(s.agents)-1]
	return top, nil
}

// NewActivity registers an activity attributed to the current agent and
// returns it. The sequence number keeps identifiers unique within a session
// even for activities created in the same nanosecond.
func (s *Session) NewActivity(kind ActivityKind, attrs map[string]string) (Activity, error) {
	s.seq++
	now := time.Now().UTC()
	id := HashID(string(kind), map[string]string{
		"session": s.id,
		"seq":     fmt.Sprintf("%d", s.seq),
	})
	act := Activity{
		ID:        id,
		Kind:      kind,
		Agent:     s.Agent().ID,
		StartedAt: now,
		EndedAt:   now,
		Attrs:     attrs,
	}
	if err := s.tracker.AddActivity(act); err != nil {
		return Activity{}, err
	}
	return act, nil
}
