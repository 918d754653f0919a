// ABOUTME: Session Registry: at most one live session per agent id.
// ABOUTME: Registering an id that already has a session supersedes and closes the old one.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/notssh/notssh/internal/store"
)

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// Registry tracks the live session of every connected agent and mirrors
// presence into the store.
type Registry struct {
	store    store.Store
	sessions map[string]*Session
	mu       sync.Mutex
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry creates a new Registry instance.
func NewRegistry(st store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:    st,
		sessions: make(map[string]*Session),
		logger:   logger,
		now:      time.Now,
	}
}

// Register installs a new session for agentID. Any session already live
// for the id is closed with ErrSuperseded first. The agent is marked
// connected with last_online=now.
//
// The lock is held across the presence write so that two sessions are
// never installed at once and presence updates land in order.
func (r *Registry) Register(ctx context.Context, agentID, address string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetAgent(ctx, agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("loading agent: %w", err)
	}

	if old, exists := r.sessions[agentID]; exists {
		old.Close(ErrSuperseded)
		delete(r.sessions, agentID)
		r.logger.Warn("session superseded",
			"agent_id", agentID,
			"old_session", old.ID,
			"old_address", old.Address,
			"new_address", address,
		)
	}

	if err := r.store.SetAgentPresence(ctx, agentID, true, address, r.now()); err != nil {
		return nil, fmt.Errorf("recording agent presence: %w", err)
	}

	session := newSession(agentID, address, r.logger)
	r.sessions[agentID] = session

	r.logger.Info("=== AGENT CONNECTED ===",
		"agent_id", agentID,
		"address", address,
		"session_id", session.ID,
		"total_agents", len(r.sessions),
	)
	return session, nil
}

// Lookup returns the live session for agentID.
func (r *Registry) Lookup(agentID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[agentID]
	return s, ok
}

// List returns every live session ordered by agent id.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Unregister closes the session with cause and, if it is still the
// installed session for its agent, removes it and marks the agent
// disconnected. A superseded session never evicts its successor.
// Dispatched actions are left for the timeout sweeper.
func (r *Registry) Unregister(ctx context.Context, session *Session, cause error) {
	session.Close(cause)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[session.AgentID]
	if !exists || current != session {
		return
	}
	delete(r.sessions, session.AgentID)

	if err := r.store.SetAgentPresence(ctx, session.AgentID, false, "", r.now()); err != nil {
		r.logger.Error("failed to record disconnect", "agent_id", session.AgentID, "error", err)
	}

	r.logger.Info("=== AGENT DISCONNECTED ===",
		"agent_id", session.AgentID,
		"session_id", session.ID,
		"cause", session.Err(),
		"total_agents", len(r.sessions),
	)
}

// Touch records a liveness frame from the agent.
func (r *Registry) Touch(ctx context.Context, agentID string) error {
	if err := r.store.TouchAgent(ctx, agentID, r.now()); err != nil {
		return fmt.Errorf("touching agent: %w", err)
	}
	return nil
}

// Wake nudges the agent's dispatch loop, if the agent is connected.
func (r *Registry) Wake(agentID string) {
	if s, ok := r.Lookup(agentID); ok {
		s.Wake()
	}
}

// CloseAll closes every session with ErrShutdown. Durable state is not
// touched.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		s.Close(ErrShutdown)
		delete(r.sessions, id)
	}
	r.logger.Info("closed all agent sessions")
}
