// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// It enforces the same conditional transitions as SQLiteStore.
type MockStore struct {
	mu       sync.RWMutex
	agents   map[string]*Agent  // keyed by agent ID
	actions  map[string]*Action // keyed by action ID
	commands map[string]Command // keyed by action ID
	closed   bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents:   make(map[string]*Agent),
		actions:  make(map[string]*Action),
		commands: make(map[string]Command),
	}
}

func copyAgent(a *Agent) *Agent {
	c := *a
	return &c
}

func copyAction(a *Action) *Action {
	c := *a
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	return &c
}

// CreateAgent stores a new agent.
func (m *MockStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.ID]; ok {
		return ErrDuplicateAgent
	}
	m.agents[agent.ID] = copyAgent(agent)
	return nil
}

// GetAgent retrieves an agent by ID.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(a), nil
}

// ListAgents returns all agents ordered by ID.
func (m *MockStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, copyAgent(a))
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// SetAgentPresence records a connect or disconnect.
func (m *MockStore) SetAgentPresence(ctx context.Context, id string, connected bool, address string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.Connected = connected
	a.Address = address
	a.LastOnline = at.UTC()
	return nil
}

// TouchAgent refreshes last_online.
func (m *MockStore) TouchAgent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.LastOnline = at.UTC()
	return nil
}

// DisconnectAllAgents marks every agent disconnected.
func (m *MockStore) DisconnectAllAgents(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.agents {
		if a.Connected {
			a.Connected = false
			a.Address = ""
			a.LastOnline = at.UTC()
		}
	}
	return nil
}

// CreateAction stores an action and its command.
func (m *MockStore) CreateAction(ctx context.Context, action *Action, cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("creating action: nil command")
	}
	if cmd.Kind() != action.Kind {
		return fmt.Errorf("creating action: command kind %q does not match action kind %q", cmd.Kind(), action.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[action.AgentID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.actions[action.ID]; ok {
		return fmt.Errorf("inserting action %s: duplicate id", action.ID)
	}
	m.actions[action.ID] = copyAction(action)
	m.commands[action.ID] = cmd
	return nil
}

// GetAction retrieves an action by ID.
func (m *MockStore) GetAction(ctx context.Context, id string) (*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAction(a), nil
}

// GetCommand retrieves the command stored with an action.
func (m *MockStore) GetCommand(ctx context.Context, id string, kind CommandKind) (Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cmd, ok := m.commands[id]
	if !ok || cmd.Kind() != kind {
		return nil, ErrNotFound
	}
	return cmd, nil
}

func (m *MockStore) sortedActions(match func(*Action) bool) []*Action {
	var out []*Action
	for _, a := range m.actions {
		if match(a) {
			out = append(out, copyAction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListPendingActions returns the agent's pending actions, oldest first.
func (m *MockStore) ListPendingActions(ctx context.Context, agentID string) ([]*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedActions(func(a *Action) bool {
		return a.AgentID == agentID && a.State == StatePending
	}), nil
}

// GetDispatchedAction returns the agent's in-flight action.
func (m *MockStore) GetDispatchedAction(ctx context.Context, agentID string) (*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.actions {
		if a.AgentID == agentID && a.State == StateDispatched {
			return copyAction(a), nil
		}
	}
	return nil, ErrNotFound
}

// ListOpenActions returns every non-terminal action with a timeout.
func (m *MockStore) ListOpenActions(ctx context.Context) ([]*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedActions(func(a *Action) bool {
		return !a.State.Terminal() && a.Timeout > 0
	}), nil
}

// MarkDispatched transitions pending -> dispatched.
func (m *MockStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actions[id]
	if !ok {
		return ErrNotFound
	}
	if a.State != StatePending {
		return ErrStateConflict
	}
	for _, other := range m.actions {
		if other.AgentID == a.AgentID && other.State == StateDispatched {
			return ErrAlreadyInFlight
		}
	}
	t := at.UTC()
	a.State = StateDispatched
	a.StartedAt = &t
	return nil
}

// ResolveAction performs the terminal transition of an action.
func (m *MockStore) ResolveAction(ctx context.Context, id string, state ActionState, result Result, errMsg string, at time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("resolving action: %q is not a terminal state", state)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actions[id]
	if !ok {
		return ErrNotFound
	}
	if a.State.Terminal() {
		return ErrStateConflict
	}
	if a.StartedAt == nil {
		t := at.UTC()
		a.StartedAt = &t
	}
	a.State = state
	a.Result = result
	a.Error = errMsg
	return nil
}

// DeleteResolvedActions removes terminal actions created before the cutoff.
func (m *MockStore) DeleteResolvedActions(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, a := range m.actions {
		if a.State.Terminal() && a.CreatedAt.Before(before) {
			delete(m.actions, id)
			delete(m.commands, id)
			n++
		}
	}
	return n, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
