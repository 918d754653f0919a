// ABOUTME: Action Queue: per-agent FIFO of pending actions over the Action Store.
// ABOUTME: Owns every state transition and fulfils per-action completion signals.

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notssh/notssh/internal/recent"
	"github.com/notssh/notssh/internal/store"
)

// ErrTimeout is the outcome of an action that reached its deadline
// unanswered. Whether the agent ran it is unknown.
var ErrTimeout = errors.New("action timed out, outcome unknown")

// ExecutionError is the outcome of an action the agent reported it could
// not carry out.
type ExecutionError struct {
	ActionID string
	Message  string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action %s failed on agent: %s", e.ActionID, e.Message)
}

// Waker is notified when an agent has new pending work.
type Waker interface {
	Wake(agentID string)
}

// Queue is the view of pending and dispatched actions used for dispatch.
// Pending actions are cached in memory per agent, loaded lazily from the
// store, so the queue can be rebuilt from durable state after a restart.
type Queue struct {
	store  store.Store
	waker  Waker
	recent *recent.Cache
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	pending     map[string][]*store.Action // agent id -> pending, oldest first
	loaded      map[string]bool
	signals     map[string]chan struct{} // action id -> closed when terminal
	lastCreated time.Time
}

// New creates a Queue. waker may be nil.
func New(st store.Store, waker Waker, logger *slog.Logger) *Queue {
	return &Queue{
		store:   st,
		waker:   waker,
		recent:  recent.New(10*time.Minute, 4096),
		logger:  logger,
		now:     time.Now,
		pending: make(map[string][]*store.Action),
		loaded:  make(map[string]bool),
		signals: make(map[string]chan struct{}),
	}
}

// Close releases background resources.
func (q *Queue) Close() {
	q.recent.Close()
}

// nextCreatedAt returns a strictly increasing timestamp so FIFO order
// matches enqueue order even within one clock tick. Must hold mu.
func (q *Queue) nextCreatedAt() time.Time {
	t := q.now().UTC()
	if !t.After(q.lastCreated) {
		t = q.lastCreated.Add(time.Nanosecond)
	}
	q.lastCreated = t
	return t
}

// Enqueue creates a pending action for agentID and returns its id without
// waiting for dispatch. A timeout of zero means no deadline.
func (q *Queue) Enqueue(ctx context.Context, agentID string, cmd store.Command, timeout time.Duration) (string, error) {
	if cmd == nil {
		return "", fmt.Errorf("enqueue: nil command")
	}
	if timeout < 0 {
		return "", fmt.Errorf("enqueue: negative timeout %v", timeout)
	}
	if _, err := q.store.GetAgent(ctx, agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("agent %s: %w", agentID, store.ErrNotFound)
		}
		return "", fmt.Errorf("loading agent: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	q.mu.Lock()
	action := &store.Action{
		ID:        id.String(),
		AgentID:   agentID,
		CreatedAt: q.nextCreatedAt(),
		Timeout:   timeout,
		Kind:      cmd.Kind(),
		State:     store.StatePending,
	}
	if err := q.store.CreateAction(ctx, action, cmd); err != nil {
		q.mu.Unlock()
		return "", fmt.Errorf("creating action: %w", err)
	}
	if q.loaded[agentID] {
		q.pending[agentID] = append(q.pending[agentID], action)
	}
	q.mu.Unlock()

	q.logger.Debug("action enqueued",
		"action_id", action.ID,
		"agent_id", agentID,
		"kind", action.Kind,
		"timeout", timeout,
	)

	if q.waker != nil {
		q.waker.Wake(agentID)
	}
	return action.ID, nil
}

// NextPending returns the oldest pending action for agentID, or nil when
// there is none.
func (q *Queue) NextPending(ctx context.Context, agentID string) (*store.Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.loaded[agentID] {
		actions, err := q.store.ListPendingActions(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("loading pending actions: %w", err)
		}
		q.pending[agentID] = actions
		q.loaded[agentID] = true
	}

	list := q.pending[agentID]
	if len(list) == 0 {
		return nil, nil
	}
	head := *list[0]
	return &head, nil
}

// InFlight returns the agent's dispatched action, or nil when there is none.
func (q *Queue) InFlight(ctx context.Context, agentID string) (*store.Action, error) {
	a, err := q.store.GetDispatchedAction(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading dispatched action: %w", err)
	}
	return a, nil
}

// Command loads the payload of an action.
func (q *Queue) Command(ctx context.Context, a *store.Action) (store.Command, error) {
	return q.store.GetCommand(ctx, a.ID, a.Kind)
}

// MarkDispatched transitions actionID from pending to dispatched and
// stamps started_at.
func (q *Queue) MarkDispatched(ctx context.Context, actionID string) error {
	err := q.store.MarkDispatched(ctx, actionID, q.now())
	switch {
	case err == nil, errors.Is(err, store.ErrStateConflict), errors.Is(err, store.ErrNotFound):
		// Whatever the outcome the action is no longer pending
		q.mu.Lock()
		q.dropPendingLocked(actionID)
		q.mu.Unlock()
	}
	if err != nil {
		return err
	}
	q.logger.Debug("action dispatched", "action_id", actionID)
	return nil
}

// Complete records the agent's result.
func (q *Queue) Complete(ctx context.Context, actionID string, result store.Result) error {
	return q.resolve(ctx, actionID, store.StateCompleted, result, "")
}

// Fail records an agent-reported execution error.
func (q *Queue) Fail(ctx context.Context, actionID, message string) error {
	return q.resolve(ctx, actionID, store.StateFailed, nil, message)
}

// Expire times the action out. Works on pending and dispatched actions.
func (q *Queue) Expire(ctx context.Context, actionID string) error {
	return q.resolve(ctx, actionID, store.StateTimedOut, nil, "")
}

// resolve performs a terminal transition. The first writer wins; later
// writers get store.ErrStateConflict and change nothing.
func (q *Queue) resolve(ctx context.Context, actionID string, state store.ActionState, result store.Result, errMsg string) error {
	err := q.store.ResolveAction(ctx, actionID, state, result, errMsg, q.now())
	if err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			q.logger.Debug("terminal write discarded", "action_id", actionID, "state", state)
		}
		return err
	}

	q.recent.Record(actionID, state)

	q.mu.Lock()
	q.dropPendingLocked(actionID)
	q.fireLocked(actionID)
	q.mu.Unlock()

	q.logger.Info("action resolved", "action_id", actionID, "state", state)
	return nil
}

// RecentlyResolved reports the terminal state of an action resolved a
// short while ago.
func (q *Queue) RecentlyResolved(actionID string) (store.ActionState, bool) {
	return q.recent.Lookup(actionID)
}

// Done returns a channel closed once actionID is terminal. If the action
// is already terminal the channel is closed on return.
func (q *Queue) Done(ctx context.Context, actionID string) (<-chan struct{}, error) {
	q.mu.Lock()
	ch, ok := q.signals[actionID]
	if !ok {
		ch = make(chan struct{})
		q.signals[actionID] = ch
	}
	q.mu.Unlock()

	// Re-read after registering so a transition that landed before the
	// registration is not missed.
	a, err := q.store.GetAction(ctx, actionID)
	if err != nil {
		q.mu.Lock()
		if q.signals[actionID] == ch {
			delete(q.signals, actionID)
		}
		q.mu.Unlock()
		return nil, err
	}
	if a.State.Terminal() {
		q.mu.Lock()
		q.fireLocked(actionID)
		q.mu.Unlock()
	}
	return ch, nil
}

// Wait blocks until actionID is terminal or ctx ends, and returns the
// terminal action.
func (q *Queue) Wait(ctx context.Context, actionID string) (*store.Action, error) {
	done, err := q.Done(ctx, actionID)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return q.store.GetAction(ctx, actionID)
}

// Outcome maps a terminal action to nil (completed), ErrTimeout or an
// *ExecutionError.
func Outcome(a *store.Action) error {
	switch a.State {
	case store.StateCompleted:
		return nil
	case store.StateFailed:
		return &ExecutionError{ActionID: a.ID, Message: a.Error}
	case store.StateTimedOut:
		return ErrTimeout
	}
	return fmt.Errorf("action %s is not terminal (%s)", a.ID, a.State)
}

// dropPendingLocked removes actionID from whichever agent cache holds it.
func (q *Queue) dropPendingLocked(actionID string) {
	for agentID, list := range q.pending {
		for i, a := range list {
			if a.ID == actionID {
				q.pending[agentID] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (q *Queue) fireLocked(actionID string) {
	if ch, ok := q.signals[actionID]; ok {
		close(ch)
		delete(q.signals, actionID)
	}
}
