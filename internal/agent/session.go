// ABOUTME: Represents one live connection of an agent as a pair of message channels.
// ABOUTME: Inbound carries result frames, outbound carries command envelopes; Done reports closure.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notssh/notssh/internal/store"
)

var (
	// ErrSuperseded closes a session replaced by a newer connection of the same agent.
	ErrSuperseded = errors.New("session superseded by a newer connection")

	// ErrSessionClosed closes a session whose transport went away.
	ErrSessionClosed = errors.New("session closed")

	// ErrShutdown closes every session when the gateway stops.
	ErrShutdown = errors.New("gateway shutting down")
)

// TransportError wraps a stream failure as a session closure cause.
func TransportError(err error) error {
	if err == nil {
		return ErrSessionClosed
	}
	return fmt.Errorf("%w: %v", ErrSessionClosed, err)
}

// State is the lifecycle state of a Session.
type State int

const (
	StateActive State = iota
	StateSuperseded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Frame is a message received from the agent. A frame with no ActionID,
// no Result and no Error is a heartbeat.
type Frame struct {
	ActionID string
	Result   store.Result
	// Error is an agent-reported execution failure.
	Error string
}

// IsHeartbeat reports whether the frame only signals liveness.
func (f Frame) IsHeartbeat() bool {
	return f.ActionID == "" && f.Result == nil && f.Error == ""
}

// Envelope is a command addressed to the agent.
type Envelope struct {
	ActionID string
	Command  store.Command
}

// Session is the live channel handle of a connected agent. It is never
// persisted.
type Session struct {
	ID          string
	AgentID     string
	Address     string
	ConnectedAt time.Time

	inbound  chan Frame
	outbound chan Envelope
	wake     chan struct{}
	done     chan struct{}

	mu    sync.Mutex
	state State
	cause error

	logger *slog.Logger
}

func newSession(agentID, address string, logger *slog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		ID:          id,
		AgentID:     agentID,
		Address:     address,
		ConnectedAt: time.Now(),
		inbound:     make(chan Frame, 16),
		outbound:    make(chan Envelope, 1),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		state:       StateActive,
		logger:      logger.With("session_id", id),
	}
}

// Deliver hands a frame read from the transport to the dispatch loop.
// It blocks until the frame is accepted or the session closes.
func (s *Session) Deliver(ctx context.Context, f Frame) error {
	select {
	case s.inbound <- f:
		return nil
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbound returns the frames received from the agent.
func (s *Session) Inbound() <-chan Frame {
	return s.inbound
}

// Send queues a command for the transport writer. It blocks until the
// envelope is accepted or the session closes.
func (s *Session) Send(ctx context.Context, e Envelope) error {
	select {
	case <-s.done:
		return s.Err()
	default:
	}
	select {
	case s.outbound <- e:
		return nil
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outbound returns the commands waiting to be written to the agent.
func (s *Session) Outbound() <-chan Envelope {
	return s.outbound
}

// Wake signals that new work may be pending. It never blocks; signals
// coalesce.
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Woken fires after Wake.
func (s *Session) Woken() <-chan struct{} {
	return s.wake
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the closure cause, or nil while the session is active.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close ends the session with the given cause. Only the first call has
// any effect. It reports whether this call closed the session.
func (s *Session) Close(cause error) bool {
	if cause == nil {
		cause = ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return false
	}
	if errors.Is(cause, ErrSuperseded) {
		s.state = StateSuperseded
	} else {
		s.state = StateClosed
	}
	s.cause = cause
	close(s.done)

	s.logger.Debug("session closed", "agent_id", s.AgentID, "state", s.state.String(), "cause", cause)
	return true
}
