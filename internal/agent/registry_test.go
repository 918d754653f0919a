// ABOUTME: Tests for the Session Registry and Session lifecycle.
// ABOUTME: Validates supersede semantics, presence mirroring and channel closure.

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notssh/notssh/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, agentIDs ...string) (*Registry, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	for _, id := range agentIDs {
		require.NoError(t, st.CreateAgent(context.Background(), &store.Agent{ID: id, LastOnline: time.Now()}))
	}
	return NewRegistry(st, testLogger()), st
}

func TestRegistry_RegisterMarksConnected(t *testing.T) {
	reg, st := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	s, err := reg.Register(ctx, "agent-1", "10.0.0.1:4000")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", s.AgentID)
	assert.Equal(t, StateActive, s.State())
	assert.NoError(t, s.Err())

	agent, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, agent.Connected)
	assert.Equal(t, "10.0.0.1:4000", agent.Address)

	got, ok := reg.Lookup("agent-1")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_RegisterUnknownAgent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_RegisterSupersedesExisting(t *testing.T) {
	reg, _ := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	first, err := reg.Register(ctx, "agent-1", "10.0.0.1:4000")
	require.NoError(t, err)

	second, err := reg.Register(ctx, "agent-1", "10.0.0.2:4000")
	require.NoError(t, err)

	select {
	case <-first.Done():
	default:
		t.Fatal("superseded session was not closed")
	}
	assert.Equal(t, StateSuperseded, first.State())
	assert.ErrorIs(t, first.Err(), ErrSuperseded)

	got, ok := reg.Lookup("agent-1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_SupersededUnregisterKeepsSuccessor(t *testing.T) {
	reg, st := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	first, err := reg.Register(ctx, "agent-1", "old")
	require.NoError(t, err)
	second, err := reg.Register(ctx, "agent-1", "new")
	require.NoError(t, err)

	// The old stream's handler exits late and unregisters its own session
	reg.Unregister(ctx, first, TransportError(io.EOF))

	got, ok := reg.Lookup("agent-1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, StateActive, second.State())

	agent, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, agent.Connected, "successor's presence must not be cleared")
	assert.Equal(t, "new", agent.Address)

	// Cause of the first close sticks
	assert.ErrorIs(t, first.Err(), ErrSuperseded)
}

func TestRegistry_UnregisterMarksDisconnected(t *testing.T) {
	reg, st := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	s, err := reg.Register(ctx, "agent-1", "10.0.0.1:4000")
	require.NoError(t, err)

	reg.Unregister(ctx, s, TransportError(errors.New("connection reset")))

	_, ok := reg.Lookup("agent-1")
	assert.False(t, ok)
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Err(), ErrSessionClosed)
	assert.Contains(t, s.Err().Error(), "connection reset")

	agent, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.False(t, agent.Connected)
	assert.Empty(t, agent.Address, "disconnected agents keep no address")
}

func TestRegistry_UnregisterLeavesDispatchedAction(t *testing.T) {
	reg, st := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	require.NoError(t, st.CreateAction(ctx, &store.Action{
		ID: "act", AgentID: "agent-1", CreatedAt: time.Now(), Timeout: time.Minute,
		Kind: store.KindPing, State: store.StatePending,
	}, store.PingCommand{Data: "ping"}))
	require.NoError(t, st.MarkDispatched(ctx, "act", time.Now()))

	s, err := reg.Register(ctx, "agent-1", "")
	require.NoError(t, err)
	reg.Unregister(ctx, s, nil)

	a, err := st.GetAction(ctx, "act")
	require.NoError(t, err)
	assert.Equal(t, store.StateDispatched, a.State)
}

func TestRegistry_CloseAll(t *testing.T) {
	reg, st := newTestRegistry(t, "agent-1", "agent-2")
	ctx := context.Background()

	s1, err := reg.Register(ctx, "agent-1", "")
	require.NoError(t, err)
	s2, err := reg.Register(ctx, "agent-2", "")
	require.NoError(t, err)

	reg.CloseAll()

	assert.Equal(t, 0, reg.Count())
	assert.ErrorIs(t, s1.Err(), ErrShutdown)
	assert.ErrorIs(t, s2.Err(), ErrShutdown)

	// Late unregister from the stream handler is a no-op
	reg.Unregister(ctx, s1, nil)
	agent, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, agent.Connected, "CloseAll leaves durable state alone")
}

func TestRegistry_ListOrdered(t *testing.T) {
	reg, _ := newTestRegistry(t, "b", "a", "c")
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := reg.Register(ctx, id, "")
		require.NoError(t, err)
	}

	sessions := reg.List()
	require.Len(t, sessions, 3)
	assert.Equal(t, "a", sessions[0].AgentID)
	assert.Equal(t, "b", sessions[1].AgentID)
	assert.Equal(t, "c", sessions[2].AgentID)
}

func TestRegistry_TouchAndWake(t *testing.T) {
	reg, st := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return fixed }

	s, err := reg.Register(ctx, "agent-1", "")
	require.NoError(t, err)

	require.NoError(t, reg.Touch(ctx, "agent-1"))
	agent, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, agent.LastOnline.Equal(fixed))

	reg.Wake("agent-1")
	reg.Wake("agent-1") // coalesces
	reg.Wake("nobody")

	select {
	case <-s.Woken():
	default:
		t.Fatal("expected wake signal")
	}
	select {
	case <-s.Woken():
		t.Fatal("wake signals should coalesce")
	default:
	}
}

func TestRegistry_ConcurrentRegisterSingleWinner(t *testing.T) {
	reg, _ := newTestRegistry(t, "agent-1")
	ctx := context.Background()

	const n = 10
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Register(ctx, "agent-1", "")
			if err == nil {
				sessions[i] = s
			}
		}(i)
	}
	wg.Wait()

	active := 0
	for _, s := range sessions {
		require.NotNil(t, s)
		if s.State() == StateActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "exactly one session stays installed")
	assert.Equal(t, 1, reg.Count())
}

func TestSession_SendAndDeliver(t *testing.T) {
	s := newSession("agent-1", "", testLogger())
	ctx := context.Background()

	env := Envelope{ActionID: "act", Command: store.PingCommand{Data: "ping"}}
	require.NoError(t, s.Send(ctx, env))
	assert.Equal(t, env, <-s.Outbound())

	frame := Frame{ActionID: "act", Result: store.PongResult{Data: "ping"}}
	require.NoError(t, s.Deliver(ctx, frame))
	assert.Equal(t, frame, <-s.Inbound())

	assert.True(t, Frame{}.IsHeartbeat())
	assert.False(t, frame.IsHeartbeat())
	assert.False(t, Frame{ActionID: "x", Error: "boom"}.IsHeartbeat())
}

func TestSession_SendAfterCloseFails(t *testing.T) {
	s := newSession("agent-1", "", testLogger())

	assert.True(t, s.Close(ErrShutdown))
	assert.False(t, s.Close(ErrSuperseded), "second close has no effect")
	assert.Equal(t, StateClosed, s.State())

	err := s.Send(context.Background(), Envelope{ActionID: "act"})
	assert.ErrorIs(t, err, ErrShutdown)

	err = s.Deliver(context.Background(), Frame{})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestSession_SendBlocksUntilClosed(t *testing.T) {
	s := newSession("agent-1", "", testLogger())
	ctx := context.Background()

	// Fill the outbound buffer
	require.NoError(t, s.Send(ctx, Envelope{ActionID: "1"}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Send(ctx, Envelope{ActionID: "2"})
	}()

	select {
	case err := <-errCh:
		t.Fatalf("Send returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.Close(TransportError(io.ErrClosedPipe))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock on close")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "superseded", StateSuperseded.String())
	assert.Equal(t, "closed", StateClosed.String())
}
