// ABOUTME: Tests for the per-session dispatch loop.
// ABOUTME: Drives a session from the agent side through its outbound and inbound channels.

package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notssh/notssh/internal/agent"
	"github.com/notssh/notssh/internal/queue"
	"github.com/notssh/notssh/internal/store"
)

const agentID = "agent-1"

type harness struct {
	t        *testing.T
	store    store.Store
	registry *agent.Registry
	queue    *queue.Queue
	session  *agent.Session
	errc     chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMockStore()
	require.NoError(t, st.CreateAgent(context.Background(), &store.Agent{ID: agentID, LastOnline: time.Now()}))

	reg := agent.NewRegistry(st, logger)
	q := queue.New(st, reg, logger)
	t.Cleanup(q.Close)

	return &harness{t: t, store: st, registry: reg, queue: q}
}

// connect registers a session and starts its loop.
func (h *harness) connect() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(cancel)

	session, err := h.registry.Register(ctx, agentID, "127.0.0.1:5555")
	require.NoError(h.t, err)
	h.session = session

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop := New(session, h.queue, h.registry, logger)
	errc := make(chan error, 1)
	h.errc = errc
	go func() { errc <- loop.Run(ctx) }()
}

func (h *harness) enqueue(cmd store.Command, timeout time.Duration) string {
	h.t.Helper()
	id, err := h.queue.Enqueue(context.Background(), agentID, cmd, timeout)
	require.NoError(h.t, err)
	return id
}

func (h *harness) receive() agent.Envelope {
	h.t.Helper()
	select {
	case e := <-h.session.Outbound():
		return e
	case <-time.After(2 * time.Second):
		h.t.Fatal("no command dispatched")
	}
	return agent.Envelope{}
}

func (h *harness) expectNothing() {
	h.t.Helper()
	select {
	case e := <-h.session.Outbound():
		h.t.Fatalf("unexpected command dispatched: %s", e.ActionID)
	case <-time.After(100 * time.Millisecond):
	}
}

func (h *harness) deliver(f agent.Frame) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(h.t, h.session.Deliver(ctx, f))
}

func (h *harness) wait(id string) *store.Action {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a, err := h.queue.Wait(ctx, id)
	require.NoError(h.t, err)
	return a
}

func TestLoop_DispatchAndComplete(t *testing.T) {
	h := newHarness(t)
	h.connect()

	id := h.enqueue(store.PingCommand{Data: "hello"}, time.Minute)
	env := h.receive()
	assert.Equal(t, id, env.ActionID)
	assert.Equal(t, store.PingCommand{Data: "hello"}, env.Command)

	h.deliver(agent.Frame{ActionID: id, Result: store.PongResult{Data: "hello"}})

	a := h.wait(id)
	assert.Equal(t, store.StateCompleted, a.State)
	assert.Equal(t, store.PongResult{Data: "hello"}, a.Result)
}

func TestLoop_DispatchesPendingOnConnect(t *testing.T) {
	h := newHarness(t)
	id := h.enqueue(store.PurgeCommand{}, time.Minute)

	h.connect()
	env := h.receive()
	assert.Equal(t, id, env.ActionID)
	assert.Equal(t, store.PurgeCommand{}, env.Command)
}

func TestLoop_OneActionInFlight(t *testing.T) {
	h := newHarness(t)
	h.connect()

	first := h.enqueue(store.PingCommand{Data: "1"}, time.Minute)
	second := h.enqueue(store.PingCommand{Data: "2"}, time.Minute)

	env := h.receive()
	require.Equal(t, first, env.ActionID)
	h.expectNothing()

	h.deliver(agent.Frame{ActionID: first, Result: store.PongResult{Data: "1"}})

	env = h.receive()
	assert.Equal(t, second, env.ActionID)
}

func TestLoop_ExecutionError(t *testing.T) {
	h := newHarness(t)
	h.connect()

	id := h.enqueue(store.ShellCommand{Cmd: "/nonexistent"}, time.Minute)
	h.receive()
	h.deliver(agent.Frame{ActionID: id, Error: "exec: no such file or directory"})

	a := h.wait(id)
	assert.Equal(t, store.StateFailed, a.State)
	assert.Equal(t, "exec: no such file or directory", a.Error)
}

func TestLoop_MismatchedResultKindFails(t *testing.T) {
	h := newHarness(t)
	h.connect()

	id := h.enqueue(store.PingCommand{Data: "hello"}, time.Minute)
	h.receive()
	h.deliver(agent.Frame{ActionID: id, Result: store.ShellResult{Stdout: []byte("x")}})

	a := h.wait(id)
	assert.Equal(t, store.StateFailed, a.State)
	assert.Nil(t, a.Result)
	assert.Contains(t, a.Error, "result kind mismatch")

	// The slot is free again
	next := h.enqueue(store.PingCommand{Data: "next"}, time.Minute)
	assert.Equal(t, next, h.receive().ActionID)
}

func TestLoop_TimeoutThenLateResult(t *testing.T) {
	h := newHarness(t)
	h.connect()

	slow := h.enqueue(store.ShellCommand{Cmd: "sleep", Args: []string{"10"}}, 50*time.Millisecond)
	next := h.enqueue(store.PingCommand{Data: "after"}, time.Minute)

	env := h.receive()
	require.Equal(t, slow, env.ActionID)

	a := h.wait(slow)
	assert.Equal(t, store.StateTimedOut, a.State)

	// The timed out slot frees the agent for its next action
	env = h.receive()
	assert.Equal(t, next, env.ActionID)

	// A result for the timed out action does not change it
	h.deliver(agent.Frame{ActionID: slow, Result: store.ShellResult{Code: 0}})
	h.deliver(agent.Frame{ActionID: next, Result: store.PongResult{Data: "after"}})
	h.wait(next)

	a, err := h.store.GetAction(context.Background(), slow)
	require.NoError(t, err)
	assert.Equal(t, store.StateTimedOut, a.State)
	assert.Nil(t, a.Result)
}

func TestLoop_ResolvedElsewhereFreesSlot(t *testing.T) {
	h := newHarness(t)
	h.connect()

	first := h.enqueue(store.PingCommand{Data: "1"}, time.Hour)
	second := h.enqueue(store.PingCommand{Data: "2"}, time.Hour)

	env := h.receive()
	require.Equal(t, first, env.ActionID)

	// As the timeout sweeper would
	require.NoError(t, h.queue.Expire(context.Background(), first))

	env = h.receive()
	assert.Equal(t, second, env.ActionID)
}

func TestLoop_DiscardsUnexpectedFrames(t *testing.T) {
	h := newHarness(t)
	h.connect()

	id := h.enqueue(store.PingCommand{Data: "x"}, time.Minute)
	h.receive()

	h.deliver(agent.Frame{ActionID: "not-a-real-action", Result: store.PongResult{Data: "x"}})
	h.deliver(agent.Frame{ActionID: id})
	h.deliver(agent.Frame{Result: store.PongResult{Data: "x"}})

	a, err := h.store.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StateDispatched, a.State)

	h.deliver(agent.Frame{ActionID: id, Result: store.PongResult{Data: "x"}})
	assert.Equal(t, store.StateCompleted, h.wait(id).State)
}

func TestLoop_HeartbeatTouchesAgent(t *testing.T) {
	h := newHarness(t)
	h.connect()

	before, err := h.store.GetAgent(context.Background(), agentID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	h.deliver(agent.Frame{})

	require.Eventually(t, func() bool {
		a, err := h.store.GetAgent(context.Background(), agentID)
		return err == nil && a.LastOnline.After(before.LastOnline)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoop_AdoptsDispatchedActionWithoutResending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := h.enqueue(store.ShellCommand{Cmd: "uptime"}, time.Minute)
	require.NoError(t, h.queue.MarkDispatched(ctx, stale))
	queued := h.enqueue(store.PingCommand{Data: "next"}, time.Minute)

	h.connect()
	h.expectNothing()

	// The reconnected agent reports the result of the command it was running
	h.deliver(agent.Frame{ActionID: stale, Result: store.ShellResult{Code: 0, Stdout: []byte("up\n")}})
	assert.Equal(t, store.StateCompleted, h.wait(stale).State)

	env := h.receive()
	assert.Equal(t, queued, env.ActionID)
}

func TestLoop_SessionCloseLeavesActionDispatched(t *testing.T) {
	h := newHarness(t)
	h.connect()

	id := h.enqueue(store.PingCommand{Data: "x"}, time.Minute)
	h.receive()

	h.registry.Unregister(context.Background(), h.session, agent.ErrSessionClosed)

	select {
	case err := <-h.errc:
		assert.ErrorIs(t, err, agent.ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}

	a, err := h.store.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StateDispatched, a.State)
}

func TestLoop_SupersededLoopExits(t *testing.T) {
	h := newHarness(t)
	h.connect()
	oldErrc := h.errc

	h.connect()

	select {
	case err := <-oldErrc:
		assert.ErrorIs(t, err, agent.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded loop did not exit")
	}

	id := h.enqueue(store.PingCommand{Data: "x"}, time.Minute)
	env := h.receive()
	assert.Equal(t, id, env.ActionID)
}

func TestLoop_ProcessesFramesReadBeforeClose(t *testing.T) {
	h := newHarness(t)
	h.connect()

	id := h.enqueue(store.PurgeCommand{}, time.Minute)
	h.receive()

	// The agent acknowledges and hangs up straight away
	h.deliver(agent.Frame{ActionID: id, Result: store.PurgeResult{}})
	h.registry.Unregister(context.Background(), h.session, agent.ErrSessionClosed)

	select {
	case <-h.errc:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}

	a, err := h.store.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StateCompleted, a.State)
}
