// ABOUTME: Per-session dispatch loop feeding one action at a time to an agent.
// ABOUTME: Resolves the in-flight action from result frames, its deadline, or the sweeper.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notssh/notssh/internal/agent"
	"github.com/notssh/notssh/internal/queue"
	"github.com/notssh/notssh/internal/store"
)

// Toucher records agent liveness.
type Toucher interface {
	Touch(ctx context.Context, agentID string) error
}

// Loop drives a single session. It owns the session's in-flight slot: at
// most one action is dispatched to the agent at a time.
type Loop struct {
	session *agent.Session
	queue   *queue.Queue
	toucher Toucher
	logger  *slog.Logger
	now     func() time.Time

	inflight *store.Action
	done     <-chan struct{}
	timer    *time.Timer
	timerC   <-chan time.Time
}

// New creates a Loop for session.
func New(session *agent.Session, q *queue.Queue, toucher Toucher, logger *slog.Logger) *Loop {
	return &Loop{
		session: session,
		queue:   q,
		toucher: toucher,
		logger: logger.With(
			"component", "dispatch",
			"agent_id", session.AgentID,
			"session_id", session.ID,
		),
		now: time.Now,
	}
}

// Run processes the session until it closes or ctx ends. It returns the
// session's closure cause. The in-flight action is never resolved on exit;
// it is left to its deadline.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopTimer()

	if err := l.adopt(ctx); err != nil {
		return err
	}

	for {
		if l.inflight == nil {
			if err := l.dispatchNext(ctx); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.session.Done():
			l.drain(ctx)
			return l.session.Err()

		case f := <-l.session.Inbound():
			l.handleFrame(ctx, f)

		case <-l.session.Woken():

		case <-l.timerC:
			l.expire(ctx)

		case <-l.done:
			l.logger.Debug("in-flight action resolved elsewhere", "action_id", l.inflight.ID)
			l.clear()
		}
	}
}

// adopt picks up an action still dispatched from a previous session. It is
// not sent again.
func (l *Loop) adopt(ctx context.Context) error {
	a, err := l.queue.InFlight(ctx, l.session.AgentID)
	if err != nil {
		return err
	}
	if a == nil {
		return nil
	}
	l.logger.Info("adopted in-flight action from previous session", "action_id", a.ID, "kind", a.Kind)
	return l.track(ctx, a)
}

// dispatchNext sends the oldest pending action, if any.
func (l *Loop) dispatchNext(ctx context.Context) error {
	for l.inflight == nil {
		next, err := l.queue.NextPending(ctx, l.session.AgentID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		cmd, err := l.queue.Command(ctx, next)
		if err != nil {
			return fmt.Errorf("loading command %s: %w", next.ID, err)
		}

		if err := l.queue.MarkDispatched(ctx, next.ID); err != nil {
			switch {
			case errors.Is(err, store.ErrStateConflict), errors.Is(err, store.ErrNotFound):
				// Expired or pruned while pending
				continue
			case errors.Is(err, store.ErrAlreadyInFlight):
				return l.adopt(ctx)
			default:
				return err
			}
		}

		started := l.now().UTC()
		next.State = store.StateDispatched
		next.StartedAt = &started
		if err := l.track(ctx, next); err != nil {
			return err
		}

		if err := l.session.Send(ctx, agent.Envelope{ActionID: next.ID, Command: cmd}); err != nil {
			// The action stays dispatched and times out
			return err
		}
		l.logger.Debug("action sent", "action_id", next.ID, "kind", next.Kind)
	}
	return nil
}

// track installs a as the in-flight action and arms its deadline.
func (l *Loop) track(ctx context.Context, a *store.Action) error {
	done, err := l.queue.Done(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("watching action %s: %w", a.ID, err)
	}
	l.inflight = a
	l.done = done

	if deadline, ok := a.Deadline(); ok {
		wait := deadline.Sub(l.now())
		if wait < 0 {
			wait = 0
		}
		l.timer = time.NewTimer(wait)
		l.timerC = l.timer.C
	}
	return nil
}

func (l *Loop) clear() {
	l.stopTimer()
	l.inflight = nil
	l.done = nil
}

func (l *Loop) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = nil
	l.timerC = nil
}

func (l *Loop) expire(ctx context.Context) {
	id := l.inflight.ID
	err := l.queue.Expire(ctx, id)
	switch {
	case err == nil:
		l.logger.Warn("action timed out", "action_id", id)
	case errors.Is(err, store.ErrStateConflict):
	default:
		// Leave it in flight; the sweeper retries
		l.logger.Error("failed to expire action", "action_id", id, "error", err)
		l.stopTimer()
		return
	}
	l.clear()
}

// drain processes frames the transport read before the session closed,
// such as the acknowledgement an agent sends right before hanging up.
func (l *Loop) drain(ctx context.Context) {
	for {
		select {
		case f := <-l.session.Inbound():
			l.handleFrame(ctx, f)
		default:
			return
		}
	}
}

func (l *Loop) handleFrame(ctx context.Context, f agent.Frame) {
	if f.IsHeartbeat() {
		if err := l.toucher.Touch(ctx, l.session.AgentID); err != nil {
			l.logger.Error("failed to record heartbeat", "error", err)
		}
		return
	}

	if f.ActionID == "" {
		l.logger.Warn("discarding result without action id")
		return
	}

	if l.inflight == nil || f.ActionID != l.inflight.ID {
		if state, ok := l.queue.RecentlyResolved(f.ActionID); ok {
			l.logger.Info("discarding late result", "action_id", f.ActionID, "resolved_as", state)
			return
		}
		l.logger.Warn("discarding result for unexpected action", "action_id", f.ActionID)
		return
	}

	var err error
	switch {
	case f.Error != "":
		err = l.queue.Fail(ctx, f.ActionID, f.Error)
	case f.Result != nil && f.Result.Kind() != l.inflight.Kind:
		l.logger.Warn("result kind does not match action",
			"action_id", f.ActionID, "action_kind", l.inflight.Kind, "result_kind", f.Result.Kind())
		err = l.queue.Fail(ctx, f.ActionID, fmt.Sprintf("result kind mismatch: %s action answered with %s result", l.inflight.Kind, f.Result.Kind()))
	case f.Result != nil:
		err = l.queue.Complete(ctx, f.ActionID, f.Result)
	default:
		l.logger.Warn("discarding frame with action id but no result", "action_id", f.ActionID)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrStateConflict):
		l.logger.Info("discarding late result", "action_id", f.ActionID)
	default:
		l.logger.Error("failed to record result", "action_id", f.ActionID, "error", err)
		return
	}
	l.clear()
}
