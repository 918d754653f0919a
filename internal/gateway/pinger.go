// ABOUTME: Server-originated heartbeat pings for connected agents
// ABOUTME: Queues a ping per idle live session on every agents.ping_interval tick

package gateway

import (
	"context"
	"time"

	"github.com/notssh/notssh/internal/store"
)

// heartbeatPayload is the echo text of server-originated pings.
const heartbeatPayload = "ping"

// runHeartbeats pings every connected agent on each tick until ctx ends.
func (g *Gateway) runHeartbeats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.pingAgents(ctx)
		}
	}
}

// pingAgents queues a heartbeat ping for each live session that has no
// work queued or in flight. Busy agents already prove liveness through
// their results and stream heartbeats. Returns the number queued.
func (g *Gateway) pingAgents(ctx context.Context) int {
	queued := 0
	for _, s := range g.registry.List() {
		busy, err := g.agentBusy(ctx, s.AgentID)
		if err != nil {
			g.logger.Error("checking agent queue", "agent_id", s.AgentID, "error", err)
			continue
		}
		if busy {
			continue
		}

		id, err := g.queue.Enqueue(ctx, s.AgentID, store.PingCommand{Data: heartbeatPayload}, g.config.Actions.PingTimeout)
		if err != nil {
			g.logger.Error("queueing heartbeat ping", "agent_id", s.AgentID, "error", err)
			continue
		}
		g.logger.Debug("queued heartbeat ping", "agent_id", s.AgentID, "action_id", id)
		queued++
	}
	return queued
}

func (g *Gateway) agentBusy(ctx context.Context, agentID string) (bool, error) {
	next, err := g.queue.NextPending(ctx, agentID)
	if err != nil || next != nil {
		return next != nil, err
	}
	inflight, err := g.queue.InFlight(ctx, agentID)
	return inflight != nil, err
}
