// Package agent tracks the live sessions of connected notssh agents.
//
// # Registry
//
// The Registry holds at most one Session per agent id:
//
//	reg := agent.NewRegistry(store, logger)
//
// Key operations:
//
//   - Register(ctx, agentID, address): install a session, superseding any live one
//   - Lookup(agentID): the live session, if any
//   - Unregister(ctx, session, cause): close and remove a session
//   - Touch(ctx, agentID): record a liveness frame
//   - CloseAll(): close every session on shutdown
//
// Register and Unregister mirror presence into the store (connected,
// address, last_online). Unregister only removes a session that is still
// installed, so a superseded stream that exits late cannot evict the
// connection that replaced it.
//
// # Session
//
// A Session is two message channels plus a closure signal:
//
//   - Inbound: result and heartbeat frames read from the agent
//   - Outbound: command envelopes waiting to be written to the agent
//   - Woken: coalescing signal that new work is queued
//   - Done: closed when the session ends; Err reports why
//
// The gateway's transport pumps fill Inbound and drain Outbound; the
// dispatch loop consumes Inbound and fills Outbound. Closing a session
// never touches durable action state.
//
// # Closure causes
//
//   - ErrSuperseded: the agent reconnected on a new stream
//   - ErrSessionClosed: the transport failed (see TransportError)
//   - ErrShutdown: the gateway is stopping
package agent
