// Package dispatch runs one loop per live agent session.
//
// The loop keeps at most one action in flight. It takes the oldest pending
// action, marks it dispatched, hands it to the session's writer and waits
// for one of: a matching result frame, the action's deadline, or the
// action's completion signal (fired when the timeout sweeper wins). Then
// it moves on to the next pending action.
//
// Frames for any other action id are discarded. Heartbeat frames refresh
// the agent's last_online. When the session closes the loop exits and the
// in-flight action stays dispatched until its deadline; a later session of
// the same agent adopts it without sending it again.
package dispatch
