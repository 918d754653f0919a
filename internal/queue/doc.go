// Package queue implements the Action Queue.
//
// Enqueue creates a pending action and returns its id immediately; it never
// waits for dispatch. NextPending serves the oldest pending action of an
// agent (FIFO by created_at, then id) from an in-memory cache that is loaded
// lazily from the store and therefore survives restarts.
//
// Every state transition goes through the queue:
//
//	MarkDispatched  pending -> dispatched
//	Complete        -> completed (agent result)
//	Fail            -> failed (agent-reported execution error)
//	Expire          -> timed_out (deadline passed)
//
// Terminal transitions are first-writer-wins: a loser gets
// store.ErrStateConflict. The winner fulfils the per-action completion
// signal returned by Done, which Wait and the dispatch loop block on.
// Outcome maps a terminal action to nil, ErrTimeout or *ExecutionError.
package queue
