// Package store provides durable storage for agents and actions using SQLite.
//
// # Architecture
//
// Store is the single interface for persistence. SQLiteStore implements it on
// either SQLite driver; MockStore implements it in memory for unit tests.
//
// # Data Models
//
//   - Agent: a remote endpoint identity with its last known presence
//   - Action: one command addressed to one agent, with its lifecycle state
//   - Command: PingCommand, PurgeCommand or ShellCommand, stored in the
//     ping, purge and shell payload tables keyed by action id
//   - Result: PongResult, PurgeResult or ShellResult, stored CBOR-encoded
//     in actions.result
//
// # Lifecycle
//
// An action is created pending, moves to dispatched when sent, and ends in
// exactly one of completed, failed or timed_out:
//
//	pending -> dispatched -> completed | failed | timed_out
//	pending -> timed_out
//
// Terminal transitions are conditional updates guarded by the current state.
// The first writer wins; later writers get ErrStateConflict and the row is
// unchanged. MarkDispatched refuses with ErrAlreadyInFlight while the agent
// has another dispatched action.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Driver "sqlite" is modernc.org/sqlite (pure Go, the default); driver
// "sqlite3" is github.com/mattn/go-sqlite3 and needs cgo. The pool holds a
// single connection. Timestamps are stored as fixed-width UTC text so that
// ORDER BY created_at is chronological. The timeout column holds milliseconds;
// NULL means no deadline.
//
// # Error Handling
//
//   - ErrNotFound: requested agent or action does not exist
//   - ErrStateConflict: conditional transition lost to an earlier writer
//   - ErrAlreadyInFlight: the agent already has a dispatched action
//   - ErrDuplicateAgent: agent id already exists
//
// All methods accept context.Context for cancellation support.
package store
