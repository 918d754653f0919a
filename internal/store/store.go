// ABOUTME: Store interface and data types for notssh persistence
// ABOUTME: Defines Agent, Action, the command/result sum types and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStateConflict is returned by conditional transitions when the action is
// no longer in the state the transition requires. The write is discarded.
var ErrStateConflict = errors.New("action state conflict")

// ErrAlreadyInFlight is returned by MarkDispatched when the agent already has
// a dispatched action.
var ErrAlreadyInFlight = errors.New("agent already has an action in flight")

// ErrDuplicateAgent is returned when creating an agent whose id exists
var ErrDuplicateAgent = errors.New("agent already exists")

// Agent is a remote endpoint identity. Agents are never deleted.
type Agent struct {
	ID         string
	Address    string
	Connected  bool
	LastOnline time.Time
}

// ActionState is the lifecycle state of an Action
type ActionState string

const (
	StatePending    ActionState = "pending"
	StateDispatched ActionState = "dispatched"
	StateCompleted  ActionState = "completed"
	StateFailed     ActionState = "failed"
	StateTimedOut   ActionState = "timed_out"
)

// Terminal reports whether no further transition is possible from s.
func (s ActionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// CommandKind discriminates the command an action carries
type CommandKind string

const (
	KindPing  CommandKind = "ping"
	KindPurge CommandKind = "purge"
	KindShell CommandKind = "shell"
)

// Command is one of PingCommand, PurgeCommand or ShellCommand.
type Command interface {
	Kind() CommandKind
}

// PingCommand asks the agent to echo Data.
type PingCommand struct {
	Data string
}

// PurgeCommand asks the agent to remove itself.
type PurgeCommand struct{}

// ShellCommand asks the agent to run Cmd with Args, feeding Stdin.
type ShellCommand struct {
	Cmd   string
	Args  []string
	Stdin []byte
}

func (PingCommand) Kind() CommandKind  { return KindPing }
func (PurgeCommand) Kind() CommandKind { return KindPurge }
func (ShellCommand) Kind() CommandKind { return KindShell }

// Result is one of PongResult, PurgeResult or ShellResult.
type Result interface {
	Kind() CommandKind
}

// PongResult is the echo returned for a ping.
type PongResult struct {
	Data string
}

// PurgeResult acknowledges a purge.
type PurgeResult struct{}

// ShellResult is the exit code and captured output of a shell command.
type ShellResult struct {
	Code   int32
	Stdout []byte
	Stderr []byte
}

func (PongResult) Kind() CommandKind  { return KindPing }
func (PurgeResult) Kind() CommandKind { return KindPurge }
func (ShellResult) Kind() CommandKind { return KindShell }

// Action is one command addressed to one agent.
//
// StartedAt is set iff the action has left pending. Result and Error are
// set only in terminal states, and never both.
type Action struct {
	ID        string
	AgentID   string
	CreatedAt time.Time
	StartedAt *time.Time
	// Timeout of zero means no deadline.
	Timeout time.Duration
	Kind    CommandKind
	State   ActionState
	Error   string
	Result  Result
}

// Deadline returns the instant after which the action is overdue: started_at
// plus timeout once dispatched, created_at plus timeout while pending.
// ok is false when the action has no timeout.
func (a *Action) Deadline() (deadline time.Time, ok bool) {
	if a.Timeout <= 0 {
		return time.Time{}, false
	}
	if a.StartedAt != nil {
		return a.StartedAt.Add(a.Timeout), true
	}
	return a.CreatedAt.Add(a.Timeout), true
}

// Store defines the interface for agent and action persistence
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	SetAgentPresence(ctx context.Context, id string, connected bool, address string, at time.Time) error
	TouchAgent(ctx context.Context, id string, at time.Time) error
	DisconnectAllAgents(ctx context.Context, at time.Time) error

	// Actions
	CreateAction(ctx context.Context, action *Action, cmd Command) error
	GetAction(ctx context.Context, id string) (*Action, error)
	GetCommand(ctx context.Context, id string, kind CommandKind) (Command, error)
	ListPendingActions(ctx context.Context, agentID string) ([]*Action, error)
	GetDispatchedAction(ctx context.Context, agentID string) (*Action, error)
	ListOpenActions(ctx context.Context) ([]*Action, error)

	// Transitions
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	ResolveAction(ctx context.Context, id string, state ActionState, result Result, errMsg string, at time.Time) error

	// Retention
	DeleteResolvedActions(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
