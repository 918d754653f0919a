// ABOUTME: NotSshCli gRPC handlers serving operators over the control socket
// ABOUTME: Enqueues actions, waits for their terminal state and maps outcomes to status codes

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/notssh/notssh/internal/queue"
	"github.com/notssh/notssh/internal/store"
	pb "github.com/notssh/notssh/proto/notssh"
)

// pingData is the echo text of operator pings.
const pingData = "ping"

// purgeText is returned once an agent acknowledges a purge.
const purgeText = "purged"

// AgentLister lists known agents.
type AgentLister interface {
	ListAgents(ctx context.Context) ([]*store.Agent, error)
}

// Timeouts are the deadlines applied to operator-issued actions.
type Timeouts struct {
	Ping  time.Duration
	Purge time.Duration
	Shell time.Duration
}

// Service implements the NotSshCli gRPC service.
type Service struct {
	pb.UnimplementedNotSshCliServer

	agents   AgentLister
	queue    *queue.Queue
	timeouts Timeouts
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(agents AgentLister, q *queue.Queue, timeouts Timeouts, logger *slog.Logger) *Service {
	return &Service{
		agents:   agents,
		queue:    q,
		timeouts: timeouts,
		logger:   logger.With("component", "control"),
	}
}

// List returns every known agent and whether it is connected.
func (s *Service) List(ctx context.Context, req *pb.ListRequest) (*pb.ListResponse, error) {
	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		s.logger.Error("listing agents", "error", err)
		return nil, status.Error(codes.Internal, "failed to list agents")
	}

	clients := make([]*pb.ClientInfo, len(agents))
	for i, a := range agents {
		clients[i] = &pb.ClientInfo{
			Id:        a.ID,
			Connected: a.Connected,
			Address:   a.Address,
		}
	}
	return &pb.ListResponse{Clients: clients}, nil
}

// Ping round-trips an echo through the agent.
func (s *Service) Ping(ctx context.Context, req *pb.PingRequest) (*pb.PingResponse, error) {
	if req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	a, err := s.run(ctx, req.Id, store.PingCommand{Data: pingData}, s.timeouts.Ping)
	if err != nil {
		return nil, err
	}

	pong, ok := a.Result.(store.PongResult)
	if !ok || pong.Data != pingData {
		s.logger.Warn("unexpected ping response", "agent_id", req.Id, "action_id", a.ID, "result", a.Result)
		return nil, status.Error(codes.Internal, "agent returned an unexpected ping response")
	}
	return &pb.PingResponse{}, nil
}

// Purge tells the agent to remove itself.
func (s *Service) Purge(ctx context.Context, req *pb.PurgeRequest) (*pb.PurgeResponse, error) {
	if req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	a, err := s.run(ctx, req.Id, store.PurgeCommand{}, s.timeouts.Purge)
	if err != nil {
		return nil, err
	}

	if _, ok := a.Result.(store.PurgeResult); !ok {
		return nil, status.Error(codes.Internal, "agent returned an unexpected purge response")
	}
	return &pb.PurgeResponse{Text: purgeText}, nil
}

// Shell runs a command on the agent and returns its captured output.
func (s *Service) Shell(ctx context.Context, req *pb.ShellRequest) (*pb.ShellResponse, error) {
	if req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if req.Cmd == "" {
		return nil, status.Error(codes.InvalidArgument, "cmd is required")
	}

	cmd := store.ShellCommand{Cmd: req.Cmd, Args: req.Args, Stdin: req.Stdin}
	a, err := s.run(ctx, req.Id, cmd, s.timeouts.Shell)
	if err != nil {
		return nil, err
	}

	out, ok := a.Result.(store.ShellResult)
	if !ok {
		return nil, status.Error(codes.Internal, "agent returned an unexpected shell response")
	}
	return &pb.ShellResponse{
		Stdout: out.Stdout,
		Stderr: out.Stderr,
		Code:   out.Code,
	}, nil
}

// run enqueues cmd for agentID and blocks until the action is terminal.
// Errors are already gRPC status errors.
func (s *Service) run(ctx context.Context, agentID string, cmd store.Command, timeout time.Duration) (*store.Action, error) {
	id, err := s.queue.Enqueue(ctx, agentID, cmd, timeout)
	if err != nil {
		return nil, s.toStatus(agentID, "", err)
	}

	a, err := s.queue.Wait(ctx, id)
	if err != nil {
		// The action stays queued and is resolved by its deadline
		return nil, s.toStatus(agentID, id, err)
	}
	if err := queue.Outcome(a); err != nil {
		return nil, s.toStatus(agentID, id, err)
	}
	return a, nil
}

func (s *Service) toStatus(agentID, actionID string, err error) error {
	var execErr *queue.ExecutionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Errorf(codes.NotFound, "client %s not found", agentID)
	case errors.Is(err, queue.ErrTimeout):
		return status.Error(codes.DeadlineExceeded, queue.ErrTimeout.Error())
	case errors.As(err, &execErr):
		return status.Error(codes.Aborted, execErr.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error("action failed", "agent_id", agentID, "action_id", actionID, "error", err)
	return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
}
