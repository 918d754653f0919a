// ABOUTME: NotSSH gRPC service implementation for agent registration and polling
// ABOUTME: Bridges a Poll stream to a registry session and its dispatch loop

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/notssh/notssh/internal/agent"
	"github.com/notssh/notssh/internal/dispatch"
	"github.com/notssh/notssh/internal/store"
	pb "github.com/notssh/notssh/proto/notssh"
)

// notSSHServer implements the NotSSH gRPC service.
type notSSHServer struct {
	pb.UnimplementedNotSSHServer
	gateway *Gateway
	logger  *slog.Logger
}

// newNotSSHServer creates a new NotSSH service instance.
func newNotSSHServer(gw *Gateway, logger *slog.Logger) *notSSHServer {
	return &notSSHServer{
		gateway: gw,
		logger:  logger,
	}
}

// clientID extracts the agent id from the x-client-id header.
func clientID(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	ids := md.Get(pb.ClientIDHeader)
	if len(ids) == 0 || ids[0] == "" {
		return "", false
	}
	return ids[0], true
}

// peerAddress returns the remote address of the caller, or "" if unknown.
func peerAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

// Register issues an agent id. An agent presenting a known id gets the
// same id back; an unknown one is told so and must register afresh.
func (s *notSSHServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	if id, ok := clientID(ctx); ok {
		if _, err := s.gateway.store.GetAgent(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, status.Errorf(codes.NotFound, "client %s not found", id)
			}
			return nil, status.Errorf(codes.Internal, "looking up client: %v", err)
		}
		s.logger.Info("agent re-registered", "agent_id", id)
		return &pb.RegisterResponse{Id: id}, nil
	}

	a := &store.Agent{
		ID:         uuid.NewString(),
		Address:    peerAddress(ctx),
		LastOnline: time.Now(),
	}
	if err := s.gateway.store.CreateAgent(ctx, a); err != nil {
		return nil, status.Errorf(codes.Internal, "creating client: %v", err)
	}

	s.logger.Info("agent registered", "agent_id", a.ID, "address", a.Address)
	return &pb.RegisterResponse{Id: a.ID}, nil
}

// Poll serves one agent connection. Protocol flow:
// 1. Agent opens the stream with its id in x-client-id
// 2. Server sends Action frames, one at a time
// 3. Agent answers each with a Res frame and sends empty Res heartbeats
func (s *notSSHServer) Poll(stream pb.NotSSH_PollServer) error {
	ctx := stream.Context()

	agentID, ok := clientID(ctx)
	if !ok {
		return status.Errorf(codes.Unauthenticated, "missing %s header", pb.ClientIDHeader)
	}

	session, err := s.gateway.registry.Register(ctx, agentID, peerAddress(ctx))
	if err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			return status.Errorf(codes.NotFound, "client %s not found", agentID)
		}
		return status.Errorf(codes.Internal, "registering session: %v", err)
	}

	logger := s.logger.With("agent_id", agentID, "session_id", session.ID)

	go s.readPump(ctx, stream, session, logger)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(stream, session, logger)
	}()

	loopErr := dispatch.New(session, s.gateway.queue, s.gateway.registry, s.logger).Run(ctx)

	// The stream context may already be gone; presence must still be written
	s.gateway.registry.Unregister(context.Background(), session, closeCause(loopErr))
	<-writerDone

	return streamStatus(session.Err())
}

// readPump moves frames from the stream into the session until either ends.
func (s *notSSHServer) readPump(ctx context.Context, stream pb.NotSSH_PollServer, session *agent.Session, logger *slog.Logger) {
	for {
		res, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("agent closed stream")
				s.gateway.registry.Unregister(context.Background(), session, agent.ErrSessionClosed)
				return
			}
			if status.Code(err) == codes.Canceled {
				logger.Info("agent stream cancelled")
			} else {
				logger.Warn("receiving frame", "error", err)
			}
			s.gateway.registry.Unregister(context.Background(), session, agent.TransportError(err))
			return
		}

		if err := session.Deliver(ctx, frameFromRes(res)); err != nil {
			return
		}
	}
}

// writePump moves commands from the session onto the stream until the
// session closes. It is the only goroutine that sends on the stream.
func (s *notSSHServer) writePump(stream pb.NotSSH_PollServer, session *agent.Session, logger *slog.Logger) {
	for {
		select {
		case e := <-session.Outbound():
			if err := stream.Send(actionFromEnvelope(e)); err != nil {
				logger.Warn("sending action", "action_id", e.ActionID, "error", err)
				s.gateway.registry.Unregister(context.Background(), session, agent.TransportError(err))
				return
			}
			logger.Debug("action written", "action_id", e.ActionID)
		case <-session.Done():
			return
		}
	}
}

// closeCause picks the cause the session is closed with when the dispatch
// loop ends on its own. A session already closed keeps its first cause.
func closeCause(loopErr error) error {
	if loopErr == nil {
		return agent.ErrSessionClosed
	}
	if errors.Is(loopErr, agent.ErrSessionClosed) ||
		errors.Is(loopErr, agent.ErrSuperseded) ||
		errors.Is(loopErr, agent.ErrShutdown) {
		return loopErr
	}
	return agent.TransportError(loopErr)
}

// streamStatus maps a session closure cause to the status Poll returns.
func streamStatus(cause error) error {
	switch {
	case cause == nil:
		return nil
	case errors.Is(cause, agent.ErrSuperseded):
		return status.Error(codes.Aborted, cause.Error())
	case errors.Is(cause, agent.ErrShutdown):
		return status.Error(codes.Unavailable, cause.Error())
	case errors.Is(cause, agent.ErrSessionClosed):
		return nil
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return status.FromContextError(cause).Err()
	default:
		return status.Errorf(codes.Internal, "session: %v", cause)
	}
}
