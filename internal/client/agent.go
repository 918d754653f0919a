// ABOUTME: Agent runtime: registers with the gateway, polls for actions and answers them
// ABOUTME: Reconnects with exponential backoff and re-registers when its id is unknown

package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/notssh/notssh/internal/config"
	"github.com/notssh/notssh/internal/executor"
	pb "github.com/notssh/notssh/proto/notssh"
)

// ErrPurged is returned by Run once the gateway has purged this agent. The
// stored identity is gone by then.
var ErrPurged = errors.New("agent purged by gateway")

// purgeDrainTimeout bounds the wait for the gateway to close the stream
// after a purge acknowledgement.
const purgeDrainTimeout = 5 * time.Second

// Agent is a notssh agent process.
type Agent struct {
	cfg    *config.AgentConfig
	id     IDFile
	runner executor.Runner
	logger *slog.Logger
}

// New creates an Agent.
func New(cfg *config.AgentConfig, runner executor.Runner, logger *slog.Logger) *Agent {
	return &Agent{
		cfg:    cfg,
		id:     IDFile{Path: cfg.IDFile},
		runner: runner,
		logger: logger.With("component", "agent"),
	}
}

// Run keeps the agent connected until ctx ends or the agent is purged.
func (a *Agent) Run(ctx context.Context) error {
	target, creds, err := dialTarget(a.cfg.Endpoint)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", a.cfg.Endpoint, err)
	}
	defer conn.Close()

	client := pb.NewNotSSHClient(conn)
	backoff := a.cfg.ReconnectMin.Duration

	for {
		start := time.Now()
		healthy, err := a.session(ctx, client)
		if errors.Is(err, ErrPurged) {
			return ErrPurged
		}
		if ctx.Err() != nil {
			return nil
		}

		if healthy || time.Since(start) >= a.cfg.ReconnectMax.Duration {
			backoff = a.cfg.ReconnectMin.Duration
		}
		if status.Code(err) == codes.NotFound {
			// Identity was cleared; register again right away
			a.logger.Warn("gateway does not know this agent, registering again")
			continue
		}

		a.logger.Warn("connection lost, retrying", "error", err, "in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > a.cfg.ReconnectMax.Duration {
			backoff = a.cfg.ReconnectMax.Duration
		}
	}
}

// ensureID returns the stored id, registering first when there is none.
func (a *Agent) ensureID(ctx context.Context, client pb.NotSSHClient) (string, error) {
	id, err := a.id.Load()
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	resp, err := client.Register(ctx, &pb.RegisterRequest{})
	if err != nil {
		return "", fmt.Errorf("registering: %w", err)
	}
	if resp.GetId() == "" {
		return "", errors.New("registering: gateway returned an empty id")
	}
	if err := a.id.Save(resp.GetId()); err != nil {
		return "", err
	}
	a.logger.Info("registered with gateway", "agent_id", resp.GetId())
	return resp.GetId(), nil
}

// session runs one Poll stream. healthy reports that at least one action
// was served, which resets the reconnect backoff.
func (a *Agent) session(ctx context.Context, client pb.NotSSHClient) (healthy bool, err error) {
	id, err := a.ensureID(ctx, client)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, pb.ClientIDHeader, id)

	stream, err := client.Poll(ctx)
	if err != nil {
		return false, a.checkIdentity(err)
	}
	a.logger.Info("polling for actions", "agent_id", id)

	var sendMu sync.Mutex
	send := func(res *pb.Res) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.Send(res)
	}

	go a.heartbeat(ctx, send)

	for {
		action, err := stream.Recv()
		if err != nil {
			return healthy, a.checkIdentity(err)
		}

		a.logger.Debug("received action", "action_id", action.GetId())
		res, purge := handle(ctx, a.runner, action)
		if err := send(res); err != nil {
			return true, fmt.Errorf("sending result: %w", err)
		}
		healthy = true

		if purge {
			a.drain(stream)
			if err := a.id.Clear(); err != nil {
				a.logger.Error("failed to remove identity", "error", err)
			}
			a.logger.Warn("purged by gateway, shutting down", "agent_id", id)
			return true, ErrPurged
		}
	}
}

// drain half-closes the stream and waits briefly for the gateway to end
// it, so the purge acknowledgement is flushed before the process exits.
func (a *Agent) drain(stream pb.NotSSH_PollClient) {
	if err := stream.CloseSend(); err != nil {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := stream.Recv(); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(purgeDrainTimeout):
	}
}

func (a *Agent) heartbeat(ctx context.Context, send func(*pb.Res) error) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(&pb.Res{}); err != nil {
				a.logger.Debug("heartbeat failed", "error", err)
				return
			}
		}
	}
}

// checkIdentity forgets the stored id when the gateway rejects it.
func (a *Agent) checkIdentity(err error) error {
	if status.Code(err) == codes.NotFound {
		if clearErr := a.id.Clear(); clearErr != nil {
			a.logger.Error("failed to remove identity", "error", clearErr)
		}
	}
	return err
}

// dialTarget turns an endpoint such as http://10.0.0.1:3144 into a gRPC
// target and transport credentials. A bare host:port dials in plaintext.
func dialTarget(endpoint string) (string, credentials.TransportCredentials, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, insecure.NewCredentials(), nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	switch u.Scheme {
	case "http":
		return withDefaultPort(u, "80"), insecure.NewCredentials(), nil
	case "https":
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		return withDefaultPort(u, "443"), creds, nil
	}
	return "", nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
}

func withDefaultPort(u *url.URL, port string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), port)
}
