// ABOUTME: Gateway orchestrator that coordinates the agent gRPC, control socket and HTTP servers
// ABOUTME: Owns the store, session registry, action queue, sweeper and their lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/notssh/notssh/internal/agent"
	"github.com/notssh/notssh/internal/config"
	"github.com/notssh/notssh/internal/control"
	"github.com/notssh/notssh/internal/queue"
	"github.com/notssh/notssh/internal/store"
	"github.com/notssh/notssh/internal/sweeper"
	pb "github.com/notssh/notssh/proto/notssh"
)

// tailscaleGRPCPort is the tailnet port agents dial when tailscale is enabled.
const tailscaleGRPCPort = ":3144"

// Gateway orchestrates the notssh-gateway server components.
type Gateway struct {
	config        *config.Config
	store         store.Store
	registry      *agent.Registry
	queue         *queue.Queue
	sweeper       *sweeper.Sweeper
	grpcServer    *grpc.Server
	controlServer *grpc.Server
	health        *health.Server
	httpServer    *http.Server
	tsnetServer   *tsnet.Server
	logger        *slog.Logger
}

// initStore opens the configured Action Store.
func initStore(cfg *config.Config) (store.Store, error) {
	driver := cfg.Database.Driver
	if driver == "" {
		driver = store.DriverModernc
	}
	s, err := store.Open(driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// createGRPCServer creates the agent-facing gRPC server.
func createGRPCServer() *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry(s, logger.With("component", "registry"))
	q := queue.New(s, registry, logger.With("component", "queue"))

	gw := &Gateway{
		config:   cfg,
		store:    s,
		registry: registry,
		queue:    q,
		sweeper: sweeper.New(s, q, sweeper.Config{
			Interval:      cfg.Actions.SweepInterval,
			PruneInterval: cfg.Actions.PruneInterval,
			Retention:     cfg.Actions.Retention,
		}, logger),
		grpcServer:    createGRPCServer(),
		controlServer: grpc.NewServer(),
		health:        health.NewServer(),
		logger:        logger.With("component", "gateway"),
	}

	// Agent listener: NotSSH plus the standard health service
	pb.RegisterNotSSHServer(gw.grpcServer, newNotSSHServer(gw, logger.With("component", "grpc")))
	healthpb.RegisterHealthServer(gw.grpcServer, gw.health)
	gw.health.SetServingStatus(pb.NotSSH_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Operator listener
	controlService := control.NewService(s, q, control.Timeouts{
		Ping:  cfg.Actions.PingTimeout,
		Purge: cfg.Actions.PurgeTimeout,
		Shell: cfg.Actions.ShellTimeout,
	}, logger)
	pb.RegisterNotSshCliServer(gw.controlServer, controlService)

	// Create HTTP server for health checks and API
	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	mux.HandleFunc("/api/agents", gw.handleListAgents)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Listeners are the sockets the gateway serves on. Control and HTTP are
// optional.
type Listeners struct {
	GRPC    net.Listener
	HTTP    net.Listener
	Control net.Listener
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	if g.config.Server.HTTPAddr == "" {
		return grpcLn, nil, nil
	}
	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP)
// plus the control socket.
func (g *Gateway) setupListeners(ctx context.Context) (*Listeners, error) {
	var (
		grpcLn, httpLn net.Listener
		err            error
	)
	if g.config.Tailscale.Enabled {
		grpcLn, httpLn, err = g.setupTailscaleListeners(ctx)
	} else {
		grpcLn, httpLn, err = g.setupTCPListeners()
	}
	if err != nil {
		return nil, err
	}

	ls := &Listeners{GRPC: grpcLn, HTTP: httpLn}
	if path := g.config.Server.ControlSocket; path != "" {
		ls.Control, err = control.Listen(path)
		if err != nil {
			_ = grpcLn.Close()
			if httpLn != nil {
				_ = httpLn.Close()
			}
			return nil, err
		}
	}
	return ls, nil
}

// startServers starts every server in a goroutine, returning an error channel.
func (g *Gateway) startServers(ls *Listeners) chan error {
	errCh := make(chan error, 3)

	go func() {
		g.logger.Info("gRPC server listening", "addr", ls.GRPC.Addr().String())
		if err := g.grpcServer.Serve(ls.GRPC); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	if ls.HTTP != nil {
		go func() {
			g.logger.Info("HTTP server listening", "addr", ls.HTTP.Addr().String())
			if err := g.httpServer.Serve(ls.HTTP); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	if ls.Control != nil {
		go func() {
			g.logger.Info("control socket listening", "path", ls.Control.Addr().String())
			if err := g.controlServer.Serve(ls.Control); err != nil {
				errCh <- fmt.Errorf("control server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run opens the configured listeners and serves until ctx is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ls, err := g.setupListeners(ctx)
	if err != nil {
		_ = g.Close()
		return err
	}
	return g.Serve(ctx, ls)
}

// Serve runs the gateway on already-open listeners until ctx is canceled,
// then shuts down. Every agent starts out disconnected: sessions do not
// survive a restart.
func (g *Gateway) Serve(ctx context.Context, ls *Listeners) error {
	if err := g.store.DisconnectAllAgents(ctx, time.Now()); err != nil {
		_ = g.Close()
		return fmt.Errorf("resetting agent presence: %w", err)
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	go g.sweeper.Run(bgCtx)
	if g.config.Agents.PingInterval > 0 {
		go g.runHeartbeats(bgCtx, g.config.Agents.PingInterval)
	}

	errCh := g.startServers(ls)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	cancelBackground()
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "notssh", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns tailnet
// listeners for gRPC and HTTP. server.grpc_addr and server.http_addr are
// ignored in this mode.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", tailscaleGRPCPort)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	httpLn, err = g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// stopGRPCServer gracefully stops a gRPC server or force-stops on context cancel.
func stopGRPCServer(ctx context.Context, srv *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		srv.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
// Live sessions end with ErrShutdown; durable action state is left as is
// and picked up again on the next start.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.health.Shutdown()
	g.registry.CloseAll()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	stopGRPCServer(ctx, g.grpcServer)
	stopGRPCServer(ctx, g.controlServer)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	errs = appendCloseError(errs, "agent presence", g.store.DisconnectAllAgents(ctx, time.Now()))
	errs = appendCloseError(errs, "close", g.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Close releases the queue and store without touching servers. Used when
// the gateway never started serving.
func (g *Gateway) Close() error {
	g.queue.Close()
	if err := g.store.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}
