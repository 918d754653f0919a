// Package control implements the operator-facing NotSshCli gRPC service.
//
// # Overview
//
// The gateway serves NotSshCli on a unix socket (server.control_socket).
// notssh-ctl is the usual caller. Every method other than List enqueues an
// action for the named agent and blocks until the action is terminal; the
// action itself is never cancelled by the caller going away.
//
// # Service Methods
//
//   - List: every known agent, connected or not
//   - Ping: echo "ping" through the agent and verify it comes back
//   - Purge: tell the agent to remove itself, answers "purged"
//   - Shell: run a command, returning stdout, stderr and exit code
//
// # Status Codes
//
//   - NotFound: unknown agent id
//   - DeadlineExceeded: the action timed out, outcome unknown
//   - Aborted: the agent could not execute the command
//   - Canceled: the caller went away first
//   - Internal: anything else
//
// # Usage
//
//	lis, err := control.Listen(cfg.Server.ControlSocket)
//	srv := grpc.NewServer()
//	pb.RegisterNotSshCliServer(srv, control.NewService(store, queue, timeouts, logger))
//	go srv.Serve(lis)
package control
