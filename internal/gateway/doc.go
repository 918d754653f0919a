// Package gateway orchestrates the notssh-gateway server components.
//
// # Overview
//
// The gateway owns the Action Store, the session registry, the action
// queue, the timeout sweeper and three listeners:
//
//   - gRPC for agents: the notssh.NotSSH service plus grpc.health.v1
//   - a unix socket for operators: the notssh_cli.NotSshCli service
//   - HTTP for probes and a read-only agent listing
//
// With tailscale.enabled the agent and HTTP listeners are served on the
// tailnet through tsnet instead of server.grpc_addr and server.http_addr.
//
// # Agent protocol
//
//	service NotSSH {
//	    rpc Register(RegisterRequest) returns (RegisterResponse);
//	    rpc Poll(stream Res) returns (stream Action);
//	}
//
// Register mints an agent id, or confirms one presented in x-client-id.
// Poll installs a session for the id in x-client-id and runs three parts
// until the session ends:
//
//  1. a reader pump, stream to session inbound
//  2. a writer pump, session outbound to stream
//  3. a dispatch.Loop feeding one action at a time
//
// A second Poll for the same id supersedes the first, which ends with
// codes.Aborted. Gateway shutdown ends every Poll with codes.Unavailable.
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - 200 once at least one agent is connected
//   - GET /api/agents - JSON list of agents (?connected=true filters)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // returns after ctx is canceled and shutdown completes
//
// Every agent is marked disconnected on start and on shutdown. Action
// state is never touched by either: pending actions wait for their agent,
// dispatched ones are adopted when it reconnects or expire.
package gateway
