// Package client is the agent side of notssh: the process that runs on a
// managed host, dials the gateway and executes what it is told.
//
// # Lifecycle
//
//  1. Load the id file. If it is empty, call Register and store the issued id.
//  2. Open Poll with the id in the x-client-id metadata header.
//  3. Answer each Action with exactly one Res frame, in order.
//  4. Send an empty Res every heartbeat_interval so the gateway sees the
//     agent as alive while a long command runs.
//
// When the stream drops the agent reconnects with exponential backoff
// between reconnect_min and reconnect_max. If the gateway answers NotFound
// the stored id is discarded and the agent registers again.
//
// # Commands
//
//   - Ping: echo the payload back as Pong
//   - Purge: acknowledge, remove the id file and exit (Run returns ErrPurged)
//   - Shell: run via executor.Runner; a process that cannot be started is
//     reported as an ExecError frame, a non-zero exit is a normal result
package client
