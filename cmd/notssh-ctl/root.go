// ABOUTME: Root command and control socket wiring for notssh-ctl
// ABOUTME: Every subcommand gets its client through the connect function

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notssh/notssh/internal/config"
	"github.com/notssh/notssh/internal/control"
	pb "github.com/notssh/notssh/proto/notssh"
)

// connectFunc opens a control client for socket. The returned func
// releases it.
type connectFunc func(socket string) (pb.NotSshCliClient, func() error, error)

func dialControl(socket string) (pb.NotSshCliClient, func() error, error) {
	client, conn, err := control.Dial(socket)
	if err != nil {
		return nil, nil, err
	}
	return client, conn.Close, nil
}

// clientRunner runs fn with a connected control client.
type clientRunner func(fn func(c pb.NotSshCliClient) error) error

// exitCodeError carries a remote exit code out through cobra.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func defaultSocket() string {
	if s := os.Getenv("NOTSSH_SOCKET"); s != "" {
		return s
	}
	return config.DefaultControlSocket
}

// newRootCmd creates the root notssh-ctl command with all subcommands attached.
func newRootCmd(connect connectFunc) *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:           "notssh-ctl",
		Short:         "Operate notssh agents",
		Long:          "notssh-ctl sends commands to agents through a running notssh-gateway.\nIt connects to the gateway's control socket.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&socket, "socket", defaultSocket(), "gateway control socket ($NOTSSH_SOCKET)")

	var withClient clientRunner = func(fn func(c pb.NotSshCliClient) error) error {
		client, closeFn, err := connect(socket)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(client)
	}

	cmd.AddCommand(
		newListCmd(withClient),
		newPingCmd(withClient),
		newPurgeCmd(withClient),
		newShellCmd(withClient),
	)

	return cmd
}
