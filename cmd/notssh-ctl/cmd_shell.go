// ABOUTME: notssh-ctl shell subcommand
// ABOUTME: Runs a command on one agent and relays its output and exit code

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	pb "github.com/notssh/notssh/proto/notssh"
)

// newShellCmd creates the "notssh-ctl shell" subcommand. The remote exit
// code becomes the exit code of notssh-ctl.
func newShellCmd(withClient clientRunner) *cobra.Command {
	var (
		id        string
		stdinPath string
	)

	cmd := &cobra.Command{
		Use:   "shell --id ID [--stdin FILE] CMD [ARGS...]",
		Short: "Run a command on an agent",
		Long:  "Runs CMD with ARGS on the agent without a shell and prints its output.\nUse --stdin - to forward this process's standard input.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdin, err := readStdin(cmd, stdinPath)
			if err != nil {
				return err
			}

			return withClient(func(c pb.NotSshCliClient) error {
				resp, err := c.Shell(cmd.Context(), &pb.ShellRequest{
					Id:    id,
					Cmd:   args[0],
					Args:  args[1:],
					Stdin: stdin,
				})
				if err != nil {
					return err
				}

				_, _ = cmd.OutOrStdout().Write(resp.Stdout)
				_, _ = cmd.ErrOrStderr().Write(resp.Stderr)
				if resp.Code != 0 {
					return &exitCodeError{code: exitCode(resp.Code)}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "agent id")
	cmd.Flags().StringVar(&stdinPath, "stdin", "", "file to send as standard input (- for stdin)")
	cmd.Flags().SetInterspersed(false)
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func readStdin(cmd *cobra.Command, path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading stdin file: %w", err)
		}
		return data, nil
	}
}

// exitCode maps a remote code to a local one. A process killed by a
// signal reports -1 and exits 255 here.
func exitCode(code int32) int {
	if code < 0 || code > 255 {
		return 255
	}
	return int(code)
}
