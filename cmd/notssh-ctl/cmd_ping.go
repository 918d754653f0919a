// ABOUTME: notssh-ctl ping subcommand
// ABOUTME: Round-trips a ping through the gateway to one agent

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	pb "github.com/notssh/notssh/proto/notssh"
)

// newPingCmd creates the "notssh-ctl ping" subcommand.
func newPingCmd(withClient clientRunner) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "ping --id ID",
		Short: "Check that an agent answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c pb.NotSshCliClient) error {
				start := time.Now()
				if _, err := c.Ping(cmd.Context(), &pb.PingRequest{Id: id}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pong from %s in %s\n", id, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "agent id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
