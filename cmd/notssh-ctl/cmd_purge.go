// ABOUTME: notssh-ctl purge subcommand
// ABOUTME: Tells one agent to drop its identity and exit

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pb "github.com/notssh/notssh/proto/notssh"
)

// newPurgeCmd creates the "notssh-ctl purge" subcommand.
func newPurgeCmd(withClient clientRunner) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "purge --id ID",
		Short: "Make an agent remove its identity and exit",
		Long:  "Sends a purge to the agent and waits for its acknowledgement.\nThe agent deletes its id file and stops; its record stays in the gateway.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c pb.NotSshCliClient) error {
				resp, err := c.Purge(cmd.Context(), &pb.PurgeRequest{Id: id})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "agent id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
