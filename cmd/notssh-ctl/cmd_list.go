// ABOUTME: notssh-ctl list subcommand
// ABOUTME: Prints every known agent with its connection state

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	pb "github.com/notssh/notssh/proto/notssh"
)

// newListCmd creates the "notssh-ctl list" subcommand.
func newListCmd(withClient clientRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known agents",
		Long:  "Lists every agent the gateway has issued an id to,\nwith its connection state and last known address.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c pb.NotSshCliClient) error {
				resp, err := c.List(cmd.Context(), &pb.ListRequest{})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, info := range resp.Clients {
					state := color.HiBlackString("offline")
					if info.Connected {
						state = color.GreenString("online")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", info.Id, state, info.Address)
				}
				return w.Flush()
			})
		},
	}
}
