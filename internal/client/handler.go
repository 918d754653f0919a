// ABOUTME: Executes a single Action received from the gateway
// ABOUTME: Maps ping, purge and shell commands to the Res frame sent back

package client

import (
	"context"

	"github.com/notssh/notssh/internal/executor"
	pb "github.com/notssh/notssh/proto/notssh"
)

// handle carries out action and returns the reply frame. purge reports
// that the agent must remove itself once the reply is sent.
func handle(ctx context.Context, runner executor.Runner, action *pb.Action) (res *pb.Res, purge bool) {
	res = &pb.Res{Id: action.GetId()}

	switch cmd := action.Command.(type) {
	case *pb.Ping:
		res.Result = &pb.Pong{Pong: cmd.Ping}

	case *pb.Purge:
		res.Result = &pb.PurgeAck{}
		purge = true

	case *pb.Shell:
		out, err := runner.Run(ctx, cmd.Cmd, cmd.Args, cmd.Stdin)
		if err != nil {
			res.Result = &pb.ExecError{Message: err.Error()}
			break
		}
		res.Result = &pb.ShellOutput{
			Code:   out.Code,
			Stdout: out.Stdout,
			Stderr: out.Stderr,
		}

	default:
		res.Result = &pb.ExecError{Message: "action contains no command"}
	}
	return res, purge
}
