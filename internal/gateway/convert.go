// ABOUTME: Conversion between wire frames and session frames
// ABOUTME: Maps pb.Res to agent.Frame and agent.Envelope to pb.Action

package gateway

import (
	"github.com/notssh/notssh/internal/agent"
	"github.com/notssh/notssh/internal/store"
	pb "github.com/notssh/notssh/proto/notssh"
)

// execErrorFallback stands in for an ExecError sent without a message, so
// the frame still counts as a failure.
const execErrorFallback = "agent reported an error without a message"

func frameFromRes(res *pb.Res) agent.Frame {
	f := agent.Frame{ActionID: res.GetId()}
	switch r := res.Result.(type) {
	case *pb.Pong:
		f.Result = store.PongResult{Data: r.Pong}
	case *pb.PurgeAck:
		f.Result = store.PurgeResult{}
	case *pb.ShellOutput:
		f.Result = store.ShellResult{Code: r.Code, Stdout: r.Stdout, Stderr: r.Stderr}
	case *pb.ExecError:
		f.Error = r.Message
		if f.Error == "" {
			f.Error = execErrorFallback
		}
	}
	return f
}

func actionFromEnvelope(e agent.Envelope) *pb.Action {
	a := &pb.Action{Id: e.ActionID}
	switch c := e.Command.(type) {
	case store.PingCommand:
		a.Command = &pb.Ping{Ping: c.Data}
	case store.PurgeCommand:
		a.Command = &pb.Purge{}
	case store.ShellCommand:
		a.Command = &pb.Shell{Cmd: c.Cmd, Args: c.Args, Stdin: c.Stdin}
	}
	return a
}
