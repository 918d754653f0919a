// ABOUTME: Entry point for notssh-ctl, the operator command line
// ABOUTME: Talks to the gateway over its unix control socket

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc/status"
)

// Version is set at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(dialControl).ExecuteContext(ctx)
	cancel()
	if err == nil {
		return
	}

	var exit *exitCodeError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}

	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "Error: %s: %s\n", s.Code(), s.Message())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
