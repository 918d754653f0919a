// ABOUTME: Runs shell actions on the agent host via os/exec.
// ABOUTME: Captures stdout and stderr, feeds optional stdin, reports the exit code.

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Output is the captured result of a finished process.
type Output struct {
	Code   int32
	Stdout []byte
	Stderr []byte
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd string, args []string, stdin []byte) (*Output, error)
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct{}

// Run executes cmd with args and waits for it to exit. A non-zero exit is
// not an error; it is reported in Output.Code, which is -1 when the process
// was killed by a signal. An error means the process could not be started
// or waited on.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) (*Output, error) {
	if name == "" {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	// ExitCode is -1 when the process was terminated by a signal
	return &Output{
		Code:   int32(cmd.ProcessState.ExitCode()),
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}, nil
}
