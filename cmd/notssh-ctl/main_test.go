// ABOUTME: Tests for the notssh-ctl subcommands against a scripted control client
// ABOUTME: Checks argument handling, output and exit code propagation

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/notssh/notssh/proto/notssh"
)

type fakeControl struct {
	clients  []*pb.ClientInfo
	shell    *pb.ShellResponse
	err      error
	lastReq  *pb.ShellRequest
	pingedID string
	socket   string
	closed   bool
}

func (f *fakeControl) List(ctx context.Context, in *pb.ListRequest, opts ...grpc.CallOption) (*pb.ListResponse, error) {
	return &pb.ListResponse{Clients: f.clients}, f.err
}

func (f *fakeControl) Ping(ctx context.Context, in *pb.PingRequest, opts ...grpc.CallOption) (*pb.PingResponse, error) {
	f.pingedID = in.Id
	if f.err != nil {
		return nil, f.err
	}
	return &pb.PingResponse{}, nil
}

func (f *fakeControl) Purge(ctx context.Context, in *pb.PurgeRequest, opts ...grpc.CallOption) (*pb.PurgeResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pb.PurgeResponse{Text: "purged"}, nil
}

func (f *fakeControl) Shell(ctx context.Context, in *pb.ShellRequest, opts ...grpc.CallOption) (*pb.ShellResponse, error) {
	f.lastReq = in
	if f.err != nil {
		return nil, f.err
	}
	return f.shell, nil
}

func (f *fakeControl) connect(socket string) (pb.NotSshCliClient, func() error, error) {
	f.socket = socket
	return f, func() error { f.closed = true; return nil }, nil
}

func execute(t *testing.T, f *fakeControl, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd(f.connect)
	var out, errOut strings.Builder
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestListCmd(t *testing.T) {
	f := &fakeControl{clients: []*pb.ClientInfo{
		{Id: "a1", Connected: true, Address: "10.0.0.1:5000"},
		{Id: "a2"},
	}}

	out, _, err := execute(t, f, "", "list", "--socket", "/tmp/x.sock")
	require.NoError(t, err)
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "10.0.0.1:5000")
	assert.Contains(t, out, "a2")
	assert.Equal(t, "/tmp/x.sock", f.socket)
	assert.True(t, f.closed)
}

func TestPingCmd(t *testing.T) {
	f := &fakeControl{}
	out, _, err := execute(t, f, "", "ping", "--id", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", f.pingedID)
	assert.Contains(t, out, "pong from a1")
}

func TestPingCmd_RequiresID(t *testing.T) {
	_, _, err := execute(t, &fakeControl{}, "", "ping")
	assert.Error(t, err)
}

func TestPingCmd_PropagatesStatus(t *testing.T) {
	f := &fakeControl{err: status.Error(codes.NotFound, "client a9 not found")}
	_, _, err := execute(t, f, "", "ping", "--id", "a9")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestPurgeCmd(t *testing.T) {
	out, _, err := execute(t, &fakeControl{}, "", "purge", "--id", "a1")
	require.NoError(t, err)
	assert.Equal(t, "purged\n", out)
}

func TestShellCmd_PassesArgumentsAfterCommand(t *testing.T) {
	f := &fakeControl{shell: &pb.ShellResponse{Stdout: []byte("hi\n"), Stderr: []byte("warn\n")}}

	out, errOut, err := execute(t, f, "", "shell", "--id", "a1", "ls", "-l", "--color", "/")
	require.NoError(t, err)
	assert.Equal(t, "ls", f.lastReq.Cmd)
	assert.Equal(t, []string{"-l", "--color", "/"}, f.lastReq.Args)
	assert.Nil(t, f.lastReq.Stdin)
	assert.Equal(t, "hi\n", out)
	assert.Equal(t, "warn\n", errOut)
}

func TestShellCmd_RemoteExitCode(t *testing.T) {
	f := &fakeControl{shell: &pb.ShellResponse{Code: 3}}
	_, _, err := execute(t, f, "", "shell", "--id", "a1", "false")

	var exit *exitCodeError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 3, exit.code)
}

func TestShellCmd_Stdin(t *testing.T) {
	f := &fakeControl{shell: &pb.ShellResponse{}}
	_, _, err := execute(t, f, "from terminal", "shell", "--id", "a1", "--stdin", "-", "cat")
	require.NoError(t, err)
	assert.Equal(t, []byte("from terminal"), f.lastReq.Stdin)

	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	_, _, err = execute(t, f, "", "shell", "--id", "a1", "--stdin", path, "cat")
	require.NoError(t, err)
	assert.Equal(t, []byte("from file"), f.lastReq.Stdin)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(0))
	assert.Equal(t, 42, exitCode(42))
	assert.Equal(t, 255, exitCode(-1))
	assert.Equal(t, 255, exitCode(1000))
}
