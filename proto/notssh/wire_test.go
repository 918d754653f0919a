// ABOUTME: Wire format tests for the hand-written notssh message bindings
// ABOUTME: Checks bytes against protowire-built expectations and the registered codec

package notssh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	protoenc "google.golang.org/grpc/encoding/proto"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestAction_PurgeKeepsOneofPresence(t *testing.T) {
	b := (&Action{Id: "a1", Command: &Purge{}}).AppendProto(nil)

	want := protowire.AppendTag(nil, 1, protowire.BytesType)
	want = protowire.AppendString(want, "a1")
	want = protowire.AppendTag(want, 3, protowire.BytesType)
	want = protowire.AppendBytes(want, nil)
	assert.Equal(t, want, b)

	var got Action
	require.NoError(t, got.UnmarshalProto(b))
	assert.Equal(t, "a1", got.Id)
	assert.NotNil(t, got.GetPurge())
}

func TestAction_ShellMatchesSchema(t *testing.T) {
	a := &Action{Id: "a2", Command: &Shell{Cmd: "ls", Args: []string{"-l", "/"}, Stdin: []byte("in")}}

	var shell []byte
	shell = protowire.AppendTag(shell, 1, protowire.BytesType)
	shell = protowire.AppendString(shell, "ls")
	for _, arg := range []string{"-l", "/"} {
		shell = protowire.AppendTag(shell, 2, protowire.BytesType)
		shell = protowire.AppendString(shell, arg)
	}
	shell = protowire.AppendTag(shell, 3, protowire.BytesType)
	shell = protowire.AppendBytes(shell, []byte("in"))

	want := protowire.AppendTag(nil, 1, protowire.BytesType)
	want = protowire.AppendString(want, "a2")
	want = protowire.AppendTag(want, 4, protowire.BytesType)
	want = protowire.AppendBytes(want, shell)

	assert.Equal(t, want, a.AppendProto(nil))

	var got Action
	require.NoError(t, got.UnmarshalProto(want))
	assert.Equal(t, a, &got)
}

func TestRes_Heartbeat(t *testing.T) {
	hb := &Res{}
	assert.True(t, hb.IsHeartbeat())
	assert.Empty(t, hb.AppendProto(nil))

	var got Res
	require.NoError(t, got.UnmarshalProto(nil))
	assert.True(t, got.IsHeartbeat())

	assert.False(t, (&Res{Id: "x"}).IsHeartbeat())
	assert.False(t, (&Res{Result: &PurgeAck{}}).IsHeartbeat())
}

func TestRes_ShellOutputNegativeCode(t *testing.T) {
	r := &Res{Id: "a3", Result: &ShellOutput{Code: -1, Stderr: []byte("killed")}}

	var got Res
	require.NoError(t, got.UnmarshalProto(r.AppendProto(nil)))
	out, ok := got.Result.(*ShellOutput)
	require.True(t, ok)
	assert.Equal(t, int32(-1), out.Code)
	assert.Nil(t, out.Stdout)
	assert.Equal(t, []byte("killed"), out.Stderr)
}

func TestRes_ExecErrorIsAStringField(t *testing.T) {
	want := protowire.AppendTag(nil, 1, protowire.BytesType)
	want = protowire.AppendString(want, "a4")
	want = protowire.AppendTag(want, 5, protowire.BytesType)
	want = protowire.AppendString(want, "no such file")

	var got Res
	require.NoError(t, got.UnmarshalProto(want))
	assert.Equal(t, &ExecError{Message: "no such file"}, got.Result)
	assert.Equal(t, want, got.AppendProto(nil))
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := protowire.AppendTag(nil, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "a5")
	b = protowire.AppendTag(b, 98, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 1)

	var got Res
	require.NoError(t, got.UnmarshalProto(b))
	assert.Equal(t, "a5", got.Id)
}

func TestUnmarshal_WrongWireTypeFails(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	var got Action
	assert.Error(t, got.UnmarshalProto(b))
}

func TestUnmarshal_TruncatedFails(t *testing.T) {
	b := (&Action{Id: "a6", Command: &Ping{Ping: "hello"}}).AppendProto(nil)

	var got Action
	assert.Error(t, got.UnmarshalProto(b[:len(b)-2]))
}

func TestCodec_NotSSHAndFallback(t *testing.T) {
	c := encoding.GetCodecV2(protoenc.Name)
	require.NotNil(t, c)

	data, err := c.Marshal(&ShellRequest{Id: "agent", Cmd: "uptime"})
	require.NoError(t, err)
	var req ShellRequest
	require.NoError(t, c.Unmarshal(data, &req))
	assert.Equal(t, "agent", req.Id)
	assert.Equal(t, "uptime", req.Cmd)

	// Generated types still go through the stock codec
	data, err = c.Marshal(&healthpb.HealthCheckRequest{Service: "notssh.NotSSH"})
	require.NoError(t, err)
	var hc healthpb.HealthCheckRequest
	require.NoError(t, c.Unmarshal(data, &hc))
	assert.Equal(t, "notssh.NotSSH", hc.GetService())

	var empty PingResponse
	require.NoError(t, c.Unmarshal(mem.BufferSlice{}, &empty))
}
