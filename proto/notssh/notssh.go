// ABOUTME: Go bindings for the agent-facing messages of notssh.proto
// ABOUTME: Command and result frames are oneofs modelled as sealed interfaces

package notssh

import "google.golang.org/protobuf/encoding/protowire"

// RegisterRequest is sent by an agent to obtain or confirm its identity.
// A previously issued id travels in the x-client-id metadata header.
type RegisterRequest struct{}

func (m *RegisterRequest) AppendProto(b []byte) []byte { return b }

func (m *RegisterRequest) UnmarshalProto(b []byte) error {
	*m = RegisterRequest{}
	return walkFields(b, func(field) error { return nil })
}

// RegisterResponse carries the issued or confirmed agent id.
type RegisterResponse struct {
	Id string
}

func (m *RegisterResponse) GetId() string {
	if m == nil {
		return ""
	}
	return m.Id
}

func (m *RegisterResponse) AppendProto(b []byte) []byte {
	return appendString(b, 1, m.Id)
}

func (m *RegisterResponse) UnmarshalProto(b []byte) error {
	*m = RegisterResponse{}
	return walkFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			m.Id, err = f.str()
		}
		return err
	})
}

// ActionCommand is one of *Ping, *Purge or *Shell.
type ActionCommand interface {
	Message
	isActionCommand()
}

// Ping asks the agent to echo Ping back.
type Ping struct {
	Ping string
}

// Purge asks the agent to remove its traces and terminate.
type Purge struct{}

// Shell asks the agent to run Cmd with Args, feeding Stdin.
type Shell struct {
	Cmd   string
	Args  []string
	Stdin []byte
}

func (*Ping) isActionCommand()  {}
func (*Purge) isActionCommand() {}
func (*Shell) isActionCommand() {}

func (m *Ping) AppendProto(b []byte) []byte { return appendString(b, 1, m.Ping) }

func (m *Ping) UnmarshalProto(b []byte) error {
	*m = Ping{}
	return walkFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			m.Ping, err = f.str()
		}
		return err
	})
}

func (m *Purge) AppendProto(b []byte) []byte { return b }

func (m *Purge) UnmarshalProto(b []byte) error {
	*m = Purge{}
	return walkFields(b, func(field) error { return nil })
}

func (m *Shell) AppendProto(b []byte) []byte {
	b = appendString(b, 1, m.Cmd)
	b = appendRepeatedString(b, 2, m.Args)
	return appendBytes(b, 3, m.Stdin)
}

func (m *Shell) UnmarshalProto(b []byte) error {
	*m = Shell{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.str()
			m.Cmd = v
			return err
		case 2:
			v, err := f.str()
			m.Args = append(m.Args, v)
			return err
		case 3:
			v, err := f.bytes()
			m.Stdin = v
			return err
		}
		return nil
	})
}

// Action is a command frame sent from the gateway to an agent.
type Action struct {
	Id      string
	Command ActionCommand
}

func (m *Action) GetId() string {
	if m == nil {
		return ""
	}
	return m.Id
}

func (m *Action) GetPing() *Ping {
	if m == nil {
		return nil
	}
	v, _ := m.Command.(*Ping)
	return v
}

func (m *Action) GetPurge() *Purge {
	if m == nil {
		return nil
	}
	v, _ := m.Command.(*Purge)
	return v
}

func (m *Action) GetShell() *Shell {
	if m == nil {
		return nil
	}
	v, _ := m.Command.(*Shell)
	return v
}

func (m *Action) AppendProto(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	switch c := m.Command.(type) {
	case *Ping:
		b = appendMessage(b, 2, c)
	case *Purge:
		b = appendMessage(b, 3, c)
	case *Shell:
		b = appendMessage(b, 4, c)
	}
	return b
}

func (m *Action) UnmarshalProto(b []byte) error {
	*m = Action{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.str()
			m.Id = v
			return err
		case 2:
			c := &Ping{}
			m.Command = c
			return f.message(c)
		case 3:
			c := &Purge{}
			m.Command = c
			return f.message(c)
		case 4:
			c := &Shell{}
			m.Command = c
			return f.message(c)
		}
		return nil
	})
}

// ResResult is one of *Pong, *PurgeAck, *ShellOutput or *ExecError.
type ResResult interface {
	isResResult()
}

// Pong echoes a Ping.
type Pong struct {
	Pong string
}

// PurgeAck acknowledges a Purge.
type PurgeAck struct{}

// ShellOutput is the outcome of a Shell command.
type ShellOutput struct {
	Code   int32
	Stdout []byte
	Stderr []byte
}

// ExecError reports that the agent could not carry out the command at all.
type ExecError struct {
	Message string
}

func (*Pong) isResResult()        {}
func (*PurgeAck) isResResult()    {}
func (*ShellOutput) isResResult() {}
func (*ExecError) isResResult()   {}

func (m *Pong) AppendProto(b []byte) []byte { return appendString(b, 1, m.Pong) }

func (m *Pong) UnmarshalProto(b []byte) error {
	*m = Pong{}
	return walkFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			m.Pong, err = f.str()
		}
		return err
	})
}

func (m *PurgeAck) AppendProto(b []byte) []byte { return b }

func (m *PurgeAck) UnmarshalProto(b []byte) error {
	*m = PurgeAck{}
	return walkFields(b, func(field) error { return nil })
}

func (m *ShellOutput) AppendProto(b []byte) []byte {
	b = appendInt32(b, 1, m.Code)
	b = appendBytes(b, 2, m.Stdout)
	return appendBytes(b, 3, m.Stderr)
}

func (m *ShellOutput) UnmarshalProto(b []byte) error {
	*m = ShellOutput{}
	return walkFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.Code, err = f.int32()
		case 2:
			m.Stdout, err = f.bytes()
		case 3:
			m.Stderr, err = f.bytes()
		}
		return err
	})
}

// Res is a frame sent from an agent to the gateway. With an empty Id and a
// nil Result it is a heartbeat.
type Res struct {
	Id     string
	Result ResResult
}

func (m *Res) GetId() string {
	if m == nil {
		return ""
	}
	return m.Id
}

// IsHeartbeat reports whether the frame carries neither an id nor a result.
func (m *Res) IsHeartbeat() bool {
	return m != nil && m.Id == "" && m.Result == nil
}

func (m *Res) AppendProto(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	switch r := m.Result.(type) {
	case *Pong:
		b = appendMessage(b, 2, r)
	case *PurgeAck:
		b = appendMessage(b, 3, r)
	case *ShellOutput:
		b = appendMessage(b, 4, r)
	case *ExecError:
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, r.Message)
	}
	return b
}

func (m *Res) UnmarshalProto(b []byte) error {
	*m = Res{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.str()
			m.Id = v
			return err
		case 2:
			r := &Pong{}
			m.Result = r
			return f.message(r)
		case 3:
			r := &PurgeAck{}
			m.Result = r
			return f.message(r)
		case 4:
			r := &ShellOutput{}
			m.Result = r
			return f.message(r)
		case 5:
			v, err := f.str()
			m.Result = &ExecError{Message: v}
			return err
		}
		return nil
	})
}
