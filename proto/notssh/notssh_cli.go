// ABOUTME: Go bindings for the operator-facing messages of notssh_cli.proto
// ABOUTME: List, Ping, Purge and Shell request/response pairs for the control socket

package notssh

type ListRequest struct{}

func (m *ListRequest) AppendProto(b []byte) []byte { return b }

func (m *ListRequest) UnmarshalProto(b []byte) error {
	*m = ListRequest{}
	return walkFields(b, func(field) error { return nil })
}

// ClientInfo is one row of ListResponse.
type ClientInfo struct {
	Id        string
	Connected bool
	Address   string
}

func (m *ClientInfo) AppendProto(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	b = appendBool(b, 2, m.Connected)
	return appendString(b, 3, m.Address)
}

func (m *ClientInfo) UnmarshalProto(b []byte) error {
	*m = ClientInfo{}
	return walkFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.Id, err = f.str()
		case 2:
			m.Connected, err = f.bool()
		case 3:
			m.Address, err = f.str()
		}
		return err
	})
}

type ListResponse struct {
	Clients []*ClientInfo
}

func (m *ListResponse) AppendProto(b []byte) []byte {
	for _, c := range m.Clients {
		b = appendMessage(b, 1, c)
	}
	return b
}

func (m *ListResponse) UnmarshalProto(b []byte) error {
	*m = ListResponse{}
	return walkFields(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		c := &ClientInfo{}
		if err := f.message(c); err != nil {
			return err
		}
		m.Clients = append(m.Clients, c)
		return nil
	})
}

type PingRequest struct {
	Id string
}

func (m *PingRequest) AppendProto(b []byte) []byte { return appendString(b, 1, m.Id) }

func (m *PingRequest) UnmarshalProto(b []byte) error {
	*m = PingRequest{}
	return walkFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			m.Id, err = f.str()
		}
		return err
	})
}

type PingResponse struct{}

func (m *PingResponse) AppendProto(b []byte) []byte { return b }

func (m *PingResponse) UnmarshalProto(b []byte) error {
	*m = PingResponse{}
	return walkFields(b, func(field) error { return nil })
}

type PurgeRequest struct {
	Id string
}

func (m *PurgeRequest) AppendProto(b []byte) []byte { return appendString(b, 1, m.Id) }

func (m *PurgeRequest) UnmarshalProto(b []byte) error {
	*m = PurgeRequest{}
	return walkFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			m.Id, err = f.str()
		}
		return err
	})
}

type PurgeResponse struct {
	Text string
}

func (m *PurgeResponse) AppendProto(b []byte) []byte { return appendString(b, 1, m.Text) }

func (m *PurgeResponse) UnmarshalProto(b []byte) error {
	*m = PurgeResponse{}
	return walkFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			m.Text, err = f.str()
		}
		return err
	})
}

type ShellRequest struct {
	Id    string
	Cmd   string
	Args  []string
	Stdin []byte
}

func (m *ShellRequest) AppendProto(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	b = appendString(b, 2, m.Cmd)
	b = appendRepeatedString(b, 3, m.Args)
	return appendBytes(b, 4, m.Stdin)
}

func (m *ShellRequest) UnmarshalProto(b []byte) error {
	*m = ShellRequest{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.str()
			m.Id = v
			return err
		case 2:
			v, err := f.str()
			m.Cmd = v
			return err
		case 3:
			v, err := f.str()
			m.Args = append(m.Args, v)
			return err
		case 4:
			v, err := f.bytes()
			m.Stdin = v
			return err
		}
		return nil
	})
}

type ShellResponse struct {
	Stdout []byte
	Stderr []byte
	Code   int32
}

func (m *ShellResponse) AppendProto(b []byte) []byte {
	b = appendBytes(b, 1, m.Stdout)
	b = appendBytes(b, 2, m.Stderr)
	return appendInt32(b, 3, m.Code)
}

func (m *ShellResponse) UnmarshalProto(b []byte) error {
	*m = ShellResponse{}
	return walkFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.Stdout, err = f.bytes()
		case 2:
			m.Stderr, err = f.bytes()
		case 3:
			m.Code, err = f.int32()
		}
		return err
	})
}
