// ABOUTME: Low-level protobuf wire helpers shared by the notssh message types
// ABOUTME: Encodes proto3 scalars and walks fields with protowire, skipping unknown ones

package notssh

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every notssh wire type. Encoding follows the
// proto3 rules of notssh.proto and notssh_cli.proto, so the bytes are
// interchangeable with any generated protobuf binding of those schemas.
type Message interface {
	AppendProto(b []byte) []byte
	UnmarshalProto(b []byte) error
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendRepeatedString(b []byte, num protowire.Number, vs []string) []byte {
	for _, s := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

// appendMessage always emits the field, even for an empty sub-message:
// oneof members carry presence.
func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendProto(nil))
}

// field is one decoded key/value pair. Only varint and length-delimited
// fields are surfaced; other wire types are skipped by walkFields.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	data   []byte
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("notssh: field %d: wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func (f field) str() (string, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.data), nil
}

// bytes returns a copy; the decode buffer is owned by the transport.
func (f field) bytes() ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	if len(f.data) == 0 {
		return nil, nil
	}
	return append([]byte(nil), f.data...), nil
}

func (f field) int32() (int32, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	return int32(f.varint), nil
}

func (f field) bool() (bool, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return false, err
	}
	return protowire.DecodeBool(f.varint), nil
}

func (f field) message(m Message) error {
	if err := f.expect(protowire.BytesType); err != nil {
		return err
	}
	return m.UnmarshalProto(f.data)
}

func walkFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("notssh: reading tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("notssh: field %d: %w", num, protowire.ParseError(n))
			}
			f.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("notssh: field %d: %w", num, protowire.ParseError(n))
			}
			f.data = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("notssh: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
