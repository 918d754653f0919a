// ABOUTME: CBOR encoding of action results for the actions.result column
// ABOUTME: Deterministic encoding tagged with the command kind so results round-trip exactly

package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: the same result always
// produces identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// resultDoc is the stored shape of every Result variant.
type resultDoc struct {
	Kind   CommandKind `cbor:"1,keyasint"`
	Data   string      `cbor:"2,keyasint,omitempty"`
	Code   int32       `cbor:"3,keyasint,omitempty"`
	Stdout []byte      `cbor:"4,keyasint,omitempty"`
	Stderr []byte      `cbor:"5,keyasint,omitempty"`
}

// EncodeResult serializes a result for storage. A nil result encodes to nil.
func EncodeResult(r Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	doc := resultDoc{Kind: r.Kind()}
	switch v := r.(type) {
	case PongResult:
		doc.Data = v.Data
	case PurgeResult:
	case ShellResult:
		doc.Code = v.Code
		doc.Stdout = v.Stdout
		doc.Stderr = v.Stderr
	default:
		return nil, fmt.Errorf("encoding result: unsupported type %T", r)
	}
	return encMode.Marshal(doc)
}

// DecodeResult parses bytes produced by EncodeResult. Empty input decodes to nil.
func DecodeResult(b []byte) (Result, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var doc resultDoc
	if err := decMode.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	switch doc.Kind {
	case KindPing:
		return PongResult{Data: doc.Data}, nil
	case KindPurge:
		return PurgeResult{}, nil
	case KindShell:
		return ShellResult{Code: doc.Code, Stdout: doc.Stdout, Stderr: doc.Stderr}, nil
	}
	return nil, fmt.Errorf("decoding result: unknown kind %q", doc.Kind)
}
