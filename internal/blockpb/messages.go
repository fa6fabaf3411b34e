package blockpb

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolVersion is the version written into every message.
const ProtocolVersion = 1

// ErrUnsupportedVersion is returned when decoding a message from a newer
// protocol version.
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

const (
	fieldVersion protowire.Number = 1

	fieldRequestStart  protowire.Number = 2
	fieldRequestLength protowire.Number = 3

	fieldResponseAvailable protowire.Number = 2
	fieldResponseValues    protowire.Number = 3
	fieldResponseParity    protowire.Number = 4
)

// FetchRequest asks for Length bytes starting at Start.
type FetchRequest struct {
	Version uint32
	Start   uint64
	Length  uint64
}

// FetchResponse answers one FetchRequest. When Available is false the range
// currently fails parity on the serving node and Values/Parity are empty.
// Parity holds one entry (0 or 1) per value.
type FetchResponse struct {
	Version   uint32
	Available bool
	Values    []byte
	Parity    []byte
}

// Marshal encodes m in protobuf wire format.
func (m *FetchRequest) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, fieldVersion, uint64(m.Version))
	b = appendVarintField(b, fieldRequestStart, m.Start)
	b = appendVarintField(b, fieldRequestLength, m.Length)
	return b
}

// Unmarshal decodes b into m.
func (m *FetchRequest) Unmarshal(b []byte) error {
	*m = FetchRequest{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldVersion:
			v, n, err := consumeVarintField(typ, b)
			m.Version = uint32(v)
			return n, err
		case fieldRequestStart:
			v, n, err := consumeVarintField(typ, b)
			m.Start = v
			return n, err
		case fieldRequestLength:
			v, n, err := consumeVarintField(typ, b)
			m.Length = v
			return n, err
		}
		return -1, nil
	})
	if err != nil {
		return fmt.Errorf("fetch request: %w", err)
	}
	return checkVersion(m.Version)
}

// Marshal encodes m in protobuf wire format.
func (m *FetchResponse) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, fieldVersion, uint64(m.Version))
	b = appendVarintField(b, fieldResponseAvailable, protowire.EncodeBool(m.Available))
	if len(m.Values) > 0 {
		b = protowire.AppendTag(b, fieldResponseValues, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Values)
	}
	if len(m.Parity) > 0 {
		b = protowire.AppendTag(b, fieldResponseParity, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Parity)
	}
	return b
}

// Unmarshal decodes b into m.
func (m *FetchResponse) Unmarshal(b []byte) error {
	*m = FetchResponse{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldVersion:
			v, n, err := consumeVarintField(typ, b)
			m.Version = uint32(v)
			return n, err
		case fieldResponseAvailable:
			v, n, err := consumeVarintField(typ, b)
			m.Available = protowire.DecodeBool(v)
			return n, err
		case fieldResponseValues:
			v, n, err := consumeBytesField(typ, b)
			m.Values = v
			return n, err
		case fieldResponseParity:
			v, n, err := consumeBytesField(typ, b)
			m.Parity = v
			return n, err
		}
		return -1, nil
	})
	if err != nil {
		return fmt.Errorf("fetch response: %w", err)
	}
	return checkVersion(m.Version)
}

func checkVersion(v uint32) error {
	if v > ProtocolVersion {
		return fmt.Errorf("%w: %d (supported %d)", ErrUnsupportedVersion, v, ProtocolVersion)
	}
	return nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// consumeFields walks every field in b. fn returns the number of bytes it
// consumed, or -1 for fields it does not know, which are skipped.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeVarintField(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytesField(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return append([]byte(nil), v...), n, nil
}
