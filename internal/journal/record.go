package journal

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Op identifies the cache mutation a record carries.
type Op uint8

const (
	OpPut    Op = 1
	OpDelete Op = 2
)

// Record is one logged cache mutation. Replaying records in append order
// rebuilds both the contents and the recency order of the cache.
type Record struct {
	Op    Op
	Key   string
	Value []byte
}

// Protobuf field numbers of the on-disk record message.
const (
	fieldOp    protowire.Number = 1
	fieldKey   protowire.Number = 2
	fieldValue protowire.Number = 3
)

// marshal encodes r in protobuf wire format. Zero-valued fields are
// omitted, matching what a generated message would produce.
func marshal(r Record) []byte {
	b := protowire.AppendTag(nil, fieldOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Op))
	if r.Key != "" {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, r.Key)
	}
	if len(r.Value) > 0 {
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Value)
	}
	return b
}

// unmarshal decodes a record from protobuf wire format. Unknown fields are
// skipped so that older binaries can still read journals written by newer
// ones.
func unmarshal(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("failed to decode record tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldOp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("failed to decode record op: %w", protowire.ParseError(n))
			}
			r.Op = Op(v)
			b = b[n:]
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("failed to decode record key: %w", protowire.ParseError(n))
			}
			r.Key = string(v)
			b = b[n:]
		case num == fieldValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("failed to decode record value: %w", protowire.ParseError(n))
			}
			r.Value = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("failed to skip record field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}
