package replication

import (
	"fmt"

	"github.com/kerilib/telix"
	"google.golang.org/protobuf/encoding/protowire"
)

func kindFromWire(v uint64) telix.VerifiableEventKind {
	if v == uint64(telix.VerifiableVCEvent) {
		return telix.VerifiableVCEvent
	}
	return telix.VerifiableManagerEvent
}

// Field numbers for the hand-rolled EventEnvelope wire message. There is no
// generated package for this envelope (it exists only inside this
// replication layer, not as a cross-language schema), so it is built and
// parsed directly against the low-level protowire primitives rather than
// through protoc-generated bindings — the same wire format, written by hand.
const (
	fieldKind          protowire.Number = 1
	fieldID            protowire.Number = 2
	fieldRaw           protowire.Number = 3
	fieldCorrelationID protowire.Number = 4
	fieldTimestamp     protowire.Number = 5
)

// marshalEnvelope renders env as a length-delimited protobuf message:
// varint kind, bytes id, bytes raw, bytes correlation id, bytes timestamp
// (the last field is omitted on the wire when empty).
func marshalEnvelope(env EventEnvelope) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldKind, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(env.Kind))
	out = protowire.AppendTag(out, fieldID, protowire.BytesType)
	out = protowire.AppendString(out, env.ID)
	out = protowire.AppendTag(out, fieldRaw, protowire.BytesType)
	out = protowire.AppendBytes(out, env.Raw)
	out = protowire.AppendTag(out, fieldCorrelationID, protowire.BytesType)
	out = protowire.AppendString(out, env.CorrelationID)
	if env.Timestamp != "" {
		out = protowire.AppendTag(out, fieldTimestamp, protowire.BytesType)
		out = protowire.AppendString(out, env.Timestamp)
	}
	return out
}

// unmarshalEnvelope parses data produced by marshalEnvelope, tolerating
// fields in any order or absent (zero-valued), as a real protobuf parser
// must.
func unmarshalEnvelope(data []byte) (EventEnvelope, error) {
	var env EventEnvelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return EventEnvelope{}, fmt.Errorf("replication: consume tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return EventEnvelope{}, fmt.Errorf("replication: consume kind: %w", protowire.ParseError(n))
			}
			env.Kind = kindFromWire(v)
			data = data[n:]
		case fieldID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return EventEnvelope{}, fmt.Errorf("replication: consume id: %w", protowire.ParseError(n))
			}
			env.ID = string(v)
			data = data[n:]
		case fieldRaw:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return EventEnvelope{}, fmt.Errorf("replication: consume raw: %w", protowire.ParseError(n))
			}
			env.Raw = append([]byte(nil), v...)
			data = data[n:]
		case fieldCorrelationID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return EventEnvelope{}, fmt.Errorf("replication: consume correlation id: %w", protowire.ParseError(n))
			}
			env.CorrelationID = string(v)
			data = data[n:]
		case fieldTimestamp:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return EventEnvelope{}, fmt.Errorf("replication: consume timestamp: %w", protowire.ParseError(n))
			}
			env.Timestamp = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return EventEnvelope{}, fmt.Errorf("replication: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return env, nil
}
