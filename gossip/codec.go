package gossip

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

/*
Wire format

Messages use the protobuf wire format, written field by field with protowire
so no generated code is needed:

	MembershipMessage { 1: type varint; 2: sender EndPoint; 3: heartbeat varint; 4: repeated Entry }
	EndPoint          { 1: host string; 2: port varint }
	Entry             { 1: endpoint EndPoint; 2: heartbeat varint; 3: timestamp varint }

Unknown fields are skipped on decode, so newer senders can add fields.
*/

const (
	fieldMessageType      protowire.Number = 1
	fieldMessageSender    protowire.Number = 2
	fieldMessageHeartbeat protowire.Number = 3
	fieldMessageMembers   protowire.Number = 4

	fieldEndPointHost protowire.Number = 1
	fieldEndPointPort protowire.Number = 2

	fieldEntryEndPoint  protowire.Number = 1
	fieldEntryHeartbeat protowire.Number = 2
	fieldEntryTimestamp protowire.Number = 3
)

// Marshal encodes m with its full snapshot
func Marshal(m *MembershipMessage) ([]byte, error) {
	b, _, err := MarshalCapped(m, 0)
	return b, err
}

// MarshalCapped encodes m keeping the result within maxSize bytes (0 means no
// cap). Snapshot entries that do not fit are left out, in order, and the
// number of entries written is returned.
func MarshalCapped(m *MembershipMessage, maxSize int) ([]byte, int, error) {
	if m == nil {
		return nil, 0, fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	if !m.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownMessageType, m.Type)
	}

	var b []byte
	b = protowire.AppendTag(b, fieldMessageType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, fieldMessageSender, protowire.BytesType)
	b = protowire.AppendBytes(b, appendEndPoint(nil, m.Sender))
	b = protowire.AppendTag(b, fieldMessageHeartbeat, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Heartbeat))

	if maxSize > 0 && len(b) > maxSize {
		return nil, 0, fmt.Errorf("%w: header is %d bytes, cap %d", ErrMessageTooLarge, len(b), maxSize)
	}

	written := 0
	for _, e := range m.Members {
		var field []byte
		field = protowire.AppendTag(field, fieldMessageMembers, protowire.BytesType)
		field = protowire.AppendBytes(field, appendEntry(nil, e))
		if maxSize > 0 && len(b)+len(field) > maxSize {
			break
		}
		b = append(b, field...)
		written++
	}
	return b, written, nil
}

func appendEndPoint(b []byte, ep EndPoint) []byte {
	b = protowire.AppendTag(b, fieldEndPointHost, protowire.BytesType)
	b = protowire.AppendString(b, ep.Host)
	b = protowire.AppendTag(b, fieldEndPointPort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ep.Port))
	return b
}

func appendEntry(b []byte, e MemberListEntry) []byte {
	b = protowire.AppendTag(b, fieldEntryEndPoint, protowire.BytesType)
	b = protowire.AppendBytes(b, appendEndPoint(nil, e.EndPoint))
	b = protowire.AppendTag(b, fieldEntryHeartbeat, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Heartbeat))
	b = protowire.AppendTag(b, fieldEntryTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	return b
}

// Unmarshal decodes one datagram. It matches transport.Decoder.
func Unmarshal(b []byte) (*MembershipMessage, error) {
	m := &MembershipMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMessageType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Type = MessageType(v)
			return n, nil
		case num == fieldMessageSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ep, err := unmarshalEndPoint(v)
			m.Sender = ep
			return n, err
		case num == fieldMessageHeartbeat && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Heartbeat = int64(v)
			return n, nil
		case num == fieldMessageMembers && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			e, err := unmarshalEntry(v)
			m.Members = append(m.Members, e)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}

	if !m.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, int32(m.Type))
	}
	if err := m.Sender.Validate(); err != nil {
		return nil, fmt.Errorf("%w: sender: %w", ErrMalformedMessage, err)
	}
	return m, nil
}

func unmarshalEndPoint(b []byte) (EndPoint, error) {
	var ep EndPoint
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldEndPointHost && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			ep.Host = v
			return n, nil
		case num == fieldEndPointPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ep.Port = int(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return ep, err
}

func unmarshalEntry(b []byte) (MemberListEntry, error) {
	var e MemberListEntry
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldEntryEndPoint && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ep, err := unmarshalEndPoint(v)
			e.EndPoint = ep
			return n, err
		case num == fieldEntryHeartbeat && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			e.Heartbeat = int64(v)
			return n, nil
		case num == fieldEntryTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			e.Timestamp = int64(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return e, err
	}
	if err := e.EndPoint.Validate(); err != nil {
		return e, fmt.Errorf("%w: entry: %w", ErrMalformedMessage, err)
	}
	return e, nil
}

// walkFields calls fn for each field of b. fn consumes the field value and
// returns its length, negative on a protowire parse error.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformedMessage, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
