package events

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the canonical wire encoding of Event. Stable across
// versions; append-only.
const (
	fieldCreatorID    = 1
	fieldSelfParent   = 2
	fieldOtherParent  = 3
	fieldGeneration   = 4
	fieldBirthRound   = 5
	fieldTimeCreated  = 6
	fieldTransactions = 7
	fieldSignature    = 8

	descFieldHash       = 1
	descFieldGeneration = 2
	descFieldBirthRound = 3
	descFieldCreatorID  = 4
)

// EncodeEvent produces the canonical protobuf-wire encoding of an event,
// excluding Hash and Signature unconditionally: this is the encoding that
// gets signed and the encoding the hash is derived from, and both must
// stay stable regardless of whether Signature has been populated yet by
// the time this is called (spec.md §3: "signature verifies under the
// creator's public key"; the hash must not depend on the signature it
// commits to). Use EncodeEventWithSignature to persist the full event.
func EncodeEvent(e *Event) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCreatorID, protowire.BytesType)
	b = protowire.AppendBytes(b, e.CreatorID[:])

	if e.SelfParent != nil {
		b = protowire.AppendTag(b, fieldSelfParent, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeDescriptor(*e.SelfParent))
	}
	if e.OtherParent != nil {
		b = protowire.AppendTag(b, fieldOtherParent, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeDescriptor(*e.OtherParent))
	}

	b = protowire.AppendTag(b, fieldGeneration, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Generation)

	b = protowire.AppendTag(b, fieldBirthRound, protowire.VarintType)
	b = protowire.AppendVarint(b, e.BirthRound)

	b = protowire.AppendTag(b, fieldTimeCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.TimeCreated.UnixNano()))

	for _, tx := range e.Transactions {
		b = protowire.AppendTag(b, fieldTransactions, protowire.BytesType)
		b = protowire.AppendBytes(b, tx)
	}

	return b
}

// EncodeEventWithSignature appends the canonical encoding with Signature,
// for persistence (PCES records) and gossip — contexts that need the full
// event, as opposed to the value that was hashed and signed.
func EncodeEventWithSignature(e *Event) []byte {
	b := EncodeEvent(e)
	if len(e.Signature) > 0 {
		b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Signature)
	}
	return b
}

func encodeDescriptor(d Descriptor) []byte {
	var b []byte
	b = protowire.AppendTag(b, descFieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Hash[:])
	b = protowire.AppendTag(b, descFieldGeneration, protowire.VarintType)
	b = protowire.AppendVarint(b, d.Generation)
	b = protowire.AppendTag(b, descFieldBirthRound, protowire.VarintType)
	b = protowire.AppendVarint(b, d.BirthRound)
	b = protowire.AppendTag(b, descFieldCreatorID, protowire.BytesType)
	b = protowire.AppendBytes(b, d.CreatorID[:])
	return b
}

// DecodeEvent parses the canonical wire encoding produced by EncodeEvent.
// The returned event's Hash is left zero; callers rehash to verify identity.
func DecodeEvent(data []byte) (*Event, error) {
	e := &Event{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("events: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldCreatorID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad creatorId: %w", protowire.ParseError(n))
			}
			copy(e.CreatorID[:], v)
			data = data[n:]
		case fieldSelfParent:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad selfParent: %w", protowire.ParseError(n))
			}
			d, err := decodeDescriptor(v)
			if err != nil {
				return nil, err
			}
			e.SelfParent = d
			data = data[n:]
		case fieldOtherParent:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad otherParent: %w", protowire.ParseError(n))
			}
			d, err := decodeDescriptor(v)
			if err != nil {
				return nil, err
			}
			e.OtherParent = d
			data = data[n:]
		case fieldGeneration:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad generation: %w", protowire.ParseError(n))
			}
			e.Generation = v
			data = data[n:]
		case fieldBirthRound:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad birthRound: %w", protowire.ParseError(n))
			}
			e.BirthRound = v
			data = data[n:]
		case fieldTimeCreated:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad timeCreated: %w", protowire.ParseError(n))
			}
			e.TimeCreated = time.Unix(0, int64(v)).UTC()
			data = data[n:]
		case fieldTransactions:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad transaction: %w", protowire.ParseError(n))
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			e.Transactions = append(e.Transactions, cp)
			data = data[n:]
		case fieldSignature:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad signature: %w", protowire.ParseError(n))
			}
			e.Signature = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return e, nil
}

func decodeDescriptor(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("events: bad descriptor tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case descFieldHash:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad descriptor hash: %w", protowire.ParseError(n))
			}
			copy(d.Hash[:], v)
			data = data[n:]
		case descFieldGeneration:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad descriptor generation: %w", protowire.ParseError(n))
			}
			d.Generation = v
			data = data[n:]
		case descFieldBirthRound:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad descriptor birthRound: %w", protowire.ParseError(n))
			}
			d.BirthRound = v
			data = data[n:]
		case descFieldCreatorID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad descriptor creatorId: %w", protowire.ParseError(n))
			}
			copy(d.CreatorID[:], v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("events: bad descriptor field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return d, nil
}
