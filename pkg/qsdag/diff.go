package qsdag

import (
	"bytes"
	"encoding/binary"

	"go.pqcnet.dev/core/pkg/pqc"
)

// DiffId is the 32-byte content address of a StateDiff.
type DiffId [32]byte

// OpTag distinguishes an upsert from a tombstone in a StateDiff's op list.
type OpTag byte

const (
	OpUpsert OpTag = 0x01
	OpRemove OpTag = 0x02
)

// StateOp is one key/value mutation folded into a Snapshot. Value is nil for
// OpRemove.
type StateOp struct {
	Tag   OpTag
	Key   []byte
	Value []byte
}

// StateDiff is one append-only, content-addressed node of the diff graph.
// Id is the domain-separated hash of the canonical encoding of every other
// field; any change to Author, Parents, Lamport or Ops changes Id.
type StateDiff struct {
	Id      DiffId
	Author  []byte
	Parents []DiffId
	Lamport uint64
	Ops     []StateOp
}

// ComputeId returns the content address of self, ignoring its own Id field.
// Callers constructing a new StateDiff should set Id to this value before
// inserting it into a Dag.
func (self StateDiff) ComputeId() (DiffId, error) {
	body, err := self.canonicalEncoding()
	if nil != err {
		return DiffId{}, err
	}
	return DiffId(pqc.Hash("QSDG/v1", body)), nil
}

// hasSelfParent reports whether self.Parents contains self.Id — only
// meaningful once Id has been assigned.
func (self StateDiff) hasSelfParent() bool {
	for _, p := range self.Parents {
		if p == self.Id {
			return true
		}
	}
	return false
}

// canonicalEncoding returns the wire-format body the content address is
// computed over: author_len(2) || author || parents_count(2) || parent
// ids(32 each) || lamport(8) || ops_count(4) || ops.
func (self StateDiff) canonicalEncoding() ([]byte, error) {
	if len(self.Author) > 0xFFFF {
		return nil, newError(ErrInvalidInput, "author too large to encode")
	}
	if len(self.Parents) > 0xFFFF {
		return nil, newError(ErrInvalidInput, "too many parents to encode")
	}
	if len(self.Ops) > 0xFFFFFFFF {
		return nil, newError(ErrInvalidInput, "too many ops to encode")
	}

	var buf bytes.Buffer
	writeUint16(&buf, uint16(len(self.Author)))
	buf.Write(self.Author)

	writeUint16(&buf, uint16(len(self.Parents)))
	for _, p := range self.Parents {
		buf.Write(p[:])
	}

	writeUint64(&buf, self.Lamport)
	writeUint32(&buf, uint32(len(self.Ops)))

	for _, op := range self.Ops {
		switch op.Tag {
		case OpUpsert:
			buf.WriteByte(byte(OpUpsert))
			if len(op.Key) > 0xFFFF {
				return nil, newError(ErrInvalidInput, "op key too large to encode")
			}
			writeUint16(&buf, uint16(len(op.Key)))
			buf.Write(op.Key)
			if len(op.Value) > 0xFFFFFFFF {
				return nil, newError(ErrInvalidInput, "op value too large to encode")
			}
			writeUint32(&buf, uint32(len(op.Value)))
			buf.Write(op.Value)
		case OpRemove:
			buf.WriteByte(byte(OpRemove))
			if len(op.Key) > 0xFFFF {
				return nil, newError(ErrInvalidInput, "op key too large to encode")
			}
			writeUint16(&buf, uint16(len(op.Key)))
			buf.Write(op.Key)
		default:
			return nil, newError(ErrInvalidInput, "unknown op tag %d", op.Tag)
		}
	}

	return buf.Bytes(), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
