package qfkh

import (
	"encoding/binary"

	"go.pqcnet.dev/core/pkg/pqc"
)

var ticketMagic = [4]byte{'Q', 'F', 'K', 'T'}
var capsuleMagic = [4]byte{'Q', 'F', 'K', 'C'}

// MarshalTicket encodes ticket as the mesh-publication envelope described in
// spec.md §6 and signs everything preceding the signature field with dsa
// under dsaSecretKey.
func MarshalTicket(ticket EpochTicket, dsa pqc.DSA, dsaSecretKey []byte) ([]byte, error) {
	if len(ticket.KemPublicKey) > 0xFFFF {
		return nil, newError(ErrInvalidInput, "kem public key too large to encode")
	}

	body := make([]byte, 0, 4+8+8+8+32+2+len(ticket.KemPublicKey))
	body = append(body, ticketMagic[:]...)
	body = appendUint64(body, ticket.Epoch)
	body = appendUint64(body, ticket.WindowStartMs)
	body = appendUint64(body, ticket.WindowEndMs)
	body = append(body, ticket.KeyId[:]...)
	body = appendUint16(body, uint16(len(ticket.KemPublicKey)))
	body = append(body, ticket.KemPublicKey...)

	sig, err := dsa.Sign(dsaSecretKey, body)
	if nil != err {
		return nil, wrapError(err, ErrPrimitiveFailure, "failed signing ticket envelope")
	}
	if len(sig) > 0xFFFF {
		return nil, newError(ErrInvalidInput, "signature too large to encode")
	}

	out := make([]byte, 0, len(body)+2+len(sig))
	out = append(out, body...)
	out = appendUint16(out, uint16(len(sig)))
	out = append(out, sig...)
	return out, nil
}

// UnmarshalTicket decodes and verifies a ticket envelope produced by
// MarshalTicket against dsaPublicKey.
func UnmarshalTicket(data []byte, dsa pqc.DSA, dsaPublicKey []byte) (EpochTicket, error) {
	r := reader{buf: data}

	magic, err := r.fixed(4)
	if nil != err {
		return EpochTicket{}, err
	}
	if string(magic) != string(ticketMagic[:]) {
		return EpochTicket{}, newError(ErrInvalidInput, "bad ticket magic")
	}

	bodyStart := r.pos - 4
	epoch, err := r.uint64()
	if nil != err {
		return EpochTicket{}, err
	}
	windowStart, err := r.uint64()
	if nil != err {
		return EpochTicket{}, err
	}
	windowEnd, err := r.uint64()
	if nil != err {
		return EpochTicket{}, err
	}
	keyIdBytes, err := r.fixed(32)
	if nil != err {
		return EpochTicket{}, err
	}
	pk, err := r.lenPrefixed16()
	if nil != err {
		return EpochTicket{}, err
	}
	bodyEnd := r.pos

	sig, err := r.lenPrefixed16()
	if nil != err {
		return EpochTicket{}, err
	}

	if err := dsa.Verify(dsaPublicKey, data[bodyStart:bodyEnd], sig); nil != err {
		return EpochTicket{}, wrapError(err, ErrCommitmentMismatch, "ticket signature verification failed")
	}

	var keyId KeyId
	copy(keyId[:], keyIdBytes)
	return EpochTicket{
		Epoch:         epoch,
		WindowStartMs: windowStart,
		WindowEndMs:   windowEnd,
		KeyId:         keyId,
		KemPublicKey:  pk,
	}, nil
}

// MarshalCapsule encodes capsule as the wire envelope described in spec.md §6.
func MarshalCapsule(capsule Capsule) ([]byte, error) {
	if len(capsule.Ciphertext) > 0xFFFF {
		return nil, newError(ErrInvalidInput, "ciphertext too large to encode")
	}

	out := make([]byte, 0, 4+8+32+2+len(capsule.Ciphertext)+32)
	out = append(out, capsuleMagic[:]...)
	out = appendUint64(out, capsule.Epoch)
	out = append(out, capsule.KeyId[:]...)
	out = appendUint16(out, uint16(len(capsule.Ciphertext)))
	out = append(out, capsule.Ciphertext...)
	out = append(out, capsule.Commitment[:]...)
	return out, nil
}

// UnmarshalCapsule decodes a capsule envelope produced by MarshalCapsule. It
// does not itself verify the commitment; callers pass the result to
// ActivateFrom, which does.
func UnmarshalCapsule(data []byte) (Capsule, error) {
	r := reader{buf: data}

	magic, err := r.fixed(4)
	if nil != err {
		return Capsule{}, err
	}
	if string(magic) != string(capsuleMagic[:]) {
		return Capsule{}, newError(ErrInvalidInput, "bad capsule magic")
	}

	epoch, err := r.uint64()
	if nil != err {
		return Capsule{}, err
	}
	keyIdBytes, err := r.fixed(32)
	if nil != err {
		return Capsule{}, err
	}
	ct, err := r.lenPrefixed16()
	if nil != err {
		return Capsule{}, err
	}
	commitment, err := r.fixed(32)
	if nil != err {
		return Capsule{}, err
	}

	var keyId KeyId
	copy(keyId[:], keyIdBytes)
	var commitArr [32]byte
	copy(commitArr[:], commitment)

	return Capsule{Epoch: epoch, KeyId: keyId, Ciphertext: ct, Commitment: commitArr}, nil
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// reader is a minimal little-endian cursor over an in-memory wire envelope.
type reader struct {
	buf []byte
	pos int
}

func (self *reader) fixed(n int) ([]byte, error) {
	if self.pos+n > len(self.buf) {
		return nil, newError(ErrInvalidInput, "truncated envelope")
	}
	out := self.buf[self.pos : self.pos+n]
	self.pos += n
	return out, nil
}

func (self *reader) uint64() (uint64, error) {
	b, err := self.fixed(8)
	if nil != err {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (self *reader) uint16() (uint16, error) {
	b, err := self.fixed(2)
	if nil != err {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (self *reader) lenPrefixed16() ([]byte, error) {
	n, err := self.uint16()
	if nil != err {
		return nil, err
	}
	return self.fixed(int(n))
}
