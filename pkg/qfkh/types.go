package qfkh

import (
	"encoding/binary"

	"go.pqcnet.dev/core/pkg/pqc"
)

// KeyId is a 32-byte opaque identifier, equal to a domain-separated hash of
// the owning public key and a monotonic salt. Each epoch's keypair has its
// own KeyId, so a rotation to a new keypair yields a new KeyId.
type KeyId [32]byte

func deriveKeyId(pk []byte, salt uint64) KeyId {
	var saltBuf [8]byte
	binary.LittleEndian.PutUint64(saltBuf[:], salt)
	return KeyId(pqc.Hash("QFKH-key-id", pk, saltBuf[:]))
}

// EpochTicket is an immutable announcement of a rotation slot: a responder's
// public key for a given epoch, published once the epoch's keypair has been
// generated and held.
type EpochTicket struct {
	Epoch         uint64
	WindowStartMs uint64
	WindowEndMs   uint64
	KeyId         KeyId
	KemPublicKey  []byte
}

// Capsule is a client response that installs the shared secret for a ticket's
// epoch. It is transient: consumed once by activate_from.
type Capsule struct {
	Epoch      uint64
	KeyId      KeyId
	Ciphertext []byte
	Commitment [32]byte
}

func computeCommitment(keyId KeyId, ciphertext []byte, epoch uint64) [32]byte {
	var epochLE [8]byte
	binary.LittleEndian.PutUint64(epochLE[:], epoch)
	return pqc.Hash("QFKH-commit", keyId[:], ciphertext, epochLE[:])
}

// SessionKeys are the keys and nonce prefixes derived from one rotation hop.
// Initiator and responder derive send/recv in mirrored roles: the
// initiator's send_key equals the responder's recv_key and vice versa, but
// both sides derive an identical SessionId.
type SessionKeys struct {
	SendKey         [32]byte
	RecvKey         [32]byte
	TupleKey        [32]byte
	SessionId       [32]byte
	SendNoncePrefix [12]byte
	RecvNoncePrefix [12]byte
}

// sessionExpansionSize is the length of the single XOF expansion a rotation
// hop draws from: send_key(32) || recv_key(32) || tuple_key(32) ||
// session_id(32) || send_nonce_prefix(12) || recv_nonce_prefix(12).
const sessionExpansionSize = 32*4 + 12*2

// deriveSessionKeys expands the shared secret and transcript under the
// "QFKH/session-v1" domain tag into one keystream, then assigns send/recv
// according to initiator. Both sides always derive an identical SessionId.
func deriveSessionKeys(transcript, sharedSecret []byte, initiator bool) (SessionKeys, error) {
	buf := make([]byte, sessionExpansionSize)
	ikm := make([]byte, 0, len(transcript)+len(sharedSecret))
	ikm = append(ikm, transcript...)
	ikm = append(ikm, sharedSecret...)

	if err := pqc.XOF("QFKH/session-v1", ikm, buf); nil != err {
		return SessionKeys{}, wrapError(err, ErrPrimitiveFailure, "session key expansion failed")
	}

	var a, b [32]byte
	var tupleKey, sessionId [32]byte
	var noncePrefixA, noncePrefixB [12]byte

	copy(a[:], buf[0:32])
	copy(b[:], buf[32:64])
	copy(tupleKey[:], buf[64:96])
	copy(sessionId[:], buf[96:128])
	copy(noncePrefixA[:], buf[128:140])
	copy(noncePrefixB[:], buf[140:152])

	sk := SessionKeys{TupleKey: tupleKey, SessionId: sessionId}
	if initiator {
		sk.SendKey, sk.RecvKey = a, b
		sk.SendNoncePrefix, sk.RecvNoncePrefix = noncePrefixA, noncePrefixB
	} else {
		sk.SendKey, sk.RecvKey = b, a
		sk.SendNoncePrefix, sk.RecvNoncePrefix = noncePrefixB, noncePrefixA
	}
	return sk, nil
}
