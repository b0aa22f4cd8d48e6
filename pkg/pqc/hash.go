package pqc

import (
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// Hash computes a domain-separated, collision-resistant 256-bit digest of
// tag and parts concatenated in order. It is used wherever spec.md calls
// for "H(...)" — KeyId derivation, capsule commitments, StateDiff ids and
// route hashes.
func Hash(tag string, parts ...[]byte) [HashSize]byte {
	h, err := blake2s.New256(nil)
	if nil != err {
		// blake2s.New256 only errors on an invalid key, and we pass no key.
		panic(err)
	}
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// XOF fills dst with a domain-separated SHAKE256 expansion of ikm, under
// tag. It is the backbone of QFKH's labelled KDF (spec.md §4.2).
func XOF(tag string, ikm []byte, dst []byte) error {
	h := sha3.NewShake256()
	h.Write([]byte(tag))
	h.Write(ikm)
	if _, err := h.Read(dst); nil != err {
		return wrapError(err, ErrPrimitiveFailure, "SHAKE256 expansion failed")
	}
	return nil
}
