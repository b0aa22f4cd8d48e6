package pqc

import (
	"crypto/rand"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// KEM is the IND-CCA2 key-encapsulation contract external collaborators must
// satisfy: keygen/encap/decap, with a 32-byte shared secret and constant-time
// decap that yields a pseudo-random secret on an invalid ciphertext
// (implicit rejection), per spec.md §4.1.
type KEM interface {
	Level() SecurityLevel

	// Keygen returns a fresh (public, secret) key pair.
	Keygen() (pk, sk []byte, err error)

	// Encap encapsulates to pk, returning the ciphertext and the shared secret.
	Encap(pk []byte) (ct, ss []byte, err error)

	// Decap recovers the shared secret sk encapsulated in ct. On a ct of the
	// expected length that is not a valid encapsulation it returns a
	// pseudo-random, deterministic-per-sk secret instead of an error
	// (implicit rejection) so callers cannot tell it from a valid one by
	// timing or by error shape. A ct of the wrong length is rejected with
	// ErrInvalidInput.
	Decap(sk, ct []byte) (ss []byte, err error)

	PublicKeySize() int
	CiphertextSize() int
}

// MlKem768 adapts github.com/cloudflare/circl's ML-KEM-768 implementation to
// the KEM contract, following the circl usage pattern in
// x0tta6bl4/agent/internal/crypto/pqc.
type MlKem768 struct{}

var _ KEM = MlKem768{}

func (MlKem768) Level() SecurityLevel { return MlKem192 }

func (MlKem768) PublicKeySize() int  { return mlkem768.PublicKeySize }
func (MlKem768) CiphertextSize() int { return mlkem768.CiphertextSize }

func (MlKem768) Keygen() ([]byte, []byte, error) {
	pk, sk, err := mlkem768.GenerateKeyPair(rand.Reader)
	if nil != err {
		return nil, nil, wrapError(err, ErrPrimitiveFailure, "ML-KEM-768 keygen failed")
	}

	pkBytes := make([]byte, mlkem768.PublicKeySize)
	skBytes := make([]byte, mlkem768.PrivateKeySize)
	pk.Pack(pkBytes)
	sk.Pack(skBytes)
	return pkBytes, skBytes, nil
}

func (MlKem768) Encap(pk []byte) ([]byte, []byte, error) {
	if len(pk) != mlkem768.PublicKeySize {
		return nil, nil, newError(ErrInvalidInput, "invalid ML-KEM-768 public key length %d", len(pk))
	}

	var kemPk mlkem768.PublicKey
	if err := kemPk.Unpack(pk); nil != err {
		return nil, nil, wrapError(err, ErrInvalidInput, "failed unpacking ML-KEM-768 public key")
	}

	ct := make([]byte, mlkem768.CiphertextSize)
	ss := make([]byte, mlkem768.SharedKeySize)
	kemPk.EncapsulateTo(ct, ss, nil)
	return ct, ss, nil
}

func (MlKem768) Decap(sk, ct []byte) ([]byte, error) {
	if len(sk) != mlkem768.PrivateKeySize {
		return nil, newError(ErrInvalidInput, "invalid ML-KEM-768 private key length %d", len(sk))
	}
	if len(ct) != mlkem768.CiphertextSize {
		return nil, newError(ErrInvalidInput, "invalid ML-KEM-768 ciphertext length %d", len(ct))
	}

	var kemSk mlkem768.PrivateKey
	if err := kemSk.Unpack(sk); nil != err {
		return nil, wrapError(err, ErrInvalidInput, "failed unpacking ML-KEM-768 private key")
	}

	// DecapsulateTo never errors: on an invalid ct, circl's implicit
	// rejection derives a pseudo-random secret deterministically from sk
	// and ct, so no branch here can leak validity through control flow.
	ss := make([]byte, mlkem768.SharedKeySize)
	kemSk.DecapsulateTo(ss, ct)
	return ss, nil
}
