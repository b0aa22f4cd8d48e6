package pqc

import (
	"crypto/rand"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// DSA is the FIPS 204 signature contract external collaborators must
// satisfy: keygen/sign/verify. Whether a given backend is deterministic or
// hedged is an implementation detail not observable to callers, per
// spec.md §4.1.
type DSA interface {
	Level() SecurityLevel

	Keygen() (pk, sk []byte, err error)
	Sign(sk, msg []byte) (sig []byte, err error)
	Verify(pk, msg, sig []byte) error

	PublicKeySize() int
	SignatureSize() int
}

// MlDsa65 adapts circl's ML-DSA-65 implementation to the DSA contract.
type MlDsa65 struct{}

var _ DSA = MlDsa65{}

func (MlDsa65) Level() SecurityLevel { return MlDsa192 }

func (MlDsa65) PublicKeySize() int { return mldsa65.PublicKeySize }
func (MlDsa65) SignatureSize() int { return mldsa65.SignatureSize }

func (MlDsa65) Keygen() ([]byte, []byte, error) {
	pk, sk, err := mldsa65.GenerateKey(rand.Reader)
	if nil != err {
		return nil, nil, wrapError(err, ErrPrimitiveFailure, "ML-DSA-65 keygen failed")
	}

	pkBytes := make([]byte, mldsa65.PublicKeySize)
	skBytes := make([]byte, mldsa65.PrivateKeySize)
	pk.Pack(pkBytes)
	sk.Pack(skBytes)
	return pkBytes, skBytes, nil
}

func (MlDsa65) Sign(sk, msg []byte) ([]byte, error) {
	if len(sk) != mldsa65.PrivateKeySize {
		return nil, newError(ErrInvalidInput, "invalid ML-DSA-65 private key length %d", len(sk))
	}

	var dsaSk mldsa65.PrivateKey
	if err := dsaSk.Unpack(sk); nil != err {
		return nil, wrapError(err, ErrInvalidInput, "failed unpacking ML-DSA-65 private key")
	}

	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(&dsaSk, msg, nil, false, sig); nil != err {
		return nil, wrapError(err, ErrPrimitiveFailure, "ML-DSA-65 sign failed")
	}
	return sig, nil
}

func (MlDsa65) Verify(pk, msg, sig []byte) error {
	if len(pk) != mldsa65.PublicKeySize {
		return newError(ErrInvalidInput, "invalid ML-DSA-65 public key length %d", len(pk))
	}
	if len(sig) != mldsa65.SignatureSize {
		return newError(ErrInvalidInput, "invalid ML-DSA-65 signature length %d", len(sig))
	}

	var dsaPk mldsa65.PublicKey
	if err := dsaPk.Unpack(pk); nil != err {
		return wrapError(err, ErrInvalidInput, "failed unpacking ML-DSA-65 public key")
	}

	if !mldsa65.Verify(&dsaPk, msg, nil, sig) {
		return newError(ErrVerifyFailed, "ML-DSA-65 signature did not verify")
	}
	return nil
}
