package pqc

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"go.pqcnet.dev/core/internal/utils"
)

const (
	AeadAes256Gcm        = "AES256-GCM"
	AeadChacha20Poly1305 = "ChaCha20-Poly1305"
)

// AEAD is the authenticated-encryption contract: a 32-byte key, a 12-byte
// nonce and a 16-byte tag, per spec.md §4.1. Callers guarantee nonce
// uniqueness per key; the adapter does not track nonce usage itself
// (unlike the teacher's noise.CipherState, which owns an internal counter
// — QSTP instead owns the per-direction sequence counter, see pkg/qstp).
type AEAD interface {
	// Seal encrypts plaintext and appends a 16-byte tag, authenticating aad.
	Seal(key, nonce, aad, plaintext []byte) (ciphertext []byte, err error)

	// Open decrypts ciphertext (which includes the trailing tag) and
	// authenticates aad. It returns ErrVerifyFailed on tag mismatch.
	Open(key, nonce, aad, ciphertext []byte) (plaintext []byte, err error)
}

type aesGcmAEAD struct{}
type chachaPolyAEAD struct{}

var _ AEAD = aesGcmAEAD{}
var _ AEAD = chachaPolyAEAD{}

func (aesGcmAEAD) newCipher(key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, newError(ErrInvalidInput, "invalid AES-256-GCM key length %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, ErrPrimitiveFailure, "failed creating AES cipher")
	}
	aead, err := cipher.NewGCMWithNonceSize(block, AEADNonceSize)
	if nil != err {
		return nil, wrapError(err, ErrPrimitiveFailure, "failed creating AES-GCM AEAD")
	}
	return aead, nil
}

func (self aesGcmAEAD) Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := self.newCipher(key)
	if nil != err {
		return nil, err
	}
	if len(nonce) != AEADNonceSize {
		return nil, newError(ErrInvalidInput, "invalid nonce length %d", len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

func (self aesGcmAEAD) Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := self.newCipher(key)
	if nil != err {
		return nil, err
	}
	if len(nonce) != AEADNonceSize {
		return nil, newError(ErrInvalidInput, "invalid nonce length %d", len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if nil != err {
		return nil, wrapError(err, ErrVerifyFailed, "AES-256-GCM tag verification failed")
	}
	return plaintext, nil
}

func (chachaPolyAEAD) newCipher(key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, newError(ErrInvalidInput, "invalid ChaCha20-Poly1305 key length %d", len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if nil != err {
		return nil, wrapError(err, ErrPrimitiveFailure, "failed creating ChaCha20-Poly1305 AEAD")
	}
	return aead, nil
}

func (self chachaPolyAEAD) Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := self.newCipher(key)
	if nil != err {
		return nil, err
	}
	if len(nonce) != AEADNonceSize {
		return nil, newError(ErrInvalidInput, "invalid nonce length %d", len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

func (self chachaPolyAEAD) Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := self.newCipher(key)
	if nil != err {
		return nil, err
	}
	if len(nonce) != AEADNonceSize {
		return nil, newError(ErrInvalidInput, "invalid nonce length %d", len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if nil != err {
		return nil, wrapError(err, ErrVerifyFailed, "ChaCha20-Poly1305 tag verification failed")
	}
	return plaintext, nil
}

var aeadRegistry *utils.Registry[string, AEAD]

// MustRegisterAEAD adds an AEAD implementation to the registry. It panics
// if name is already in use.
func MustRegisterAEAD(name string, aead AEAD) {
	if err := utils.RegistrySet(aeadRegistry, name, aead); nil != err {
		panic(err)
	}
}

// GetAEAD loads an AEAD implementation from the registry. It errors if no
// AEAD was registered with name.
func GetAEAD(name string) (AEAD, error) {
	aead, found := utils.RegistryGet(aeadRegistry, name)
	if !found {
		return nil, newError(ErrInvalidInput, "unsupported AEAD algorithm, %s", name)
	}
	return aead, nil
}

func init() {
	aeadRegistry = utils.NewRegistry[string, AEAD]()
	MustRegisterAEAD(AeadAes256Gcm, aesGcmAEAD{})
	MustRegisterAEAD(AeadChacha20Poly1305, chachaPolyAEAD{})
}
