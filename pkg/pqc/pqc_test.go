package pqc

import (
	"bytes"
	"testing"
)

func TestMlKem768RoundTrip(t *testing.T) {
	kem := MlKem768{}

	pk, sk, err := kem.Keygen()
	if nil != err {
		t.Fatalf("keygen: %v", err)
	}

	ct, ss1, err := kem.Encap(pk)
	if nil != err {
		t.Fatalf("encap: %v", err)
	}

	ss2, err := kem.Decap(sk, ct)
	if nil != err {
		t.Fatalf("decap: %v", err)
	}

	if !bytes.Equal(ss1, ss2) {
		t.Fatal("decap did not recover the encapsulated shared secret")
	}
	if len(ss1) != SharedSecretSize {
		t.Fatalf("shared secret length = %d, want %d", len(ss1), SharedSecretSize)
	}
}

func TestMlKem768ImplicitRejection(t *testing.T) {
	kem := MlKem768{}

	pk, sk, err := kem.Keygen()
	if nil != err {
		t.Fatalf("keygen: %v", err)
	}

	ct, _, err := kem.Encap(pk)
	if nil != err {
		t.Fatalf("encap: %v", err)
	}
	ct[0] ^= 0xFF

	// decap on a corrupted ciphertext must not error: it silently returns a
	// pseudo-random secret (implicit rejection), never AuthFailure.
	ss, err := kem.Decap(sk, ct)
	if nil != err {
		t.Fatalf("decap on corrupted ct returned an error, want pseudo-random secret: %v", err)
	}
	if len(ss) != SharedSecretSize {
		t.Fatalf("shared secret length = %d, want %d", len(ss), SharedSecretSize)
	}
}

func TestMlDsa65SignVerify(t *testing.T) {
	dsa := MlDsa65{}

	pk, sk, err := dsa.Keygen()
	if nil != err {
		t.Fatalf("keygen: %v", err)
	}

	msg := []byte("qs-dag edge payload")
	sig, err := dsa.Sign(sk, msg)
	if nil != err {
		t.Fatalf("sign: %v", err)
	}

	if err := dsa.Verify(pk, msg, sig); nil != err {
		t.Fatalf("verify: %v", err)
	}

	if err := dsa.Verify(pk, []byte("tampered payload"), sig); nil == err {
		t.Fatal("verify succeeded on tampered message, want ErrVerifyFailed")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	for _, name := range []string{AeadAes256Gcm, AeadChacha20Poly1305} {
		t.Run(name, func(t *testing.T) {
			aead, err := GetAEAD(name)
			if nil != err {
				t.Fatalf("GetAEAD: %v", err)
			}

			key := make([]byte, AEADKeySize)
			nonce := make([]byte, AEADNonceSize)
			for i := range key {
				key[i] = byte(i)
			}
			for i := range nonce {
				nonce[i] = byte(i + 1)
			}
			aad := []byte("tunnel-id||topic||epoch||seq")
			plaintext := []byte("hello")

			ciphertext, err := aead.Seal(key, nonce, aad, plaintext)
			if nil != err {
				t.Fatalf("seal: %v", err)
			}
			if len(ciphertext) != len(plaintext)+AEADTagSize {
				t.Fatalf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+AEADTagSize)
			}

			got, err := aead.Open(key, nonce, aad, ciphertext)
			if nil != err {
				t.Fatalf("open: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("open returned %q, want %q", got, plaintext)
			}

			ciphertext[0] ^= 0xFF
			if _, err := aead.Open(key, nonce, aad, ciphertext); nil == err {
				t.Fatal("open succeeded on tampered ciphertext, want ErrVerifyFailed")
			}
		})
	}
}

func TestHashDomainSeparation(t *testing.T) {
	a := Hash("QFKH-commit", []byte("x"))
	b := Hash("QSDG/v1", []byte("x"))
	if a == b {
		t.Fatal("different domain tags produced the same digest")
	}
}

func TestXOFDeterministic(t *testing.T) {
	ikm := []byte("shared-secret")
	var out1, out2 [64]byte
	if err := XOF("QFKH/session-v1", ikm, out1[:]); nil != err {
		t.Fatalf("XOF: %v", err)
	}
	if err := XOF("QFKH/session-v1", ikm, out2[:]); nil != err {
		t.Fatalf("XOF: %v", err)
	}
	if out1 != out2 {
		t.Fatal("XOF is not deterministic for identical inputs")
	}
}
