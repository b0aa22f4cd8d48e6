package qfkh

import (
	"errors"
	"testing"

	"go.pqcnet.dev/core/pkg/pqc"
)

func TestConsecutiveHopsRotateKeys(t *testing.T) {
	config, err := NewConfig(3_000, 2, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}

	responder, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New responder: %v", err)
	}
	initiator, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New initiator: %v", err)
	}

	if err := responder.EnsureLookahead(0); nil != err {
		t.Fatalf("responder.EnsureLookahead: %v", err)
	}
	if err := initiator.EnsureLookahead(0); nil != err {
		t.Fatalf("initiator.EnsureLookahead: %v", err)
	}

	var previous *[32]byte
	for hop := uint64(0); hop < 3; hop++ {
		now := hop*config.RotationIntervalMs + 1_000

		ticket, err := responder.AnnounceEpoch(now)
		if nil != err {
			t.Fatalf("hop %d: AnnounceEpoch: %v", hop, err)
		}

		capsule, initKeys, err := initiator.EncapsulateFor(ticket, now)
		if nil != err {
			t.Fatalf("hop %d: EncapsulateFor: %v", hop, err)
		}

		respKeys, err := responder.ActivateFrom(capsule, now)
		if nil != err {
			t.Fatalf("hop %d: ActivateFrom: %v", hop, err)
		}

		if initKeys.SendKey != respKeys.RecvKey {
			t.Fatalf("hop %d: initiator send_key != responder recv_key", hop)
		}
		if initKeys.RecvKey != respKeys.SendKey {
			t.Fatalf("hop %d: initiator recv_key != responder send_key", hop)
		}
		if initKeys.SessionId != respKeys.SessionId {
			t.Fatalf("hop %d: session ids diverged", hop)
		}

		if nil != previous && *previous == initKeys.SendKey {
			t.Fatalf("hop %d did not rotate", hop)
		}
		sk := initKeys.SendKey
		previous = &sk
	}
}

func TestEncapsulateForOutOfWindow(t *testing.T) {
	config, err := NewConfig(5_000, 3, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}

	hopper, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	if err := hopper.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}

	ticket, err := hopper.AnnounceEpoch(2_500)
	if nil != err {
		t.Fatalf("AnnounceEpoch: %v", err)
	}

	other, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := other.EncapsulateFor(ticket, ticket.WindowEndMs+1); nil == err {
		t.Fatal("EncapsulateFor outside window succeeded, want ErrOutOfWindow")
	}
}

func TestActivateFromUnknownEpoch(t *testing.T) {
	config, err := NewConfig(5_000, 1, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}

	responder, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	if err := responder.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}

	stray := Capsule{Epoch: 99, Ciphertext: []byte("x"), Commitment: [32]byte{}}
	if _, err := responder.ActivateFrom(stray, 0); nil == err {
		t.Fatal("ActivateFrom on unknown epoch succeeded, want ErrUnknownEpoch")
	}
}

func TestActivateFromCommitmentMismatch(t *testing.T) {
	config, err := NewConfig(5_000, 1, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}

	responder, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	initiator, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	if err := responder.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}
	if err := initiator.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}

	ticket, err := responder.AnnounceEpoch(0)
	if nil != err {
		t.Fatalf("AnnounceEpoch: %v", err)
	}
	capsule, _, err := initiator.EncapsulateFor(ticket, 0)
	if nil != err {
		t.Fatalf("EncapsulateFor: %v", err)
	}

	capsule.Commitment[0] ^= 0xFF
	if _, err := responder.ActivateFrom(capsule, 0); nil == err {
		t.Fatal("ActivateFrom with tampered commitment succeeded, want ErrCommitmentMismatch")
	}
}

// TestActivateFromReplayedCapsuleIsIdempotentOrUnknown covers spec.md's
// capsule-replay scenario: re-submitting a capsule the responder already
// activated must never silently mint a third, different session — either
// the epoch's keypair is still retained and ActivateFrom deterministically
// reproduces the same SessionKeys, or it has been pruned and ActivateFrom
// reports ErrUnknownEpoch.
func TestActivateFromReplayedCapsuleIsIdempotentOrUnknown(t *testing.T) {
	config, err := NewConfig(5_000, 1, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}

	responder, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New responder: %v", err)
	}
	initiator, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New initiator: %v", err)
	}
	if err := responder.EnsureLookahead(0); nil != err {
		t.Fatalf("responder.EnsureLookahead: %v", err)
	}
	if err := initiator.EnsureLookahead(0); nil != err {
		t.Fatalf("initiator.EnsureLookahead: %v", err)
	}

	ticket, err := responder.AnnounceEpoch(0)
	if nil != err {
		t.Fatalf("AnnounceEpoch: %v", err)
	}
	capsule, _, err := initiator.EncapsulateFor(ticket, 0)
	if nil != err {
		t.Fatalf("EncapsulateFor: %v", err)
	}

	first, err := responder.ActivateFrom(capsule, 0)
	if nil != err {
		t.Fatalf("first ActivateFrom: %v", err)
	}

	second, err := responder.ActivateFrom(capsule, 0)
	switch {
	case nil == err:
		if second.SessionId != first.SessionId {
			t.Fatalf("replayed capsule produced a different session: %v != %v", second.SessionId, first.SessionId)
		}
		if second.SendKey != first.SendKey || second.RecvKey != first.RecvKey {
			t.Fatal("replayed capsule derived different session keys for the same session id")
		}
	case errors.Is(err, ErrUnknownEpoch):
		// acceptable: the epoch's keypair was pruned between activations.
	default:
		t.Fatalf("replayed capsule returned unexpected error: %v", err)
	}
}

func TestTicketWireRoundTrip(t *testing.T) {
	config, err := NewConfig(5_000, 1, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}
	hopper, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	if err := hopper.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}
	ticket, err := hopper.AnnounceEpoch(0)
	if nil != err {
		t.Fatalf("AnnounceEpoch: %v", err)
	}

	dsa := pqc.MlDsa65{}
	pk, sk, err := dsa.Keygen()
	if nil != err {
		t.Fatalf("dsa.Keygen: %v", err)
	}

	encoded, err := MarshalTicket(ticket, dsa, sk)
	if nil != err {
		t.Fatalf("MarshalTicket: %v", err)
	}

	decoded, err := UnmarshalTicket(encoded, dsa, pk)
	if nil != err {
		t.Fatalf("UnmarshalTicket: %v", err)
	}

	if decoded.Epoch != ticket.Epoch || decoded.KeyId != ticket.KeyId {
		t.Fatalf("decoded ticket mismatch: %+v != %+v", decoded, ticket)
	}

	encoded[len(encoded)-1] ^= 0xFF
	if _, err := UnmarshalTicket(encoded, dsa, pk); nil == err {
		t.Fatal("UnmarshalTicket accepted a tampered signature")
	}
}

func TestCapsuleWireRoundTrip(t *testing.T) {
	config, err := NewConfig(5_000, 1, 0)
	if nil != err {
		t.Fatalf("NewConfig: %v", err)
	}
	responder, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	initiator, err := New(pqc.MlKem768{}, config)
	if nil != err {
		t.Fatalf("New: %v", err)
	}
	if err := responder.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}
	if err := initiator.EnsureLookahead(0); nil != err {
		t.Fatalf("EnsureLookahead: %v", err)
	}

	ticket, err := responder.AnnounceEpoch(0)
	if nil != err {
		t.Fatalf("AnnounceEpoch: %v", err)
	}
	capsule, _, err := initiator.EncapsulateFor(ticket, 0)
	if nil != err {
		t.Fatalf("EncapsulateFor: %v", err)
	}

	encoded, err := MarshalCapsule(capsule)
	if nil != err {
		t.Fatalf("MarshalCapsule: %v", err)
	}
	decoded, err := UnmarshalCapsule(encoded)
	if nil != err {
		t.Fatalf("UnmarshalCapsule: %v", err)
	}

	if _, err := responder.ActivateFrom(decoded, 0); nil != err {
		t.Fatalf("ActivateFrom on decoded capsule: %v", err)
	}
}
