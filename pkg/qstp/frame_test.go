package qstp

import (
	"bytes"
	"testing"
)

func TestMarshalUnmarshalFrameRoundTrip(t *testing.T) {
	frame := Frame{
		TunnelId: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Topic:    "mesh/control",
		Epoch:    7,
		Seq:      42,
		Nonce:    [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9},
		Sealed:   append([]byte("ciphertext-bytes"), make([]byte, 16)...),
	}

	data, err := MarshalFrame(frame)
	if nil != err {
		t.Fatalf("MarshalFrame: %v", err)
	}

	decoded, err := UnmarshalFrame(data)
	if nil != err {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if decoded.TunnelId != frame.TunnelId {
		t.Fatalf("tunnel_id mismatch")
	}
	if decoded.Topic != frame.Topic {
		t.Fatalf("topic mismatch: got %q want %q", decoded.Topic, frame.Topic)
	}
	if decoded.Epoch != frame.Epoch || decoded.Seq != frame.Seq {
		t.Fatalf("epoch/seq mismatch")
	}
	if decoded.Nonce != frame.Nonce {
		t.Fatalf("nonce mismatch")
	}
	if !bytes.Equal(decoded.Sealed, frame.Sealed) {
		t.Fatalf("sealed payload mismatch")
	}
}

func TestUnmarshalFrameRejectsBadMagicAndTruncation(t *testing.T) {
	frame := Frame{
		Topic:  "t",
		Nonce:  [12]byte{},
		Sealed: make([]byte, 16),
	}
	data, err := MarshalFrame(frame)
	if nil != err {
		t.Fatalf("MarshalFrame: %v", err)
	}

	corrupted := append([]byte(nil), data...)
	corrupted[0] ^= 0xFF
	if _, err := UnmarshalFrame(corrupted); nil == err {
		t.Fatalf("UnmarshalFrame with bad magic: got nil error")
	}

	if _, err := UnmarshalFrame(data[:len(data)-1]); nil == err {
		t.Fatalf("UnmarshalFrame truncated: got nil error")
	}
}

func TestComputeNonceXorsSequenceIntoPrefixTail(t *testing.T) {
	prefix := [12]byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0}
	nonce := ComputeNonce(prefix, 1)

	want := [12]byte{1, 2, 3, 4, 1, 0, 0, 0, 0, 0, 0, 0}
	if nonce != want {
		t.Fatalf("ComputeNonce(seq=1) = %x, want %x", nonce, want)
	}

	if ComputeNonce(prefix, 0) != prefix {
		t.Fatalf("ComputeNonce(seq=0) should equal prefix unchanged")
	}
}
