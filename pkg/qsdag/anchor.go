package qsdag

// EdgeHost is the interface a caller's storage layer implements to let
// Anchor attach verified signatures to DAG edges. Modelled on the
// verify-then-attach façade the anchoring subsystem exposes to its PQC
// adapters: a thin layer that never touches signing/verification itself.
type EdgeHost interface {
	// EdgePayload returns the bytes that were (or should be) signed for edgeId.
	EdgePayload(edgeId DiffId) ([]byte, error)

	// AttachSignature records that signer's signature over EdgePayload(edgeId)
	// has been verified and is now anchored against edgeId.
	AttachSignature(edgeId DiffId, signer []byte, signature []byte) error
}

// Verifier checks a signature; it is satisfied by pqc.DSA.Verify.
type Verifier func(signer, msg, signature []byte) error

// Anchor is a thin façade that verifies a signature against a DAG edge's
// payload before recording it, so host storage never anchors an
// unverified signature.
type Anchor struct {
	host EdgeHost
}

// NewAnchor returns an Anchor backed by host.
func NewAnchor(host EdgeHost) *Anchor {
	return &Anchor{host: host}
}

// VerifyAndAnchor fetches edgeId's payload, verifies signature against it
// under signer using verify, and on success attaches the signature to the
// edge. On verification failure it records nothing and returns the
// verifier's error wrapped in ErrVerifyFailed.
func (self *Anchor) VerifyAndAnchor(edgeId DiffId, signer, signature []byte, verify Verifier) error {
	payload, err := self.host.EdgePayload(edgeId)
	if nil != err {
		return wrapError(err, ErrInvalidInput, "failed fetching edge payload for %x", edgeId)
	}

	if err := verify(signer, payload, signature); nil != err {
		return wrapError(err, ErrVerifyFailed, "signature verification failed for edge %x", edgeId)
	}

	return self.host.AttachSignature(edgeId, signer, signature)
}
