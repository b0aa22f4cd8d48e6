package tuplestore

import "go.pqcnet.dev/core/pkg/pqc"

// ComputeTupleId derives the stable TupleId a (creator, subject, predicate)
// triple files its versions under: re-storing the same triple appends a new
// version of the same tuple rather than starting a fresh one.
func ComputeTupleId(creator, subject []byte, predicate string) TupleId {
	digest := pqc.Hash("tuplestore/tuple-id", creator, subject, []byte(predicate))
	var id TupleId
	copy(id[:], digest[:16])
	return id
}

// TupleId is the opaque, stable identifier a tuple's versions are filed
// under.
type TupleId [16]byte

// Payload is the signed metadata QSTP publishes per spec.md §4.6: at
// minimum a subject/predicate/object triple, a proof (typically a DSA
// signature over the canonical encoding of the other fields) and an
// expiry.
type Payload struct {
	Subject   []byte
	Predicate string
	Object    []byte
	Proof     []byte
	ExpiryMs  uint64
}

// Check reports whether p satisfies the minimal shape the store requires:
// a non-empty subject and predicate.
func (self Payload) Check() error {
	if 0 == len(self.Subject) {
		return newError(ErrInvalidInput, "payload subject must not be empty")
	}
	if "" == self.Predicate {
		return newError(ErrInvalidInput, "payload predicate must not be empty")
	}
	return nil
}

// Receipt is returned by Store on a successful write.
type Receipt struct {
	TupleId TupleId
	Version uint64
}

// Record is one stored version of a tuple.
type Record struct {
	TupleId  TupleId
	Version  uint64
	Creator  []byte
	Payload  Payload
	StoredMs uint64
}

// Store is the thin collaborator contract spec.md §4.6 describes. Store is
// append-only per TupleId: successive calls with the same (creator, subject,
// predicate), and hence the same TupleId (see ComputeTupleId), must produce
// a strictly increasing Version.
type Store interface {
	// Store appends payload under a new or existing tuple, attributed to
	// creator, and returns the assigned Receipt.
	Store(creator []byte, payload Payload) (Receipt, error)

	// Latest returns the highest-versioned Record filed under tupleId.
	Latest(tupleId TupleId) (Record, bool, error)

	// ByVersion returns the Record filed under tupleId at exactly version.
	ByVersion(tupleId TupleId, version uint64) (Record, bool, error)

	// PruneExpired deletes every Record whose Payload.ExpiryMs has elapsed
	// as of nowMs and returns the count removed.
	PruneExpired(nowMs uint64) (int, error)
}
