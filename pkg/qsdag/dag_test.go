package qsdag

import (
	"errors"
	"testing"
)

func mustId(t *testing.T, diff StateDiff) DiffId {
	t.Helper()
	id, err := diff.ComputeId()
	if nil != err {
		t.Fatalf("ComputeId: %v", err)
	}
	return id
}

func TestGenesisInsert(t *testing.T) {
	dag := New()
	genesis := StateDiff{Author: []byte("node-a"), Lamport: 0}
	genesis.Id = mustId(t, genesis)

	outcome, err := dag.Insert(genesis)
	if nil != err {
		t.Fatalf("Insert: %v", err)
	}
	if Inserted != outcome {
		t.Fatalf("outcome = %v, want Inserted", outcome)
	}

	head, ok := dag.CanonicalHead()
	if !ok {
		t.Fatal("CanonicalHead: not found")
	}
	if head.Id != genesis.Id {
		t.Fatalf("canonical head = %x, want %x", head.Id, genesis.Id)
	}
}

func TestInsertRejectsSelfParent(t *testing.T) {
	dag := New()
	diff := StateDiff{Author: []byte("a"), Lamport: 0}
	diff.Id = mustId(t, diff)
	diff.Parents = []DiffId{diff.Id}

	if _, err := dag.Insert(diff); nil == err {
		t.Fatal("Insert with self-parent succeeded, want ErrSelfParent")
	} else if !errors.Is(err, ErrSelfParent) {
		t.Fatalf("Insert error = %v, want ErrSelfParent", err)
	}
}

func TestInsertRejectsDuplicateId(t *testing.T) {
	dag := New()
	genesis := StateDiff{Author: []byte("a"), Lamport: 0}
	genesis.Id = mustId(t, genesis)

	if _, err := dag.Insert(genesis); nil != err {
		t.Fatalf("Insert genesis: %v", err)
	}
	if _, err := dag.Insert(genesis); nil == err {
		t.Fatal("re-inserting genesis succeeded, want ErrDuplicateId")
	} else if !errors.Is(err, ErrDuplicateId) {
		t.Fatalf("Insert error = %v, want ErrDuplicateId", err)
	}
}

func TestInsertBuffersUnknownParents(t *testing.T) {
	dag := New()
	genesis := StateDiff{Author: []byte("a"), Lamport: 0}
	genesis.Id = mustId(t, genesis)

	child := StateDiff{Author: []byte("a"), Parents: []DiffId{genesis.Id}, Lamport: 1}
	child.Id = mustId(t, child)

	outcome, err := dag.Insert(child)
	if nil != err {
		t.Fatalf("Insert child: %v", err)
	}
	if Buffered != outcome {
		t.Fatalf("outcome = %v, want Buffered", outcome)
	}
	if dag.Contains(child.Id) {
		t.Fatal("buffered diff reported as contained")
	}

	outcome, err = dag.Insert(genesis)
	if nil != err {
		t.Fatalf("Insert genesis: %v", err)
	}
	if Inserted != outcome {
		t.Fatalf("outcome = %v, want Inserted", outcome)
	}
	if !dag.Contains(child.Id) {
		t.Fatal("buffered child was not flushed after its parent arrived")
	}
}

func TestInsertRejectsInvalidLamport(t *testing.T) {
	dag := New()
	genesis := StateDiff{Author: []byte("a"), Lamport: 0}
	genesis.Id = mustId(t, genesis)
	if _, err := dag.Insert(genesis); nil != err {
		t.Fatalf("Insert genesis: %v", err)
	}

	child := StateDiff{Author: []byte("a"), Parents: []DiffId{genesis.Id}, Lamport: 0}
	child.Id = mustId(t, child)

	if _, err := dag.Insert(child); nil == err {
		t.Fatal("Insert with lamport <= parent.lamport succeeded, want ErrInvalidLamport")
	} else if !errors.Is(err, ErrInvalidLamport) {
		t.Fatalf("Insert error = %v, want ErrInvalidLamport", err)
	}
}

func makeNode(author string, parent *DiffId, lamport uint64, key, value string) StateDiff {
	diff := StateDiff{
		Author:  []byte(author),
		Lamport: lamport,
		Ops:     []StateOp{{Tag: OpUpsert, Key: []byte(key), Value: []byte(value)}},
	}
	if nil != parent {
		diff.Parents = []DiffId{*parent}
	}
	id, _ := diff.ComputeId()
	diff.Id = id
	return diff
}

// TestFourNodeConvergence grounds the multi-node convergence scenario: four
// nodes each propose two diffs citing the current canonical head, broadcast
// in an arbitrary interleaving, and every replica converges on the same
// canonical head and snapshot once buffered diffs are flushed.
func TestFourNodeConvergence(t *testing.T) {
	genesis := StateDiff{Author: []byte("genesis"), Lamport: 0}
	genesis.Id = mustId(t, genesis)

	var diffs []StateDiff
	for i, author := range []string{"node-a", "node-b", "node-c", "node-d"} {
		first := makeNode(author, &genesis.Id, 1, author+"/k1", "v1")
		second := makeNode(author, &first.Id, 2, author+"/k2", "v2")
		diffs = append(diffs, first, second)
		_ = i
	}

	// interleave: broadcast in reverse-pairs order to force buffering.
	order := make([]StateDiff, 0, len(diffs)+1)
	order = append(order, genesis)
	for i := len(diffs) - 1; i >= 0; i-- {
		order = append(order, diffs[i])
	}

	replicas := make([]*Dag, 3)
	for r := range replicas {
		replicas[r] = New()
		for _, diff := range order {
			if _, err := replicas[r].Insert(diff); nil != err {
				t.Fatalf("replica %d: Insert: %v", r, err)
			}
		}
	}

	var wantHead DiffId
	var wantValues map[string][]byte
	for r, dag := range replicas {
		head, ok := dag.CanonicalHead()
		if !ok {
			t.Fatalf("replica %d: CanonicalHead not found", r)
		}
		snap, ok := dag.Snapshot()
		if !ok {
			t.Fatalf("replica %d: Snapshot not found", r)
		}
		if 0 == r {
			wantHead = head.Id
			wantValues = snap.Values
			continue
		}
		if head.Id != wantHead {
			t.Fatalf("replica %d: canonical head diverged", r)
		}
		if len(snap.Values) != len(wantValues) {
			t.Fatalf("replica %d: snapshot size diverged", r)
		}
		for k, v := range wantValues {
			if string(snap.Values[k]) != string(v) {
				t.Fatalf("replica %d: snapshot[%q] diverged", r, k)
			}
		}
	}

	// every key from every node's two diffs must be present.
	if len(wantValues) != 8 {
		t.Fatalf("snapshot has %d keys, want 8", len(wantValues))
	}
}

type recordingHost struct {
	payload     []byte
	attachments []string
}

func (self *recordingHost) EdgePayload(DiffId) ([]byte, error) {
	return self.payload, nil
}

func (self *recordingHost) AttachSignature(_ DiffId, signer, _ []byte) error {
	self.attachments = append(self.attachments, string(signer))
	return nil
}

func TestAnchorVerifyAndAnchorSuccess(t *testing.T) {
	host := &recordingHost{payload: []byte("dag payload")}
	anchor := NewAnchor(host)

	err := anchor.VerifyAndAnchor(DiffId{}, []byte("pk-123"), []byte("dag payload"), func(_, msg, sig []byte) error {
		if string(msg) != string(sig) {
			return errors.New("mismatch")
		}
		return nil
	})
	if nil != err {
		t.Fatalf("VerifyAndAnchor: %v", err)
	}
	if len(host.attachments) != 1 || host.attachments[0] != "pk-123" {
		t.Fatalf("attachments = %v, want [pk-123]", host.attachments)
	}
}

func TestAnchorVerifyAndAnchorPropagatesFailure(t *testing.T) {
	host := &recordingHost{payload: []byte("payload")}
	anchor := NewAnchor(host)

	err := anchor.VerifyAndAnchor(DiffId{}, []byte("pk-123"), []byte("sig"), func(_, _, _ []byte) error {
		return errors.New("verify failed")
	})
	if nil == err {
		t.Fatal("VerifyAndAnchor succeeded, want error")
	}
	if !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("error = %v, want ErrVerifyFailed", err)
	}
	if len(host.attachments) != 0 {
		t.Fatal("attachment recorded despite verification failure")
	}
}
