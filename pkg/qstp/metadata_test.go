package qstp

import (
	"testing"

	"github.com/google/uuid"

	"go.pqcnet.dev/core/pkg/pqc"
	"go.pqcnet.dev/core/pkg/tuplestore"
)

func TestFetchTupleMetadataPublishesSignedRouteHash(t *testing.T) {
	initiatorHopper, responderHopper, _ := newTestHopPair(t)
	initKeys, _ := hop(t, initiatorHopper, responderHopper, 1_000)

	aead, err := pqc.GetAEAD(pqc.AeadChacha20Poly1305)
	if nil != err {
		t.Fatalf("GetAEAD: %v", err)
	}

	tunnelId := NewTunnelId([]byte("transcript"), uuid.New(), uuid.New())
	plan := RoutePlan{Topic: "topic", Qos: Control, Epoch: 0}

	tunnel, err := NewTunnel(tunnelId, Initiator, aead, initKeys, AlternateRoute{Plan: plan}, nil, nil)
	if nil != err {
		t.Fatalf("NewTunnel: %v", err)
	}

	dsa := pqc.MlDsa65{}
	pk, sk, err := dsa.Keygen()
	if nil != err {
		t.Fatalf("Keygen: %v", err)
	}

	store := tuplestore.NewMemStore()
	creator := []byte("node-creator")

	receipt, err := tunnel.FetchTupleMetadata(store, dsa, creator, sk)
	if nil != err {
		t.Fatalf("FetchTupleMetadata: %v", err)
	}
	if receipt.Version != 1 {
		t.Fatalf("receipt version = %d, want 1", receipt.Version)
	}

	record, found, err := store.Latest(receipt.TupleId)
	if nil != err {
		t.Fatalf("Latest: %v", err)
	}
	if !found {
		t.Fatalf("Latest: record not found")
	}

	routeHash := RouteHash(plan)
	if string(record.Payload.Object) != string(routeHash[:]) {
		t.Fatalf("published route hash does not match current route")
	}

	metadata := tupleMetadataEncoding(tunnelId, plan.Topic, routeHash, plan.Epoch)
	if err := dsa.Verify(pk, metadata, record.Payload.Proof); nil != err {
		t.Fatalf("Verify: %v", err)
	}

	// Publishing again under the same (creator, tunnel_id, predicate) must
	// append a new version rather than starting a new tuple.
	receipt2, err := tunnel.FetchTupleMetadata(store, dsa, creator, sk)
	if nil != err {
		t.Fatalf("FetchTupleMetadata second: %v", err)
	}
	if receipt2.TupleId != receipt.TupleId {
		t.Fatalf("second publish used a different tuple_id")
	}
	if receipt2.Version != 2 {
		t.Fatalf("second publish version = %d, want 2", receipt2.Version)
	}
}
