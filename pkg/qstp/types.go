package qstp

import (
	"github.com/google/uuid"

	"go.pqcnet.dev/core/pkg/pqc"
)

// PeerId identifies a mesh node. It is a uuid.UUID under the hood, matching
// the identifier type the teacher's pkg/credentials already standardizes
// on for externally-visible ids.
type PeerId = uuid.UUID

// QosClass is the quality-of-service class a RoutePlan requests.
type QosClass int

const (
	Gossip QosClass = iota
	LowLatency
	Control
)

func (self QosClass) String() string {
	switch self {
	case Gossip:
		return "Gossip"
	case LowLatency:
		return "LowLatency"
	case Control:
		return "Control"
	default:
		return "Unknown"
	}
}

// RoutePlan is an immutable routing decision: the topic frames for this
// route are sealed/opened under, the ordered hop sequence, the requested
// QoS class and the QFKH epoch the route was minted under. A new RoutePlan
// is published on every reroute.
type RoutePlan struct {
	Topic string
	Hops  []PeerId
	Qos   QosClass
	Epoch uint64
}

// canonicalEncoding returns the deterministic byte encoding RouteHash
// hashes, following the length-prefixed style of qsdag's StateDiff
// encoding: topic_len(2) || topic || hops_count(2) || hops(16 each) ||
// qos(1) || epoch(8).
func (self RoutePlan) canonicalEncoding() []byte {
	out := make([]byte, 0, 2+len(self.Topic)+2+16*len(self.Hops)+1+8)
	out = appendUint16(out, uint16(len(self.Topic)))
	out = append(out, self.Topic...)
	out = appendUint16(out, uint16(len(self.Hops)))
	for _, hop := range self.Hops {
		out = append(out, hop[:]...)
	}
	out = append(out, byte(self.Qos))
	out = appendUint64(out, self.Epoch)
	return out
}

// RouteHash is the domain-separated digest fetch_tuple_metadata publishes:
// H("QSTP/route-hash" || canonical encoding of plan).
func RouteHash(plan RoutePlan) [32]byte {
	return pqc.Hash("QSTP/route-hash", plan.canonicalEncoding())
}

// NewTunnelId derives a 16-byte TunnelId from the initial handshake
// transcript and the local/remote peer identifiers, per spec.md's glossary
// entry for TunnelId.
func NewTunnelId(transcript []byte, local, remote PeerId) [16]byte {
	digest := pqc.Hash("QSTP/tunnel-id", transcript, local[:], remote[:])
	var id [16]byte
	copy(id[:], digest[:16])
	return id
}

// AlternateRoute pairs a registered RoutePlan with the numeric telemetry
// QACE's Route interface needs (qos_bias/freshness/hop_count are not
// carried by RoutePlan itself, since RoutePlan is the wire-level,
// content-addressable routing descriptor, while qos_bias/freshness are
// scored per-candidate inputs QACE's caller supplies alongside it).
type AlternateRoute struct {
	Plan      RoutePlan
	QosBias   int64
	Freshness int64
}

// Frame is one sealed application message, per spec.md §6's wire layout.
type Frame struct {
	TunnelId [16]byte
	Topic    string
	Epoch    uint64
	Seq      uint64
	Nonce    [12]byte

	// Sealed is ciphertext || 16-byte AEAD tag, as produced by pqc.AEAD.Seal.
	Sealed []byte
}
