package qstp

import (
	"log/slog"
	"sync"

	"go.pqcnet.dev/core/internal/observability"
	"go.pqcnet.dev/core/internal/utils"
	"go.pqcnet.dev/core/pkg/pqc"
	"go.pqcnet.dev/core/pkg/qace"
	"go.pqcnet.dev/core/pkg/qfkh"
	"go.pqcnet.dev/core/pkg/tuplestore"
)

// Role distinguishes the two sides of a tunnel, mirroring the
// initiator/responder asymmetry qfkh.SessionKeys already carries.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (self Role) String() string {
	if self == Initiator {
		return "Initiator"
	}
	return "Responder"
}

// scoredRoute adapts an AlternateRoute (or the tunnel's own active route)
// to qace.Route, supplying the numeric telemetry fields QACE's scoring
// needs alongside the wire-level RoutePlan.
type scoredRoute struct {
	plan      RoutePlan
	qosBias   int64
	freshness int64
	viable    bool
}

var _ qace.Route = scoredRoute{}

func (self scoredRoute) HopCount() uint32 { return uint32(len(self.plan.Hops)) }
func (self scoredRoute) QosBias() int64   { return self.qosBias }
func (self scoredRoute) Freshness() int64 { return self.freshness }
func (self scoredRoute) IsViable() bool   { return self.viable }

func newScoredRoute(alt AlternateRoute) scoredRoute {
	return scoredRoute{plan: alt.Plan, qosBias: alt.QosBias, freshness: alt.Freshness, viable: true}
}

const defaultReplayWindowSize = 1024

// Tunnel is one sealed mesh-transport session between two peers: it seals
// and opens frames on a named topic under a rotating QFKH session, enforces
// strict per-direction anti-replay, and applies QACE reroute/rekey/failover
// decisions against a registered set of alternate routes.
//
// A Tunnel is safe for concurrent use.
type Tunnel struct {
	mut sync.Mutex

	tunnelId [16]byte
	role     Role

	aead    pqc.AEAD
	session qfkh.SessionKeys

	route      scoredRoute
	alternates []scoredRoute

	engine      qace.Engine
	replaySize  int
	replay      *utils.Window
	sendSeq     uint64

	logger *slog.Logger
}

// NewTunnel returns a Tunnel bound to tunnelId, sealing/opening under aead
// and the initial session keys, with route as its active path. engine and
// logger may be nil; a nil engine disables ApplyQace, a nil logger falls
// back to observability.NoopLogger().
func NewTunnel(tunnelId [16]byte, role Role, aead pqc.AEAD, session qfkh.SessionKeys, route AlternateRoute, engine qace.Engine, logger *slog.Logger) (*Tunnel, error) {
	if nil == aead {
		return nil, newError(ErrInvalidInput, "nil AEAD")
	}
	window, err := utils.NewWindow(defaultReplayWindowSize)
	if nil != err {
		return nil, wrapError(err, ErrInvalidInput, "failed constructing replay window")
	}
	if nil == logger {
		logger = observability.NoopLogger()
	}
	return &Tunnel{
		tunnelId:   tunnelId,
		role:       role,
		aead:       aead,
		session:    session,
		route:      newScoredRoute(route),
		engine:     engine,
		replaySize: defaultReplayWindowSize,
		replay:     window,
		logger:     logger,
	}, nil
}

// Route returns the tunnel's current active RoutePlan.
func (self *Tunnel) Route() RoutePlan {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.route.plan
}

// RegisterAlternateRoutes adds routes to the tunnel's candidate set.
// Registration is additive: routes already present (by RouteHash) are left
// untouched rather than replaced.
func (self *Tunnel) RegisterAlternateRoutes(routes []AlternateRoute) {
	self.mut.Lock()
	defer self.mut.Unlock()

	known := make(map[[32]byte]bool, len(self.alternates)+1)
	known[RouteHash(self.route.plan)] = true
	for _, alt := range self.alternates {
		known[RouteHash(alt.plan)] = true
	}
	for _, route := range routes {
		hash := RouteHash(route.Plan)
		if known[hash] {
			continue
		}
		known[hash] = true
		self.alternates = append(self.alternates, newScoredRoute(route))
	}
	self.logger.Debug("qstp: registered alternate routes", "tunnel_id", self.tunnelId, "count", len(routes))
}

// Seal encrypts plaintext under the tunnel's current send key and the next
// sequence number, authenticating aad alongside the frame's own wire
// fields, and advances the send sequence.
func (self *Tunnel) Seal(plaintext, aad []byte) (Frame, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	seq := self.sendSeq
	nonce := ComputeNonce(self.session.SendNoncePrefix, seq)
	fullAad := computeAAD(self.tunnelId, self.route.plan.Topic, self.route.plan.Epoch, seq, aad)

	sealed, err := self.aead.Seal(self.session.SendKey[:], nonce[:], fullAad, plaintext)
	if nil != err {
		return Frame{}, wrapError(err, ErrPrimitiveFailure, "frame seal failed")
	}

	self.sendSeq++
	return Frame{
		TunnelId: self.tunnelId,
		Topic:    self.route.plan.Topic,
		Epoch:    self.route.plan.Epoch,
		Seq:      seq,
		Nonce:    nonce,
		Sealed:   sealed,
	}, nil
}

// Open verifies and decrypts frame. Per the transport's anti-replay
// contract, the replay window is only consulted (not advanced) before
// decryption; it is marked only after the AEAD tag verifies, so a forged
// frame can never be used to poison the window against a legitimate
// retransmission.
func (self *Tunnel) Open(frame Frame, aad []byte) ([]byte, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if frame.TunnelId != self.tunnelId {
		return nil, newError(ErrInvalidInput, "frame tunnel_id does not match tunnel")
	}
	if !self.knownTopicLocked(frame.Topic) {
		return nil, newError(ErrInvalidInput, "frame topic %q is not the tunnel's active route", frame.Topic)
	}
	if !self.replay.WouldAccept(frame.Seq) {
		return nil, newError(ErrReplayDetected, "seq %d already seen or outside replay window", frame.Seq)
	}

	expectedNonce := ComputeNonce(self.session.RecvNoncePrefix, frame.Seq)
	if expectedNonce != frame.Nonce {
		return nil, newError(ErrInvalidInput, "frame nonce does not match recv_nonce_prefix for seq %d", frame.Seq)
	}

	fullAad := computeAAD(frame.TunnelId, frame.Topic, frame.Epoch, frame.Seq, aad)
	plaintext, err := self.aead.Open(self.session.RecvKey[:], frame.Nonce[:], fullAad, frame.Sealed)
	if nil != err {
		return nil, wrapError(err, ErrAuthFailure, "frame authentication failed for seq %d", frame.Seq)
	}

	self.replay.Accept(frame.Seq)
	return plaintext, nil
}

// ApplyQace scores the tunnel's route set against metrics and applies the
// resulting Action: Reroute/Failover promote an alternate to primary;
// Rekey/Failover additionally invoke rekey to install fresh session keys
// and reset both the send sequence and the replay window, since a rekeyed
// session shares no state with the one it replaces.
func (self *Tunnel) ApplyQace(telemetryEpoch uint64, metrics qace.Metrics, rekey func() (qfkh.SessionKeys, error)) (qace.Decision, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil == self.engine {
		return qace.Decision{}, newError(ErrInvalidInput, "no QACE engine bound to tunnel")
	}

	alternates := make([]qace.Route, 0, len(self.alternates))
	for _, alt := range self.alternates {
		alternates = append(alternates, alt)
	}

	req := qace.Request{
		TelemetryEpoch: telemetryEpoch,
		Metrics:        metrics,
		PathSet:        qace.PathSet{Primary: self.route, Alternates: alternates},
	}
	decision, err := self.engine.Evaluate(req)
	if nil != err {
		return qace.Decision{}, wrapError(err, ErrPrimitiveFailure, "QACE evaluation failed")
	}

	switch decision.Action {
	case qace.Reroute, qace.Failover:
		if promoted, ok := decision.PathSet.Primary.(scoredRoute); ok {
			self.promoteLocked(promoted)
		}
	}

	switch decision.Action {
	case qace.Rekey, qace.Failover:
		if nil == rekey {
			return decision, newError(ErrInvalidInput, "QACE requested rekey but no rekey callback was supplied")
		}
		session, err := rekey()
		if nil != err {
			return decision, wrapError(err, ErrPrimitiveFailure, "rekey callback failed")
		}
		self.session = session
		self.sendSeq = 0
		window, err := utils.NewWindow(self.replaySize)
		if nil != err {
			return decision, wrapError(err, ErrInvalidInput, "failed resetting replay window after rekey")
		}
		self.replay = window
		self.logger.Info("qstp: rekeyed tunnel", "tunnel_id", self.tunnelId, "action", decision.Action.String())
	}

	return decision, nil
}

// knownTopicLocked reports whether topic is the tunnel's currently active
// route: once ApplyQace swaps an alternate in as primary, self.route.plan
// is updated in place, so this check alone rejects a frame sealed under a
// route QACE has since swapped out, even absent an accompanying rekey.
func (self *Tunnel) knownTopicLocked(topic string) bool {
	return topic == self.route.plan.Topic
}

func (self *Tunnel) promoteLocked(promoted scoredRoute) {
	oldPrimary := self.route
	remaining := make([]scoredRoute, 0, len(self.alternates))
	for _, alt := range self.alternates {
		if RouteHash(alt.plan) == RouteHash(promoted.plan) {
			continue
		}
		remaining = append(remaining, alt)
	}
	remaining = append(remaining, oldPrimary)
	self.route = promoted
	self.alternates = remaining
	self.logger.Info("qstp: promoted alternate route", "tunnel_id", self.tunnelId, "topic", promoted.plan.Topic)
}

// tupleMetadataEncoding returns the deterministic byte encoding a published
// route-metadata tuple signs over: tunnel_id(16) || topic_len(2) || topic
// || route_hash(32) || epoch(8).
func tupleMetadataEncoding(tunnelId [16]byte, topic string, routeHash [32]byte, epoch uint64) []byte {
	out := make([]byte, 0, 16+2+len(topic)+32+8)
	out = append(out, tunnelId[:]...)
	out = appendUint16(out, uint16(len(topic)))
	out = append(out, topic...)
	out = append(out, routeHash[:]...)
	out = appendUint64(out, epoch)
	return out
}

// FetchTupleMetadata publishes the tunnel's current route descriptor
// (tunnel_id, topic, route hash, epoch) as a tuplestore record, signed by
// dsaSecretKey under creator's identity, so peers outside the tunnel can
// discover and verify its active path without decrypting any frame.
func (self *Tunnel) FetchTupleMetadata(store tuplestore.Store, dsa pqc.DSA, creator, dsaSecretKey []byte) (tuplestore.Receipt, error) {
	self.mut.Lock()
	routeHash := RouteHash(self.route.plan)
	topic := self.route.plan.Topic
	epoch := self.route.plan.Epoch
	self.mut.Unlock()

	if nil == store {
		return tuplestore.Receipt{}, newError(ErrInvalidInput, "nil tuplestore")
	}
	if nil == dsa {
		return tuplestore.Receipt{}, newError(ErrInvalidInput, "nil DSA")
	}

	metadata := tupleMetadataEncoding(self.tunnelId, topic, routeHash, epoch)
	sig, err := dsa.Sign(dsaSecretKey, metadata)
	if nil != err {
		return tuplestore.Receipt{}, wrapError(err, ErrPrimitiveFailure, "failed signing route metadata")
	}

	payload := tuplestore.Payload{
		Subject:   self.tunnelId[:],
		Predicate: "qstp/route",
		Object:    routeHash[:],
		Proof:     sig,
	}
	receipt, err := store.Store(creator, payload)
	if nil != err {
		return tuplestore.Receipt{}, wrapError(err, ErrPrimitiveFailure, "failed storing route metadata tuple")
	}
	return receipt, nil
}
