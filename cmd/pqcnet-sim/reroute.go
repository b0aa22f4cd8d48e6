package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"go.pqcnet.dev/core/pkg/pqc"
	"go.pqcnet.dev/core/pkg/qace"
	"go.pqcnet.dev/core/pkg/qfkh"
	"go.pqcnet.dev/core/pkg/qstp"
)

// rerouteTrace reports both sides' view after one ApplyQace call.
type rerouteTrace struct {
	ThreatScore      int64  `json:"threat_score"`
	InitiatorAction  string `json:"initiator_action"`
	ResponderAction  string `json:"responder_action"`
	RouteTopic       string `json:"route_topic"`
	PostFrameAccepts bool   `json:"post_reroute_frame_accepted"`
	PreFrameRejected bool   `json:"pre_reroute_frame_rejected_after_rekey"`
}

// runReroute simulates spec.md's S4 scenario: a tunnel with primary P
// (qos_bias=5, freshness=8, hop_count=2) and alternate A (qos_bias=5,
// freshness=7, hop_count=1) under threat_score=91 triggers Failover, the
// route swaps to A, and the accompanying rekey installs fresh keys and
// resets the receiver's replay window. A pre-reroute frame on P's topic no
// longer opens because P is no longer the tunnel's active route.
func runReroute(args []string) error {
	flags := flag.NewFlagSet("reroute", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pqcnet-sim reroute [Flags]\n  Simulate a QSTP tunnel failing over under a threat spike.\n\nFlags:\n")
		flags.PrintDefaults()
	}
	threatScore := flags.Int64("threat-score", 91, "threat_score metric fed to QACE")
	outPath := flags.String("o", "-", "path where to save the JSON trace")
	flags.Parse(args)

	out, err := openOutput(*outPath)
	if nil != err {
		return fmt.Errorf("opening output: %w", err)
	}

	config, err := qfkh.NewConfig(3_000, 2, 0)
	if nil != err {
		return fmt.Errorf("building qfkh config: %w", err)
	}
	kem := pqc.MlKem768{}
	initiatorHopper, err := qfkh.New(kem, config)
	if nil != err {
		return fmt.Errorf("new initiator hopper: %w", err)
	}
	responderHopper, err := qfkh.New(kem, config)
	if nil != err {
		return fmt.Errorf("new responder hopper: %w", err)
	}
	if err := initiatorHopper.EnsureLookahead(0); nil != err {
		return fmt.Errorf("initiator ensure_lookahead: %w", err)
	}
	if err := responderHopper.EnsureLookahead(0); nil != err {
		return fmt.Errorf("responder ensure_lookahead: %w", err)
	}

	ticket0, err := responderHopper.AnnounceEpoch(1_000)
	if nil != err {
		return fmt.Errorf("announce_epoch: %w", err)
	}
	capsule0, initKeys0, err := initiatorHopper.EncapsulateFor(ticket0, 1_000)
	if nil != err {
		return fmt.Errorf("encapsulate_for: %w", err)
	}
	respKeys0, err := responderHopper.ActivateFrom(capsule0, 1_000)
	if nil != err {
		return fmt.Errorf("activate_from: %w", err)
	}

	aead, err := pqc.GetAEAD(pqc.AeadChacha20Poly1305)
	if nil != err {
		return fmt.Errorf("GetAEAD: %w", err)
	}

	tunnelId := qstp.NewTunnelId([]byte("pqcnet-sim/reroute"), uuid.New(), uuid.New())
	primary := qstp.RoutePlan{Topic: "P-topic", Hops: []qstp.PeerId{uuid.New(), uuid.New()}, Qos: qstp.LowLatency}
	alternate := qstp.RoutePlan{Topic: "A-topic", Hops: []qstp.PeerId{uuid.New()}, Qos: qstp.LowLatency}

	initEngine, err := qace.NewSimpleQace(qace.DefaultConfig())
	if nil != err {
		return fmt.Errorf("new initiator QACE engine: %w", err)
	}
	respEngine, err := qace.NewSimpleQace(qace.DefaultConfig())
	if nil != err {
		return fmt.Errorf("new responder QACE engine: %w", err)
	}

	initiatorTunnel, err := qstp.NewTunnel(tunnelId, qstp.Initiator, aead, initKeys0, qstp.AlternateRoute{Plan: primary, QosBias: 5, Freshness: 8}, initEngine, nil)
	if nil != err {
		return fmt.Errorf("new initiator tunnel: %w", err)
	}
	responderTunnel, err := qstp.NewTunnel(tunnelId, qstp.Responder, aead, respKeys0, qstp.AlternateRoute{Plan: primary, QosBias: 5, Freshness: 8}, respEngine, nil)
	if nil != err {
		return fmt.Errorf("new responder tunnel: %w", err)
	}

	altRoute := qstp.AlternateRoute{Plan: alternate, QosBias: 5, Freshness: 7}
	initiatorTunnel.RegisterAlternateRoutes([]qstp.AlternateRoute{altRoute})
	responderTunnel.RegisterAlternateRoutes([]qstp.AlternateRoute{altRoute})

	preFrame, err := initiatorTunnel.Seal([]byte("before"), nil)
	if nil != err {
		return fmt.Errorf("seal preFrame: %w", err)
	}
	if _, err := responderTunnel.Open(preFrame, nil); nil != err {
		return fmt.Errorf("open preFrame before reroute: %w", err)
	}

	metrics := qace.Metrics{LatencyMs: 20, LossBps: 100, ThreatScore: *threatScore, JitterMs: 5, BandwidthMbps: 500}

	// initRekey/respRekey model one real QFKH handshake round trip across
	// the reroute: initRekey runs the initiator half and captures the
	// resulting capsule; respRekey (invoked after) consumes it.
	var capsule qfkh.Capsule
	initRekey := func() (qfkh.SessionKeys, error) {
		ticket, err := responderHopper.AnnounceEpoch(4_000)
		if nil != err {
			return qfkh.SessionKeys{}, err
		}
		var keys qfkh.SessionKeys
		capsule, keys, err = initiatorHopper.EncapsulateFor(ticket, 4_000)
		return keys, err
	}
	respRekey := func() (qfkh.SessionKeys, error) {
		return responderHopper.ActivateFrom(capsule, 4_000)
	}

	initDecision, err := initiatorTunnel.ApplyQace(1, metrics, initRekey)
	if nil != err {
		return fmt.Errorf("initiator apply_qace: %w", err)
	}
	respDecision, err := responderTunnel.ApplyQace(1, metrics, respRekey)
	if nil != err {
		return fmt.Errorf("responder apply_qace: %w", err)
	}

	postFrame, err := initiatorTunnel.Seal([]byte("after"), nil)
	if nil != err {
		return fmt.Errorf("seal postFrame: %w", err)
	}
	_, postErr := responderTunnel.Open(postFrame, nil)
	_, preReopenErr := responderTunnel.Open(preFrame, nil)

	trace := rerouteTrace{
		ThreatScore:      *threatScore,
		InitiatorAction:  initDecision.Action.String(),
		ResponderAction:  respDecision.Action.String(),
		RouteTopic:       postFrame.Topic,
		PostFrameAccepts: nil == postErr,
		PreFrameRejected: nil != preReopenErr,
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(trace)
}
