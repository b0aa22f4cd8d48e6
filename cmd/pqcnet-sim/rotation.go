package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.pqcnet.dev/core/pkg/pqc"
	"go.pqcnet.dev/core/pkg/qfkh"
)

// rotationHop traces one announce/encapsulate/activate round trip.
type rotationHop struct {
	Hop           int    `json:"hop"`
	NowMs         uint64 `json:"now_ms"`
	Epoch         uint64 `json:"epoch"`
	KeyId         string `json:"key_id"`
	SessionId     string `json:"session_id"`
	SendRecvMatch bool   `json:"send_recv_match"`
}

func runRotation(args []string) error {
	flags := flag.NewFlagSet("rotation", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pqcnet-sim rotation [Flags]\n  Simulate a QFKH rotation handshake over several epochs.\n\nFlags:\n")
		flags.PrintDefaults()
	}
	rotationIntervalMs := flags.Uint64("interval-ms", 5_000, "epoch window duration, in milliseconds")
	lookahead := flags.Uint64("lookahead", 3, "epochs of lookahead keypair generation")
	hops := flags.Int("hops", 3, "number of rotation hops to simulate")
	outPath := flags.String("o", "-", "path where to save the JSON trace")
	flags.Parse(args)

	out, err := openOutput(*outPath)
	if nil != err {
		return fmt.Errorf("opening output: %w", err)
	}

	config, err := qfkh.NewConfig(*rotationIntervalMs, *lookahead, 0)
	if nil != err {
		return fmt.Errorf("building config: %w", err)
	}

	kem := pqc.MlKem768{}
	responder, err := qfkh.New(kem, config)
	if nil != err {
		return fmt.Errorf("new responder hopper: %w", err)
	}
	initiator, err := qfkh.New(kem, config)
	if nil != err {
		return fmt.Errorf("new initiator hopper: %w", err)
	}
	if err := responder.EnsureLookahead(0); nil != err {
		return fmt.Errorf("responder ensure_lookahead: %w", err)
	}
	if err := initiator.EnsureLookahead(0); nil != err {
		return fmt.Errorf("initiator ensure_lookahead: %w", err)
	}

	trace := make([]rotationHop, 0, *hops)
	for hop := 0; hop < *hops; hop++ {
		now := uint64(hop)*(*rotationIntervalMs) + (*rotationIntervalMs)/2

		ticket, err := responder.AnnounceEpoch(now)
		if nil != err {
			return fmt.Errorf("hop %d announce_epoch: %w", hop, err)
		}
		capsule, initKeys, err := initiator.EncapsulateFor(ticket, now)
		if nil != err {
			return fmt.Errorf("hop %d encapsulate_for: %w", hop, err)
		}
		respKeys, err := responder.ActivateFrom(capsule, now)
		if nil != err {
			return fmt.Errorf("hop %d activate_from: %w", hop, err)
		}

		match := initKeys.SendKey == respKeys.RecvKey &&
			initKeys.RecvKey == respKeys.SendKey &&
			initKeys.SessionId == respKeys.SessionId

		trace = append(trace, rotationHop{
			Hop:           hop,
			NowMs:         now,
			Epoch:         ticket.Epoch,
			KeyId:         fmt.Sprintf("%x", ticket.KeyId[:8]),
			SessionId:     fmt.Sprintf("%x", initKeys.SessionId[:8]),
			SendRecvMatch: match,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(trace)
}
