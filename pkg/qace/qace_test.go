package qace

import "testing"

type demoRoute struct {
	label     string
	hopCount  uint32
	qosBias   int64
	freshness int64
}

func (self demoRoute) HopCount() uint32 { return self.hopCount }
func (self demoRoute) QosBias() int64   { return self.qosBias }
func (self demoRoute) Freshness() int64 { return self.freshness }
func (self demoRoute) IsViable() bool   { return "" != self.label }

var _ Route = demoRoute{}

func TestSimpleQaceThreatFailover(t *testing.T) {
	engine, err := NewSimpleQace(DefaultConfig())
	if nil != err {
		t.Fatalf("NewSimpleQace: %v", err)
	}

	primary := demoRoute{label: "primary", hopCount: 2, qosBias: 4, freshness: 8}
	alternate := demoRoute{label: "shielded", hopCount: 1, qosBias: 5, freshness: 7}

	decision, err := engine.Evaluate(Request{
		TelemetryEpoch: 42,
		Metrics:        Metrics{ThreatScore: 91, LatencyMs: 3},
		PathSet:        PathSet{Primary: primary, Alternates: []Route{alternate}},
	})
	if nil != err {
		t.Fatalf("Evaluate: %v", err)
	}
	if Failover != decision.Action {
		t.Fatalf("action = %v, want Failover", decision.Action)
	}
	if decision.PathSet.Primary != Route(alternate) {
		t.Fatalf("new primary = %v, want alternate", decision.PathSet.Primary)
	}
}

func TestSimpleQaceHoldWhenNoMargin(t *testing.T) {
	engine, err := NewSimpleQace(DefaultConfig())
	if nil != err {
		t.Fatalf("NewSimpleQace: %v", err)
	}

	primary := demoRoute{label: "primary", hopCount: 2, qosBias: 5, freshness: 8}
	alternate := demoRoute{label: "alt", hopCount: 2, qosBias: 5, freshness: 8}

	decision, err := engine.Evaluate(Request{
		TelemetryEpoch: 1,
		Metrics:        Metrics{LatencyMs: 10, LossBps: 100, ThreatScore: 2},
		PathSet:        PathSet{Primary: primary, Alternates: []Route{alternate}},
	})
	if nil != err {
		t.Fatalf("Evaluate: %v", err)
	}
	if Hold != decision.Action {
		t.Fatalf("action = %v, want Hold", decision.Action)
	}
}

func TestSimpleQaceRerouteOnMargin(t *testing.T) {
	engine, err := NewSimpleQace(DefaultConfig())
	if nil != err {
		t.Fatalf("NewSimpleQace: %v", err)
	}

	primary := demoRoute{label: "primary", hopCount: 5, qosBias: 1, freshness: 1}
	alternate := demoRoute{label: "faster", hopCount: 1, qosBias: 9, freshness: 9}

	decision, err := engine.Evaluate(Request{
		TelemetryEpoch: 1,
		Metrics:        Metrics{LatencyMs: 5, LossBps: 100, ThreatScore: 2},
		PathSet:        PathSet{Primary: primary, Alternates: []Route{alternate}},
	})
	if nil != err {
		t.Fatalf("Evaluate: %v", err)
	}
	if Reroute != decision.Action {
		t.Fatalf("action = %v, want Reroute", decision.Action)
	}
	if decision.PathSet.Primary != Route(alternate) {
		t.Fatal("reroute did not swap in the alternate")
	}
}

func TestSimpleQaceRekeyOnLoss(t *testing.T) {
	config := DefaultConfig()
	config.Policy.RerouteMargin = 0.5 // make Reroute hard to trigger so Rekey can
	engine, err := NewSimpleQace(config)
	if nil != err {
		t.Fatalf("NewSimpleQace: %v", err)
	}

	primary := demoRoute{label: "primary", hopCount: 2, qosBias: 5, freshness: 5}
	alternate := demoRoute{label: "alt", hopCount: 2, qosBias: 5, freshness: 5}

	decision, err := engine.Evaluate(Request{
		TelemetryEpoch: 1,
		Metrics:        Metrics{LossBps: 9_000, ThreatScore: 2},
		PathSet:        PathSet{Primary: primary, Alternates: []Route{alternate}},
	})
	if nil != err {
		t.Fatalf("Evaluate: %v", err)
	}
	if Rekey != decision.Action {
		t.Fatalf("action = %v, want Rekey", decision.Action)
	}
}

func TestWeightsValidate(t *testing.T) {
	w := DefaultWeights()
	if err := w.Validate(); nil != err {
		t.Fatalf("Validate default weights: %v", err)
	}

	w.Latency = 2
	if err := w.Validate(); nil == err {
		t.Fatal("Validate accepted weights not summing to 1")
	}
}

func TestGaQaceDeterministic(t *testing.T) {
	config := DefaultConfig()
	gaConfig := DefaultGaConfig()

	primary := demoRoute{label: "primary", hopCount: 2, qosBias: 5, freshness: 8}
	alternates := []Route{
		demoRoute{label: "failsafe", hopCount: 1, qosBias: 3, freshness: 6},
		demoRoute{label: "high-throughput", hopCount: 3, qosBias: 1, freshness: 5},
	}

	scenarios := []Request{
		{TelemetryEpoch: 11, Metrics: Metrics{LatencyMs: 3, LossBps: 1_100, ThreatScore: 5}},
		{TelemetryEpoch: 12, Metrics: Metrics{LatencyMs: 15, LossBps: 12_500, ThreatScore: 12, JitterMs: 8, BandwidthMbps: 40, RouteChanges: 1}},
		{TelemetryEpoch: 13, Metrics: Metrics{LatencyMs: 4, LossBps: 2_400, ThreatScore: 92, ChaosLevel: 10, RouteChanges: 2}},
	}
	for i := range scenarios {
		scenarios[i].PathSet = PathSet{Primary: primary, Alternates: alternates}
	}

	run := func() []Decision {
		engine, err := NewGaQace(config, gaConfig)
		if nil != err {
			t.Fatalf("NewGaQace: %v", err)
		}
		out := make([]Decision, len(scenarios))
		for i, req := range scenarios {
			d, err := engine.Evaluate(req)
			if nil != err {
				t.Fatalf("Evaluate: %v", err)
			}
			out[i] = d
		}
		return out
	}

	a := run()
	b := run()
	for i := range a {
		if a[i].Action != b[i].Action {
			t.Fatalf("scenario %d: action diverged between identical runs: %v != %v", i, a[i].Action, b[i].Action)
		}
		if a[i].Score != b[i].Score {
			t.Fatalf("scenario %d: score diverged between identical runs: %f != %f", i, a[i].Score, b[i].Score)
		}
	}

	// the threat-injection scenario must still trigger Failover regardless
	// of which weights the search converges on.
	if Failover != a[2].Action {
		t.Fatalf("scenario 2 action = %v, want Failover", a[2].Action)
	}
}
