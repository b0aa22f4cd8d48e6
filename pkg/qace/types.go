package qace

import "math"

// Route is one candidate path a controller can select, as described by the
// fields QACE's scoring function needs. Implementations carry whatever
// identifies a route (topic, hops, labels) alongside these.
type Route interface {
	HopCount() uint32
	QosBias() int64
	Freshness() int64
	IsViable() bool
}

// Metrics is the telemetry a controller scores candidates against.
type Metrics struct {
	LatencyMs     int64
	LossBps       int64
	ThreatScore   int64
	RouteChanges  int64
	JitterMs      int64
	BandwidthMbps int64
	ChaosLevel    int64
}

// PathSet is the primary route plus its registered alternates.
type PathSet struct {
	Primary    Route
	Alternates []Route
}

// Request bundles everything Evaluate needs: the telemetry epoch (used for
// stickiness decay), the metrics snapshot, and the candidate path set.
type Request struct {
	TelemetryEpoch uint64
	Metrics        Metrics
	PathSet        PathSet
}

// Action is the controller's verdict.
type Action int

const (
	Hold Action = iota
	Reroute
	Rekey
	Failover
)

func (self Action) String() string {
	switch self {
	case Hold:
		return "Hold"
	case Reroute:
		return "Reroute"
	case Rekey:
		return "Rekey"
	case Failover:
		return "Failover"
	default:
		return "Unknown"
	}
}

// Decision is the controller's output: a pure function of its inputs.
type Decision struct {
	Action     Action
	PathSet    PathSet
	Score      float64
	Confidence float64
}

// Weights are the non-negative coefficients scoring combines. Latency, Loss,
// Threat, Qos and Fresh must sum to 1; Hops and Stick are independent
// penalty/stickiness coefficients applied outside that budget.
type Weights struct {
	Latency float64
	Loss    float64
	Threat  float64
	Qos     float64
	Fresh   float64
	Hops    float64
	Stick   float64
}

const weightSumEpsilon = 1e-6

// Validate reports whether every weight is non-negative and Latency + Loss +
// Threat + Qos + Fresh sums to 1.
func (self Weights) Validate() error {
	for name, w := range map[string]float64{
		"latency": self.Latency, "loss": self.Loss, "threat": self.Threat,
		"qos": self.Qos, "fresh": self.Fresh, "hops": self.Hops, "stick": self.Stick,
	} {
		if w < 0 {
			return newError(ErrInvalidInput, "weight %s must be non-negative, got %f", name, w)
		}
	}
	sum := self.Latency + self.Loss + self.Threat + self.Qos + self.Fresh
	if math.Abs(sum-1) > weightSumEpsilon {
		return newError(ErrInvalidInput, "latency+loss+threat+qos+fresh weights must sum to 1, got %f", sum)
	}
	return nil
}

// DefaultWeights returns a reasonable, validated starting point.
func DefaultWeights() Weights {
	return Weights{Latency: 0.25, Loss: 0.25, Threat: 0.25, Qos: 0.15, Fresh: 0.10, Hops: 0.05, Stick: 0.10}
}

// Bounds configures norm()'s saturation points: any metric value at or above
// the bound maps to 1, at or below 0 maps to 0.
type Bounds struct {
	LatencyMaxMs   int64
	LossMaxBps     int64
	ThreatMaxScore int64
}

// DefaultBounds returns commonly reasonable saturation points.
func DefaultBounds() Bounds {
	return Bounds{LatencyMaxMs: 200, LossMaxBps: 50_000, ThreatMaxScore: 100}
}

func (self Bounds) Validate() error {
	if self.LatencyMaxMs <= 0 || self.LossMaxBps <= 0 || self.ThreatMaxScore <= 0 {
		return newError(ErrInvalidInput, "Bounds fields must be > 0")
	}
	return nil
}

// Policy configures the threshold-based action rules.
type Policy struct {
	ThreatHigh    int64
	LossRekey     int64
	RerouteMargin float64
}

// DefaultPolicy returns commonly reasonable thresholds.
func DefaultPolicy() Policy {
	return Policy{ThreatHigh: 85, LossRekey: 8_000, RerouteMargin: 0.08}
}

// Config bundles the full set of tunables a controller needs.
type Config struct {
	Weights             Weights
	Bounds              Bounds
	Policy              Policy
	StickinessTtlEpochs uint64
}

// DefaultConfig returns a validated default Config.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), Bounds: DefaultBounds(), Policy: DefaultPolicy(), StickinessTtlEpochs: 10}
}

func (self Config) Validate() error {
	if err := self.Weights.Validate(); nil != err {
		return err
	}
	if err := self.Bounds.Validate(); nil != err {
		return err
	}
	if self.Policy.RerouteMargin < 0 {
		return newError(ErrInvalidInput, "Policy.RerouteMargin must be non-negative")
	}
	return nil
}

// Engine scores a PathSet against Metrics and decides an Action.
type Engine interface {
	Evaluate(req Request) (Decision, error)
}
