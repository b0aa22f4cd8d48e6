package qace

import (
	"log/slog"
	"sync"

	"go.pqcnet.dev/core/internal/observability"
)

// SimpleQace is the deterministic threshold-based controller described in
// spec.md §4.5: it scores the primary and every alternate, applies the
// threat/loss/margin rules in order, and tracks how many epochs have
// elapsed since the last reroute to decay the primary's stickiness bonus.
//
// SimpleQace is safe for concurrent use.
type SimpleQace struct {
	mut sync.Mutex

	config Config

	haveLastReroute bool
	lastRerouteAt   uint64

	logger *slog.Logger
}

var _ Engine = (*SimpleQace)(nil)

// NewSimpleQace returns a SimpleQace controller bound to config.
func NewSimpleQace(config Config) (*SimpleQace, error) {
	if err := config.Validate(); nil != err {
		return nil, err
	}
	return &SimpleQace{config: config, logger: observability.NoopLogger()}, nil
}

// SetLogger directs the controller's decision logging to logger. A nil
// logger restores the default no-op logger.
func (self *SimpleQace) SetLogger(logger *slog.Logger) {
	self.mut.Lock()
	defer self.mut.Unlock()
	if nil == logger {
		logger = observability.NoopLogger()
	}
	self.logger = logger
}

// Evaluate implements Engine.
func (self *SimpleQace) Evaluate(req Request) (Decision, error) {
	if nil == req.PathSet.Primary {
		return Decision{}, newError(ErrInvalidInput, "nil primary route")
	}

	self.mut.Lock()
	defer self.mut.Unlock()

	stickiness := 0.0
	if self.haveLastReroute && req.TelemetryEpoch >= self.lastRerouteAt {
		stickiness = stickinessAt(req.TelemetryEpoch-self.lastRerouteAt, self.config.StickinessTtlEpochs)
	} else if !self.haveLastReroute {
		stickiness = 1
	}

	currentScore := score(self.config.Weights, self.config.Bounds, req.Metrics, req.PathSet.Primary, stickiness)
	bestAlt, bestAltScore, haveAlt := bestAlternate(self.config.Weights, self.config.Bounds, req.Metrics, req.PathSet.Alternates)

	decision := Decision{PathSet: req.PathSet, Score: currentScore, Confidence: 1}

	switch {
	case req.Metrics.ThreatScore >= self.config.Policy.ThreatHigh:
		decision.Action = Failover
		if haveAlt {
			decision.PathSet.Primary = bestAlt
			decision.Score = bestAltScore
		}
		self.markRerouted(req.TelemetryEpoch)
		self.logger.Warn("qace: failover", "threat_score", req.Metrics.ThreatScore, "epoch", req.TelemetryEpoch)

	case req.Metrics.LossBps >= self.config.Policy.LossRekey && haveAlt && bestAltScore-currentScore < self.config.Policy.RerouteMargin:
		decision.Action = Rekey
		self.logger.Info("qace: rekey", "loss_bps", req.Metrics.LossBps, "epoch", req.TelemetryEpoch)

	case haveAlt && bestAltScore-currentScore >= self.config.Policy.RerouteMargin:
		decision.Action = Reroute
		decision.PathSet.Primary = bestAlt
		decision.Score = bestAltScore
		self.markRerouted(req.TelemetryEpoch)
		self.logger.Info("qace: reroute", "margin", bestAltScore-currentScore, "epoch", req.TelemetryEpoch)

	default:
		decision.Action = Hold
	}

	return decision, nil
}

func (self *SimpleQace) markRerouted(epoch uint64) {
	self.haveLastReroute = true
	self.lastRerouteAt = epoch
}
