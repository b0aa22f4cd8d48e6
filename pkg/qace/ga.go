package qace

import (
	"encoding/binary"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"go.pqcnet.dev/core/internal/observability"
)

// GaConfig tunes GaQace's weight-search variant.
type GaConfig struct {
	// PopulationSize bounds the number of weight perturbations evaluated per
	// generation; must be in (0, 32].
	PopulationSize int

	// MaxGenerations bounds how many tournament/mutation rounds run per
	// Evaluate call.
	MaxGenerations int

	// Epsilon is the score-delta below which evolution stops early.
	Epsilon float64

	// TournamentSize is how many individuals compete per selection draw.
	TournamentSize int

	// MutationSigma is the standard deviation of the Gaussian perturbation
	// applied to each weight.
	MutationSigma float64

	// RngSeed seeds the deterministic RNG driving selection and mutation.
	// Evaluate is deterministic for a given (RngSeed, telemetry history, path set).
	RngSeed uint64

	// HistorySize bounds the telemetry ring buffer; must be >= 64.
	HistorySize int
}

// DefaultGaConfig returns a validated default GaConfig.
func DefaultGaConfig() GaConfig {
	return GaConfig{
		PopulationSize: 16,
		MaxGenerations: 24,
		Epsilon:        1e-4,
		TournamentSize: 3,
		MutationSigma:  0.05,
		RngSeed:        9,
		HistorySize:    64,
	}
}

func (self GaConfig) Validate() error {
	if self.PopulationSize <= 0 || self.PopulationSize > 32 {
		return newError(ErrInvalidInput, "PopulationSize must be in (0, 32]")
	}
	if self.MaxGenerations <= 0 {
		return newError(ErrInvalidInput, "MaxGenerations must be > 0")
	}
	if self.TournamentSize <= 0 || self.TournamentSize > self.PopulationSize {
		return newError(ErrInvalidInput, "TournamentSize must be in (0, PopulationSize]")
	}
	if self.HistorySize < 64 {
		return newError(ErrInvalidInput, "HistorySize must be >= 64")
	}
	return nil
}

// GaQace is a genetic/evolutionary variant of the QACE controller: it
// maintains a telemetry history ring buffer and, per Evaluate call, evolves
// a small population of Weights perturbations scored against that history
// before applying the threshold action policy with the fittest individual.
//
// GaQace is safe for concurrent use.
type GaQace struct {
	mut sync.Mutex

	gaConfig Config
	ga       GaConfig
	rng      *rand.Rand

	history    []Metrics
	historyPos int
	historyLen int

	haveLastReroute bool
	lastRerouteAt   uint64

	logger *slog.Logger
}

var _ Engine = (*GaQace)(nil)

// SetLogger directs the controller's decision logging to logger. A nil
// logger restores the default no-op logger.
func (self *GaQace) SetLogger(logger *slog.Logger) {
	self.mut.Lock()
	defer self.mut.Unlock()
	if nil == logger {
		logger = observability.NoopLogger()
	}
	self.logger = logger
}

// NewGaQace returns a GaQace bound to config (weights/bounds/policy) and ga
// (the evolutionary search tunables).
func NewGaQace(config Config, ga GaConfig) (*GaQace, error) {
	// GaQace treats config.Weights only as the seed individual; it need not
	// itself sum to 1 since evolution renormalizes each candidate.
	if err := config.Bounds.Validate(); nil != err {
		return nil, err
	}
	if config.Policy.RerouteMargin < 0 {
		return nil, newError(ErrInvalidInput, "Policy.RerouteMargin must be non-negative")
	}
	if err := ga.Validate(); nil != err {
		return nil, err
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], ga.RngSeed)
	copy(seed[8:], []byte("PQCNET_QACE_GA"))

	return &GaQace{
		gaConfig: config,
		ga:       ga,
		rng:      rand.New(rand.NewChaCha8(seed)),
		history:  make([]Metrics, ga.HistorySize),
		logger:   observability.NoopLogger(),
	}, nil
}

func (self *GaQace) pushHistory(m Metrics) {
	self.history[self.historyPos] = m
	self.historyPos = (self.historyPos + 1) % len(self.history)
	if self.historyLen < len(self.history) {
		self.historyLen++
	}
}

// Evaluate implements Engine. It records req.Metrics into the telemetry
// history, evolves a population of Weights against that history, and uses
// the fittest individual to score the candidates and pick an Action.
func (self *GaQace) Evaluate(req Request) (Decision, error) {
	if nil == req.PathSet.Primary {
		return Decision{}, newError(ErrInvalidInput, "nil primary route")
	}

	self.mut.Lock()
	defer self.mut.Unlock()

	self.pushHistory(req.Metrics)

	best, bestFitness := self.evolve(req.PathSet)

	stickiness := 0.0
	if self.haveLastReroute && req.TelemetryEpoch >= self.lastRerouteAt {
		stickiness = stickinessAt(req.TelemetryEpoch-self.lastRerouteAt, self.gaConfig.StickinessTtlEpochs)
	} else if !self.haveLastReroute {
		stickiness = 1
	}

	currentScore := score(best, self.gaConfig.Bounds, req.Metrics, req.PathSet.Primary, stickiness)
	bestAlt, bestAltScore, haveAlt := bestAlternate(best, self.gaConfig.Bounds, req.Metrics, req.PathSet.Alternates)

	decision := Decision{PathSet: req.PathSet, Score: currentScore, Confidence: confidenceOf(bestFitness)}

	switch {
	case req.Metrics.ThreatScore >= self.gaConfig.Policy.ThreatHigh:
		decision.Action = Failover
		if haveAlt {
			decision.PathSet.Primary = bestAlt
			decision.Score = bestAltScore
		}
		self.markRerouted(req.TelemetryEpoch)

	case req.Metrics.LossBps >= self.gaConfig.Policy.LossRekey && haveAlt && bestAltScore-currentScore < self.gaConfig.Policy.RerouteMargin:
		decision.Action = Rekey

	case haveAlt && bestAltScore-currentScore >= self.gaConfig.Policy.RerouteMargin:
		decision.Action = Reroute
		decision.PathSet.Primary = bestAlt
		decision.Score = bestAltScore
		self.markRerouted(req.TelemetryEpoch)

	default:
		decision.Action = Hold
	}

	if Hold != decision.Action {
		self.logger.Info("qace: decision", "action", decision.Action.String(), "epoch", req.TelemetryEpoch, "fitness", bestFitness)
	}

	return decision, nil
}

func (self *GaQace) markRerouted(epoch uint64) {
	self.haveLastReroute = true
	self.lastRerouteAt = epoch
}

// evolve runs a tournament-selection, Gaussian-mutation search over
// Weights, fitness being the average primary score across the telemetry
// history. It terminates on ga.MaxGenerations or a generational best-score
// delta below ga.Epsilon.
func (self *GaQace) evolve(pathSet PathSet) (Weights, float64) {
	population := make([]Weights, self.ga.PopulationSize)
	population[0] = normalizeWeights(self.gaConfig.Weights)
	for i := 1; i < len(population); i++ {
		population[i] = self.mutate(population[0])
	}

	fitness := make([]float64, len(population))
	for i, w := range population {
		fitness[i] = self.fitnessOf(w, pathSet)
	}

	bestIdx := argmax(fitness)
	bestFitness := fitness[bestIdx]

	for gen := 0; gen < self.ga.MaxGenerations; gen++ {
		next := make([]Weights, len(population))
		next[0] = population[bestIdx] // elitism
		for i := 1; i < len(next); i++ {
			parent := self.tournamentSelect(population, fitness)
			next[i] = self.mutate(parent)
		}
		population = next
		for i, w := range population {
			fitness[i] = self.fitnessOf(w, pathSet)
		}

		idx := argmax(fitness)
		if fitness[idx]-bestFitness < self.ga.Epsilon {
			bestIdx = idx
			bestFitness = fitness[idx]
			break
		}
		bestIdx = idx
		bestFitness = fitness[idx]
	}

	return population[bestIdx], bestFitness
}

func (self *GaQace) fitnessOf(w Weights, pathSet PathSet) float64 {
	if 0 == self.historyLen {
		return score(w, self.gaConfig.Bounds, Metrics{}, pathSet.Primary, 0)
	}
	var sum float64
	for i := 0; i < self.historyLen; i++ {
		sum += score(w, self.gaConfig.Bounds, self.history[i], pathSet.Primary, 0)
	}
	return sum / float64(self.historyLen)
}

func (self *GaQace) tournamentSelect(population []Weights, fitness []float64) Weights {
	bestIdx := -1
	bestFit := math.Inf(-1)
	for i := 0; i < self.ga.TournamentSize; i++ {
		idx := self.rng.IntN(len(population))
		if bestIdx < 0 || fitness[idx] > bestFit {
			bestIdx, bestFit = idx, fitness[idx]
		}
	}
	return population[bestIdx]
}

func (self *GaQace) mutate(w Weights) Weights {
	mutated := Weights{
		Latency: w.Latency + self.gaussian(),
		Loss:    w.Loss + self.gaussian(),
		Threat:  w.Threat + self.gaussian(),
		Qos:     w.Qos + self.gaussian(),
		Fresh:   w.Fresh + self.gaussian(),
		Hops:    math.Max(0, w.Hops+self.gaussian()),
		Stick:   math.Max(0, w.Stick+self.gaussian()),
	}
	return normalizeWeights(mutated)
}

// gaussian draws a standard-normal sample via Box-Muller from the seeded
// ChaCha8 stream, scaled by MutationSigma.
func (self *GaQace) gaussian() float64 {
	f1 := 1 - self.rng.Float64() // avoid log(0)
	f2 := self.rng.Float64()
	z := math.Sqrt(-2*math.Log(f1)) * math.Cos(2*math.Pi*f2)
	return z * self.ga.MutationSigma
}

// normalizeWeights clamps Latency/Loss/Threat/Qos/Fresh to non-negative and
// rescales them to sum to 1, leaving Hops/Stick as independent non-negative
// coefficients.
func normalizeWeights(w Weights) Weights {
	latency := math.Max(0, w.Latency)
	loss := math.Max(0, w.Loss)
	threat := math.Max(0, w.Threat)
	qos := math.Max(0, w.Qos)
	fresh := math.Max(0, w.Fresh)

	sum := latency + loss + threat + qos + fresh
	if sum <= 0 {
		latency, loss, threat, qos, fresh = 0.2, 0.2, 0.2, 0.2, 0.2
		sum = 1
	}

	return Weights{
		Latency: latency / sum,
		Loss:    loss / sum,
		Threat:  threat / sum,
		Qos:     qos / sum,
		Fresh:   fresh / sum,
		Hops:    math.Max(0, w.Hops),
		Stick:   math.Max(0, w.Stick),
	}
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

// confidenceOf maps a fitness value into [0,1] via a logistic squashing
// function centered at zero, so callers get a bounded confidence regardless
// of the unbounded score scale.
func confidenceOf(fitness float64) float64 {
	return 1 / (1 + math.Exp(-fitness))
}
