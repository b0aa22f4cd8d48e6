package qfkh

import "go.pqcnet.dev/core/internal/clock"

// Config bounds a QuantumForwardKeyHopper's rotation schedule.
type Config struct {
	// RotationIntervalMs is the duration of one epoch window, in milliseconds.
	RotationIntervalMs uint64

	// LookaheadEpochs is the number of future epochs a responder keeps
	// keypairs generated for, beyond the current one.
	LookaheadEpochs uint64

	// ActivationGraceMs is how long after window_end_ms a retired epoch's
	// keypair remains usable for a late activate_from call.
	ActivationGraceMs uint64
}

// NewConfig validates and returns a Config.
func NewConfig(rotationIntervalMs, lookaheadEpochs, activationGraceMs uint64) (Config, error) {
	cfg := Config{
		RotationIntervalMs: rotationIntervalMs,
		LookaheadEpochs:    lookaheadEpochs,
		ActivationGraceMs:  activationGraceMs,
	}
	return cfg, cfg.Validate()
}

// Validate reports whether the Config satisfies rotation_interval_ms > 0 and
// lookahead_epochs >= 1.
func (self Config) Validate() error {
	if self.RotationIntervalMs == 0 {
		return newError(ErrInvalidInput, "rotation_interval_ms must be > 0")
	}
	if self.LookaheadEpochs < 1 {
		return newError(ErrInvalidInput, "lookahead_epochs must be >= 1")
	}
	return nil
}

// EpochOf returns the epoch that contains nowMs.
func (self Config) EpochOf(nowMs uint64) uint64 {
	return clock.EpochOf(nowMs, self.RotationIntervalMs)
}

// WindowOf returns the [start, end) window boundaries of epoch.
func (self Config) WindowOf(epoch uint64) (start, end uint64) {
	return clock.WindowOf(epoch, self.RotationIntervalMs)
}
