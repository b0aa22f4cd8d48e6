package qfkh

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"go.pqcnet.dev/core/internal/clock"
	"go.pqcnet.dev/core/internal/observability"
	"go.pqcnet.dev/core/pkg/pqc"
)

type epochKeys struct {
	pk        []byte
	sk        []byte
	keyId     KeyId
	windowEnd uint64
}

// QuantumForwardKeyHopper is one node's half of a QFKH rotation schedule: it
// holds the KEM keypairs for a sliding window of epochs, announces tickets
// for its own keypairs, and both produces and consumes capsules against
// them.
//
// A QuantumForwardKeyHopper is safe for concurrent use; its lock guards the
// keypair map and current_epoch so that announce_epoch/activate_from stay
// totally ordered by the monotonic wall-clock floor, independent of any
// Tunnel using the SessionKeys it hands out.
type QuantumForwardKeyHopper struct {
	mut sync.Mutex

	kem    pqc.KEM
	config Config

	floor        clock.Floor
	currentEpoch uint64
	started      bool
	keys         map[uint64]epochKeys
	salt         uint64 // monotonically incremented per keypair, for KeyId derivation

	logger *slog.Logger
}

// New returns a QuantumForwardKeyHopper bound to kem and config.
func New(kem pqc.KEM, config Config) (*QuantumForwardKeyHopper, error) {
	if nil == kem {
		return nil, newError(ErrInvalidInput, "nil KEM")
	}
	if err := config.Validate(); nil != err {
		return nil, err
	}
	return &QuantumForwardKeyHopper{
		kem:    kem,
		config: config,
		keys:   make(map[uint64]epochKeys),
		logger: observability.NoopLogger(),
	}, nil
}

// SetLogger directs the hopper's state-transition logging (epoch
// announcements, activations, prunes) to logger. A nil logger restores the
// default no-op logger.
func (self *QuantumForwardKeyHopper) SetLogger(logger *slog.Logger) {
	self.mut.Lock()
	defer self.mut.Unlock()
	if nil == logger {
		logger = observability.NoopLogger()
	}
	self.logger = logger
}

// observeFloor advances the monotonic wall-clock floor and returns the
// resulting value, enforcing that announce/activate/advance are totally
// ordered per node even under out-of-order now_ms.
func (self *QuantumForwardKeyHopper) observeFloor(nowMs uint64) uint64 {
	return self.floor.Observe(nowMs)
}

// EnsureLookahead generates KEM keypairs for every epoch in
// [epoch_of(now_ms), epoch_of(now_ms)+lookahead_epochs] not already present.
// It is idempotent.
func (self *QuantumForwardKeyHopper) EnsureLookahead(nowMs uint64) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.ensureLookaheadLocked(nowMs)
}

func (self *QuantumForwardKeyHopper) ensureLookaheadLocked(nowMs uint64) error {
	nowMs = self.observeFloor(nowMs)
	current := self.config.EpochOf(nowMs)
	if !self.started {
		self.currentEpoch = current
		self.started = true
	}

	for epoch := current; epoch <= current+self.config.LookaheadEpochs; epoch++ {
		if _, ok := self.keys[epoch]; ok {
			continue
		}
		pk, sk, err := self.kem.Keygen()
		if nil != err {
			return wrapError(err, ErrPrimitiveFailure, "keygen for epoch %d failed", epoch)
		}
		self.salt++
		_, windowEnd := self.config.WindowOf(epoch)
		self.keys[epoch] = epochKeys{pk: pk, sk: sk, keyId: deriveKeyId(pk, self.salt), windowEnd: windowEnd}
	}
	return nil
}

// AnnounceEpoch picks the smallest epoch whose window_start_ms is at or
// after now_ms - rotation_interval_ms/2 (i.e. the current or next epoch) and
// returns its ticket. It runs ensure_lookahead(now_ms) as a precondition.
func (self *QuantumForwardKeyHopper) AnnounceEpoch(nowMs uint64) (EpochTicket, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if err := self.ensureLookaheadLocked(nowMs); nil != err {
		return EpochTicket{}, err
	}

	threshold := uint64(0)
	half := self.config.RotationIntervalMs / 2
	if nowMs > half {
		threshold = nowMs - half
	}

	epoch := self.config.EpochOf(nowMs)
	for {
		start, _ := self.config.WindowOf(epoch)
		if start >= threshold {
			break
		}
		epoch++
	}

	keys, ok := self.keys[epoch]
	if !ok {
		return EpochTicket{}, newError(ErrUnknownEpoch, "no keypair generated for epoch %d", epoch)
	}

	start, end := self.config.WindowOf(epoch)
	return EpochTicket{
		Epoch:         epoch,
		WindowStartMs: start,
		WindowEndMs:   end,
		KeyId:         keys.keyId,
		KemPublicKey:  keys.pk,
	}, nil
}

// EncapsulateFor runs the initiator side of one rotation hop: it
// encapsulates to ticket.KemPublicKey and derives SessionKeys. It fails if
// now_ms falls outside [ticket.window_start_ms, ticket.window_end_ms +
// activation_grace_ms].
func (self *QuantumForwardKeyHopper) EncapsulateFor(ticket EpochTicket, nowMs uint64) (Capsule, SessionKeys, error) {
	if nowMs < ticket.WindowStartMs || nowMs > ticket.WindowEndMs+self.config.ActivationGraceMs {
		return Capsule{}, SessionKeys{}, newError(ErrOutOfWindow,
			"now_ms %d outside ticket window [%d, %d]", nowMs, ticket.WindowStartMs, ticket.WindowEndMs+self.config.ActivationGraceMs)
	}

	ct, ss, err := self.kem.Encap(ticket.KemPublicKey)
	if nil != err {
		return Capsule{}, SessionKeys{}, wrapError(err, ErrPrimitiveFailure, "encapsulation failed")
	}

	capsule := Capsule{
		Epoch:      ticket.Epoch,
		KeyId:      ticket.KeyId,
		Ciphertext: ct,
		Commitment: computeCommitment(ticket.KeyId, ct, ticket.Epoch),
	}

	sessionKeys, err := deriveSessionKeys(transcriptOf(ticket.KeyId, ticket.Epoch, ticket.KemPublicKey, ct), ss, true)
	if nil != err {
		return Capsule{}, SessionKeys{}, err
	}
	return capsule, sessionKeys, nil
}

// ActivateFrom runs the responder side of one rotation hop: it fetches the
// keypair for capsule.Epoch, recomputes the commitment, decapsulates, and
// derives SessionKeys identically to the initiator. On success it advances
// current_epoch to capsule.Epoch and drops keypairs retired past
// activation_grace_ms.
func (self *QuantumForwardKeyHopper) ActivateFrom(capsule Capsule, nowMs uint64) (SessionKeys, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	nowMs = self.observeFloor(nowMs)

	keys, ok := self.keys[capsule.Epoch]
	if !ok {
		return SessionKeys{}, newError(ErrUnknownEpoch, "no keypair retained for epoch %d", capsule.Epoch)
	}
	if keys.keyId != capsule.KeyId {
		return SessionKeys{}, newError(ErrUnknownEpoch, "keyId mismatch for epoch %d", capsule.Epoch)
	}

	wantCommitment := computeCommitment(capsule.KeyId, capsule.Ciphertext, capsule.Epoch)
	if wantCommitment != capsule.Commitment {
		return SessionKeys{}, newError(ErrCommitmentMismatch, "capsule commitment does not bind to epoch %d", capsule.Epoch)
	}

	ss, err := self.kem.Decap(keys.sk, capsule.Ciphertext)
	if nil != err {
		return SessionKeys{}, wrapError(err, ErrPrimitiveFailure, "decapsulation failed")
	}

	sessionKeys, err := deriveSessionKeys(transcriptOf(capsule.KeyId, capsule.Epoch, keys.pk, capsule.Ciphertext), ss, false)
	if nil != err {
		return SessionKeys{}, err
	}

	if capsule.Epoch > self.currentEpoch {
		self.currentEpoch = capsule.Epoch
	}
	self.pruneLocked(nowMs)

	self.logger.Info("qfkh: activated epoch", "epoch", capsule.Epoch, "session_id", sessionKeys.SessionId)
	return sessionKeys, nil
}

// pruneLocked drops keypairs whose window ended more than
// activation_grace_ms before nowMs, retaining at most one previous epoch's
// secret key for late activation.
func (self *QuantumForwardKeyHopper) pruneLocked(nowMs uint64) {
	var cutoff uint64
	if nowMs > self.config.ActivationGraceMs {
		cutoff = nowMs - self.config.ActivationGraceMs
	}
	for epoch, keys := range self.keys {
		if keys.windowEnd < cutoff || epoch+1 < self.currentEpoch {
			delete(self.keys, epoch)
		}
	}
}

// NeedsRotation reports whether the responder's current epoch's window has
// elapsed as of now_ms, signalling that a new capsule for the next epoch is
// due.
func (self *QuantumForwardKeyHopper) NeedsRotation(nowMs uint64) bool {
	self.mut.Lock()
	defer self.mut.Unlock()

	keys, ok := self.keys[self.currentEpoch]
	if !ok {
		return true
	}
	return nowMs >= keys.windowEnd
}

func transcriptOf(keyId KeyId, epoch uint64, pk, ct []byte) []byte {
	var epochLE [8]byte
	binary.LittleEndian.PutUint64(epochLE[:], epoch)

	out := make([]byte, 0, len(keyId)+len(epochLE)+len(pk)+len(ct))
	out = append(out, keyId[:]...)
	out = append(out, epochLE[:]...)
	out = append(out, pk...)
	out = append(out, ct...)
	return out
}
