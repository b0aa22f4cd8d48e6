package qsdag

import (
	"log/slog"
	"sort"
	"sync"

	"go.pqcnet.dev/core/internal/observability"
	"go.pqcnet.dev/core/internal/utils"
)

// InsertOutcome distinguishes a diff that was accepted into the graph from
// one that was buffered pending parents it has not seen yet.
type InsertOutcome int

const (
	// Inserted means the diff (and, transitively, every diff it unblocked)
	// was accepted into the graph.
	Inserted InsertOutcome = iota
	// Buffered means the diff cites at least one parent the graph has not
	// seen yet; it is held and retried after every future successful insert.
	Buffered
)

func (self InsertOutcome) String() string {
	switch self {
	case Inserted:
		return "Inserted"
	case Buffered:
		return "Buffered"
	default:
		return "Unknown"
	}
}

// Dag is an append-only, content-addressed directed acyclic graph of
// StateDiffs under a single genesis. It is safe for concurrent use.
type Dag struct {
	mut sync.Mutex

	arena *utils.Registry[DiffId, StateDiff]

	heads    map[DiffId]struct{}
	hasChild map[DiffId]struct{} // parents that already have at least one child

	// pending buffers diffs awaiting unseen parents; waiters indexes, for
	// each missing parent id, the set of buffered diff ids blocked on it.
	pending map[DiffId]StateDiff
	waiters map[DiffId]map[DiffId]struct{}

	genesisSet bool
	genesis    DiffId

	logger *slog.Logger
}

// New returns an empty Dag with no genesis yet set. The first diff
// successfully inserted — which must have no parents and lamport 0 — becomes
// the genesis.
func New() *Dag {
	return &Dag{
		arena:    utils.NewRegistry[DiffId, StateDiff](),
		heads:    make(map[DiffId]struct{}),
		hasChild: make(map[DiffId]struct{}),
		pending:  make(map[DiffId]StateDiff),
		waiters:  make(map[DiffId]map[DiffId]struct{}),
		logger:   observability.NoopLogger(),
	}
}

// SetLogger directs the Dag's state-transition logging (genesis set, diff
// accepted, diff buffered) to logger. A nil logger restores the default
// no-op logger.
func (self *Dag) SetLogger(logger *slog.Logger) {
	self.mut.Lock()
	defer self.mut.Unlock()
	if nil == logger {
		logger = observability.NoopLogger()
	}
	self.logger = logger
}

// Contains reports whether id has already been accepted into the graph.
func (self *Dag) Contains(id DiffId) bool {
	_, ok := utils.RegistryGet(self.arena, id)
	return ok
}

// MissingParents returns the subset of diff.Parents not yet present in the
// graph, in the order they appear on diff.
func (self *Dag) MissingParents(diff StateDiff) []DiffId {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.missingParentsLocked(diff)
}

func (self *Dag) missingParentsLocked(diff StateDiff) []DiffId {
	var missing []DiffId
	for _, p := range diff.Parents {
		if _, ok := utils.RegistryGet(self.arena, p); !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// Insert adds diff to the graph. If diff cites parents the graph has not
// seen, it is buffered and InsertOutcome is Buffered; buffered diffs are
// retried after every successful insert, transitively, until no further
// progress can be made. The returned InsertOutcome is only meaningful when
// err is nil.
func (self *Dag) Insert(diff StateDiff) (InsertOutcome, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	outcome, err := self.insertLocked(diff)
	if nil != err {
		return outcome, err
	}
	if Inserted == outcome {
		self.drainPendingLocked()
	}
	return outcome, nil
}

func (self *Dag) insertLocked(diff StateDiff) (InsertOutcome, error) {
	if diff.hasSelfParent() {
		return Inserted, newError(ErrSelfParent, "diff %x lists itself as a parent", diff.Id)
	}
	if self.Contains(diff.Id) {
		return Inserted, newError(ErrDuplicateId, "diff %x already present", diff.Id)
	}

	if 0 == len(diff.Parents) {
		if !self.genesisSet {
			if diff.Lamport != 0 {
				return Inserted, newError(ErrInvalidLamport, "genesis diff must have no parents and lamport 0")
			}
		} else {
			return Inserted, newError(ErrInvalidLamport, "non-genesis diff %x must cite at least one parent", diff.Id)
		}
	} else if missing := self.missingParentsLocked(diff); len(missing) > 0 {
		self.bufferLocked(diff, missing)
		self.logger.Debug("qsdag: buffered diff pending parents", "diff_id", diff.Id, "missing", len(missing))
		return Buffered, nil
	} else {
		maxParentLamport, err := self.maxParentLamportLocked(diff.Parents)
		if nil != err {
			return Inserted, err
		}
		if diff.Lamport < maxParentLamport+1 {
			return Inserted, newError(ErrInvalidLamport, "lamport %d < max(parent.lamport)+1 = %d", diff.Lamport, maxParentLamport+1)
		}
	}

	self.acceptLocked(diff)
	self.logger.Debug("qsdag: accepted diff", "diff_id", diff.Id, "lamport", diff.Lamport)
	return Inserted, nil
}

func (self *Dag) maxParentLamportLocked(parents []DiffId) (uint64, error) {
	var max uint64
	for i, p := range parents {
		parentDiff, ok := utils.RegistryGet(self.arena, p)
		if !ok {
			return 0, newError(ErrInvalidInput, "parent %x not present", p)
		}
		if 0 == i || parentDiff.Lamport > max {
			max = parentDiff.Lamport
		}
	}
	return max, nil
}

func (self *Dag) acceptLocked(diff StateDiff) {
	if !self.genesisSet {
		self.genesisSet = true
		self.genesis = diff.Id
	}

	utils.RegistrySet(self.arena, diff.Id, diff)

	for _, p := range diff.Parents {
		self.hasChild[p] = struct{}{}
		delete(self.heads, p)
	}
	if _, hasChild := self.hasChild[diff.Id]; !hasChild {
		self.heads[diff.Id] = struct{}{}
	}
}

func (self *Dag) bufferLocked(diff StateDiff, missing []DiffId) {
	self.pending[diff.Id] = diff
	for _, m := range missing {
		if self.waiters[m] == nil {
			self.waiters[m] = make(map[DiffId]struct{})
		}
		self.waiters[m][diff.Id] = struct{}{}
	}
}

// drainPendingLocked retries buffered diffs until no further diff can be
// accepted, implementing the transitive-closure re-insertion described for
// insert().
func (self *Dag) drainPendingLocked() {
	for {
		progressed := false
		for id, diff := range self.pending {
			if len(self.missingParentsLocked(diff)) > 0 {
				continue
			}
			delete(self.pending, id)
			for _, p := range diff.Parents {
				delete(self.waiters[p], id)
			}
			if outcome, err := self.insertLocked(diff); nil == err && Inserted == outcome {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// CanonicalHead returns the head maximizing (lamport, id_bytes)
// lexicographically, and false if the graph is empty.
func (self *Dag) CanonicalHead() (StateDiff, bool) {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.canonicalHeadLocked()
}

func (self *Dag) canonicalHeadLocked() (StateDiff, bool) {
	var best StateDiff
	found := false
	for id := range self.heads {
		diff, _ := utils.RegistryGet(self.arena, id)
		if !found || isGreaterHead(diff, best) {
			best = diff
			found = true
		}
	}
	return best, found
}

func isGreaterHead(a, b StateDiff) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return compareDiffId(a.Id, b.Id) > 0
}

func compareDiffId(a, b DiffId) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// topologicalOrderLocked returns every accepted diff ordered lamport
// ascending, ties broken by id ascending — the deterministic fold order
// snapshot() uses.
func (self *Dag) topologicalOrderLocked() []StateDiff {
	entries := utils.RegistryEntries(self.arena)
	diffs := make([]StateDiff, 0, len(entries))
	for _, d := range entries {
		diffs = append(diffs, d)
	}
	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Lamport != diffs[j].Lamport {
			return diffs[i].Lamport < diffs[j].Lamport
		}
		return compareDiffId(diffs[i].Id, diffs[j].Id) < 0
	})
	return diffs
}
