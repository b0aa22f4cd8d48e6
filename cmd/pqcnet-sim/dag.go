package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"go.pqcnet.dev/core/pkg/qsdag"
)

// dagStep traces one out-of-order insertion attempt.
type dagStep struct {
	DiffId  string `json:"diff_id"`
	Lamport uint64 `json:"lamport"`
	Outcome string `json:"outcome"`
}

type dagResult struct {
	Steps         []dagStep `json:"steps"`
	CanonicalHead string    `json:"canonical_head"`
	SnapshotKeys  int       `json:"snapshot_keys"`
}

// makeDiff returns a StateDiff with its Id assigned, one upsert op keyed by
// author+ordinal so every node's diffs are distinguishable.
func makeDiff(author string, parents []qsdag.DiffId, lamport uint64, ordinal int) (qsdag.StateDiff, error) {
	diff := qsdag.StateDiff{
		Author:  []byte(author),
		Parents: parents,
		Lamport: lamport,
		Ops: []qsdag.StateOp{{
			Tag:   qsdag.OpUpsert,
			Key:   []byte(fmt.Sprintf("%s/%d", author, ordinal)),
			Value: []byte(fmt.Sprintf("value-%s-%d", author, ordinal)),
		}},
	}
	id, err := diff.ComputeId()
	if nil != err {
		return qsdag.StateDiff{}, err
	}
	diff.Id = id
	return diff, nil
}

// runDag simulates spec.md's S3 scenario: four authors each propose two
// diffs citing the same genesis-derived head, broadcast in a shuffled,
// out-of-order sequence, and converge to one canonical head and snapshot
// once buffered diffs drain.
func runDag(args []string) error {
	flags := flag.NewFlagSet("dag", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pqcnet-sim dag [Flags]\n  Simulate out-of-order qsdag diff convergence across four authors.\n\nFlags:\n")
		flags.PrintDefaults()
	}
	seed := flags.Uint64("seed", 7, "seed for the deterministic delivery-order shuffle")
	outPath := flags.String("o", "-", "path where to save the JSON trace")
	flags.Parse(args)

	out, err := openOutput(*outPath)
	if nil != err {
		return fmt.Errorf("opening output: %w", err)
	}

	dag := qsdag.New()

	genesis, err := makeDiff("genesis", nil, 0, 0)
	if nil != err {
		return fmt.Errorf("building genesis diff: %w", err)
	}
	if _, err := dag.Insert(genesis); nil != err {
		return fmt.Errorf("inserting genesis: %w", err)
	}

	authors := []string{"alice", "bob", "carol", "dave"}
	diffs := make([]qsdag.StateDiff, 0, len(authors)*2)
	for _, author := range authors {
		for ordinal := 0; ordinal < 2; ordinal++ {
			diff, err := makeDiff(author, []qsdag.DiffId{genesis.Id}, 1, ordinal)
			if nil != err {
				return fmt.Errorf("building %s diff %d: %w", author, ordinal, err)
			}
			diffs = append(diffs, diff)
		}
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0xD1FF))
	rng.Shuffle(len(diffs), func(i, j int) { diffs[i], diffs[j] = diffs[j], diffs[i] })

	steps := make([]dagStep, 0, len(diffs))
	for _, diff := range diffs {
		outcome, err := dag.Insert(diff)
		if nil != err {
			return fmt.Errorf("inserting diff %x: %w", diff.Id, err)
		}
		steps = append(steps, dagStep{
			DiffId:  fmt.Sprintf("%x", diff.Id[:8]),
			Lamport: diff.Lamport,
			Outcome: outcome.String(),
		})
	}

	head, ok := dag.CanonicalHead()
	if !ok {
		return fmt.Errorf("canonical_head: empty graph after convergence")
	}
	snapshot, ok := dag.Snapshot()
	if !ok {
		return fmt.Errorf("snapshot: empty graph after convergence")
	}

	result := dagResult{
		Steps:         steps,
		CanonicalHead: fmt.Sprintf("%x", head.Id[:8]),
		SnapshotKeys:  len(snapshot.Values),
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
