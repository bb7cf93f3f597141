// Package engine implements the per-package execution loop: a worker pool
// that drains partition pairings concurrently (PackageRunner) and, for
// each pairing, the streaming nested scan that materializes top-k
// neighbor lists into an on-disk tree (PairingWorker).
package engine

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/ssargent/freyja-knn/pkg/bptree"
	"github.com/ssargent/freyja-knn/pkg/distance"
	"github.com/ssargent/freyja-knn/pkg/distlist"
	"github.com/ssargent/freyja-knn/pkg/knnpkg"
	"github.com/ssargent/freyja-knn/pkg/partition"
)

// progressLogInterval is how often, in left-side iterations, Process logs
// progress through one pairing's nested scan (spec step: log per-pairing
// progress every 50 left-side iterations). A pairing is coarse-grained
// (minutes), so this is the only visibility into it while it's running.
const progressLogInterval = 50

// Worker processes one PartitionPairing end to end: nested scan,
// DistanceList accumulation, and tree persistence.
type Worker struct {
	k        int
	distFunc distance.Func
	tempDir  string
}

// NewWorker builds a Worker that writes its pairing's temp tree files
// under tempDir.
func NewWorker(k int, distFunc distance.Func, tempDir string) *Worker {
	return &Worker{k: k, distFunc: distFunc, tempDir: tempDir}
}

// Result summarizes one completed pairing, for metrics and the run
// ledger.
type Result struct {
	Handle      bptree.TreeHandle
	ItemsScored uint64
}

// Process runs the pairing's nested scan and returns the tree handle the
// caller should register with the package descriptor via SetResultFor.
// The pairing's two partitions are loaded by the caller and passed in
// (the same Set twice for a self-pairing).
func (w *Worker) Process(pairing knnpkg.PartitionPairing, left, right *partition.Set) (Result, error) {
	maxKeysPerBucket := bptree.MaxKeysPerBucketFor(pairing.EstimatedUniqueIds)

	dirPath := filepath.Join(w.tempDir, fmt.Sprintf("pairing_%d_%d.dir", pairing.LeftID, pairing.RightID))
	dataPath := filepath.Join(w.tempDir, fmt.Sprintf("pairing_%d_%d.dat", pairing.LeftID, pairing.RightID))

	tree, err := bptree.Create(dirPath, dataPath, maxKeysPerBucket, w.k)
	if err != nil {
		return Result{}, fmt.Errorf("create pairing tree: %w", err)
	}

	seen := make(map[uint32]struct{})
	var itemsScored uint64
	var leftIterations uint64

	if pairing.SelfPairing {
		if err := w.scanPass(tree, seen, left, left, pairing, &itemsScored, &leftIterations); err != nil {
			tree.Close()
			return Result{}, err
		}
	} else {
		if err := w.scanPass(tree, seen, left, right, pairing, &itemsScored, &leftIterations); err != nil {
			tree.Close()
			return Result{}, err
		}
		// seen is per-(L,R) pass and intentionally reset: the second pass
		// accumulates distance lists owned by the opposite side's ids.
		seen = make(map[uint32]struct{})
		if err := w.scanPass(tree, seen, right, left, pairing, &itemsScored, &leftIterations); err != nil {
			tree.Close()
			return Result{}, err
		}
	}

	handle, err := tree.Close()
	if err != nil {
		return Result{}, fmt.Errorf("close pairing tree: %w", err)
	}
	return Result{Handle: handle, ItemsScored: itemsScored}, nil
}

// scanPass runs one direction of the doubly-nested scan: every point in L
// against every point in R, persisting the accumulated DistanceList after
// each insertion (matching the workload's observable write pattern).
// leftIterations is shared across both passes of a pairing so the logged
// count reflects progress through the whole pairing, not just this pass.
func (w *Worker) scanPass(tree *bptree.DynamicBPlusTree, seen map[uint32]struct{}, left, right *partition.Set, pairing knnpkg.PartitionPairing, itemsScored, leftIterations *uint64) error {
	for _, p := range left.Points() {
		for _, q := range right.Points() {
			d := w.distFunc(p.Vector, q.Vector)
			if err := w.persistDistance(tree, seen, p.ID, q.ID, d); err != nil {
				return fmt.Errorf("persist distance for point %d: %w", p.ID, err)
			}
			*itemsScored++
		}

		*leftIterations++
		if *leftIterations%progressLogInterval == 0 {
			log.Printf("pairing (%d,%d): %d left-side iterations, %d items scored", pairing.LeftID, pairing.RightID, *leftIterations, *itemsScored)
		}
	}
	return nil
}

// persistDistance implements the per-insertion read-modify-write cycle:
// load the owner's current list (or create it the first time its id is
// touched in this pass), add the new candidate, and write the list back.
func (w *Worker) persistDistance(tree *bptree.DynamicBPlusTree, seen map[uint32]struct{}, ownerID, neighborID uint32, d float64) error {
	var dl *distlist.DistanceList

	if _, ok := seen[ownerID]; ok {
		existing, err := tree.Get(ownerID)
		if err != nil {
			return fmt.Errorf("load distance list for %d: %w", ownerID, err)
		}
		dl = existing
	} else {
		dl = distlist.New(ownerID, w.k)
		seen[ownerID] = struct{}{}
	}

	dl.AddDistance(neighborID, d)
	return tree.Put(ownerID, dl)
}
