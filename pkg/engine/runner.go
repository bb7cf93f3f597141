package engine

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ssargent/freyja-knn/pkg/distance"
	"github.com/ssargent/freyja-knn/pkg/knnpkg"
	"github.com/ssargent/freyja-knn/pkg/ledger"
	"github.com/ssargent/freyja-knn/pkg/partition"
	"github.com/ssargent/freyja-knn/pkg/statusapi"
)

// Config parameterizes one package run.
type Config struct {
	InputPath      string
	K              int
	DistFunc       distance.Func
	Multithreading bool
	TempDir        string
	Ledger         *ledger.Ledger     // optional
	Metrics        *statusapi.Metrics // optional
}

// Runner drives one package end to end: load, verify, enumerate pairings,
// dispatch workers, and rewrite the descriptor as results land.
type Runner struct {
	cfg        Config
	descriptor *knnpkg.Descriptor

	mu         sync.Mutex
	totalItems uint64
}

// NewRunner loads and verifies the package descriptor at cfg.InputPath.
func NewRunner(cfg Config) (*Runner, error) {
	d, err := knnpkg.Load(cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("load package descriptor: %w", err)
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Runner{cfg: cfg, descriptor: d}, nil
}

// TotalItems returns the running count of (left, right) pairs scored so
// far across every pairing, the one piece of shared mutable state workers
// touch concurrently.
func (r *Runner) TotalItems() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalItems
}

func (r *Runner) addItems(n uint64) {
	r.mu.Lock()
	r.totalItems += n
	r.mu.Unlock()
}

// taskResult carries one pairing task's outcome back to Run's join phase.
type taskResult struct {
	pairing knnpkg.PartitionPairing
	result  Result
	err     error
}

// Run enumerates unprocessed pairings, dispatches them to a fixed-size
// worker pool, and blocks until every task has completed, including tasks
// still running after a failure. It returns the first task error, if any.
func (r *Runner) Run() error {
	pairings := r.descriptor.GetPairings()

	poolSize := 1
	if r.cfg.Multithreading {
		poolSize = runtime.NumCPU()
	}

	pending := make([]knnpkg.PartitionPairing, 0, len(pairings))
	for _, p := range pairings {
		if p.Result != nil {
			continue
		}
		pending = append(pending, p)
	}

	if len(pending) == 0 {
		log.Println("package run: nothing to do")
		return nil
	}

	if err := r.rejectEmptyPartitions(pending); err != nil {
		return err
	}

	tasks := make(chan knnpkg.PartitionPairing, len(pending))
	for _, p := range pending {
		tasks <- p
	}
	close(tasks)

	results := make(chan taskResult, len(pending))
	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go r.poolWorker(&wg, tasks, results)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	processed := 0
	for tr := range results {
		processed++
		if tr.err != nil {
			log.Printf("pairing (%d,%d) failed: %v", tr.pairing.LeftID, tr.pairing.RightID, tr.err)
			if firstErr == nil {
				firstErr = tr.err
			}
			r.recordLedger(tr.pairing, tr.result, tr.err, ledger.OutcomeFailed)
			continue
		}

		if err := r.descriptor.SetResultFor(tr.pairing.LeftID, tr.pairing.RightID, tr.result.Handle); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.addItems(tr.result.ItemsScored)
		r.recordLedger(tr.pairing, tr.result, nil, ledger.OutcomeSucceeded)

		// Per-pairing progress within the scan itself is logged by
		// Worker.scanPass every 50 left-side iterations; this just marks
		// pairing completion against the run's total, since pairings
		// themselves are coarse-grained (minutes each).
		log.Printf("package run: completed pairing (%d,%d) [%d/%d], %d items scored", tr.pairing.LeftID, tr.pairing.RightID, processed, len(pending), r.TotalItems())
	}

	return firstErr
}

// rejectEmptyPartitions implements the runner's fatal pre-flight check
// (§4.6 step 3): any pairing touching a zero-size partition aborts the
// whole run before a single task is dispatched.
func (r *Runner) rejectEmptyPartitions(pending []knnpkg.PartitionPairing) error {
	for _, p := range pending {
		left, ok := r.descriptor.PartitionByID(p.LeftID)
		if !ok || left.Size == 0 {
			return fmt.Errorf("%w: partition %d", knnpkg.ErrEmptyPartition, p.LeftID)
		}
		if p.SelfPairing {
			continue
		}
		right, ok := r.descriptor.PartitionByID(p.RightID)
		if !ok || right.Size == 0 {
			return fmt.Errorf("%w: partition %d", knnpkg.ErrEmptyPartition, p.RightID)
		}
	}
	return nil
}

func (r *Runner) poolWorker(wg *sync.WaitGroup, tasks <-chan knnpkg.PartitionPairing, results chan<- taskResult) {
	defer wg.Done()
	for pairing := range tasks {
		start := time.Now()
		result, err := r.runOneTask(pairing)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordPairing(err == nil, time.Since(start))
			if err == nil {
				r.cfg.Metrics.AddItemsScored(result.ItemsScored)
			}
		}
		results <- taskResult{pairing: pairing, result: result, err: err}
	}
}

func (r *Runner) runOneTask(pairing knnpkg.PartitionPairing) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			err = fmt.Errorf("pairing (%d,%d): %w", pairing.LeftID, pairing.RightID, err)
		}
	}()

	leftMeta, ok := r.descriptor.PartitionByID(pairing.LeftID)
	if !ok {
		return Result{}, fmt.Errorf("%w: pairing references unknown left partition %d", knnpkg.ErrCorruptPackage, pairing.LeftID)
	}
	if leftMeta.Size == 0 {
		return Result{}, fmt.Errorf("%w: partition %d", knnpkg.ErrEmptyPartition, leftMeta.ID)
	}
	left, err := partition.Load(leftMeta.ID, leftMeta.Source)
	if err != nil {
		return Result{}, err
	}

	var right *partition.Set
	if pairing.SelfPairing {
		right = left
	} else {
		rightMeta, ok := r.descriptor.PartitionByID(pairing.RightID)
		if !ok {
			return Result{}, fmt.Errorf("%w: pairing references unknown right partition %d", knnpkg.ErrCorruptPackage, pairing.RightID)
		}
		if rightMeta.Size == 0 {
			return Result{}, fmt.Errorf("%w: partition %d", knnpkg.ErrEmptyPartition, rightMeta.ID)
		}
		right, err = partition.Load(rightMeta.ID, rightMeta.Source)
		if err != nil {
			return Result{}, err
		}
	}

	worker := NewWorker(r.cfg.K, r.cfg.DistFunc, r.cfg.TempDir)
	return worker.Process(pairing, left, right)
}

func (r *Runner) recordLedger(pairing knnpkg.PartitionPairing, result Result, taskErr error, outcome ledger.Outcome) {
	if r.cfg.Ledger == nil {
		return
	}
	entry := ledger.Entry{
		PackagePath: r.cfg.InputPath,
		LeftID:      pairing.LeftID,
		RightID:     pairing.RightID,
		StartedAt:   time.Now(),
		Outcome:     outcome,
		ItemsScored: result.ItemsScored,
	}
	if taskErr != nil {
		entry.Error = taskErr.Error()
	}
	if _, err := r.cfg.Ledger.Record(entry); err != nil {
		log.Printf("run ledger: failed to record pairing (%d,%d): %v", pairing.LeftID, pairing.RightID, err)
	}
}
