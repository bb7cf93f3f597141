package bptree

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ssargent/freyja-knn/pkg/distlist"
)

func newTestTree(t *testing.T, maxKeysPerBucket, k int) *DynamicBPlusTree {
	t.Helper()
	dir := t.TempDir()
	tree, err := Create(filepath.Join(dir, "dir.idx"), filepath.Join(dir, "data.bin"), maxKeysPerBucket, k)
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	return tree
}

func dlFor(ownerID uint32, k int, pairs ...[2]float64) *distlist.DistanceList {
	dl := distlist.New(ownerID, k)
	for _, p := range pairs {
		dl.AddDistance(uint32(p[0]), p[1])
	}
	return dl
}

func TestPutGetRoundTrip(t *testing.T) {
	tree := newTestTree(t, 5, 3)

	want := dlFor(1, 3, [2]float64{2, 0.5}, [2]float64{3, 1.5})
	if err := tree.Put(1, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := tree.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OwnerID() != want.OwnerID() || got.Len() != want.Len() {
		t.Fatalf("mismatch: got %+v want %+v", got.Entries(), want.Entries())
	}
}

func TestGetMissingKeyReturnsErrKeyMissing(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	if _, err := tree.Get(42); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing for missing key, got %v", err)
	}
}

func TestContainsReflectsPuts(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	ok, err := tree.Contains(1)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if ok {
		t.Fatal("expected key absent before put")
	}

	if err := tree.Put(1, dlFor(1, 3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = tree.Contains(1)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !ok {
		t.Fatal("expected key present after put")
	}
}

func TestPutOverwriteUpdatesValue(t *testing.T) {
	tree := newTestTree(t, 5, 3)
	if err := tree.Put(1, dlFor(1, 3, [2]float64{2, 5.0})); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tree.Put(1, dlFor(1, 3, [2]float64{2, 1.0})); err != nil {
		t.Fatalf("put overwrite: %v", err)
	}
	if tree.EntryCount() != 1 {
		t.Fatalf("expected entry count 1 after overwrite, got %d", tree.EntryCount())
	}

	got, err := tree.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Entries()[0].Distance != 1.0 {
		t.Fatalf("expected overwritten distance 1.0, got %v", got.Entries()[0].Distance)
	}
}

// TestManyPutsForceMultipleSplits inserts enough keys into a
// small-fanout tree to force several leaf and interior splits, then
// checks every key is still reachable.
func TestManyPutsForceMultipleSplits(t *testing.T) {
	const maxKeysPerBucket = 5
	const n = 500

	tree := newTestTree(t, maxKeysPerBucket, 2)
	for i := uint32(0); i < n; i++ {
		if err := tree.Put(i, dlFor(i, 2, [2]float64{uint64ToFloat(i), float64(i)})); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	if tree.EntryCount() != n {
		t.Fatalf("expected entry count %d, got %d", n, tree.EntryCount())
	}

	for i := uint32(0); i < n; i++ {
		got, err := tree.Get(i)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got.OwnerID() != i {
			t.Fatalf("owner mismatch for key %d: got %d", i, got.OwnerID())
		}
	}
}

func uint64ToFloat(v uint32) float64 {
	return float64(v) + 1
}

// TestRoundTripAfterCloseAndReopen exercises the durability property: a
// tree closed and reopened from its TreeHandle serves the same values.
func TestRoundTripAfterCloseAndReopen(t *testing.T) {
	dir := t.TempDir()
	dirPath := filepath.Join(dir, "dir.idx")
	dataPath := filepath.Join(dir, "data.bin")

	tree, err := Create(dirPath, dataPath, 5, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := uint32(0); i < 200; i++ {
		if err := tree.Put(i, dlFor(i, 2, [2]float64{float64(i), float64(i) * 2})); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	handle, err := tree.Close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if handle.EntryCount != 200 {
		t.Fatalf("expected 200 entries in handle, got %d", handle.EntryCount)
	}

	reopened, err := Open(handle, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i := uint32(0); i < 200; i++ {
		got, err := reopened.Get(i)
		if err != nil {
			t.Fatalf("get %d after reopen: %v", i, err)
		}
		if got.OwnerID() != i {
			t.Fatalf("owner mismatch for key %d after reopen: got %d", i, got.OwnerID())
		}
	}
}

func TestMaxKeysPerBucketForFloorsAtFive(t *testing.T) {
	if got := MaxKeysPerBucketFor(0); got != DefaultMaxKeysPerBucket {
		t.Fatalf("expected floor of %d, got %d", DefaultMaxKeysPerBucket, got)
	}
	if got := MaxKeysPerBucketFor(1); got != DefaultMaxKeysPerBucket {
		t.Fatalf("expected floor of %d, got %d", DefaultMaxKeysPerBucket, got)
	}
}

func TestMaxKeysPerBucketForGrowsWithScale(t *testing.T) {
	// floor((1e16)^(1/20)) = floor(6.31) = 6.
	got := MaxKeysPerBucketFor(10_000_000_000_000_000)
	if got <= DefaultMaxKeysPerBucket {
		t.Fatalf("expected fanout above floor for large estimate, got %d", got)
	}
}
