package ledger

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndGetRoundTrip(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	id, err := l.Record(Entry{
		PackagePath: "pkg.yaml",
		LeftID:      1,
		RightID:     2,
		StartedAt:   time.Unix(0, 0),
		Duration:    5 * time.Second,
		Outcome:     OutcomeSucceeded,
		ItemsScored: 1000,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := l.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Outcome != OutcomeSucceeded || got.ItemsScored != 1000 {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestForEachVisitsAllEntries(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 3; i++ {
		if _, err := l.Record(Entry{PackagePath: "pkg.yaml", LeftID: i, RightID: i, Outcome: OutcomeSucceeded}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	count := 0
	if err := l.ForEach(func(Entry) bool {
		count++
		return true
	}); err != nil {
		t.Fatalf("for each: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 entries, got %d", count)
	}
}
