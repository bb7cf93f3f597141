// Package ledger records operational run history for pairings processed
// by the engine: one entry per (package path, pairing) recording when it
// ran, how long it took, and its outcome. This is diagnostic history only
// — it is never consulted to decide whether a pairing is resumable; that
// decision belongs solely to the package descriptor's result field.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

// Outcome classifies how a pairing run ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped" // already had a result; resumed idempotently
)

// Entry is one recorded run of a single pairing.
type Entry struct {
	ID           string        `json:"id"`
	PackagePath  string        `json:"package_path"`
	LeftID       int           `json:"left_id"`
	RightID      int           `json:"right_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Outcome      Outcome       `json:"outcome"`
	ItemsScored  uint64        `json:"items_scored"`
	BytesWritten uint64        `json:"bytes_written"`
	Error        string        `json:"error,omitempty"`
}

// Ledger is a small embedded key-value store of run history, keyed by a
// fresh ksuid per entry so records sort roughly by creation time.
type Ledger struct {
	db *pebble.DB
}

// Open opens (creating if necessary) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record appends one entry to the ledger, assigning it a fresh id.
func (l *Ledger) Record(e Entry) (string, error) {
	id := ksuid.New()
	e.ID = id.String()

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.db.Set(id.Bytes(), data, pebble.NoSync); err != nil {
		return "", fmt.Errorf("write ledger entry: %w", err)
	}
	return e.ID, nil
}

// Get reads back one entry by id, primarily for diagnostics and tests.
func (l *Ledger) Get(id string) (Entry, error) {
	parsed, err := ksuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("parse ledger id: %w", err)
	}
	data, closer, err := l.db.Get(parsed.Bytes())
	if err != nil {
		return Entry{}, fmt.Errorf("read ledger entry: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal ledger entry: %w", err)
	}
	return e, nil
}

// ForEach iterates every entry in key order (roughly creation order, since
// keys are ksuids), invoking fn for each until it returns false or the
// iterator is exhausted.
func (l *Ledger) ForEach(fn func(Entry) bool) error {
	iter, err := l.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("iterate ledger: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return fmt.Errorf("unmarshal ledger entry: %w", err)
		}
		if !fn(e) {
			break
		}
	}
	return iter.Error()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
