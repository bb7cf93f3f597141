// Package knnpkg implements the on-disk package descriptor: the YAML
// document that lists a dataset's partitions and partition pairings, and
// tracks which pairings already have a result tree.
package knnpkg

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/freyja-knn/pkg/bptree"
)

// Partition is one named, sized slice of the dataset. Its point vectors
// live at Source and are read by the engine, not by the descriptor itself.
type Partition struct {
	ID     int    `yaml:"id"`
	Source string `yaml:"source"`
	Size   int    `yaml:"size"`
}

// PartitionPairing is one cross-product scan the engine must run: all
// points in LeftID against all points in RightID. SelfPairing pairings
// scan a partition against itself and only need a forward pass.
// EstimatedUniqueIds feeds the tree's fanout heuristic. Result is nil
// until the pairing has been processed.
type PartitionPairing struct {
	LeftID             int                `yaml:"left_id"`
	RightID            int                `yaml:"right_id"`
	SelfPairing        bool               `yaml:"self_pairing"`
	EstimatedUniqueIds uint64             `yaml:"estimated_unique_ids"`
	Result             *bptree.TreeHandle `yaml:"result,omitempty"`
}

// Descriptor is the package-scoped singleton referenced by the engine's
// worker pool: the set of partitions, the set of pairings, and (as
// pairings complete) their result tree handles.
type Descriptor struct {
	Partitions []Partition         `yaml:"partitions"`
	Pairings   []PartitionPairing  `yaml:"pairings"`

	path string
	mu   sync.Mutex
}

// Load reads and parses a package descriptor from path.
func Load(path string) (*Descriptor, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("package descriptor does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read package descriptor: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse package descriptor: %w", err)
	}
	d.path = path

	if err := d.verify(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Save writes the descriptor back to the path it was loaded from.
func (d *Descriptor) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked()
}

func (d *Descriptor) saveLocked() error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create package descriptor directory: %w", err)
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal package descriptor: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0o600); err != nil {
		return fmt.Errorf("write package descriptor: %w", err)
	}
	return nil
}

// verify checks structural integrity: every pairing must reference a
// partition that is actually declared. Emptiness is checked separately,
// by the engine, scoped to the pairings it is about to process (a
// declared-but-unreferenced empty partition is not itself fatal).
func (d *Descriptor) verify() error {
	byID := make(map[int]Partition, len(d.Partitions))
	for _, p := range d.Partitions {
		byID[p.ID] = p
	}
	for _, pr := range d.Pairings {
		if _, ok := byID[pr.LeftID]; !ok {
			return fmt.Errorf("%w: pairing references unknown left partition %d", ErrCorruptPackage, pr.LeftID)
		}
		if _, ok := byID[pr.RightID]; !ok {
			return fmt.Errorf("%w: pairing references unknown right partition %d", ErrCorruptPackage, pr.RightID)
		}
	}
	return nil
}

// GetPairings returns a copy of the descriptor's pairings in declaration
// order.
func (d *Descriptor) GetPairings() []PartitionPairing {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PartitionPairing, len(d.Pairings))
	copy(out, d.Pairings)
	return out
}

// PartitionByID looks up a partition by id.
func (d *Descriptor) PartitionByID(id int) (Partition, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.Partitions {
		if p.ID == id {
			return p, true
		}
	}
	return Partition{}, false
}

// SetResultFor records the result tree for the pairing identified by
// (leftID, rightID) and persists the whole descriptor under mu. This is
// the only way a pairing's Result field is ever mutated, which is what
// lets a rerun treat a non-nil Result as "already done".
func (d *Descriptor) SetResultFor(leftID, rightID int, handle bptree.TreeHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := false
	for i := range d.Pairings {
		if d.Pairings[i].LeftID == leftID && d.Pairings[i].RightID == rightID {
			h := handle
			d.Pairings[i].Result = &h
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: no pairing (%d, %d)", ErrCorruptPackage, leftID, rightID)
	}
	return d.saveLocked()
}
