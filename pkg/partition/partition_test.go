package partition

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.bin")
	want := []Point{
		{ID: 1, Vector: []float64{0, 0}},
		{ID: 2, Vector: []float64{3, 0}},
		{ID: 3, Vector: []float64{0, 4}},
	}
	if err := Write(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(7, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID() != 7 {
		t.Fatalf("expected partition id 7, got %d", got.ID())
	}
	if got.Size() != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), got.Size())
	}
	for i, p := range got.Points() {
		if p.ID != want[i].ID || len(p.Vector) != len(want[i].Vector) {
			t.Fatalf("point %d mismatch: got %+v want %+v", i, p, want[i])
		}
		for j := range p.Vector {
			if p.Vector[j] != want[i].Vector[j] {
				t.Fatalf("point %d component %d mismatch: got %v want %v", i, j, p.Vector[j], want[i].Vector[j])
			}
		}
	}
}

func TestLoadTruncatedHeaderFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte{1, 2}, 0o600); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	if _, err := Load(1, path); err == nil {
		t.Fatal("expected error for truncated header")
	}
}
