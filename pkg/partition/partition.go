// Package partition loads the point vectors backing one Partition from its
// on-disk source file. The wire format mirrors the rest of the package's
// binary encodings (fixed-width big-endian headers, codec.IntSerializer
// style): a point count, followed by one (id, dim, vector) record per
// point.
package partition

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Point is one (id, vector) pair. Vectors share a single dimensionality
// per partition; the distance function, not the partition, knows what
// that dimensionality means.
type Point struct {
	ID     uint32
	Vector []float64
}

// Set holds every point belonging to one partition, in the stable,
// deterministic order they were written in. Iteration order over Points
// is the engine's only source of tie-breaking determinism (§5).
type Set struct {
	id     int
	points []Point
}

// ID returns the partition's small integer identifier.
func (s *Set) ID() int { return s.id }

// Size returns the number of points in the partition.
func (s *Set) Size() int { return len(s.points) }

// Points returns the partition's points in on-disk order. The returned
// slice must not be mutated by the caller.
func (s *Set) Points() []Point { return s.points }

// Load reads a partition's points from its source file.
func Load(id int, path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partition %d source %s: %w", id, path, err)
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("partition %d source %s: truncated header", id, path)
	}
	count := binary.BigEndian.Uint32(data[0:4])
	off := 4

	points := make([]Point, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+8 > len(data) {
			return nil, fmt.Errorf("partition %d source %s: truncated record %d", id, path, i)
		}
		pointID := binary.BigEndian.Uint32(data[off : off+4])
		dim := binary.BigEndian.Uint32(data[off+4 : off+8])
		off += 8

		need := int(dim) * 8
		if off+need > len(data) {
			return nil, fmt.Errorf("partition %d source %s: truncated vector for point %d", id, path, pointID)
		}
		vec := make([]float64, dim)
		for j := uint32(0); j < dim; j++ {
			bits := binary.BigEndian.Uint64(data[off : off+8])
			vec[j] = math.Float64frombits(bits)
			off += 8
		}
		points = append(points, Point{ID: pointID, Vector: vec})
	}

	return &Set{id: id, points: points}, nil
}

// Write serializes points to path in the format Load expects. Primarily
// used by tests and by tooling that prepares packages.
func Write(path string, points []Point) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(points)))

	for _, p := range points {
		rec := make([]byte, 8+len(p.Vector)*8)
		binary.BigEndian.PutUint32(rec[0:4], p.ID)
		binary.BigEndian.PutUint32(rec[4:8], uint32(len(p.Vector)))
		off := 8
		for _, c := range p.Vector {
			binary.BigEndian.PutUint64(rec[off:off+8], math.Float64bits(c))
			off += 8
		}
		buf = append(buf, rec...)
	}

	return os.WriteFile(path, buf, 0o600)
}
