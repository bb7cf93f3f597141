package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ssargent/freyja-knn/pkg/distlist"
)

// VariableSize is returned by FixedSize for serializers whose encoded
// length depends on the value (DistanceListSerializer).
const VariableSize = -1

// IntKeySize is the on-disk width of a point id key.
const IntKeySize = 4

// IntSerializer encodes/decodes the tree's fixed-size uint32 key.
type IntSerializer struct{}

// Encode writes v as a 4-byte big-endian value.
func (IntSerializer) Encode(v uint32) []byte {
	buf := make([]byte, IntKeySize)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// Decode reads a 4-byte big-endian value. b must be exactly IntKeySize
// bytes; callers are expected to slice the directory record themselves.
func (IntSerializer) Decode(b []byte) (uint32, error) {
	if len(b) != IntKeySize {
		return 0, fmt.Errorf("int key: expected %d bytes, got %d", IntKeySize, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// FixedSize returns the constant encoded width of a key.
func (IntSerializer) FixedSize() int {
	return IntKeySize
}

// DistanceListSerializer encodes/decodes a *distlist.DistanceList as a
// length-prefixed payload: ownerID(4B), count(4B), then count pairs of
// (neighborID:4B, distance:8B).
type DistanceListSerializer struct{}

// entryWidth is the encoded size of one (neighborID, distance) pair.
const entryWidth = 4 + 8

// headerWidth is the encoded size of the (ownerID, count) prefix.
const headerWidth = 4 + 4

// Encode serializes dl into its on-disk payload representation.
func (DistanceListSerializer) Encode(dl *distlist.DistanceList) []byte {
	entries := dl.Entries()
	buf := make([]byte, headerWidth+len(entries)*entryWidth)

	binary.BigEndian.PutUint32(buf[0:4], dl.OwnerID())
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(entries)))

	off := headerWidth
	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[off:off+4], e.NeighborID)
		binary.BigEndian.PutUint64(buf[off+4:off+entryWidth], math.Float64bits(e.Distance))
		off += entryWidth
	}
	return buf
}

// Decode reconstructs a DistanceList from its payload bytes. k is the
// capacity the reconstructed list is given; it must be >= the encoded
// count, which always holds for payloads this serializer itself produced.
func (DistanceListSerializer) Decode(b []byte, k int) (*distlist.DistanceList, error) {
	if len(b) < headerWidth {
		return nil, fmt.Errorf("distance list payload: truncated header (%d bytes)", len(b))
	}
	ownerID := binary.BigEndian.Uint32(b[0:4])
	count := int(binary.BigEndian.Uint32(b[4:8]))

	want := headerWidth + count*entryWidth
	if len(b) != want {
		return nil, fmt.Errorf("distance list payload: expected %d bytes for %d entries, got %d", want, count, len(b))
	}

	if k < count {
		k = count
	}
	dl := distlist.New(ownerID, k)

	off := headerWidth
	for i := 0; i < count; i++ {
		neighborID := binary.BigEndian.Uint32(b[off : off+4])
		distance := math.Float64frombits(binary.BigEndian.Uint64(b[off+4 : off+entryWidth]))
		dl.AddDistance(neighborID, distance)
		off += entryWidth
	}
	return dl, nil
}

// FixedSize reports that DistanceList payloads are variable-size.
func (DistanceListSerializer) FixedSize() int {
	return VariableSize
}
