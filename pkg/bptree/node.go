package bptree

import (
	"encoding/binary"
	"fmt"
)

// magic identifies a directory file header belonging to this tree format.
var magic = [4]byte{'K', 'N', 'N', 'T'}

const headerSize = 4 /*magic*/ + 2 /*version*/ + 4 /*maxKeysPerBucket*/ + 4 /*slotSize*/ + 8 /*rootOffset*/ + 8 /*nextFreeOffset*/ + 8 /*entryCount*/

const formatVersion = uint16(1)

// header is the fixed directory-file preamble recording everything needed
// to resume descending and allocating without replaying the whole file.
type header struct {
	maxKeysPerBucket uint32
	slotSize         uint32
	rootOffset       int64
	nextFreeOffset   int64
	entryCount       uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic[:])
	binary.BigEndian.PutUint16(buf[4:6], formatVersion)
	binary.BigEndian.PutUint32(buf[6:10], h.maxKeysPerBucket)
	binary.BigEndian.PutUint32(buf[10:14], h.slotSize)
	binary.BigEndian.PutUint64(buf[14:22], uint64(h.rootOffset))
	binary.BigEndian.PutUint64(buf[22:30], uint64(h.nextFreeOffset))
	binary.BigEndian.PutUint64(buf[30:38], h.entryCount)
	return buf
}

func decodeHeader(b []byte) (header, error) {
	if len(b) != headerSize {
		return header{}, fmt.Errorf("%w: short header (%d bytes)", ErrCorruptTree, len(b))
	}
	if string(b[0:4]) != string(magic[:]) {
		return header{}, fmt.Errorf("%w: bad magic", ErrCorruptTree)
	}
	if v := binary.BigEndian.Uint16(b[4:6]); v != formatVersion {
		return header{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptTree, v)
	}
	return header{
		maxKeysPerBucket: binary.BigEndian.Uint32(b[6:10]),
		slotSize:         binary.BigEndian.Uint32(b[10:14]),
		rootOffset:       int64(binary.BigEndian.Uint64(b[14:22])),
		nextFreeOffset:   int64(binary.BigEndian.Uint64(b[22:30])),
		entryCount:       binary.BigEndian.Uint64(b[30:38]),
	}, nil
}

// nodeCapacity is the number of keys a slot must have room for. A node may
// transiently hold maxKeysPerBucket+1 keys right after an overflowing
// insert and before its split is processed, so slots are sized for that
// high-water mark rather than the steady-state bound.
func nodeCapacity(maxKeysPerBucket int) int {
	return maxKeysPerBucket + 1
}

// slotSizeFor computes the fixed per-node slot width for a given fanout,
// sized for the larger of a leaf's (key, offset, length) triples or an
// interior node's (key, child) pairs.
func slotSizeFor(maxKeysPerBucket int) int {
	cap := nodeCapacity(maxKeysPerBucket)
	keysBytes := cap * 4
	leafBytes := cap * (8 + 4)
	interiorBytes := (cap + 1) * 8
	payload := keysBytes
	if leafBytes > interiorBytes {
		payload += leafBytes
	} else {
		payload += interiorBytes
	}
	return 1 /*isLeaf*/ + 4 /*numKeys*/ + payload
}

// node is the in-memory decoded form of one directory-file slot.
type node struct {
	isLeaf bool
	keys   []uint32

	// leaf-only
	offsets []int64
	lengths []uint32

	// interior-only: len(children) == len(keys)+1
	children []int64
}

func encodeNode(n node, slotSize int) []byte {
	buf := make([]byte, slotSize)
	if n.isLeaf {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(n.keys)))

	off := 5
	for _, k := range n.keys {
		binary.BigEndian.PutUint32(buf[off:off+4], k)
		off += 4
	}
	if n.isLeaf {
		for i := range n.keys {
			binary.BigEndian.PutUint64(buf[off:off+8], uint64(n.offsets[i]))
			binary.BigEndian.PutUint32(buf[off+8:off+12], n.lengths[i])
			off += 12
		}
	} else {
		for _, c := range n.children {
			binary.BigEndian.PutUint64(buf[off:off+8], uint64(c))
			off += 8
		}
	}
	return buf
}

func decodeNode(b []byte) (node, error) {
	if len(b) < 5 {
		return node{}, fmt.Errorf("%w: short node record", ErrCorruptTree)
	}
	isLeaf := b[0] == 1
	numKeys := int(binary.BigEndian.Uint32(b[1:5]))

	off := 5
	keys := make([]uint32, numKeys)
	for i := 0; i < numKeys; i++ {
		if off+4 > len(b) {
			return node{}, fmt.Errorf("%w: truncated keys", ErrCorruptTree)
		}
		keys[i] = binary.BigEndian.Uint32(b[off : off+4])
		off += 4
	}

	n := node{isLeaf: isLeaf, keys: keys}
	if isLeaf {
		n.offsets = make([]int64, numKeys)
		n.lengths = make([]uint32, numKeys)
		for i := 0; i < numKeys; i++ {
			if off+12 > len(b) {
				return node{}, fmt.Errorf("%w: truncated leaf entries", ErrCorruptTree)
			}
			n.offsets[i] = int64(binary.BigEndian.Uint64(b[off : off+8]))
			n.lengths[i] = binary.BigEndian.Uint32(b[off+8 : off+12])
			off += 12
		}
	} else {
		numChildren := numKeys + 1
		n.children = make([]int64, numChildren)
		for i := 0; i < numChildren; i++ {
			if off+8 > len(b) {
				return node{}, fmt.Errorf("%w: truncated interior children", ErrCorruptTree)
			}
			n.children[i] = int64(binary.BigEndian.Uint64(b[off : off+8]))
			off += 8
		}
	}
	return n, nil
}

// findChildIndex mirrors the teacher tree's linear-scan navigation: for
// separator keys [k1..kn] and children [c0..cn], it returns the index of
// the child to follow for searchKey.
func findChildIndex(keys []uint32, searchKey uint32) int {
	for i, k := range keys {
		if searchKey < k {
			return i
		}
	}
	return len(keys)
}
