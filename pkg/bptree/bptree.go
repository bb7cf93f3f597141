// Package bptree implements DynamicBPlusTree, a disk-backed ordered map
// from a fixed-size integer key to a variable-size payload, split across a
// directory file (interior/leaf nodes) and a data file (payload bytes).
//
// The directory file is a sequence of fixed-size slots sized for the
// configured fanout; splits promote the median key to the parent the way
// freyjadb's original in-memory tree does, but nodes here are addressed by
// byte offset into the directory file instead of by pointer, and leaf
// values are (offset, length) pairs into the data file instead of inline
// values.
package bptree

import (
	"fmt"
	"math"
	"sort"

	"github.com/ssargent/freyja-knn/pkg/codec"
	"github.com/ssargent/freyja-knn/pkg/distlist"
	"github.com/ssargent/freyja-knn/pkg/storage"
)

// DefaultMaxKeysPerBucket is the fallback fanout when the caller supplies
// a value below the floor of 5.
const DefaultMaxKeysPerBucket = 5

// TreeHandle pins a completed tree into the package descriptor: where its
// two files live and where to start descending.
type TreeHandle struct {
	DirectoryPath string `yaml:"directory_path"`
	DataPath      string `yaml:"data_path"`
	RootOffset    int64  `yaml:"root_offset"`
	EntryCount    uint64 `yaml:"entry_count"`
}

// DynamicBPlusTree is the ordered map described in the package doc
// comment. It is not safe for concurrent use: the engine confines one tree
// to a single goroutine for the lifetime of one pairing.
type DynamicBPlusTree struct {
	directory storage.PagedStorage
	data      storage.PagedStorage

	directoryPath string
	dataPath      string

	maxKeysPerBucket int
	slotSize         int
	rootOffset       int64
	nextFreeOffset   int64
	entryCount       uint64

	k int // DistanceList capacity used when reconstructing payloads on Get

	dlSer codec.DistanceListSerializer
}

// MaxKeysPerBucketFor implements the tree-sizing heuristic:
// max(5, floor(estimatedUniqueIds ^ (1/20))).
func MaxKeysPerBucketFor(estimatedUniqueIds uint64) int {
	if estimatedUniqueIds < 1 {
		estimatedUniqueIds = 1
	}
	v := int(math.Floor(math.Pow(float64(estimatedUniqueIds), 1.0/20.0)))
	if v < DefaultMaxKeysPerBucket {
		return DefaultMaxKeysPerBucket
	}
	return v
}

// Create opens a brand-new tree over two freshly created files, sized for
// maxKeysPerBucket. k is the DistanceList capacity used by Get/Put payload
// (de)serialization.
func Create(directoryPath, dataPath string, maxKeysPerBucket, k int) (*DynamicBPlusTree, error) {
	if maxKeysPerBucket < DefaultMaxKeysPerBucket {
		maxKeysPerBucket = DefaultMaxKeysPerBucket
	}

	dir, err := storage.OpenBuffered(directoryPath)
	if err != nil {
		return nil, fmt.Errorf("create tree directory file: %w", err)
	}
	dat, err := storage.OpenDirect(dataPath)
	if err != nil {
		dir.Close()
		return nil, fmt.Errorf("create tree data file: %w", err)
	}

	t := &DynamicBPlusTree{
		directory:        dir,
		data:             dat,
		directoryPath:    directoryPath,
		dataPath:         dataPath,
		maxKeysPerBucket: maxKeysPerBucket,
		slotSize:         slotSizeFor(maxKeysPerBucket),
		nextFreeOffset:   headerSize,
		k:                k,
	}

	rootOffset, err := t.allocNode(node{isLeaf: true})
	if err != nil {
		return nil, err
	}
	t.rootOffset = rootOffset
	if err := t.writeHeader(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open reopens a previously-closed tree from its TreeHandle for further
// get/contains/put calls.
func Open(handle TreeHandle, k int) (*DynamicBPlusTree, error) {
	dir, err := storage.OpenBuffered(handle.DirectoryPath)
	if err != nil {
		return nil, fmt.Errorf("open tree directory file: %w", err)
	}
	dat, err := storage.OpenDirect(handle.DataPath)
	if err != nil {
		dir.Close()
		return nil, fmt.Errorf("open tree data file: %w", err)
	}

	hdrBytes, err := dir.ReadAt(0, headerSize)
	if err != nil {
		dir.Close()
		dat.Close()
		return nil, fmt.Errorf("read tree header: %w", err)
	}
	hdr, err := decodeHeader(hdrBytes)
	if err != nil {
		dir.Close()
		dat.Close()
		return nil, err
	}

	return &DynamicBPlusTree{
		directory:        dir,
		data:             dat,
		directoryPath:    handle.DirectoryPath,
		dataPath:         handle.DataPath,
		maxKeysPerBucket: int(hdr.maxKeysPerBucket),
		slotSize:         int(hdr.slotSize),
		rootOffset:       hdr.rootOffset,
		nextFreeOffset:   hdr.nextFreeOffset,
		entryCount:       hdr.entryCount,
		k:                k,
	}, nil
}

func (t *DynamicBPlusTree) writeHeader() error {
	return t.directory.WriteAt(0, encodeHeader(header{
		maxKeysPerBucket: uint32(t.maxKeysPerBucket),
		slotSize:         uint32(t.slotSize),
		rootOffset:       t.rootOffset,
		nextFreeOffset:   t.nextFreeOffset,
		entryCount:       t.entryCount,
	}))
}

// allocNode appends a fresh node to the directory file and returns its
// offset. Slots are never reclaimed (matching the data file's append-only
// policy), which keeps split bookkeeping a simple bump allocator.
func (t *DynamicBPlusTree) allocNode(n node) (int64, error) {
	offset := t.nextFreeOffset
	if offset == 0 {
		offset = headerSize
	}
	if err := t.directory.WriteAt(offset, encodeNode(n, t.slotSize)); err != nil {
		return 0, fmt.Errorf("alloc node: %w", err)
	}
	t.nextFreeOffset = offset + int64(t.slotSize)
	return offset, nil
}

func (t *DynamicBPlusTree) readNode(offset int64) (node, error) {
	b, err := t.directory.ReadAt(offset, t.slotSize)
	if err != nil {
		return node{}, fmt.Errorf("read node at %d: %w", offset, err)
	}
	return decodeNode(b)
}

func (t *DynamicBPlusTree) writeNode(offset int64, n node) error {
	return t.directory.WriteAt(offset, encodeNode(n, t.slotSize))
}

// Put serializes dl and appends it to the data file, then inserts or
// updates (key -> offset, length) in the directory tree. On update, the
// old data-file extent is simply abandoned; payload slots are never
// reclaimed, matching the data file's append-only policy.
func (t *DynamicBPlusTree) Put(key uint32, dl *distlist.DistanceList) error {
	payload := t.dlSer.Encode(dl)
	offset, err := t.data.Append(payload)
	if err != nil {
		return fmt.Errorf("append payload: %w", err)
	}
	if err := t.insert(key, offset, uint32(len(payload))); err != nil {
		return err
	}
	return t.writeHeader()
}

// Get descends to the leaf holding key, reads its payload from the data
// file, and decodes it back into a DistanceList.
func (t *DynamicBPlusTree) Get(key uint32) (*distlist.DistanceList, error) {
	leaf, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	idx, found := searchLeaf(leaf, key)
	if !found {
		return nil, fmt.Errorf("%w: key %d", ErrKeyMissing, key)
	}
	b, err := t.data.ReadAt(leaf.offsets[idx], int(leaf.lengths[idx]))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return t.dlSer.Decode(b, t.k)
}

// Contains reports whether key exists, without reading its payload.
func (t *DynamicBPlusTree) Contains(key uint32) (bool, error) {
	leaf, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	_, found := searchLeaf(leaf, key)
	return found, nil
}

// EntryCount returns the number of distinct keys currently in the tree.
func (t *DynamicBPlusTree) EntryCount() uint64 {
	return t.entryCount
}

// Close flushes both backing storages and returns the TreeHandle the
// caller should pin into the package descriptor.
func (t *DynamicBPlusTree) Close() (TreeHandle, error) {
	if err := t.writeHeader(); err != nil {
		return TreeHandle{}, err
	}
	if err := t.directory.Sync(); err != nil {
		return TreeHandle{}, fmt.Errorf("sync directory: %w", err)
	}
	if err := t.data.Sync(); err != nil {
		return TreeHandle{}, fmt.Errorf("sync data: %w", err)
	}
	if err := t.directory.Close(); err != nil {
		return TreeHandle{}, fmt.Errorf("close directory: %w", err)
	}
	if err := t.data.Close(); err != nil {
		return TreeHandle{}, fmt.Errorf("close data: %w", err)
	}
	return TreeHandle{
		DirectoryPath: t.directoryPath,
		DataPath:      t.dataPath,
		RootOffset:    t.rootOffset,
		EntryCount:    t.entryCount,
	}, nil
}

func (t *DynamicBPlusTree) descendToLeaf(key uint32) (node, error) {
	cur := t.rootOffset
	for {
		n, err := t.readNode(cur)
		if err != nil {
			return node{}, err
		}
		if n.isLeaf {
			return n, nil
		}
		idx := findChildIndex(n.keys, key)
		cur = n.children[idx]
	}
}

// searchLeaf finds key's index within a leaf's sorted keys via binary
// search.
func searchLeaf(n node, key uint32) (int, bool) {
	idx := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= key })
	if idx < len(n.keys) && n.keys[idx] == key {
		return idx, true
	}
	return idx, false
}

// insert descends from the root collecting the path taken, updates (or
// inserts into) the target leaf, and propagates any resulting split back
// up the path, creating a new root if the root itself splits.
func (t *DynamicBPlusTree) insert(key uint32, offset int64, length uint32) error {
	path, err := t.pathTo(key)
	if err != nil {
		return err
	}

	leafOffset := path[len(path)-1]
	leaf, err := t.readNode(leafOffset)
	if err != nil {
		return err
	}

	idx := sort.Search(len(leaf.keys), func(i int) bool { return leaf.keys[i] >= key })
	if idx < len(leaf.keys) && leaf.keys[idx] == key {
		leaf.offsets[idx] = offset
		leaf.lengths[idx] = length
	} else {
		leaf.keys = insertUint32(leaf.keys, idx, key)
		leaf.offsets = insertInt64(leaf.offsets, idx, offset)
		leaf.lengths = insertUint32(leaf.lengths, idx, length)
		t.entryCount++
	}

	if len(leaf.keys) <= t.maxKeysPerBucket {
		return t.writeNode(leafOffset, leaf)
	}

	// Leaf overflowed: split it and propagate the promoted key upward.
	splitKey, newRight, err := t.splitLeaf(leafOffset, leaf)
	if err != nil {
		return err
	}
	return t.propagateSplit(path[:len(path)-1], splitKey, newRight)
}

// pathTo returns the sequence of node offsets from the root down to (and
// including) the leaf that would hold key.
func (t *DynamicBPlusTree) pathTo(key uint32) ([]int64, error) {
	path := []int64{t.rootOffset}
	cur := t.rootOffset
	for {
		n, err := t.readNode(cur)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return path, nil
		}
		idx := findChildIndex(n.keys, key)
		cur = n.children[idx]
		path = append(path, cur)
	}
}

// splitLeaf splits an overflowing leaf in place (left half stays at
// leafOffset) and allocates a new node for the right half. It returns the
// key promoted to the parent (the right half's first key) and the new
// node's offset.
func (t *DynamicBPlusTree) splitLeaf(leafOffset int64, leaf node) (uint32, int64, error) {
	mid := len(leaf.keys) / 2

	right := node{
		isLeaf:  true,
		keys:    append([]uint32{}, leaf.keys[mid:]...),
		offsets: append([]int64{}, leaf.offsets[mid:]...),
		lengths: append([]uint32{}, leaf.lengths[mid:]...),
	}
	left := node{
		isLeaf:  true,
		keys:    append([]uint32{}, leaf.keys[:mid]...),
		offsets: append([]int64{}, leaf.offsets[:mid]...),
		lengths: append([]uint32{}, leaf.lengths[:mid]...),
	}

	rightOffset, err := t.allocNode(right)
	if err != nil {
		return 0, 0, err
	}
	if err := t.writeNode(leafOffset, left); err != nil {
		return 0, 0, err
	}
	return right.keys[0], rightOffset, nil
}

// propagateSplit inserts (splitKey, newChild) into the lowest ancestor in
// ancestors, splitting further ancestors as needed, and creates a new root
// if the split reaches past the top of ancestors.
func (t *DynamicBPlusTree) propagateSplit(ancestors []int64, splitKey uint32, newChild int64) error {
	if len(ancestors) == 0 {
		return t.newRoot(splitKey, t.rootOffset, newChild)
	}

	parentOffset := ancestors[len(ancestors)-1]
	parent, err := t.readNode(parentOffset)
	if err != nil {
		return err
	}

	idx := findChildIndex(parent.keys, splitKey)
	parent.keys = insertUint32(parent.keys, idx, splitKey)
	parent.children = insertInt64(parent.children, idx+1, newChild)

	if len(parent.keys) <= t.maxKeysPerBucket {
		return t.writeNode(parentOffset, parent)
	}

	grandSplitKey, grandNewChild, err := t.splitInterior(parentOffset, parent)
	if err != nil {
		return err
	}
	return t.propagateSplit(ancestors[:len(ancestors)-1], grandSplitKey, grandNewChild)
}

// splitInterior splits an overflowing interior node, mirroring splitLeaf
// but promoting the median key out of the node entirely: interior nodes
// hold only separator keys, so the median moves up rather than being
// copied to the right half.
func (t *DynamicBPlusTree) splitInterior(nodeOffset int64, n node) (uint32, int64, error) {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]

	right := node{
		isLeaf:   false,
		keys:     append([]uint32{}, n.keys[mid+1:]...),
		children: append([]int64{}, n.children[mid+1:]...),
	}
	left := node{
		isLeaf:   false,
		keys:     append([]uint32{}, n.keys[:mid]...),
		children: append([]int64{}, n.children[:mid+1]...),
	}

	rightOffset, err := t.allocNode(right)
	if err != nil {
		return 0, 0, err
	}
	if err := t.writeNode(nodeOffset, left); err != nil {
		return 0, 0, err
	}
	return promoted, rightOffset, nil
}

// newRoot creates a fresh interior root with one separator key and two
// children, replacing the tree's current root pointer.
func (t *DynamicBPlusTree) newRoot(splitKey uint32, leftChild, rightChild int64) error {
	root := node{
		isLeaf:   false,
		keys:     []uint32{splitKey},
		children: []int64{leftChild, rightChild},
	}
	offset, err := t.allocNode(root)
	if err != nil {
		return err
	}
	t.rootOffset = offset
	return nil
}

func insertUint32(s []uint32, idx int, v uint32) []uint32 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertInt64(s []int64, idx int, v int64) []int64 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}
