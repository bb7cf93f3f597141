// Package distlist implements the bounded top-k neighbor accumulator used
// while scanning a partition pairing.
package distlist

// Entry is one neighbor candidate: its id and its distance from the owner.
type Entry struct {
	NeighborID uint32
	Distance   float64
}

// DistanceList holds at most K entries for a single query point, sorted by
// distance non-decreasing. Ties preserve the order entries were first
// inserted in.
type DistanceList struct {
	ownerID uint32
	k       int
	entries []Entry
}

// New constructs an empty DistanceList for ownerID with capacity k.
func New(ownerID uint32, k int) *DistanceList {
	if k < 1 {
		k = 1
	}
	return &DistanceList{
		ownerID: ownerID,
		k:       k,
		entries: make([]Entry, 0, k),
	}
}

// OwnerID returns the query point id this list was built for.
func (dl *DistanceList) OwnerID() uint32 {
	return dl.ownerID
}

// K returns the configured capacity.
func (dl *DistanceList) K() int {
	return dl.k
}

// Len returns the current number of entries (<= K).
func (dl *DistanceList) Len() int {
	return len(dl.entries)
}

// Entries returns the entries in stable, sorted order. The returned slice
// must not be mutated by the caller.
func (dl *DistanceList) Entries() []Entry {
	return dl.entries
}

// AddDistance inserts (neighborID, d) into the list.
//
// If neighborID is already present, the smaller of the two distances wins;
// a strictly smaller distance is removed and re-inserted at its new sorted
// position, an equal-or-larger one is a no-op (keep-first-seen). If size
// exceeds K after insertion, the largest-distance tail entry is dropped.
func (dl *DistanceList) AddDistance(neighborID uint32, d float64) {
	if idx, found := dl.indexOf(neighborID); found {
		if d >= dl.entries[idx].Distance {
			return
		}
		dl.entries = append(dl.entries[:idx], dl.entries[idx+1:]...)
	}

	pos := dl.insertionPoint(d)
	dl.entries = append(dl.entries, Entry{})
	copy(dl.entries[pos+1:], dl.entries[pos:])
	dl.entries[pos] = Entry{NeighborID: neighborID, Distance: d}

	if len(dl.entries) > dl.k {
		dl.entries = dl.entries[:dl.k]
	}
}

// indexOf performs a linear scan for neighborID; the list is small (bounded
// by K) so this is cheaper than maintaining a side index.
func (dl *DistanceList) indexOf(neighborID uint32) (int, bool) {
	for i, e := range dl.entries {
		if e.NeighborID == neighborID {
			return i, true
		}
	}
	return 0, false
}

// insertionPoint finds the first index whose distance is strictly greater
// than d, preserving keep-first-seen ordering among equal distances.
func (dl *DistanceList) insertionPoint(d float64) int {
	for i, e := range dl.entries {
		if d < e.Distance {
			return i
		}
	}
	return len(dl.entries)
}
