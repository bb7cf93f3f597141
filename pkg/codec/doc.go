// Package codec provides the fixed and variable-size serializers used by
// the dynamic B+ tree to turn in-memory values into the bytes it writes to
// its directory and data files.
//
// # Key format
//
// Keys are point ids: a fixed 4-byte big-endian unsigned integer. Fixed
// width lets the directory tree treat every key as an equally-sized,
// directly comparable byte string.
//
// # DistanceList payload format
//
//	[ownerID(4)][count(4)]{[neighborID(4)][distance(8)]}*count
//
// ownerID and count are big-endian uint32; distance is a big-endian
// IEEE-754 double. The payload is variable-size (bounded by k), so it is
// appended to the tree's data file and addressed from the directory by
// (offset, length) rather than being stored inline.
package codec
