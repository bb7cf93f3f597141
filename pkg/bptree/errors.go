package bptree

import "errors"

// ErrKeyMissing is returned by Get when the key does not exist in the tree.
// Per the engine's contract this is an internal invariant violation (the
// worker never calls Get for an id it has not already put), so callers
// treat it as fatal rather than retry-able.
var ErrKeyMissing = errors.New("bptree: key missing")

// ErrCorruptTree is returned when the directory or data file fails a
// structural check (bad magic, truncated node, length mismatch).
var ErrCorruptTree = errors.New("bptree: corrupt tree")
