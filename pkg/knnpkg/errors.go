package knnpkg

import "errors"

// ErrEmptyPartition is raised by the engine when a pairing it is about to
// process references a partition with zero points; the engine cannot
// produce a meaningful distance list against nothing.
var ErrEmptyPartition = errors.New("knnpkg: partition is empty")

// ErrCorruptPackage is raised when the descriptor references a partition
// id that does not exist, or a caller tries to record a result for a
// pairing the descriptor never declared.
var ErrCorruptPackage = errors.New("knnpkg: corrupt package descriptor")
