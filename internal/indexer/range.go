package indexer

import "fmt"

// HeightRange bounds the block heights the runner processes. A zero To
// leaves the range open-ended.
type HeightRange struct {
	From uint64
	To   uint64
}

// NewHeightRange validates an inclusive height range.
func NewHeightRange(from, to uint64) (HeightRange, error) {
	if to != 0 && to < from {
		return HeightRange{}, fmt.Errorf("to height must be >= from height")
	}
	return HeightRange{From: from, To: to}, nil
}

// Before reports whether height precedes the range.
func (r HeightRange) Before(height uint64) bool {
	return height < r.From
}

// Past reports whether height lies beyond a closed range.
func (r HeightRange) Past(height uint64) bool {
	return r.To != 0 && height > r.To
}

// Contains reports whether height lies within the range.
func (r HeightRange) Contains(height uint64) bool {
	return !r.Before(height) && !r.Past(height)
}
