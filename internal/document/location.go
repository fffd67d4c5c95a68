package document

import (
	"sort"

	"invoicecheck/internal/domain"
)

// lineIndex maps byte offsets to line/column positions.
type lineIndex struct {
	starts []int
}

func newLineIndex(data []byte) *lineIndex {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

func (li *lineIndex) location(offset int) domain.Location {
	if offset < 0 {
		offset = 0
	}
	// first line start strictly greater than offset, minus one
	line := sort.SearchInts(li.starts, offset+1) - 1
	if line < 0 {
		line = 0
	}
	return domain.Location{
		Line:   line + 1,
		Column: offset - li.starts[line] + 1,
		Offset: offset,
	}
}
