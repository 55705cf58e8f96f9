package lexer

import "sort"

// LineIndex maps byte offsets to line/column positions.
// It is read-only after construction and safe for concurrent use.
type LineIndex struct {
	starts []int
	size   int
}

func NewLineIndex(src []byte) *LineIndex {
	starts := make([]int, 1, 1+len(src)/32)
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts, size: len(src)}
}

// Position returns the position of offset. Offsets past the end clamp to EOF.
func (li *LineIndex) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > li.size {
		offset = li.size
	}
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return Position{Line: line + 1, Col: offset - li.starts[line] + 1}
}

// Offset is the inverse of Position. Columns past the line end clamp to it.
func (li *LineIndex) Offset(p Position) int {
	if p.Line < 1 {
		return 0
	}
	if p.Line > len(li.starts) {
		return li.size
	}
	start := li.starts[p.Line-1]
	end := li.size
	if p.Line < len(li.starts) {
		end = li.starts[p.Line] - 1
	}
	off := start + p.Col - 1
	if off > end {
		off = end
	}
	if off < start {
		off = start
	}
	return off
}

func (li *LineIndex) LineCount() int { return len(li.starts) }
