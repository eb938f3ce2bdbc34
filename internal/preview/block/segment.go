// Package block splits a document into structural blocks and caches
// rendered fragments keyed by block content.
//
// Segmentation is deterministic and total: every byte of the document
// belongs to exactly one block, blocks are non-overlapping, and their
// order matches document order. Blocks, not positions, are the unit of
// cache granularity — hashing block content is what makes reuse cheap.
package block

// Block is a contiguous, delimiter-bounded span of the document.
type Block struct {
	// Start is the byte offset of the block's first byte.
	Start int

	// End is the byte offset one past the block's last byte.
	End int

	// Hash is the FNV-1a hash of the block content.
	Hash uint64
}

// Length returns the block length in bytes.
func (b Block) Length() int {
	return b.End - b.Start
}

// Content returns the block's span of the given document.
func (b Block) Content(doc string) string {
	return doc[b.Start:b.End]
}

// Segment splits content into ordered blocks.
//
// Boundaries are recognized at structural delimiters: a non-blank line
// following a blank run, a heading line, a fence opener, and the line
// following a fence close. Fenced regions are never split internally.
// Trailing blank lines attach to the preceding block, so the blocks
// cover the document exactly.
func Segment(content string) []Block {
	if len(content) == 0 {
		return nil
	}

	var blocks []Block
	var fence fenceState

	blockStart := 0
	prevBlank := false
	afterFence := false
	started := false

	pos := 0
	for pos < len(content) {
		lineEnd := pos
		for lineEnd < len(content) && content[lineEnd] != '\n' {
			lineEnd++
		}
		if lineEnd < len(content) {
			lineEnd++ // include the newline
		}
		line := content[pos:lineEnd]
		blank := isBlankLine(line)

		switch {
		case fence.open:
			if fence.closes(line) {
				fence = fenceState{}
				afterFence = true
			}

		case !blank && started && boundaryBefore(line, prevBlank, afterFence):
			blocks = append(blocks, makeBlock(content, blockStart, pos))
			blockStart = pos
			fence = openFence(line)
			afterFence = false

		case !blank:
			if !started {
				started = true
			}
			fence = openFence(line)
			afterFence = false
		}

		prevBlank = blank && !fence.open
		pos = lineEnd
	}

	blocks = append(blocks, makeBlock(content, blockStart, len(content)))
	return blocks
}

// boundaryBefore reports whether a new block starts at this non-blank line.
func boundaryBefore(line string, prevBlank, afterFence bool) bool {
	return prevBlank || afterFence || isHeading(line) || openFence(line).open
}

func makeBlock(content string, start, end int) Block {
	return Block{
		Start: start,
		End:   end,
		Hash:  hashContent(content[start:end]),
	}
}

// fenceState tracks an open fenced region.
type fenceState struct {
	open   bool
	marker byte
	length int
}

// openFence parses a fence opener (``` or ~~~, three or more markers,
// up to three leading spaces).
func openFence(line string) fenceState {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	if i >= len(line) {
		return fenceState{}
	}
	marker := line[i]
	if marker != '`' && marker != '~' {
		return fenceState{}
	}
	n := 0
	for i < len(line) && line[i] == marker {
		i++
		n++
	}
	if n < 3 {
		return fenceState{}
	}
	return fenceState{open: true, marker: marker, length: n}
}

// closes reports whether line closes the fence: same marker, at least as
// long, nothing but the marker run and whitespace.
func (f fenceState) closes(line string) bool {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	n := 0
	for i < len(line) && line[i] == f.marker {
		i++
		n++
	}
	if n < f.length {
		return false
	}
	for ; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' && line[i] != '\n' && line[i] != '\r' {
			return false
		}
	}
	return true
}

// isHeading reports whether line is an ATX heading (1-6 '#' followed by
// space or end of line).
func isHeading(line string) bool {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return false
	}
	return n == len(line) || line[n] == ' ' || line[n] == '\t' || line[n] == '\n'
}

// isBlankLine reports whether line contains only whitespace.
func isBlankLine(line string) bool {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// hashContent computes a hash of the content.
func hashContent(s string) uint64 {
	// FNV-1a hash
	var hash uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= 1099511628211
	}
	return hash
}
