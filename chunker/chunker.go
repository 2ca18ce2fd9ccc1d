// Package chunker splits extracted document text into overlapping,
// boundary-aware pieces suitable for embedding.
package chunker

import (
	"fmt"
	"iter"
	"unicode"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Piece is one chunk of text. StartChar and EndChar delimit the window
// in rune offsets before whitespace trimming; Length is the rune length
// of the trimmed Text.
type Piece struct {
	Index     int
	Text      string
	StartChar int
	EndChar   int
	Length    int
}

// Chunker splits text into windows of Size runes overlapping by Overlap runes.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Default returns a chunker with DefaultChunkSize and DefaultChunkOverlap.
func Default() *Chunker {
	return &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
}

// Size returns the window length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between consecutive windows in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns all pieces of text in order.
func (c *Chunker) Split(text string) []Piece {
	var pieces []Piece
	for p := range c.All(text) {
		pieces = append(pieces, p)
	}
	return pieces
}

// All returns a finite sequence of pieces covering text. Each call walks
// the text again from the beginning.
func (c *Chunker) All(text string) iter.Seq[Piece] {
	return func(yield func(Piece) bool) {
		runes := []rune(text)
		n := len(runes)
		index := 0

		for start := 0; start < n; {
			end := min(start+c.size, n)
			if end < n {
				end = c.cutPoint(runes, start, end)
			}

			lo, hi := trim(runes, start, end)
			if lo < hi {
				p := Piece{
					Index:     index,
					Text:      string(runes[lo:hi]),
					StartChar: start,
					EndChar:   end,
					Length:    hi - lo,
				}
				if !yield(p) {
					return
				}
				index++
			}

			if end >= n {
				return
			}
			next := end - c.overlap
			if next <= start {
				return
			}
			start = next
		}
	}
}

// cutPoint moves end back to just after the last sentence terminator or
// newline in the window, when that boundary lies past half the window and
// still lets the next window advance.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if !isBoundary(runes[i]) {
			continue
		}
		if i-start <= c.size/2 {
			return end
		}
		if i+1-c.overlap <= start {
			return end
		}
		return i + 1
	}
	return end
}

func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

func trim(runes []rune, lo, hi int) (int, int) {
	for lo < hi && unicode.IsSpace(runes[lo]) {
		lo++
	}
	for hi > lo && unicode.IsSpace(runes[hi-1]) {
		hi--
	}
	return lo, hi
}
