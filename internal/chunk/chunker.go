// Package chunk splits document text into overlapping chunks for embedding.
package chunk

import (
	"strings"
)

// Chunk size defaults, in characters.
const (
	DefaultSize    = 1500
	DefaultOverlap = 200
)

// Options configures the splitter behavior.
type Options struct {
	Size    int // Maximum characters per chunk (default: DefaultSize)
	Overlap int // Characters carried over between chunks (default: DefaultOverlap)
}

// Splitter cuts plain text into chunks at natural boundaries.
type Splitter struct {
	opts Options
}

// NewSplitter creates a splitter, applying defaults for zero options.
// Overlap is clamped below Size so every step makes progress.
func NewSplitter(opts Options) *Splitter {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Overlap <= 0 {
		opts.Overlap = DefaultOverlap
	}
	if opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size / 4
	}
	return &Splitter{opts: opts}
}

// Split cuts text into chunks of at most Size characters with Overlap
// characters of shared context between consecutive chunks. Cuts prefer
// paragraph breaks, then line breaks, then word boundaries. Whitespace-only
// input yields no chunks.
func (s *Splitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= s.opts.Size {
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.opts.Size
		if end >= len(runes) {
			if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}

		cut := s.breakpoint(runes, start, end)
		if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
			chunks = append(chunks, piece)
		}

		next := cut - s.opts.Overlap
		if next <= start {
			// Overlap would rewind past the previous start.
			next = cut
		}
		start = next
	}

	return chunks
}

// breakpoint finds the best cut position in (start, end]. It scans backward
// from end, never past the midpoint of the window, preferring a blank line,
// then a newline, then a space. Falls back to a hard cut at end.
func (s *Splitter) breakpoint(runes []rune, start, end int) int {
	minCut := start + s.opts.Size/2

	newline := -1
	space := -1
	for i := end - 1; i > minCut; i-- {
		switch runes[i] {
		case '\n':
			if i > 0 && runes[i-1] == '\n' {
				return i + 1
			}
			if newline == -1 {
				newline = i + 1
			}
		case ' ', '\t':
			if space == -1 {
				space = i + 1
			}
		}
	}

	if newline != -1 {
		return newline
	}
	if space != -1 {
		return space
	}
	return end
}
