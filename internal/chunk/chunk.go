// Package chunk splits cleaned source documents into the two indexing
// granularities: one whole-document chunk for conversational context, and a
// sequence of fixed-size overlapping windows for fine-grained completion
// context. Window boundaries prefer language-specific syntactic separators
// and fall back to raw character positions.
package chunk

import "strings"

// Kind selects the chunk granularity.
type Kind int

const (
	// Whole is the entire cleaned document as a single chunk.
	Whole Kind = iota
	// Window is one fixed-size overlapping slice of the document.
	Window
)

// Chunk is one unit of indexable text.
type Chunk struct {
	Path string
	Text string
	Kind Kind
}

// Default window geometry, used when the configured pair is unusable.
const (
	DefaultSize    = 800
	DefaultOverlap = 150
)

// languageSeparators lists boundary markers per source language, in
// preference order. A window prefers to end where the next one can begin at
// such a marker.
var languageSeparators = map[string][]string{
	"go":         {"\n\n", "\nfunc ", "}\n\n", "\n//", "\n/*", "\t"},
	"python":     {"\nclass ", "\ndef ", "\n\n", "\n", " "},
	"javascript": {"\nfunction ", "\nconst ", "\nclass ", "\n\n", "\n", " "},
	"typescript": {"\nfunction ", "\nconst ", "\nclass ", "\n\n", "\n", " "},
}

// defaultSeparators applies to languages without a specific table.
var defaultSeparators = []string{"\n\n", "\n", " "}

// Splitter produces deterministic chunk sequences for one configuration.
// Safe for concurrent use.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter with the given window size and overlap in
// characters. Unusable values degrade to safe ones rather than failing:
// a non-positive size becomes DefaultSize, and an overlap that is negative
// or not smaller than the size becomes size/4.
func NewSplitter(size, overlap int, language string) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}

	seps, ok := languageSeparators[strings.ToLower(language)]
	if !ok {
		seps = defaultSeparators
	}

	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: seps,
	}
}

// Split chunks one document at the requested granularity. Chunks with
// empty or whitespace-only text are excluded. Identical text and
// configuration always yield an identical ordered sequence.
func (s *Splitter) Split(path, text string, kind Kind) []Chunk {
	if kind == Whole {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Chunk{{Path: path, Text: text, Kind: Whole}}
	}
	return s.windows(path, text)
}

// windows slides a window of s.size characters across the text, starting
// each next window s.overlap characters before the previous one ended.
// When a window would cut mid-text, its end snaps back to the last
// syntactic separator far enough in (past the overlap) so the next window
// starts on a boundary; without such a separator the cut stays at the raw
// character position. Every character position is covered by at least one
// window, and window i+1 never starts more than size-overlap after window i.
func (s *Splitter) windows(path, text string) []Chunk {
	n := len(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < n {
		end := s.windowEnd(text, start)
		if piece := text[start:end]; strings.TrimSpace(piece) != "" {
			chunks = append(chunks, Chunk{Path: path, Text: piece, Kind: Window})
		}
		if end >= n {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// windowEnd picks where the window starting at start should end.
func (s *Splitter) windowEnd(text string, start int) int {
	n := len(text)
	hardEnd := start + s.size
	if hardEnd >= n {
		return n
	}

	// Snap to the highest-priority separator inside the window, as long as
	// the window keeps more than overlap characters so the walk advances.
	window := text[start:hardEnd]
	for _, sep := range s.separators {
		if i := strings.LastIndex(window, sep); i > s.overlap {
			return start + i
		}
	}
	return hardEnd
}
