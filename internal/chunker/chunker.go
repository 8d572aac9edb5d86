// Package chunker splits document text into overlapping windows and merges them back.
// Sizes and offsets are counted in runes.
package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultSize    = 25000
	DefaultOverlap = 5000
)

var ErrInvalidConfig = errors.New("invalid chunk config")

type Chunk struct {
	JobID string
	Index int
	Start int
	End   int
	// Overlap is how many leading runes repeat the tail of the previous chunk.
	Overlap int
	Text    string
	// Source is the text as split, before any edit.
	Source string
}

// Split cuts text into windows of size runes, each starting size-overlap after the previous.
// Only the last chunk may be shorter. Empty text yields no chunks.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + size
		if end > n {
			end = n
		}
		text := string(runes[start:end])
		c := Chunk{Index: len(chunks), Start: start, End: end, Text: text, Source: text}
		if start > 0 {
			c.Overlap = overlap
		}
		chunks = append(chunks, c)
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Validate checks a size/overlap pair.
func Validate(size, overlap int) error {
	switch {
	case size <= 0:
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidConfig, size)
	case overlap < 0:
		return fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidConfig, overlap)
	case overlap >= size:
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return nil
}

// Merge joins edited chunks back into one text.
//
// The source is cut at every chunk boundary and each piece is taken from a
// chunk that covers it. Piece boundaries are found in the edited text by
// content, so edits that change length inside a shared region do not shift
// the cut. A chunk that changed a shared piece wins over one that left it
// alone; between two changed views the later chunk wins.
func Merge(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	views := make([]view, len(sorted))
	cuts := make([]int, 0, 2*len(sorted))
	for i, c := range sorted {
		views[i] = newView(c)
		cuts = append(cuts, views[i].start, views[i].end)
	}
	sort.Ints(cuts)

	var b strings.Builder
	for k := 0; k+1 < len(cuts); k++ {
		from, to := cuts[k], cuts[k+1]
		if from == to {
			continue
		}
		var piece string
		found := false
		for i := range views {
			v := &views[i]
			if v.start > from || v.end < to {
				continue
			}
			if text, edited := v.piece(from, to); !found || edited {
				piece, found = text, true
			}
		}
		b.WriteString(piece)
	}
	return b.String()
}

// anchorLen is how many source runes are matched to place a cut inside an edited span.
const anchorLen = 16

// view maps positions in a chunk's source onto its edited text.
type view struct {
	start, end     int
	source, edited []rune
	// prefix and suffix are the runes source and edited share at either end.
	prefix, suffix int
}

func newView(c Chunk) view {
	src := c.Source
	if src == "" {
		src = c.Text
	}
	v := view{start: c.Start, end: c.End, source: []rune(src), edited: []rune(c.Text)}
	if v.end <= v.start {
		v.end = v.start + len(v.source)
	}
	n := min(len(v.source), len(v.edited))
	for v.prefix < n && v.source[v.prefix] == v.edited[v.prefix] {
		v.prefix++
	}
	for v.suffix < n-v.prefix && v.source[len(v.source)-1-v.suffix] == v.edited[len(v.edited)-1-v.suffix] {
		v.suffix++
	}
	return v
}

// piece returns the edited text standing for source positions [from, to)
// and whether it differs from the source.
func (v *view) piece(from, to int) (string, bool) {
	a := min(from-v.start, len(v.source))
	b := min(to-v.start, len(v.source))
	lo, hi := v.locate(a), v.locate(b)
	if hi < lo {
		hi = lo
	}
	text := string(v.edited[lo:hi])
	return text, text != string(v.source[a:b])
}

// locate maps source offset pos to an offset in the edited text.
func (v *view) locate(pos int) int {
	n, m := len(v.source), len(v.edited)
	switch {
	case pos <= v.prefix:
		return pos
	case pos >= n-v.suffix:
		return m - (n - pos)
	}

	// pos falls inside the changed span; estimate proportionally, then
	// look for unchanged source text next to pos.
	lo, hi := v.prefix, m-v.suffix
	est := lo + (pos-v.prefix)*(hi-lo)/(n-v.suffix-v.prefix)
	if after := v.source[pos:min(n, pos+anchorLen)]; len(after) > 0 {
		if at, ok := nearest(v.edited, after, est, lo, hi); ok {
			return at
		}
	}
	if before := v.source[max(0, pos-anchorLen):pos]; len(before) > 0 {
		if at, ok := nearest(v.edited, before, est-len(before), lo-len(before), hi-len(before)); ok {
			return at + len(before)
		}
	}
	return est
}

// nearest finds the occurrence of needle in hay starting within [lo, hi]
// that is closest to target.
func nearest(hay, needle []rune, target, lo, hi int) (int, bool) {
	best, found := 0, false
	for i := max(0, lo); i <= hi && i+len(needle) <= len(hay); i++ {
		if !equalRunes(hay[i:i+len(needle)], needle) {
			continue
		}
		if !found || abs(i-target) < abs(best-target) {
			best, found = i, true
		}
	}
	return best, found
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
