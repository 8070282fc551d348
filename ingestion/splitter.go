package ingestion

import "fmt"

const (
	// DefaultChunkSize is the window length in runes.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the maximum overlap between consecutive windows in runes.
	DefaultChunkOverlap = 200
)

// Boundary tiers, strongest first. A window end is placed just after the
// last match of the strongest tier that falls inside the search range.
var boundaryTiers = [][]string{
	{"\n\n"},
	{"\n", ". ", "? ", "! "},
	{" "},
}

// Splitter cuts text into overlapping windows.
//
// Windows start every Size-Overlap runes. Each window except the last ends at
// the best boundary in [start+Size-Overlap, start+Size], so consecutive windows
// overlap by at most Overlap runes and never leave a gap. The last window runs
// to the end of the text. Text of length L yields ceil((L-Overlap)/(Size-Overlap))
// windows, or one window when L <= Size.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter returns a splitter with the given window size and overlap.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the window length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the maximum overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// WindowCount returns how many windows Split produces for a text of n runes.
func (s *Splitter) WindowCount(n int) int {
	if n == 0 {
		return 0
	}
	if n <= s.size {
		return 1
	}
	step := s.size - s.overlap
	return (n - s.overlap + step - 1) / step
}

// Split returns the windows of text in order.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := s.WindowCount(len(runes))
	if n == 0 {
		return nil
	}

	step := s.size - s.overlap
	windows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := i * step
		end := len(runes)
		if i < n-1 {
			end = bestBoundary(runes, start+step, start+s.size)
		}
		windows = append(windows, string(runes[start:end]))
	}
	return windows
}

// bestBoundary returns the end position in [lo, hi] just after the last match
// of the strongest boundary tier, or hi when nothing matches.
func bestBoundary(runes []rune, lo, hi int) int {
	for _, tier := range boundaryTiers {
		best := -1
		for _, sep := range tier {
			if end := lastBoundary(runes, []rune(sep), lo, hi); end > best {
				best = end
			}
		}
		if best >= 0 {
			return best
		}
	}
	return hi
}

// lastBoundary finds the largest end in [lo, hi] with runes[end-len(sep):end] == sep.
func lastBoundary(runes, sep []rune, lo, hi int) int {
	for end := hi; end >= lo && end >= len(sep); end-- {
		if matchAt(runes, sep, end-len(sep)) {
			return end
		}
	}
	return -1
}

func matchAt(runes, sep []rune, at int) bool {
	for i, r := range sep {
		if runes[at+i] != r {
			return false
		}
	}
	return true
}
