package stream

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSegmentSize is the target number of runes per content frame.
const DefaultSegmentSize = 24

// Segment splits text into pieces of roughly size runes, cutting only after
// whitespace. A word longer than size becomes its own piece. Concatenating
// the pieces yields text exactly.
func Segment(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size < 1 {
		size = DefaultSegmentSize
	}

	var (
		segments []string
		start    int
		runes    int
	)
	for i, r := range text {
		runes++
		end := i + utf8.RuneLen(r)
		if runes < size || !unicode.IsSpace(r) {
			continue
		}
		// keep a whitespace run together
		if next, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && unicode.IsSpace(next) {
			continue
		}
		segments = append(segments, text[start:end])
		start = end
		runes = 0
	}
	if start < len(text) {
		segments = append(segments, text[start:])
	}
	return segments
}

// Join reassembles the content of frames.
func Join(frames []Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		if f.Type == FrameContent {
			sb.WriteString(f.Data)
		}
	}
	return sb.String()
}
