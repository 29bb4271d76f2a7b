package chunker

import (
	"regexp"
	"strings"

	"pdf-rag/internal/models"
)

var sentenceBoundaryRe = regexp.MustCompile(models.SentenceBoundary)

// Window cuts text into windows of Size characters. Every window after the
// first starts Overlap characters before the previous end, and a window that
// does not reach the end of the text is shortened to its last sentence
// boundary.
type Window struct {
	Size    int
	Overlap int
}

func NewWindow(size, overlap int) *Window {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Window{Size: size, Overlap: overlap}
}

func (w *Window) Segment(text string) []string {
	text = normalizeSpace(text)
	var chunks []string
	for _, s := range w.spans(text) {
		chunk := strings.TrimSpace(text[s.start:s.end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

type span struct {
	start, end int
}

// spans returns the byte ranges of each window over already normalized text.
// The end of each span is strictly greater than the end of the previous one.
func (w *Window) spans(text string) []span {
	n := len(text)
	var out []span
	start, prevEnd := 0, 0
	for start < n {
		end := min(start+w.Size, n)
		if start > 0 {
			start = alignRune(text, max(0, start-w.Overlap))
		}
		end = alignRune(text, end)
		if end <= prevEnd {
			end = nextRune(text, prevEnd)
		}

		if end < n {
			if cut := lastBoundary(text[start:end]); cut >= 0 && start+cut > prevEnd {
				end = start + cut
			}
		}

		out = append(out, span{start: start, end: end})
		prevEnd = end
		start = end
	}
	return out
}

// lastBoundary returns the offset just past the terminal punctuation of the
// last sentence boundary in s, or -1.
func lastBoundary(s string) int {
	matches := sentenceBoundaryRe.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return -1
	}
	return matches[len(matches)-1][0] + 1
}

// alignRune moves i back to the start of a UTF-8 sequence.
func alignRune(s string, i int) int {
	for i > 0 && i < len(s) && s[i]&0xC0 == 0x80 {
		i--
	}
	return i
}

func nextRune(s string, i int) int {
	i++
	for i < len(s) && s[i]&0xC0 == 0x80 {
		i++
	}
	return min(i, len(s))
}
