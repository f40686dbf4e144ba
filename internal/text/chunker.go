package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// charsPerPage is the heuristic used to estimate which rulebook page a chunk
// came from. Extracted text carries no pagination, so we approximate.
const charsPerPage = 2000

const (
	DefaultChunkSize = 512
	DefaultOverlap   = 50
)

// Chunk is a bounded segment of extracted rulebook text. Start/End are byte
// offsets into the source text, [Start, End).
type Chunk struct {
	Content string
	Index   int
	Start   int
	End     int
	Page    int
}

// Split cuts text into overlapping chunks of at most size bytes. Each chunk
// tries to end at a sentence boundary within its window, falling back to a
// word boundary, falling back to a hard cut at size. Consecutive chunks share
// overlap bytes of context so that embeddings don't lose meaning at the seams.
//
// Callers must ensure overlap < size, otherwise the window never advances.
func Split(text string, size, overlap int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = snapBoundary(text, start, end)
		}

		content := text[start:end]
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, Chunk{
				Content: content,
				Index:   len(chunks),
				Start:   start,
				End:     end,
				Page:    start/charsPerPage + 1,
			})
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			// Degenerate overlap, force progress.
			next = start + 1
		}
		// Chunk starts must land on rune boundaries.
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks
}

// snapBoundary pulls end back to the latest sentence terminator followed by
// whitespace inside (start, end]; failing that, the latest whitespace; failing
// that, the hard cut backed up to a rune boundary. Whitespace detection is
// rune-wise: a byte-wise scan would mistake UTF-8 continuation bytes like
// those of NBSP for whitespace and split characters across chunks.
func snapBoundary(text string, start, end int) int {
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	window := text[start:end]

	sentence, space := 0, 0
	var prev rune
	for i, r := range window {
		if i > 0 && unicode.IsSpace(r) {
			space = i
			if prev == '.' || prev == '!' || prev == '?' {
				sentence = i
			}
		}
		prev = r
	}
	if sentence > 0 {
		return start + sentence
	}
	if space > 0 {
		return start + space
	}
	return end
}

// EstimatePages returns the heuristic page count for a full document text.
func EstimatePages(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text)-1)/charsPerPage + 1
}
