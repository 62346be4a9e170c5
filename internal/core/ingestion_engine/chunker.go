package ingestion_engine

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 800

// Chunker groups whole sentences into chunks of roughly maxChars characters.
// A sentence longer than maxChars is never cut; it becomes its own chunk.
type Chunker struct {
	maxChars int
}

func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	return &Chunker{maxChars: maxChars}
}

func (c *Chunker) MaxChars() int { return c.maxChars }

// Split returns the chunks of text in reading order. Chunks are trimmed and
// never empty. Sentences inside a chunk are joined by a single space.
func (c *Chunker) Split(text string) []string {
	var (
		out  []string
		buf  strings.Builder
		size int
	)

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
		size = 0
	}

	for _, s := range Sentences(text) {
		n := utf8.RuneCountInString(s)
		if size > 0 && size+1+n > c.maxChars {
			flush()
		}
		if size > 0 {
			buf.WriteByte(' ')
			size++
		}
		buf.WriteString(s)
		size += n
	}
	flush()
	return out
}

// Sentences splits text after every run of '.', '!' or '?'. Text after the
// last terminator is kept as a final sentence. Results are trimmed and blank
// ones dropped, so text with no terminator yields a single sentence.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !isTerminator(text[i]) {
			continue
		}
		end := i + 1
		for end < len(text) && isTerminator(text[end]) {
			end++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
