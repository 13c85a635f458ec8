// Package chunker splits outgoing text into pieces that fit a transport's
// message size limit. Paragraph boundaries are preferred, then sentence
// boundaries; words and finally runes are only cut when a single sentence is
// larger than the limit.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLimit matches the common chat transport message cap.
const DefaultLimit = 4096

type TextChunk struct {
	Content string
	Index   int
}

type Options struct {
	// Limit is the maximum chunk size in runes.
	Limit int
	// Separator joins paragraphs packed into the same chunk.
	Separator string
}

func DefaultOptions() Options {
	return Options{Limit: DefaultLimit, Separator: "\n\n"}
}

type Chunker interface {
	Chunk(text string) []TextChunk
}

type paragraphChunker struct {
	opts Options
}

func New(opts Options) Chunker {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Separator == "" {
		opts.Separator = "\n\n"
	}
	return &paragraphChunker{opts: opts}
}

// Split is a shorthand for New(Options{Limit: limit}).Chunk(text) returning
// only the contents.
func Split(text string, limit int) []string {
	chunks := New(Options{Limit: limit}).Chunk(text)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func (c *paragraphChunker) Chunk(text string) []TextChunk {
	limit := c.opts.Limit
	sep := c.opts.Separator

	var pieces []string
	for _, para := range Paragraphs(text) {
		if runeLen(para) <= limit {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, splitLong(para, limit)...)
	}

	var chunks []TextChunk
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, TextChunk{Content: current.String(), Index: len(chunks)})
		current.Reset()
	}

	for _, p := range pieces {
		if current.Len() > 0 && runeLen(current.String())+runeLen(sep)+runeLen(p) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}

// Paragraphs splits on blank lines and drops empty paragraphs.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitLong breaks an oversized paragraph at sentence ends, packing sentences
// greedily.
func splitLong(para string, limit int) []string {
	var out []string
	var current strings.Builder
	for _, s := range Sentences(para) {
		if runeLen(s) > limit {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			out = append(out, splitWords(s, limit)...)
			continue
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(s) > limit {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func splitWords(s string, limit int) []string {
	var out []string
	var current strings.Builder
	for _, w := range strings.Fields(s) {
		if runeLen(w) > limit {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			out = append(out, splitRunes(w, limit)...)
			continue
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(w) > limit {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func splitRunes(w string, limit int) []string {
	runes := []rune(w)
	var out []string
	for i := 0; i < len(runes); i += limit {
		end := min(i+limit, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}

// Sentences splits text after sentence-ending punctuation (Latin, Arabic and
// Persian question mark, full stop variants) that is followed by whitespace
// or the end of the text.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if !isSentenceEnd(r) {
			continue
		}
		// keep closing quotes and brackets with their sentence
		j := i + 1
		for j < len(runes) && strings.ContainsRune(`"'»)]”’`, runes[j]) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		start = j
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '؟', '۔', '。', '！', '？', '…':
		return true
	}
	return false
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
