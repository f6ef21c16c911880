package text

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most limit characters.
//
// Whitespace is collapsed first. Sentences are kept whole where they fit, long sentences
// break between words, and a single word longer than limit is cut. A limit of zero or less
// returns the collapsed text as one chunk. Empty text yields no chunks.
func Chunk(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	if limit <= 0 {
		return []string{strings.Join(words, " ")}
	}

	packer := &chunkPacker{limit: limit}

	for _, sentence := range sentences(words) {
		if packer.fits(sentence) {
			packer.add(sentence)

			continue
		}

		packer.flush()

		if utf8.RuneCountInString(sentence) <= limit {
			packer.add(sentence)

			continue
		}

		for _, word := range strings.Fields(sentence) {
			for _, part := range splitRunes(word, limit) {
				if !packer.fits(part) {
					packer.flush()
				}

				packer.add(part)
			}
		}
	}

	packer.flush()

	return packer.chunks
}

type chunkPacker struct {
	limit   int
	chunks  []string
	current strings.Builder
	length  int
}

func (p *chunkPacker) fits(piece string) bool {
	size := utf8.RuneCountInString(piece)
	if p.length == 0 {
		return size <= p.limit
	}

	return p.length+1+size <= p.limit
}

func (p *chunkPacker) add(piece string) {
	if p.length > 0 {
		p.current.WriteByte(' ')
		p.length++
	}

	p.current.WriteString(piece)
	p.length += utf8.RuneCountInString(piece)
}

func (p *chunkPacker) flush() {
	if p.length == 0 {
		return
	}

	p.chunks = append(p.chunks, p.current.String())
	p.current.Reset()
	p.length = 0
}

// sentences groups words into sentences ending with terminal punctuation.
func sentences(words []string) []string {
	var (
		out     []string
		current []string
	)

	for _, word := range words {
		current = append(current, word)

		if endsSentence(word) {
			out = append(out, strings.Join(current, " "))
			current = current[:0]
		}
	}

	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}

	return out
}

func endsSentence(word string) bool {
	last, _ := utf8.DecodeLastRuneInString(strings.TrimRight(word, `"')]`))

	switch last {
	case '.', '!', '?', ';', ':', '。', '！', '？':
		return true
	default:
		return false
	}
}

// splitRunes cuts word into pieces of at most limit runes.
func splitRunes(word string, limit int) []string {
	runes := []rune(word)
	if len(runes) <= limit {
		return []string{word}
	}

	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		parts = append(parts, string(runes[start:end]))
	}

	return parts
}
