package processor

import (
	"strings"
	"unicode"
)

// DefaultChunkSize is the target chunk size in characters.
const DefaultChunkSize = 512

// splitText splits text into word-safe chunks of at most target characters.
// Words are never split; a single word longer than target becomes its own
// chunk. Whitespace between chunks is dropped.
func splitText(text string, target int) []string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var b strings.Builder
	for _, word := range words {
		if b.Len() > 0 && b.Len()+1+len(word) > target {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// splitMarkdown splits markdown at heading boundaries first, then word-safe
// within each section. Sections shorter than the target stay intact so a
// heading and its body land in one chunk.
func splitMarkdown(text string, target int) []string {
	var sections []string
	var current strings.Builder

	for line := range strings.Lines(text) {
		if isHeading(line) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}

	var chunks []string
	for _, section := range sections {
		trimmed := strings.TrimSpace(section)
		if trimmed == "" {
			continue
		}
		if len(trimmed) <= target {
			chunks = append(chunks, trimmed)
			continue
		}
		chunks = append(chunks, splitText(trimmed, target)...)
	}
	return chunks
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	return strings.HasPrefix(trimmed, "#")
}
