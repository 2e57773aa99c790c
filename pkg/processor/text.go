package processor

import (
	"context"
	"unicode/utf8"
)

// TextProcessor chunks plain text by character budget without splitting
// words. It is the fallback for unrecognized formats.
type TextProcessor struct{}

// Name returns the extraction method identifier.
func (*TextProcessor) Name() string { return "text" }

// Process splits content into word-safe chunks.
func (p *TextProcessor) Process(ctx context.Context, content []byte, sourceFile, contentType string, opts Options) ([]Chunk, FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, FileMetadata{}, err
	}
	opts, err := validateOptions(opts)
	if err != nil {
		return nil, FileMetadata{}, err
	}

	text := string(content)
	meta := metadata(p.Name(), sourceFile, text)
	if !utf8.ValidString(text) {
		meta.Confidence = 0.5
	}

	var chunks []Chunk
	for i, piece := range splitText(text, opts.ChunkSize) {
		chunks = append(chunks, Chunk{
			Content:  piece,
			Ordinal:  i,
			Category: "document_chunk",
		})
	}
	return chunks, meta, nil
}

// MarkdownProcessor splits at heading boundaries before applying the
// character budget, keeping headings attached to their bodies.
type MarkdownProcessor struct{}

// Name returns the extraction method identifier.
func (*MarkdownProcessor) Name() string { return "markdown" }

// Process splits markdown content into section-aware chunks.
func (p *MarkdownProcessor) Process(ctx context.Context, content []byte, sourceFile, contentType string, opts Options) ([]Chunk, FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, FileMetadata{}, err
	}
	opts, err := validateOptions(opts)
	if err != nil {
		return nil, FileMetadata{}, err
	}

	text := string(content)
	meta := metadata(p.Name(), sourceFile, text)

	var chunks []Chunk
	for i, piece := range splitMarkdown(text, opts.ChunkSize) {
		chunks = append(chunks, Chunk{
			Content:  piece,
			Ordinal:  i,
			Category: "document_chunk",
		})
	}
	return chunks, meta, nil
}
