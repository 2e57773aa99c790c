// Package processor defines the content processor contract consumed by the
// storage workers and ships the built-in text and markdown processors.
// Heavyweight extractors (PDF text, OCR, audio transcription) plug in behind
// the same interface.
package processor

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Chunk is a fragment of extracted content, ordered within its source file.
type Chunk struct {
	Content  string
	Ordinal  int
	Category string
}

// FileMetadata summarizes an extraction run.
type FileMetadata struct {
	Title            string
	WordCount        int
	Confidence       float64
	ExtractionMethod string
}

// Options tunes extraction.
type Options struct {
	// ChunkSize is the target chunk size in characters. Default: 512.
	ChunkSize int
}

// Processor turns raw file bytes into chunks plus a metadata summary.
type Processor interface {
	// Name is the extraction method identifier recorded on chunk IDs.
	Name() string

	// Process extracts chunks from content.
	Process(ctx context.Context, content []byte, sourceFile, contentType string, opts Options) ([]Chunk, FileMetadata, error)
}

// Registry selects a processor by file extension and declared MIME type.
type Registry struct {
	byExt  map[string]Processor
	byMIME map[string]Processor
	def    Processor
}

// NewRegistry builds the default processor set: markdown-aware splitting for
// markdown, plain text splitting for everything text-like.
func NewRegistry() *Registry {
	text := &TextProcessor{}
	md := &MarkdownProcessor{}

	return &Registry{
		byExt: map[string]Processor{
			".md":       md,
			".markdown": md,
			".txt":      text,
			".text":     text,
		},
		byMIME: map[string]Processor{
			"text/markdown": md,
			"text/plain":    text,
		},
		def: text,
	}
}

// Register adds a processor for an extension (".pdf") or MIME type.
func (r *Registry) Register(ext, mime string, p Processor) {
	if ext != "" {
		r.byExt[strings.ToLower(ext)] = p
	}
	if mime != "" {
		r.byMIME[strings.ToLower(mime)] = p
	}
}

// Select resolves the processor for a file. Extension wins over MIME; the
// plain text processor is the fallback so unknown formats still chunk.
func (r *Registry) Select(sourceFile, contentType string) Processor {
	if ext := strings.ToLower(path.Ext(sourceFile)); ext != "" {
		if p, ok := r.byExt[ext]; ok {
			return p
		}
	}
	if mime := normalizeMIME(contentType); mime != "" {
		if p, ok := r.byMIME[mime]; ok {
			return p
		}
	}
	return r.def
}

func normalizeMIME(contentType string) string {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func metadata(method, sourceFile, text string) FileMetadata {
	title := path.Base(sourceFile)
	return FileMetadata{
		Title:            title,
		WordCount:        countWords(text),
		Confidence:       1.0,
		ExtractionMethod: method,
	}
}

func validateOptions(opts Options) (Options, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize < 0 {
		return opts, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	return opts, nil
}
