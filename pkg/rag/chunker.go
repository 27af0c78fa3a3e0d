package rag

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// StrategyWindow slides a fixed-size window with a fixed overlap over the text
	StrategyWindow = "window"
	// StrategyRecursive splits on paragraph, line and word separators first
	StrategyRecursive = "recursive"
)

// ChunkOptions configures a Chunker. Size and Overlap are measured in runes.
type ChunkOptions struct {
	Strategy string
	Size     int
	Overlap  int
}

// DefaultChunkOptions returns the chunking parameters used when none are configured.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Strategy: StrategyWindow,
		Size:     1000,
		Overlap:  200,
	}
}

// Validate checks that the options describe a usable chunking policy.
func (o ChunkOptions) Validate() error {
	switch {
	case o.Size <= 0:
		return fmt.Errorf("%w: chunk size must be greater than zero, got %d", ErrConfiguration, o.Size)
	case o.Overlap < 0:
		return fmt.Errorf("%w: chunk overlap cannot be negative, got %d", ErrConfiguration, o.Overlap)
	case o.Overlap >= o.Size:
		return fmt.Errorf("%w: chunk overlap %d must be smaller than size %d", ErrConfiguration, o.Overlap, o.Size)
	}
	switch o.Strategy {
	case "", StrategyWindow, StrategyRecursive:
		return nil
	default:
		return fmt.Errorf("%w: unknown chunk strategy %q", ErrConfiguration, o.Strategy)
	}
}

// Chunker splits documents into overlapping chunks.
type Chunker struct {
	opts ChunkOptions
}

// NewChunker returns a Chunker, or an error wrapping ErrConfiguration if opts are invalid.
func NewChunker(opts ChunkOptions) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyWindow
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the effective options.
func (c *Chunker) Options() ChunkOptions {
	return c.opts
}

// Chunks returns the chunks of doc as a lazy sequence. Ranging over it again starts over.
//
// With StrategyWindow, chunk i starts at rune offset i*(Size-Overlap), consecutive chunks
// share exactly Overlap runes, and the last chunk ends at the end of the text and may be
// shorter than Size. A text of at most Size runes yields a single chunk; an empty text yields none.
func (c *Chunker) Chunks(doc Document) iter.Seq2[Chunk, error] {
	if c.opts.Strategy == StrategyRecursive {
		return c.recursive(doc)
	}
	return c.window(doc)
}

// Split chunks every document in order.
func (c *Chunker) Split(docs []Document) ([]Chunk, error) {
	var chunks []Chunk
	for _, doc := range docs {
		for chunk, err := range c.Chunks(doc) {
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (c *Chunker) window(doc Document) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		runes := []rune(doc.Text)
		n := len(runes)
		if n == 0 {
			return
		}

		step := c.opts.Size - c.opts.Overlap
		for i, start := 0, 0; ; i, start = i+1, start+step {
			end := min(start+c.opts.Size, n)
			if !yield(newChunk(doc, string(runes[start:end]), i, start, end), nil) {
				return
			}
			if end == n {
				return
			}
		}
	}
}

func (c *Chunker) recursive(doc Document) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if doc.Text == "" {
			return
		}

		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.opts.Size),
			textsplitter.WithChunkOverlap(c.opts.Overlap),
		)
		segments, err := splitter.SplitText(doc.Text)
		if err != nil {
			yield(Chunk{}, fmt.Errorf("failed to split document %s: %w", doc.Metadata.Source, err))
			return
		}

		// the splitter drops separators, so offsets are recovered by searching forward
		cursor := 0
		for i, segment := range segments {
			pos := strings.Index(doc.Text[cursor:], segment)
			start := cursor
			if pos >= 0 {
				start = cursor + pos
			}
			startRune := utf8.RuneCountInString(doc.Text[:start])
			endRune := startRune + utf8.RuneCountInString(segment)
			if !yield(newChunk(doc, segment, i, startRune, endRune), nil) {
				return
			}
			if pos >= 0 {
				cursor = start + 1
				for cursor < len(doc.Text) && !utf8.RuneStart(doc.Text[cursor]) {
					cursor++
				}
			}
		}
	}
}

func newChunk(doc Document, text string, index, start, end int) Chunk {
	md := doc.Metadata
	md.ChunkIndex = index
	md.StartIndex = start
	return Chunk{
		Text:     text,
		Index:    index,
		Start:    start,
		End:      end,
		Metadata: md,
	}
}
