package rag

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Metadata describes where a piece of text came from.
// It is stored as jsonb alongside each vector record.
type Metadata struct {
	Source      string `mapstructure:"source"`
	Title       string `mapstructure:"title"`
	ContentType string `mapstructure:"content_type"`
	ChunkIndex  int    `mapstructure:"chunk_index"`
	StartIndex  int    `mapstructure:"start_index"`
	// Extra holds keys written by other tools sharing the same tables
	Extra map[string]any `mapstructure:",remain"`
}

// Map flattens the metadata into a JSON-friendly map. Extra keys never override known fields.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["source"] = m.Source
	out["chunk_index"] = m.ChunkIndex
	out["start_index"] = m.StartIndex
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.ContentType != "" {
		out["content_type"] = m.ContentType
	}
	return out
}

// MetadataFromMap decodes a generic map (e.g. an unmarshalled jsonb column) into Metadata.
func MetadataFromMap(in map[string]any) (Metadata, error) {
	var md Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &md,
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create metadata decoder: %w", err)
	}
	if err := decoder.Decode(in); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return md, nil
}

// Document is the raw text of one source, as produced by a Loader.
type Document struct {
	Text     string
	Metadata Metadata
}

// Chunk is a contiguous piece of a Document. Start and End are rune offsets into the document text.
type Chunk struct {
	Text     string
	Index    int
	Start    int
	End      int
	Metadata Metadata
}

// Record is a persisted (vector, text, metadata) tuple.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata Metadata
}

// SearchResult is a Record with its similarity to the query vector. Higher is more similar.
type SearchResult struct {
	Record
	Score float64
}

// Embedder converts text into fixed-dimension vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Generator produces text for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorStore persists records and finds the nearest ones to a query vector.
type VectorStore interface {
	// Add stores records in the collection, creating it if absent, and returns their IDs.
	// Records are never deduplicated.
	Add(ctx context.Context, collection string, records []Record) ([]string, error)
	// Search returns up to k records ordered by descending similarity.
	// It fails with ErrCollectionNotFound if the collection does not exist.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]SearchResult, error)
	// DeleteSource removes all records of the collection whose metadata source equals source.
	DeleteSource(ctx context.Context, collection, source string) (int64, error)
	// Replace removes the records of every given source and adds records in one atomic step.
	// On error the collection is left unchanged.
	Replace(ctx context.Context, collection string, sources []string, records []Record) (deleted int64, ids []string, err error)
}

// Loader produces the documents to ingest.
type Loader interface {
	Load(ctx context.Context) ([]Document, error)
}
