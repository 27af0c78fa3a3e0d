package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/edgeflare/pgrag/pkg/metrics"
	"go.uber.org/zap"
)

const pipelineIngest = "ingest"

// IngestOptions configures an Ingestor.
type IngestOptions struct {
	Collection string
	Chunk      ChunkOptions
	// EmbedBatchSize is the number of chunks sent per embedding request
	EmbedBatchSize int
	// Replace deletes the records previously stored for each loaded source before storing.
	// When false, re-ingesting a source adds duplicate records.
	Replace bool
}

// DefaultIngestOptions returns IngestOptions with default values
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		Collection:     "my_rag_collection",
		Chunk:          DefaultChunkOptions(),
		EmbedBatchSize: 64,
	}
}

// IngestResult summarises a completed ingestion run.
type IngestResult struct {
	Documents int
	Chunks    int
	Deleted   int64
	IDs       []string
}

// Ingestor runs the write path: load, split, embed, store.
type Ingestor struct {
	embedder Embedder
	store    VectorStore
	chunker  *Chunker
	logger   *zap.Logger
	opts     IngestOptions
}

// NewIngestor creates an Ingestor. It fails with ErrConfiguration on invalid chunk options,
// an empty collection name or a negative batch size. A zero batch size means the default.
func NewIngestor(embedder Embedder, store VectorStore, opts IngestOptions, loggers ...*zap.Logger) (*Ingestor, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrConfiguration)
	}
	if opts.EmbedBatchSize < 0 {
		return nil, fmt.Errorf("%w: embedding batch size must not be negative, got %d", ErrConfiguration, opts.EmbedBatchSize)
	}
	chunker, err := NewChunker(opts.Chunk)
	if err != nil {
		return nil, err
	}
	logger, err := loggerOrDefault(loggers)
	if err != nil {
		return nil, err
	}
	opts.EmbedBatchSize = cmp.Or(opts.EmbedBatchSize, DefaultIngestOptions().EmbedBatchSize)

	return &Ingestor{
		embedder: embedder,
		store:    store,
		chunker:  chunker,
		logger:   logger.With(zap.String("pipeline", pipelineIngest), zap.String("collection", opts.Collection)),
		opts:     opts,
	}, nil
}

// Run executes every stage in order and stops at the first error.
func (i *Ingestor) Run(ctx context.Context, loader Loader) (*IngestResult, error) {
	start := time.Now()
	docs, err := loader.Load(ctx)
	metrics.ObserveStage(pipelineIngest, "load", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	i.logger.Info("Documents loaded", zap.Int("documents", len(docs)), zap.Duration("took", time.Since(start)))

	result := &IngestResult{Documents: len(docs)}

	start = time.Now()
	chunks, err := i.chunker.Split(docs)
	metrics.ObserveStage(pipelineIngest, "split", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}
	result.Chunks = len(chunks)
	i.logger.Info("Documents split", zap.Int("chunks", len(chunks)),
		zap.Int("size", i.chunker.opts.Size), zap.Int("overlap", i.chunker.opts.Overlap))
	if len(chunks) == 0 {
		i.logger.Warn("Nothing to ingest")
		return result, nil
	}

	start = time.Now()
	records, err := i.embed(ctx, chunks)
	metrics.ObserveStage(pipelineIngest, "embed", start, err)
	if err != nil {
		return nil, err
	}
	i.logger.Info("Chunks embedded", zap.Int("records", len(records)), zap.Duration("took", time.Since(start)))

	start = time.Now()
	deleted, ids, err := i.persist(ctx, docs, records)
	metrics.ObserveStage(pipelineIngest, "store", start, err)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted
	result.IDs = ids
	metrics.StoredRecords.WithLabelValues(i.opts.Collection).Add(float64(len(ids)))
	i.logger.Info("Records stored", zap.Int("records", len(ids)), zap.Int64("deleted", deleted))

	return result, nil
}

func (i *Ingestor) embed(ctx context.Context, chunks []Chunk) ([]Record, error) {
	records := make([]Record, 0, len(chunks))
	for from := 0; from < len(chunks); from += i.opts.EmbedBatchSize {
		to := min(from+i.opts.EmbedBatchSize, len(chunks))
		batch := chunks[from:to]

		input := make([]string, len(batch))
		for j, c := range batch {
			input[j] = c.Text
		}

		vectors, err := i.embedder.Embed(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", from, to-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("mismatch between chunks and embeddings length: %d vs %d", len(batch), len(vectors))
		}
		i.logger.Debug("Batch embedded", zap.Int("from", from), zap.Int("to", to-1))

		for j, c := range batch {
			records = append(records, Record{
				Text:     c.Text,
				Vector:   vectors[j],
				Metadata: c.Metadata,
			})
		}
	}
	return records, nil
}

// persist stores records. With Replace set, the records of every loaded source are swapped
// in the same store operation, so a failure keeps what was stored before.
func (i *Ingestor) persist(ctx context.Context, docs []Document, records []Record) (int64, []string, error) {
	if !i.opts.Replace {
		ids, err := i.store.Add(ctx, i.opts.Collection, records)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to store records: %w", err)
		}
		return 0, ids, nil
	}

	var sources []string
	for _, doc := range docs {
		if !slices.Contains(sources, doc.Metadata.Source) {
			sources = append(sources, doc.Metadata.Source)
		}
	}

	deleted, ids, err := i.store.Replace(ctx, i.opts.Collection, sources, records)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to replace records: %w", err)
	}
	return deleted, ids, nil
}
