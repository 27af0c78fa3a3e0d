package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeflare/pgrag/pkg/metrics"
	"go.uber.org/zap"
)

const pipelineQuery = "query"

// QueryOptions configures a Querier.
type QueryOptions struct {
	Collection string
	// TopK is the number of records retrieved per question
	TopK int
	// Template must contain ContextPlaceholder and QuestionPlaceholder. Empty means DefaultPromptTemplate.
	Template string
}

// DefaultQueryOptions returns QueryOptions with default values
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Collection: "my_rag_collection",
		TopK:       4,
		Template:   DefaultPromptTemplate,
	}
}

// Answer is the outcome of one question.
type Answer struct {
	Question string
	Text     string
	Prompt   string
	Context  []SearchResult
}

// Querier runs the read path: embed the question, retrieve, assemble the prompt, generate.
// It keeps no state between questions.
type Querier struct {
	embedder  Embedder
	store     VectorStore
	generator Generator
	logger    *zap.Logger
	opts      QueryOptions
}

// NewQuerier creates a Querier. It fails with ErrConfiguration on an empty collection or TopK < 1.
func NewQuerier(embedder Embedder, store VectorStore, generator Generator, opts QueryOptions, loggers ...*zap.Logger) (*Querier, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrConfiguration)
	}
	if opts.TopK < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1, got %d", ErrConfiguration, opts.TopK)
	}
	logger, err := loggerOrDefault(loggers)
	if err != nil {
		return nil, err
	}

	return &Querier{
		embedder:  embedder,
		store:     store,
		generator: generator,
		logger:    logger.With(zap.String("pipeline", pipelineQuery), zap.String("collection", opts.Collection)),
		opts:      opts,
	}, nil
}

// Retrieve embeds the question and returns the TopK nearest records, most similar first.
func (q *Querier) Retrieve(ctx context.Context, question string) ([]SearchResult, error) {
	start := time.Now()
	vectors, err := q.embedder.Embed(ctx, []string{question})
	if err == nil && len(vectors) != 1 {
		err = fmt.Errorf("expected 1 embedding for the question, got %d", len(vectors))
	}
	metrics.ObserveStage(pipelineQuery, "embed", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	start = time.Now()
	results, err := q.store.Search(ctx, q.opts.Collection, vectors[0], q.opts.TopK)
	metrics.ObserveStage(pipelineQuery, "retrieve", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	q.logger.Debug("Context retrieved", zap.Int("results", len(results)), zap.Duration("took", time.Since(start)))

	return results, nil
}

// Ask answers a single question. Any failing stage aborts the whole call.
func (q *Querier) Ask(ctx context.Context, question string) (*Answer, error) {
	results, err := q.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Text
	}
	prompt := AssemblePrompt(q.opts.Template, contexts, question)

	start := time.Now()
	text, err := q.generator.Generate(ctx, prompt)
	metrics.ObserveStage(pipelineQuery, "generate", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	metrics.AnsweredQuestions.WithLabelValues(q.opts.Collection).Inc()
	q.logger.Info("Question answered", zap.Int("context", len(results)), zap.Duration("took", time.Since(start)))

	return &Answer{
		Question: question,
		Text:     text,
		Prompt:   prompt,
		Context:  results,
	}, nil
}
