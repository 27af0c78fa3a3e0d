package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode"

	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/edgeflare/pgrag/pkg/rag/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// letterEmbedder embeds text as its normalised a-z letter histogram
type letterEmbedder struct {
	calls  int
	inputs [][]string
	err    error
}

func (e *letterEmbedder) Embed(_ context.Context, input []string) ([][]float32, error) {
	e.calls++
	e.inputs = append(e.inputs, input)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(input))
	for i, s := range input {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(s) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

type echoGenerator struct {
	prompts []string
	err     error
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return "generated answer", nil
}

type staticLoader []rag.Document

func (l staticLoader) Load(context.Context) ([]rag.Document, error) {
	return l, nil
}

type failingLoader struct{ err error }

func (l failingLoader) Load(context.Context) ([]rag.Document, error) {
	return nil, l.err
}

func paragraph(n int) string {
	base := "Charge parity violation was first observed in neutral kaon decays. "
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(base)
	}
	return strings.TrimRightFunc(b.String()[:n-1], unicode.IsSpace) + "."
}

func newIngestor(t *testing.T, embedder rag.Embedder, store rag.VectorStore, mutate ...func(*rag.IngestOptions)) *rag.Ingestor {
	t.Helper()
	opts := rag.DefaultIngestOptions()
	opts.Collection = "test"
	for _, m := range mutate {
		m(&opts)
	}
	ingestor, err := rag.NewIngestor(embedder, store, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return ingestor
}

func newQuerier(t *testing.T, embedder rag.Embedder, store rag.VectorStore, generator rag.Generator, topK int) *rag.Querier {
	t.Helper()
	opts := rag.DefaultQueryOptions()
	opts.Collection = "test"
	opts.TopK = topK
	querier, err := rag.NewQuerier(embedder, store, generator, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return querier
}

func TestIngestThenAskSingleChunk(t *testing.T) {
	ctx := context.Background()
	embedder := &letterEmbedder{}
	store := memory.NewStore()

	text := paragraph(500)
	require.Len(t, text, 500)

	result, err := newIngestor(t, embedder, store).Run(ctx, staticLoader{
		{Text: text, Metadata: rag.Metadata{Source: "https://example.com/cp"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.Chunks)
	require.Len(t, result.IDs, 1)

	records := store.Records("test")
	require.Len(t, records, 1)
	assert.Equal(t, text, records[0].Text)
	assert.Equal(t, "https://example.com/cp", records[0].Metadata.Source)

	generator := &echoGenerator{}
	answer, err := newQuerier(t, embedder, store, generator, 4).Ask(ctx, "Has charge parity violation been observed?")
	require.NoError(t, err)

	require.Len(t, answer.Context, 1)
	assert.Equal(t, text, answer.Context[0].Text)
	assert.Equal(t, "generated answer", answer.Text)
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], text)
	assert.Contains(t, generator.prompts[0], "Has charge parity violation been observed?")
}

func TestRetrieveTopThreeOrdered(t *testing.T) {
	ctx := context.Background()
	embedder := &letterEmbedder{}
	store := memory.NewStore()

	docs := staticLoader{
		{Text: "aaaa", Metadata: rag.Metadata{Source: "a"}},
		{Text: "aaab", Metadata: rag.Metadata{Source: "ab"}},
		{Text: "aabb", Metadata: rag.Metadata{Source: "aabb"}},
		{Text: "bbbb", Metadata: rag.Metadata{Source: "b"}},
		{Text: "cccc", Metadata: rag.Metadata{Source: "c"}},
	}
	_, err := newIngestor(t, embedder, store).Run(ctx, docs)
	require.NoError(t, err)

	results, err := newQuerier(t, embedder, store, &echoGenerator{}, 3).Retrieve(ctx, "a")
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, []string{"a", "ab", "aabb"}, []string{
		results[0].Metadata.Source, results[1].Metadata.Source, results[2].Metadata.Source,
	})
}

func TestReingestDuplicatesRecords(t *testing.T) {
	ctx := context.Background()
	embedder := &letterEmbedder{}
	store := memory.NewStore()
	docs := staticLoader{{Text: "some document", Metadata: rag.Metadata{Source: "doc"}}}

	ingestor := newIngestor(t, embedder, store)
	first, err := ingestor.Run(ctx, docs)
	require.NoError(t, err)
	second, err := ingestor.Run(ctx, docs)
	require.NoError(t, err)

	records := store.Records("test")
	require.Len(t, records, 2)
	assert.Equal(t, records[0].Text, records[1].Text)
	assert.Equal(t, records[0].Vector, records[1].Vector)
	assert.NotEqual(t, first.IDs[0], second.IDs[0])
}

func TestReingestWithReplace(t *testing.T) {
	ctx := context.Background()
	embedder := &letterEmbedder{}
	store := memory.NewStore()

	_, err := newIngestor(t, embedder, store).Run(ctx, staticLoader{
		{Text: "kept", Metadata: rag.Metadata{Source: "other"}},
		{Text: "old version", Metadata: rag.Metadata{Source: "doc"}},
	})
	require.NoError(t, err)

	result, err := newIngestor(t, embedder, store, func(o *rag.IngestOptions) { o.Replace = true }).
		Run(ctx, staticLoader{{Text: "new version", Metadata: rag.Metadata{Source: "doc"}}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Deleted)

	var texts []string
	for _, r := range store.Records("test") {
		texts = append(texts, r.Text)
	}
	assert.ElementsMatch(t, []string{"kept", "new version"}, texts)
}

// unwritableStore serves reads from the wrapped store and fails every write
type unwritableStore struct {
	*memory.Store
	err error
}

func (s unwritableStore) Add(context.Context, string, []rag.Record) ([]string, error) {
	return nil, s.err
}

func (s unwritableStore) Replace(context.Context, string, []string, []rag.Record) (int64, []string, error) {
	return 0, nil, s.err
}

func TestReplaceKeepsRecordsWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	embedder := &letterEmbedder{}
	store := memory.NewStore()

	_, err := newIngestor(t, embedder, store).Run(ctx, staticLoader{
		{Text: "old version", Metadata: rag.Metadata{Source: "doc"}},
	})
	require.NoError(t, err)

	broken := unwritableStore{Store: store, err: errors.New("connection dropped")}
	_, err = newIngestor(t, embedder, broken, func(o *rag.IngestOptions) { o.Replace = true }).
		Run(ctx, staticLoader{{Text: "new version", Metadata: rag.Metadata{Source: "doc"}}})
	require.ErrorContains(t, err, "connection dropped")

	records := store.Records("test")
	require.Len(t, records, 1)
	assert.Equal(t, "old version", records[0].Text)
}

func TestIngestBatchesEmbeddingsInOrder(t *testing.T) {
	embedder := &letterEmbedder{}
	store := memory.NewStore()
	ingestor := newIngestor(t, embedder, store, func(o *rag.IngestOptions) {
		o.Chunk = rag.ChunkOptions{Size: 4, Overlap: 0}
		o.EmbedBatchSize = 2
	})

	result, err := ingestor.Run(context.Background(), staticLoader{{Text: "aaaabbbbccccdddde"}})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Chunks)
	assert.Equal(t, 3, embedder.calls)
	assert.Equal(t, [][]string{{"aaaa", "bbbb"}, {"cccc", "dddd"}, {"e"}}, embedder.inputs)

	var texts []string
	for _, r := range store.Records("test") {
		texts = append(texts, r.Text)
	}
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc", "dddd", "e"}, texts)
}

func TestIngestFailsFast(t *testing.T) {
	ctx := context.Background()

	t.Run("load", func(t *testing.T) {
		embedder := &letterEmbedder{}
		_, err := newIngestor(t, embedder, memory.NewStore()).Run(ctx, failingLoader{err: errors.New("boom")})
		require.Error(t, err)
		assert.Zero(t, embedder.calls)
	})

	t.Run("embed", func(t *testing.T) {
		store := memory.NewStore()
		embedder := &letterEmbedder{err: rag.ErrModel}
		_, err := newIngestor(t, embedder, store).Run(ctx, staticLoader{{Text: "text"}})
		assert.ErrorIs(t, err, rag.ErrModel)
		assert.Empty(t, store.Records("test"))
	})
}

func TestAskMissingCollection(t *testing.T) {
	generator := &echoGenerator{}
	_, err := newQuerier(t, &letterEmbedder{}, memory.NewStore(), generator, 4).Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, rag.ErrCollectionNotFound)
	assert.Empty(t, generator.prompts)
}

func TestAskPropagatesGeneratorError(t *testing.T) {
	ctx := context.Background()
	embedder := &letterEmbedder{}
	store := memory.NewStore()
	_, err := newIngestor(t, embedder, store).Run(ctx, staticLoader{{Text: "context"}})
	require.NoError(t, err)

	_, err = newQuerier(t, embedder, store, &echoGenerator{err: rag.ErrUnavailable}, 4).Ask(ctx, "q")
	assert.ErrorIs(t, err, rag.ErrUnavailable)
	assert.True(t, rag.IsConnectivity(err))
}

func TestNewPipelinesValidateOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := rag.NewIngestor(&letterEmbedder{}, memory.NewStore(), rag.IngestOptions{
		Collection: "c",
		Chunk:      rag.ChunkOptions{Size: 100, Overlap: 100},
	}, logger)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = rag.NewIngestor(&letterEmbedder{}, memory.NewStore(), rag.IngestOptions{Chunk: rag.DefaultChunkOptions()}, logger)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = rag.NewIngestor(&letterEmbedder{}, memory.NewStore(), rag.IngestOptions{
		Collection:     "c",
		Chunk:          rag.DefaultChunkOptions(),
		EmbedBatchSize: -1,
	}, logger)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = rag.NewQuerier(&letterEmbedder{}, memory.NewStore(), &echoGenerator{}, rag.QueryOptions{Collection: "c"}, logger)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}
