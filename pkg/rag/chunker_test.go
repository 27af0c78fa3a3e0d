package rag

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c *Chunker, doc Document) []Chunk {
	t.Helper()
	var chunks []Chunk
	for chunk, err := range c.Chunks(doc) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

// reconstruct joins the chunks, dropping the overlapping prefix of every chunk but the first
func reconstruct(chunks []Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func TestChunkerReconstructsText(t *testing.T) {
	texts := []string{
		"a",
		strings.Repeat("abcdefghij", 10),
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 57),
		strings.Repeat("häßlich ünïcödé 日本語テキスト ", 40),
	}
	params := []struct{ size, overlap int }{
		{1, 0}, {2, 1}, {10, 0}, {10, 3}, {10, 9}, {100, 20}, {1000, 200},
	}

	for _, text := range texts {
		for _, p := range params {
			c, err := NewChunker(ChunkOptions{Size: p.size, Overlap: p.overlap})
			require.NoError(t, err)

			chunks := collect(t, c, Document{Text: text})
			require.NotEmpty(t, chunks)
			assert.Equal(t, text, reconstruct(chunks, p.overlap), "size=%d overlap=%d", p.size, p.overlap)

			for i, chunk := range chunks {
				n := len([]rune(chunk.Text))
				assert.LessOrEqual(t, n, p.size)
				assert.Equal(t, i, chunk.Index)
				assert.Equal(t, chunk.Start, chunk.Metadata.StartIndex)
				assert.Equal(t, n, chunk.End-chunk.Start)
				if i < len(chunks)-1 {
					assert.Equal(t, p.size, n, "only the last chunk may be short")
					next := []rune(chunks[i+1].Text)
					cur := []rune(chunk.Text)
					assert.Equal(t, string(cur[len(cur)-p.overlap:]), string(next[:p.overlap]))
				}
			}
			assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].End)
		}
	}
}

func TestChunkerShortDocument(t *testing.T) {
	c, err := NewChunker(ChunkOptions{Size: 1000, Overlap: 200})
	require.NoError(t, err)

	text := strings.Repeat("x", 500)
	chunks := collect(t, c, Document{Text: text, Metadata: Metadata{Source: "s"}})
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, "s", chunks[0].Metadata.Source)

	// exactly Size runes is still one chunk
	chunks = collect(t, c, Document{Text: strings.Repeat("y", 1000)})
	assert.Len(t, chunks, 1)
}

func TestChunkerEmptyDocument(t *testing.T) {
	c, err := NewChunker(DefaultChunkOptions())
	require.NoError(t, err)
	assert.Empty(t, collect(t, c, Document{}))
}

func TestChunkerIsRestartable(t *testing.T) {
	c, err := NewChunker(ChunkOptions{Size: 4, Overlap: 1})
	require.NoError(t, err)

	seq := c.Chunks(Document{Text: "abcdefghijkl"})

	var first []string
	for chunk, err := range seq {
		require.NoError(t, err)
		first = append(first, chunk.Text)
	}

	// stop early, then range again from the start
	for chunk := range seq {
		assert.Equal(t, "abcd", chunk.Text)
		break
	}

	var second []string
	for chunk, err := range seq {
		require.NoError(t, err)
		second = append(second, chunk.Text)
	}
	assert.Equal(t, []string{"abcd", "defg", "ghij", "jkl"}, first)
	assert.Equal(t, first, second)
}

func TestNewChunkerRejectsInvalidOptions(t *testing.T) {
	for _, p := range []struct{ size, overlap int }{
		{10, 10}, {10, 11}, {1, 1}, {200, 1000}, {0, 0}, {-1, 0}, {10, -1},
	} {
		_, err := NewChunker(ChunkOptions{Size: p.size, Overlap: p.overlap})
		assert.True(t, errors.Is(err, ErrConfiguration), "size=%d overlap=%d: %v", p.size, p.overlap, err)
	}

	_, err := NewChunker(ChunkOptions{Strategy: "sentences", Size: 10})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestChunkerRecursive(t *testing.T) {
	c, err := NewChunker(ChunkOptions{Strategy: StrategyRecursive, Size: 50, Overlap: 10})
	require.NoError(t, err)

	text := strings.Repeat("Paragraph one has a few words in it.\n\n", 3) + "Last paragraph."
	chunks, err := c.Split([]Document{{Text: text, Metadata: Metadata{Source: "p"}}})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 50)
		assert.Equal(t, i, chunk.Metadata.ChunkIndex)
		assert.Equal(t, chunk.Text, string([]rune(text)[chunk.Start:chunk.End]))
	}
}

func TestChunkerSplitKeepsDocumentOrder(t *testing.T) {
	c, err := NewChunker(ChunkOptions{Size: 3, Overlap: 1})
	require.NoError(t, err)

	chunks, err := c.Split([]Document{
		{Text: "abcde", Metadata: Metadata{Source: "one"}},
		{Text: "xy", Metadata: Metadata{Source: "two"}},
	})
	require.NoError(t, err)

	var got []string
	for _, c := range chunks {
		got = append(got, c.Metadata.Source+":"+c.Text)
	}
	assert.Equal(t, []string{"one:abc", "one:cde", "two:xy"}, got)
}
