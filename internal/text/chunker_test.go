package text

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTokens(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("tok%d", i)
	}
	return strings.Join(words, " ")
}

func TestNewChunker(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		c, err := NewChunker(100, 20)
		assert.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("Zero Overlap", func(t *testing.T) {
		_, err := NewChunker(100, 0)
		assert.NoError(t, err)
	})

	t.Run("Overlap Equals Max", func(t *testing.T) {
		_, err := NewChunker(100, 100)
		assert.ErrorIs(t, err, ErrChunkParams)
	})

	t.Run("Negative Overlap", func(t *testing.T) {
		_, err := NewChunker(100, -1)
		assert.ErrorIs(t, err, ErrChunkParams)
	})

	t.Run("Zero Max", func(t *testing.T) {
		_, err := NewChunker(0, 0)
		assert.ErrorIs(t, err, ErrChunkParams)
	})
}

func TestChunkerSplit(t *testing.T) {
	t.Run("Window Offsets", func(t *testing.T) {
		// 2500 tokens, window 1000, overlap 200 -> starts at 0, 800, 1600,
		// last chunk truncated to 900 tokens.
		c, err := NewChunker(1000, 200)
		require.NoError(t, err)

		chunks := c.SplitAll(makeTokens(2500))
		require.Len(t, chunks, 3)

		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, 1000, chunks[0].End)
		assert.Equal(t, 800, chunks[1].Start)
		assert.Equal(t, 1800, chunks[1].End)
		assert.Equal(t, 1600, chunks[2].Start)
		assert.Equal(t, 2500, chunks[2].End)
		assert.Equal(t, 900, chunks[2].TokenCount)
	})

	t.Run("Empty Input", func(t *testing.T) {
		c, err := NewChunker(100, 10)
		require.NoError(t, err)
		assert.Empty(t, c.SplitAll(""))
		assert.Empty(t, c.SplitAll("   \n\t "))
	})

	t.Run("Input Smaller Than Window", func(t *testing.T) {
		c, err := NewChunker(100, 10)
		require.NoError(t, err)

		chunks := c.SplitAll("just a few tokens")
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, 4, chunks[0].End)
		assert.Equal(t, "just a few tokens", chunks[0].Text)
	})

	t.Run("Exact Window Boundary", func(t *testing.T) {
		// Exactly one window of tokens must not produce a trailing
		// overlap-only chunk.
		c, err := NewChunker(10, 4)
		require.NoError(t, err)

		chunks := c.SplitAll(makeTokens(10))
		require.Len(t, chunks, 1)
		assert.Equal(t, 10, chunks[0].TokenCount)
	})

	t.Run("Coverage", func(t *testing.T) {
		// Every token appears in some chunk and consecutive chunks overlap
		// by exactly the configured amount.
		c, err := NewChunker(7, 3)
		require.NoError(t, err)

		chunks := c.SplitAll(makeTokens(23))
		require.NotEmpty(t, chunks)

		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, 23, chunks[len(chunks)-1].End)
		for i := 1; i < len(chunks); i++ {
			assert.Equal(t, chunks[i-1].End-3, chunks[i].Start, "chunk %d overlap", i)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		c, err := NewChunker(50, 10)
		require.NoError(t, err)

		input := makeTokens(333)
		first := c.SplitAll(input)
		second := c.SplitAll(input)
		assert.Equal(t, first, second)
	})

	t.Run("Lazy Early Stop", func(t *testing.T) {
		c, err := NewChunker(10, 0)
		require.NoError(t, err)

		seen := 0
		for range c.Split(makeTokens(100)) {
			seen++
			if seen == 2 {
				break
			}
		}
		assert.Equal(t, 2, seen)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("Collapses Whitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", Normalize("a\n\n  b\t\tc"))
	})

	t.Run("Trims Edges", func(t *testing.T) {
		assert.Equal(t, "hello world", Normalize("  hello world \n"))
	})

	t.Run("Strips Control Characters", func(t *testing.T) {
		assert.Equal(t, "ab", Normalize("a\x00\x08b"))
	})

	t.Run("Invalid UTF8", func(t *testing.T) {
		assert.Equal(t, "ok", Normalize("ok\xff\xfe"))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "", Normalize(""))
	})
}
