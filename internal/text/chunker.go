package text

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var ErrChunkParams = errors.New("invalid chunk parameters")

// Chunk is a bounded contiguous token span of a document's text. Start and
// End are token offsets into the normalized text (End exclusive).
type Chunk struct {
	Index      int
	Start      int
	End        int
	Text       string
	TokenCount int
}

// Chunker slides a window of maxTokens over the token stream, advancing by
// maxTokens-overlapTokens per step. Overlap strictly below the window size
// guarantees forward progress: a window never re-emits an earlier start
// offset.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func NewChunker(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", ErrChunkParams, maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap_tokens must satisfy 0 <= overlap < max_tokens, got %d", ErrChunkParams, overlapTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Split tokenizes text and yields chunks lazily, in order. The sequence is
// finite and single-pass; identical input always yields an identical chunk
// sequence. Empty input yields nothing.
func (c *Chunker) Split(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		tokens := Tokenize(text)
		if len(tokens) == 0 {
			return
		}

		stride := c.maxTokens - c.overlapTokens
		index := 0
		for start := 0; start < len(tokens); start += stride {
			end := start + c.maxTokens
			if end > len(tokens) {
				end = len(tokens)
			}
			chunk := Chunk{
				Index:      index,
				Start:      start,
				End:        end,
				Text:       strings.Join(tokens[start:end], " "),
				TokenCount: end - start,
			}
			if !yield(chunk) {
				return
			}
			index++
			if end == len(tokens) {
				return
			}
		}
	}
}

// SplitAll buffers the full chunk sequence.
func (c *Chunker) SplitAll(text string) []Chunk {
	var chunks []Chunk
	for chunk := range c.Split(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
