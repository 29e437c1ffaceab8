package embed_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"semdex/internal/embed"
)

// fakeModel encodes each text as [position-in-call, text-length] so ordering
// across batch boundaries is observable.
type fakeModel struct {
	mu        sync.Mutex
	calls     [][]string
	modes     []embed.Mode
	dims      int
	maxTokens int
	delay     time.Duration
	err       error
}

func (m *fakeModel) Embed(_ context.Context, texts []string, mode embed.Mode) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, texts)
	m.modes = append(m.modes, mode)
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, m.dims)
		vec[0] = float32(len(t))
		out[i] = vec
	}
	return out, nil
}

func (m *fakeModel) Dimensions() int     { return m.dims }
func (m *fakeModel) MaxInputTokens() int { return m.maxTokens }
func (m *fakeModel) Close() error        { return nil }

func TestServiceEmbed(t *testing.T) {
	t.Run("Order Preserved Across Batches", func(t *testing.T) {
		model := &fakeModel{dims: 2}
		svc := embed.NewService(model, embed.Options{BatchSize: 2})

		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
		results, err := svc.Embed(context.Background(), texts, embed.ModeDocument)
		require.NoError(t, err)
		require.Len(t, results, 5)

		// 5 texts with batch size 2 -> 3 model calls
		assert.Len(t, model.calls, 3)
		for i, text := range texts {
			assert.Equal(t, float32(len(text)), results[i].Vector[0], "text %d out of order", i)
		}
	})

	t.Run("Empty Input", func(t *testing.T) {
		svc := embed.NewService(&fakeModel{dims: 2}, embed.Options{})
		results, err := svc.Embed(context.Background(), nil, embed.ModeDocument)
		assert.NoError(t, err)
		assert.Nil(t, results)
	})

	t.Run("Truncation Recorded", func(t *testing.T) {
		model := &fakeModel{dims: 2, maxTokens: 3}
		svc := embed.NewService(model, embed.Options{})

		long := strings.Repeat("word ", 10)
		results, err := svc.Embed(context.Background(), []string{"short one", long}, embed.ModeDocument)
		require.NoError(t, err)

		assert.False(t, results[0].Truncated)
		assert.True(t, results[1].Truncated)
		// The model saw the truncated text.
		assert.Equal(t, "word word word", model.calls[0][1])
	})

	t.Run("Model Error Wrapped", func(t *testing.T) {
		model := &fakeModel{dims: 2, err: fmt.Errorf("quota exceeded")}
		svc := embed.NewService(model, embed.Options{})

		_, err := svc.Embed(context.Background(), []string{"x"}, embed.ModeDocument)
		assert.ErrorIs(t, err, embed.ErrEmbedding)
	})

	t.Run("Slot Timeout", func(t *testing.T) {
		model := &fakeModel{dims: 2, delay: 200 * time.Millisecond}
		svc := embed.NewService(model, embed.Options{
			Concurrency: 1,
			SlotTimeout: 20 * time.Millisecond,
		})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Embed(context.Background(), []string{"holder"}, embed.ModeDocument)
		}()

		// Give the holder time to take the only slot.
		time.Sleep(50 * time.Millisecond)
		_, err := svc.Embed(context.Background(), []string{"waiter"}, embed.ModeDocument)
		assert.ErrorIs(t, err, embed.ErrEmbedTimeout)
		wg.Wait()
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		svc := embed.NewService(&fakeModel{dims: 2}, embed.Options{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.Embed(ctx, []string{"x"}, embed.ModeDocument)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestServiceEmbedQuery(t *testing.T) {
	model := &fakeModel{dims: 2}
	svc := embed.NewService(model, embed.Options{})

	vec, err := svc.EmbedQuery(context.Background(), "what is this")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
	require.Len(t, model.modes, 1)
	assert.Equal(t, embed.ModeQuery, model.modes[0])
}
