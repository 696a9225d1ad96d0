package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hearth/pkg/adapter"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return nil, errors.New("not implemented")
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("second call is served from cache", func(t *testing.T) {
		mock := &mockEmbedder{
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				return []float32{0.1, 0.2, 0.3}, nil
			},
		}
		cached, err := adapter.NewCachedEmbedder(mock, 1<<20)
		gt.NoError(t, err)
		defer cached.Close()

		v1, err := cached.Embed(ctx, "panic attacks")
		gt.NoError(t, err)
		cached.Wait()

		v2, err := cached.Embed(ctx, "panic attacks")
		gt.NoError(t, err)

		gt.A(t, v2).Length(3)
		gt.Equal(t, v1, v2)
		gt.V(t, mock.calls).Equal(1)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		mock := &mockEmbedder{
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				return nil, errors.New("quota exceeded")
			},
		}
		cached, err := adapter.NewCachedEmbedder(mock, 1<<20)
		gt.NoError(t, err)
		defer cached.Close()

		_, err = cached.Embed(ctx, "hello")
		gt.Error(t, err)
		cached.Wait()
		_, err = cached.Embed(ctx, "hello")
		gt.Error(t, err)
		gt.V(t, mock.calls).Equal(2)
	})

	t.Run("invalid size", func(t *testing.T) {
		_, err := adapter.NewCachedEmbedder(&mockEmbedder{}, 0)
		gt.Error(t, err)
	})
}
