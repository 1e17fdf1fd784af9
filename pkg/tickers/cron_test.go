package tickers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCronTicker(t *testing.T) {
	t.Run("rejects invalid expressions", func(t *testing.T) {
		_, err := NewCronTicker("every other tuesday", 0, &mockObserver{}, nil)
		assert.Error(t, err)
	})

	t.Run("computes the next activation", func(t *testing.T) {
		ticker, err := NewCronTicker("0 9 * * 1", 0, &mockObserver{}, nil)
		require.NoError(t, err)

		// 2024-05-01 is a Wednesday
		from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
		assert.Equal(t, time.Date(2024, 5, 6, 9, 0, 0, 0, time.Local), ticker.Next(from))
	})

	t.Run("calls the observer on schedule", func(t *testing.T) {
		ticks := make(chan Tick, 4)

		observr := &mockObserver{
			processFn: func(ctx context.Context, tick Tick) error {
				_, ok := ctx.Deadline()
				assert.True(t, ok)

				select {
				case ticks <- tick:
				default:
				}

				return nil
			},
		}

		ticker, err := NewCronTicker("@every 1s", 500*time.Millisecond, observr, nil)
		require.NoError(t, err)

		go func() {
			_ = ticker.Start(context.Background())
		}()

		select {
		case tick := <-ticks:
			assert.WithinDuration(t, time.Now(), tick.Time(), 2*time.Second)
		case <-time.After(3 * time.Second):
			t.Fatal("observer was not called")
		}

		assert.NoError(t, ticker.Close())
	})
}
