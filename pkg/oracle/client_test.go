package oracle

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFeed struct {
	latestRoundDataFn func(context.Context) (RoundData, error)
}

func (f *mockFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	return f.latestRoundDataFn(ctx)
}

func (f *mockFeed) Source() string {
	return "mock"
}

func TestClient_CurrentPrice(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	answerFeed := func(answer *big.Int, decimals uint8, updatedAt time.Time) *mockFeed {
		return &mockFeed{
			latestRoundDataFn: func(context.Context) (RoundData, error) {
				return RoundData{
					RoundID:   big.NewInt(7),
					Answer:    answer,
					Decimals:  decimals,
					UpdatedAt: updatedAt,
				}, nil
			},
		}
	}

	t.Run("returns the answer scaled to usd decimals", func(t *testing.T) {
		client := NewClient(answerFeed(big.NewInt(183412000000), 8, now), ClientConfig{Now: clock}, nil)

		quote, err := client.CurrentPrice(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "183412000000", quote.Price.String())
		assert.Equal(t, USDDecimals, quote.Decimals)
		assert.Equal(t, "7", quote.RoundID.String())
		assert.Equal(t, now, quote.UpdatedAt)
		assert.Equal(t, "mock", quote.Source)
	})

	t.Run("rescales other feed precisions", func(t *testing.T) {
		answer, _ := new(big.Int).SetString("1834120000000000000000", 10)
		client := NewClient(answerFeed(answer, 18, now), ClientConfig{Now: clock}, nil)

		quote, err := client.CurrentPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "183412000000", quote.Price.String())
	})

	t.Run("non-positive answers are invalid", func(t *testing.T) {
		for _, answer := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
			client := NewClient(answerFeed(answer, 8, now), ClientConfig{Now: clock}, nil)

			_, err := client.CurrentPrice(context.Background())
			assert.ErrorIs(t, err, ErrInvalidQuote)
		}
	})

	t.Run("answers that round to zero are invalid", func(t *testing.T) {
		client := NewClient(answerFeed(big.NewInt(5), 18, now), ClientConfig{Now: clock}, nil)

		_, err := client.CurrentPrice(context.Background())
		assert.ErrorIs(t, err, ErrInvalidQuote)
	})

	t.Run("stale answers are rejected", func(t *testing.T) {
		client := NewClient(answerFeed(big.NewInt(100), 8, now.Add(-2*time.Hour)), ClientConfig{
			MaxAge: time.Hour,
			Now:    clock,
		}, nil)

		_, err := client.CurrentPrice(context.Background())
		assert.ErrorIs(t, err, ErrStaleQuote)
	})

	t.Run("zero max age disables the staleness check", func(t *testing.T) {
		client := NewClient(answerFeed(big.NewInt(100), 8, now.Add(-200*time.Hour)), ClientConfig{Now: clock}, nil)

		_, err := client.CurrentPrice(context.Background())
		assert.NoError(t, err)
	})

	t.Run("read failures are reported as unavailable", func(t *testing.T) {
		client := NewClient(&mockFeed{
			latestRoundDataFn: func(context.Context) (RoundData, error) {
				return RoundData{}, fmt.Errorf("connection refused")
			},
		}, ClientConfig{Now: clock}, nil)

		_, err := client.CurrentPrice(context.Background())
		assert.ErrorIs(t, err, ErrFeedUnavailable)
	})

	t.Run("feed decode errors stay invalid", func(t *testing.T) {
		client := NewClient(&mockFeed{
			latestRoundDataFn: func(context.Context) (RoundData, error) {
				return RoundData{}, fmt.Errorf("%w: garbage", ErrInvalidQuote)
			},
		}, ClientConfig{Now: clock}, nil)

		_, err := client.CurrentPrice(context.Background())
		assert.ErrorIs(t, err, ErrInvalidQuote)
	})

	t.Run("each read is bounded by the timeout", func(t *testing.T) {
		client := NewClient(&mockFeed{
			latestRoundDataFn: func(ctx context.Context) (RoundData, error) {
				<-ctx.Done()
				return RoundData{}, ctx.Err()
			},
		}, ClientConfig{Timeout: 20 * time.Millisecond, Now: clock}, nil)

		start := time.Now()

		_, err := client.CurrentPrice(context.Background())
		assert.ErrorIs(t, err, ErrFeedUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestRescale(t *testing.T) {
	assert.Equal(t, "12300", Rescale(big.NewInt(123), 2, 4).String())
	assert.Equal(t, "1", Rescale(big.NewInt(199), 4, 2).String())
	assert.Equal(t, "42", Rescale(big.NewInt(42), 8, 8).String())

	v := big.NewInt(5)
	_ = Rescale(v, 0, 3)
	assert.Equal(t, "5", v.String(), "input is not modified")
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed(big.NewInt(5000000000), USDDecimals)

	first, err := feed.LatestRoundData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5000000000", first.Answer.String())
	assert.Equal(t, "1", first.RoundID.String())

	feed.Set(big.NewInt(6000000000))

	second, err := feed.LatestRoundData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "6000000000", second.Answer.String())
	assert.Equal(t, "2", second.RoundID.String())
	assert.Equal(t, "static", feed.Source())
}
