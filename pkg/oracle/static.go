package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// StaticFeed answers with a fixed price that can be changed at runtime.
// Each answer is reported as freshly updated.
type StaticFeed struct {
	mu       sync.Mutex
	answer   *big.Int
	decimals uint8
	round    int64
}

func NewStaticFeed(answer *big.Int, decimals uint8) *StaticFeed {
	return &StaticFeed{
		answer:   new(big.Int).Set(answer),
		decimals: decimals,
	}
}

func (f *StaticFeed) Set(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.answer = new(big.Int).Set(answer)
}

func (f *StaticFeed) Source() string {
	return "static"
}

func (f *StaticFeed) LatestRoundData(_ context.Context) (RoundData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.round++

	return RoundData{
		RoundID:   big.NewInt(f.round),
		Answer:    new(big.Int).Set(f.answer),
		Decimals:  f.decimals,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
