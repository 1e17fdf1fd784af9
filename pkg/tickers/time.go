package tickers

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

type observer interface {
	Process(context.Context, Tick) error
}

// Tick is the container for the individual tick
type Tick interface {
	// Time is the moment the tick fired
	Time() time.Time
}

type timeTick time.Time

func (t timeTick) Time() time.Time {
	return time.Time(t)
}

// NewTick wraps a time as a Tick.
func NewTick(tm time.Time) Tick {
	return timeTick(tm)
}

type TimeTicker struct {
	interval time.Duration
	ticker   *time.Ticker
	observer observer
	chClose  chan struct{}
	running  atomic.Bool
	log      *log.Logger
}

func NewTimeTicker(interval time.Duration, observer observer, logger *log.Logger) *TimeTicker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &TimeTicker{
		interval: interval,
		ticker:   time.NewTicker(interval),
		observer: observer,
		chClose:  make(chan struct{}, 1),
		log:      telemetry.WrapLogger(logger, "time-ticker"),
	}
}

// Start calls the observer on every tick with a context bounded by the
// configured interval. This function blocks until Close is called or the
// parent context is cancelled.
func (t *TimeTicker) Start(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("already running")
	}
	defer t.running.Store(false)

	t.ticker.Reset(t.interval)

	for {
		select {
		case tm := <-t.ticker.C:
			t.process(ctx, tm)
		case <-t.chClose:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *TimeTicker) process(ctx context.Context, tm time.Time) {
	ctx, cancel := context.WithTimeout(ctx, t.interval)
	defer cancel()

	if err := t.observer.Process(ctx, NewTick(tm)); err != nil {
		t.log.Printf("error processing observer: %s", err.Error())
	}
}

func (t *TimeTicker) Close() error {
	if !t.running.Load() {
		return fmt.Errorf("not running")
	}

	t.ticker.Stop()
	t.chClose <- struct{}{}

	return nil
}
