package tickers

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

// CronTicker calls the observer on a cron schedule instead of a fixed
// interval. Standard five field expressions and descriptors such as
// "@hourly" or "@every 10m" are accepted.
type CronTicker struct {
	expr     string
	schedule cron.Schedule
	observer observer
	timeout  time.Duration
	chClose  chan struct{}
	running  atomic.Bool
	log      *log.Logger
}

// NewCronTicker validates expr and returns a ticker. timeout bounds each
// observer call.
func NewCronTicker(expr string, timeout time.Duration, observer observer, logger *log.Logger) (*CronTicker, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &CronTicker{
		expr:     expr,
		schedule: schedule,
		observer: observer,
		timeout:  timeout,
		chClose:  make(chan struct{}, 1),
		log:      telemetry.WrapLogger(logger, "cron-ticker"),
	}, nil
}

// Next returns the next activation after tm.
func (t *CronTicker) Next(tm time.Time) time.Time {
	return t.schedule.Next(tm)
}

// Start blocks until Close is called or the parent context is cancelled.
func (t *CronTicker) Start(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("already running")
	}
	defer t.running.Store(false)

	c := cron.New()
	c.Schedule(t.schedule, cron.FuncJob(func() {
		t.process(ctx, time.Now())
	}))

	c.Start()
	t.log.Printf("scheduled with %q; next run at %s", t.expr, t.schedule.Next(time.Now()).Format(time.RFC3339))

	select {
	case <-t.chClose:
	case <-ctx.Done():
	}

	// wait for a running job to finish
	<-c.Stop().Done()

	return nil
}

func (t *CronTicker) process(ctx context.Context, tm time.Time) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if err := t.observer.Process(ctx, NewTick(tm)); err != nil {
		t.log.Printf("error processing observer: %s", err.Error())
	}
}

func (t *CronTicker) Close() error {
	if !t.running.Load() {
		return fmt.Errorf("not running")
	}

	t.chClose <- struct{}{}

	return nil
}
