package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartcontractkit/automation-prize-payout/pkg/prommetrics"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

var (
	ErrServiceAlreadyStarted = fmt.Errorf("recoverable service already started")
	ErrServiceNotRunning     = fmt.Errorf("recoverable service not running")
)

const (
	PanicRestartWait = 10 * time.Second
)

// Recoverable is a service that a Recoverer can manage
type Recoverable interface {
	// Start is expected to block and only return on completion, with an
	// error if something bad happened or with nil
	Start(context.Context) error
	// Close stops the execution of the blocking Start function and causes an
	// immediate return
	Close() error
}

// Recoverer runs a Recoverable in the background and restarts it after a
// cool down when it panics. A normal return from Start ends the Recoverer.
type Recoverer struct {
	// dependencies
	service  Recoverable
	log      *log.Logger
	coolDown time.Duration

	// internal state
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewRecoverer creates a new configured recoverer. A non-positive coolDown
// uses PanicRestartWait.
func NewRecoverer(svc Recoverable, coolDown time.Duration, logger *log.Logger) *Recoverer {
	if coolDown <= 0 {
		coolDown = PanicRestartWait
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Recoverer{
		service:  svc,
		log:      telemetry.WrapLogger(logger, "recoverer"),
		coolDown: coolDown,
	}
}

// Start runs the service in a background routine and returns immediately.
func (r *Recoverer) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.run(ctx, done)

	return nil
}

// Close stops the service and waits for the background routine to exit.
func (r *Recoverer) Close() error {
	if !r.running.Load() {
		return ErrServiceNotRunning
	}

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	err := r.service.Close()

	cancel()
	<-done

	return err
}

// Running reports whether the background routine is active.
func (r *Recoverer) Running() bool {
	return r.running.Load()
}

func (r *Recoverer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer r.running.Store(false)

	for {
		if !r.runOnce(ctx) {
			return
		}

		prommetrics.ServiceRestarts.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.coolDown):
			r.log.Println("restarting service after panic")
		}
	}
}

// runOnce reports whether the service panicked.
func (r *Recoverer) runOnce(ctx context.Context) (panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			r.log.Println(err)
			r.log.Println(string(debug.Stack()))

			panicked = true
		}
	}()

	if err := r.service.Start(ctx); err != nil {
		r.log.Printf("service stopped with error: %s", err)
	}

	return false
}
