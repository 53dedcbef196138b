package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forecastlab/settle-engine/internal/metrics"
)

// Ticker is one named keeper loop. RunTick does a single unit of work;
// the scheduler owns the cadence.
type Ticker interface {
	Name() string
	RunTick(ctx context.Context) error
}

// Loop runs one Ticker on a fixed interval. Tick errors are logged and
// counted, never fatal: a keeper that dies on a transient engine error
// leaves markets unresolved. After maxBackoff consecutive failures the
// loop stretches its interval until a tick succeeds again.
type Loop struct {
	ticker   Ticker
	interval time.Duration
}

// NewLoop wraps a Ticker with its polling interval.
func NewLoop(ticker Ticker, interval time.Duration) *Loop {
	return &Loop{ticker: ticker, interval: interval}
}

const maxBackoffFactor = 8

// Run ticks until ctx is cancelled. The first tick fires immediately.
func (l *Loop) Run(ctx context.Context) error {
	name := l.ticker.Name()
	slog.Info("keeper loop starting", "keeper", name, "interval", l.interval)

	failures := 0
	tick := func() {
		if err := l.ticker.RunTick(ctx); err != nil {
			failures++
			metrics.KeeperTickErrors.WithLabelValues(name).Inc()
			slog.Error("keeper tick failed", "keeper", name, "consecutive", failures, "err", err)
			return
		}
		failures = 0
	}

	tick()
	timer := time.NewTimer(l.nextInterval(failures))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper loop stopped", "keeper", name)
			return ctx.Err()
		case <-timer.C:
			tick()
			timer.Reset(l.nextInterval(failures))
		}
	}
}

// nextInterval doubles per consecutive failure, capped at 8x.
func (l *Loop) nextInterval(failures int) time.Duration {
	factor := 1
	for i := 0; i < failures && factor < maxBackoffFactor; i++ {
		factor *= 2
	}
	return l.interval * time.Duration(factor)
}

// Runner drives a set of keeper loops as one unit.
type Runner struct {
	loops []*Loop
}

// NewRunner collects loops for concurrent execution.
func NewRunner(loops ...*Loop) *Runner {
	return &Runner{loops: loops}
}

// Run starts every loop in its own goroutine and blocks until ctx is
// cancelled. Loops only return on cancellation, so the first return
// ends the group cleanly.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range r.loops {
		l := l
		g.Go(func() error {
			err := l.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("keeper %s: %w", l.ticker.Name(), err)
		})
	}
	return g.Wait()
}
