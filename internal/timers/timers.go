// Package timers implements C9: the heartbeat/sync tickers and the
// process-wide shutdown broadcast every long-lived loop selects on.
package timers

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/broker"
	"github.com/fyuneru/boxnet/logger"
)

// Fanout owns the process-wide shutdown signal: it listens for SIGINT and
// SIGTERM and cancels its context exactly once. Every long-lived loop in
// the program is expected to select on ctx.Done() and return within its
// current iteration.
type Fanout struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger
}

// NewFanout derives a cancellable context from parent and arms a signal
// handler that cancels it on SIGINT/SIGTERM.
func NewFanout(parent context.Context, log *zap.SugaredLogger) *Fanout {
	ctx, cancel := context.WithCancel(parent)
	f := &Fanout{ctx: ctx, cancel: cancel, log: log.With(logger.FieldComponent, "signal-fanout")}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			f.log.Infow("received shutdown signal", "signal", sig.String())
			f.cancel()
		case <-ctx.Done():
		}
	}()

	return f
}

// Context returns the shutdown-aware context every loop should select on.
func (f *Fanout) Context() context.Context {
	return f.ctx
}

// Shutdown cancels the fanout context directly, for programmatic shutdown
// (e.g. tests, or a "reboot" command handler that wants a clean exit
// before invoking the host shutdown command).
func (f *Fanout) Shutdown() {
	f.cancel()
}

// runTicker pushes a TaskItem of kind onto tasks every interval, until ctx
// is cancelled.
func runTicker(ctx context.Context, interval time.Duration, tasks chan<- broker.TaskItem, kind broker.TaskKind) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case tasks <- broker.TaskItem{Kind: kind}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// RunHeartbeat pushes a heartbeat tick onto tasks every interval, until
// ctx is cancelled.
func RunHeartbeat(ctx context.Context, interval time.Duration, tasks chan<- broker.TaskItem) {
	runTicker(ctx, interval, tasks, broker.TaskHeartbeat)
}

// RunSyncTicker pushes a full-sync tick onto tasks every interval, until
// ctx is cancelled.
func RunSyncTicker(ctx context.Context, interval time.Duration, tasks chan<- broker.TaskItem) {
	runTicker(ctx, interval, tasks, broker.TaskSync)
}
