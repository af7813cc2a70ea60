// Package heartbeat reports activity at a fixed interval while a session is
// open.
package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// Func sends one heartbeat. Errors are logged and never stop the loop.
type Func func(ctx context.Context) error

// Run calls fn once immediately and then every interval until ctx is done.
// Calls never overlap: a slow fn delays the next tick instead of piling up.
func Run(ctx context.Context, interval time.Duration, fn Func, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	beat := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("heartbeat failed", slog.String("error", err.Error()))
		}
	}

	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// Start runs the loop in a goroutine. The returned stop function cancels it
// and waits for it to exit.
func Start(ctx context.Context, interval time.Duration, fn Func, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, interval, fn, logger)
	}()
	return func() {
		cancel()
		<-done
	}
}
