package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Group tracks fire-and-forget work so it can be awaited on shutdown and in
// tests. Failures and panics are logged, never propagated.
type Group struct {
	wg sync.WaitGroup
}

func NewGroup() *Group {
	return &Group{}
}

// Go runs fn in the background. The task keeps running after parent is
// cancelled, bounded only by timeout.
func (g *Group) Go(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	g.wg.Add(1)

	ctx := context.WithoutCancel(parent)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := g.run(ctx, fn); err != nil {
			slog.Warn("Background task failed", "task", name, "error", err)
			return
		}
		slog.Debug("Background task completed", "task", name)
	}()
}

// Wait blocks until every task started so far has finished.
func (g *Group) Wait() {
	g.wg.Wait()
}

func (g *Group) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
