package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/codely-app/snippetd/internal/cache"
)

// Window is a fixed-window limiter backed by the ephemeral cache: at
// most max events per (action, key) within each window.
type Window struct {
	cache  cache.Cache
	window time.Duration
	max    int64
	now    func() time.Time
}

var _ Limiter = (*Window)(nil)

// NewWindow constructs a fixed-window limiter.
func NewWindow(c cache.Cache, window time.Duration, max int64) *Window {
	return &Window{cache: c, window: window, max: max, now: time.Now}
}

// NewWindowWithClock constructs a limiter with an injected clock for tests.
func NewWindowWithClock(c cache.Cache, window time.Duration, max int64, now func() time.Time) *Window {
	return &Window{cache: c, window: window, max: max, now: now}
}

// Allow increments the current window's counter and permits the action
// while the counter stays within max.
func (w *Window) Allow(ctx context.Context, action, key string) (bool, error) {
	bucket := w.now().Unix() / int64(w.window/time.Second)
	k := fmt.Sprintf("ratelimit:%s:%s:%d", action, key, bucket)
	n, err := w.cache.IncrBy(ctx, k, 1, w.window)
	if err != nil {
		return false, err
	}
	return n <= w.max, nil
}
