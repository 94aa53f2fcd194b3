// Package limiter defines rate limiting for unauthenticated social writes.
package limiter

import "context"

// Limiter controls how often one client may perform an action.
type Limiter interface {
	// Allow reports whether the action identified by (action, key) is
	// currently permitted, and consumes one unit of budget if so.
	Allow(ctx context.Context, action, key string) (bool, error)
}
