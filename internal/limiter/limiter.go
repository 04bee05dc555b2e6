// Package limiter defines interfaces and implementations for attempt limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls attempts on a guarded action (such as OTP confirmation) and temporary lockouts.
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, subject string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
}
