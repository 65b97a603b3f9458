package services

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// base holds what every engine shares: logger, clock and random source.
type base struct {
	logger *zap.Logger
	now    func() time.Time
	intn   func(int) int
}

func newBase(logger *zap.Logger, opts []Option) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := base{logger: logger, now: time.Now, intn: rand.Intn}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Option customises an engine, mostly for tests.
type Option func(*base)

// Clock returns the time source opts select, for callers outside this package.
func Clock(opts ...Option) func() time.Time {
	return newBase(nil, opts).now
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithRand draws trigger times from r. r must not be shared across goroutines.
func WithRand(r *rand.Rand) Option {
	return func(b *base) { b.intn = r.Intn }
}
