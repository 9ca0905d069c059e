package job

import (
	"time"

	"github.com/vaibhavpandeyvpz/qatar/backoff"
)

// Options configures per-definition retry behavior.
type Options struct {
	// Retries is the number of redeliveries allowed after the first
	// failed attempt.
	Retries int

	// RetryDelay is the flat delay before a failed record is
	// redelivered. Ignored when Backoff is set.
	RetryDelay time.Duration

	// Backoff, when non-nil, computes the redelivery delay from the
	// delivery attempt number.
	Backoff backoff.Strategy
}

// DefaultOptions returns the handler-contract defaults: 3 retries with
// a flat 60 second delay.
func DefaultOptions() Options {
	return Options{
		Retries:    3,
		RetryDelay: 60 * time.Second,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithRetries sets the number of redeliveries allowed after the first
// failed attempt.
func WithRetries(n int) Option {
	return func(o *Options) {
		o.Retries = n
	}
}

// WithRetryDelay sets the flat delay before redelivery.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}

// WithBackoff sets a backoff strategy, replacing the flat delay.
func WithBackoff(s backoff.Strategy) Option {
	return func(o *Options) {
		o.Backoff = s
	}
}
