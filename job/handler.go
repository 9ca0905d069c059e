package job

import (
	"context"
	"time"

	"github.com/vaibhavpandeyvpz/qatar/backoff"
)

// Handler is the polymorphic unit the worker invokes. Implementations
// carry the business logic; the queue and worker never look inside the
// payload.
type Handler interface {
	// Handle executes the job. A nil return acknowledges the record;
	// an error routes it through the retry/failure path.
	Handle(ctx context.Context, payload map[string]any) error

	// Failed is invoked once, after the final delivery attempt, with
	// the error that exhausted the retry budget. The record is already
	// acknowledged when Failed runs.
	Failed(ctx context.Context, err error, payload map[string]any)

	// Retries returns the number of redeliveries allowed after the
	// first failed attempt.
	Retries() int

	// RetryDelay returns how long a failed record stays in the delayed
	// region before redelivery.
	RetryDelay() time.Duration
}

// BackoffProvider is an optional extension of Handler. When a handler
// implements it, the worker computes the redelivery delay from the
// strategy and the delivery attempt number instead of the flat
// RetryDelay.
type BackoffProvider interface {
	RetryBackoff() backoff.Strategy
}
