package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vaibhavpandeyvpz/qatar/backoff"
)

// Definition is a typed job definition. T is the payload type (must be
// JSON-serializable); the opaque payload map is decoded into T before
// the typed handler runs.
type Definition[T any] struct {
	// Name is the unique handler identifier for this job type.
	Name string

	// Handler is the function that processes the decoded payload.
	Handler func(ctx context.Context, payload T) error

	// Failed, when set, runs after the retry budget is exhausted.
	Failed func(ctx context.Context, err error, payload T)

	// Opts configures retries and redelivery delay.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// OnFailed sets the typed failure hook and returns the definition for
// chaining.
func (d *Definition[T]) OnFailed(fn func(ctx context.Context, err error, payload T)) *Definition[T] {
	d.Failed = fn
	return d
}

// RegisterDefinition registers a typed definition on the registry. The
// factory yields a fresh Handler adapter per resolution that decodes
// the payload map into T before calling the typed functions.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Name, func() Handler {
		return &definitionHandler[T]{def: def}
	})
}

// definitionHandler adapts a Definition[T] to the Handler contract.
type definitionHandler[T any] struct {
	def *Definition[T]
}

func (h *definitionHandler[T]) Handle(ctx context.Context, payload map[string]any) error {
	t, err := decodePayload[T](h.def.Name, payload)
	if err != nil {
		return err
	}
	return h.def.Handler(ctx, t)
}

func (h *definitionHandler[T]) Failed(ctx context.Context, cause error, payload map[string]any) {
	if h.def.Failed == nil {
		return
	}
	// Best-effort decode: the hook still fires with the zero value
	// when the payload no longer decodes.
	t, _ := decodePayload[T](h.def.Name, payload)
	h.def.Failed(ctx, cause, t)
}

func (h *definitionHandler[T]) Retries() int {
	return h.def.Opts.Retries
}

func (h *definitionHandler[T]) RetryDelay() time.Duration {
	return h.def.Opts.RetryDelay
}

// RetryBackoff satisfies BackoffProvider. A nil strategy means the
// worker falls back to RetryDelay.
func (h *definitionHandler[T]) RetryBackoff() backoff.Strategy {
	return h.def.Opts.Backoff
}

func decodePayload[T any](name string, payload map[string]any) (T, error) {
	var t T
	if len(payload) == 0 {
		return t, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return t, fmt.Errorf("job: encode payload for %q: %w", name, err)
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("job: decode payload for %q: %w", name, err)
	}
	return t, nil
}
