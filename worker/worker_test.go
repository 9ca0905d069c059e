package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vaibhavpandeyvpz/qatar/backoff"
	"github.com/vaibhavpandeyvpz/qatar/job"
	"github.com/vaibhavpandeyvpz/qatar/middleware"
	"github.com/vaibhavpandeyvpz/qatar/queue/memory"
	"github.com/vaibhavpandeyvpz/qatar/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubHandler fails for the first failUntil deliveries, then
// succeeds. The worker loop is single-threaded, so plain counters are
// fine.
type stubHandler struct {
	failUntil   int
	retries     int
	delay       time.Duration
	strategy    backoff.Strategy
	panics      bool
	failedPanic bool

	handleCalls int
	failedCalls int
	failedErr   error
}

func (h *stubHandler) Handle(_ context.Context, _ map[string]any) error {
	h.handleCalls++
	if h.handleCalls <= h.failUntil {
		if h.panics {
			panic("handler exploded")
		}
		return errors.New("transient failure")
	}
	return nil
}

func (h *stubHandler) Failed(_ context.Context, err error, _ map[string]any) {
	h.failedCalls++
	h.failedErr = err
	if h.failedPanic {
		panic("failed hook exploded")
	}
}

func (h *stubHandler) Retries() int                   { return h.retries }
func (h *stubHandler) RetryDelay() time.Duration      { return h.delay }
func (h *stubHandler) RetryBackoff() backoff.Strategy { return h.strategy }

func newWorker(t *testing.T, q *memory.Queue, h *stubHandler, opts ...worker.Option) *worker.Worker {
	t.Helper()
	r := job.NewRegistry()
	r.Register("stub", func() job.Handler { return h })
	opts = append([]worker.Option{
		worker.WithSleepInterval(0),
		worker.WithStopWhenEmpty(),
		worker.WithLogger(discardLogger()),
	}, opts...)
	return worker.New(q, r, opts...)
}

func TestRun_RetryExhaustion(t *testing.T) {
	q := memory.New()
	h := &stubHandler{failUntil: 100, retries: 3}

	if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if err := newWorker(t, q, h).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if h.handleCalls != 4 {
		t.Errorf("handle calls = %d, want 4 (1 initial + 3 retries)", h.handleCalls)
	}
	if h.failedCalls != 1 {
		t.Errorf("failed calls = %d, want 1", h.failedCalls)
	}
	if h.failedErr == nil {
		t.Error("failed hook should receive the terminal error")
	}
	if got := q.Size(context.Background()); got != 0 {
		t.Errorf("size = %d, want 0 after forced ack", got)
	}
}

func TestRun_SuccessAfterRetry(t *testing.T) {
	q := memory.New()
	h := &stubHandler{failUntil: 1, retries: 3}

	if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if err := newWorker(t, q, h).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if h.handleCalls != 2 {
		t.Errorf("handle calls = %d, want 2", h.handleCalls)
	}
	if h.failedCalls != 0 {
		t.Errorf("failed calls = %d, want 0", h.failedCalls)
	}
	if got := q.Size(context.Background()); got != 0 {
		t.Errorf("size = %d, want 0", got)
	}
}

func TestRun_StopWhenEmpty(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	done := make(chan error, 1)
	go func() { done <- newWorker(t, q, h).Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on empty queue")
	}
	if h.handleCalls != 0 {
		t.Errorf("handle calls = %d, want 0", h.handleCalls)
	}
}

func TestRun_MaxJobs(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	for range 3 {
		if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	w := newWorker(t, q, h, worker.WithMaxJobs(2))
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if h.handleCalls != 2 {
		t.Errorf("handle calls = %d, want 2", h.handleCalls)
	}
	if got := q.Size(context.Background()); got != 1 {
		t.Errorf("size = %d, want 1 left over", got)
	}
}

func TestRun_MaxTime(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	r := job.NewRegistry()
	r.Register("stub", func() job.Handler { return h })
	w := worker.New(q, r,
		worker.WithSleepInterval(10*time.Millisecond),
		worker.WithMaxTime(50*time.Millisecond),
		worker.WithLogger(discardLogger()),
	)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop at max time")
	}
}

func TestRun_Stop(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	r := job.NewRegistry()
	r.Register("stub", func() job.Handler { return h })
	w := worker.New(q, r,
		worker.WithSleepInterval(10*time.Millisecond),
		worker.WithLogger(discardLogger()),
	)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not honor Stop")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	r := job.NewRegistry()
	r.Register("stub", func() job.Handler { return h })
	w := worker.New(q, r,
		worker.WithSleepInterval(10*time.Millisecond),
		worker.WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not honor cancellation")
	}
}

func TestRun_PanickingHandlerRetries(t *testing.T) {
	q := memory.New()
	h := &stubHandler{failUntil: 100, retries: 2, panics: true}

	if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if err := newWorker(t, q, h).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if h.handleCalls != 3 {
		t.Errorf("handle calls = %d, want 3 (1 initial + 2 retries)", h.handleCalls)
	}
	if h.failedCalls != 1 {
		t.Errorf("failed calls = %d, want 1", h.failedCalls)
	}
	if got := q.Size(context.Background()); got != 0 {
		t.Errorf("size = %d, want 0", got)
	}
}

func TestRun_UnknownHandlerDiscards(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	if _, err := q.Push(context.Background(), "nobody-home", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if err := newWorker(t, q, h).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := q.Size(context.Background()); got != 0 {
		t.Errorf("size = %d, want 0: unresolvable job must be discarded", got)
	}
	if h.handleCalls != 0 {
		t.Errorf("handle calls = %d, want 0", h.handleCalls)
	}
}

func TestRun_FailedHookPanicForcesAck(t *testing.T) {
	q := memory.New()
	h := &stubHandler{failUntil: 100, retries: 0, failedPanic: true}

	if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if err := newWorker(t, q, h).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if h.handleCalls != 1 {
		t.Errorf("handle calls = %d, want 1", h.handleCalls)
	}
	if got := q.Size(context.Background()); got != 0 {
		t.Errorf("size = %d, want 0: record must not be redelivered", got)
	}
}

func TestRun_BackoffStrategyDelaysRetry(t *testing.T) {
	q := memory.New()
	h := &stubHandler{failUntil: 100, retries: 3, strategy: backoff.NewFixed(time.Hour)}

	if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	// The retry lands an hour out, so the first empty poll stops the
	// loop after a single delivery.
	if err := newWorker(t, q, h).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if h.handleCalls != 1 {
		t.Errorf("handle calls = %d, want 1", h.handleCalls)
	}
	if h.failedCalls != 0 {
		t.Errorf("failed calls = %d, want 0", h.failedCalls)
	}
	if got := q.Size(context.Background()); got != 1 {
		t.Errorf("size = %d, want 1: record should be parked in the delayed region", got)
	}
}

func TestRun_MiddlewareWrapsExecution(t *testing.T) {
	q := memory.New()
	h := &stubHandler{}

	var seen []string
	mw := func(ctx context.Context, j *job.Job, next middleware.Handler) error {
		seen = append(seen, j.Handler)
		return next(ctx)
	}

	if _, err := q.Push(context.Background(), "stub", nil, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	w := newWorker(t, q, h, worker.WithMiddleware(mw))
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(seen) != 1 || seen[0] != "stub" {
		t.Errorf("middleware saw %v, want one call for stub", seen)
	}
}
