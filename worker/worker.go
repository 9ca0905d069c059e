package worker

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaibhavpandeyvpz/qatar/job"
	"github.com/vaibhavpandeyvpz/qatar/middleware"
	"github.com/vaibhavpandeyvpz/qatar/queue"
)

const (
	defaultSleepInterval = 3 * time.Second
	defaultMemoryLimitMB = 128
)

// Worker polls a queue and executes jobs one at a time. The loop is
// single-threaded and synchronous: one record is fully processed,
// including its ack or nack, before the next poll. Run multiple Worker
// instances for parallelism; claim atomicity is the backend's job.
type Worker struct {
	queue    queue.Queue
	registry *job.Registry

	sleepInterval time.Duration
	maxJobs       int
	maxTime       time.Duration
	memoryLimitMB uint64
	stopWhenEmpty bool
	limiter       *rate.Limiter
	mws           []middleware.Middleware
	logger        *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Worker. Options are applied once at
// construction; the worker is never reconfigured while running.
type Option func(*Worker)

// WithSleepInterval sets how long an idle poll waits for a record
// before the loop comes back around. Default 3s.
func WithSleepInterval(d time.Duration) Option {
	return func(w *Worker) { w.sleepInterval = d }
}

// WithMaxJobs stops the loop after n jobs have been processed.
// Zero means unlimited.
func WithMaxJobs(n int) Option {
	return func(w *Worker) { w.maxJobs = n }
}

// WithMaxTime stops the loop once it has been running for d.
// Zero means unlimited.
func WithMaxTime(d time.Duration) Option {
	return func(w *Worker) { w.maxTime = d }
}

// WithMemoryLimit stops the loop once heap allocation exceeds mb
// megabytes. Default 128.
func WithMemoryLimit(mb uint64) Option {
	return func(w *Worker) { w.memoryLimitMB = mb }
}

// WithStopWhenEmpty stops the loop on the first empty poll instead of
// sleeping and polling again.
func WithStopWhenEmpty() Option {
	return func(w *Worker) { w.stopWhenEmpty = true }
}

// WithRateLimit throttles the poll loop to perSec polls per second
// with the given burst.
func WithRateLimit(perSec float64, burst int) Option {
	return func(w *Worker) { w.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithMiddleware appends middleware to the execution chain. The
// worker always installs Recover first, so panicking handlers are
// routed through the normal retry path.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mws = append(w.mws, mws...) }
}

// WithLogger sets the logger for the worker.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// New creates a Worker consuming q with handlers resolved from r.
func New(q queue.Queue, r *job.Registry, opts ...Option) *Worker {
	w := &Worker{
		queue:         q,
		registry:      r,
		sleepInterval: defaultSleepInterval,
		memoryLimitMB: defaultMemoryLimitMB,
		logger:        slog.Default(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stop asks the loop to exit. The in-flight job, if any, finishes
// normally; the flag is only checked between iterations. Safe to call
// from a signal handler goroutine, and safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Run executes the control loop until a configured limit trips, Stop
// is called, the context is cancelled, or the backend fails a poll.
// Job-level failures never escape: they are resolved into ack/nack
// calls per the retry contract. Only backend I/O errors from Pop are
// returned.
func (w *Worker) Run(ctx context.Context) error {
	start := time.Now()
	processed := 0

	w.logger.Info("worker started",
		slog.Duration("sleep_interval", w.sleepInterval),
		slog.Int("max_jobs", w.maxJobs),
		slog.Duration("max_time", w.maxTime),
		slog.Uint64("memory_limit_mb", w.memoryLimitMB),
		slog.Bool("stop_when_empty", w.stopWhenEmpty),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", slog.String("reason", "context cancelled"))
			return ctx.Err()
		case <-w.stopCh:
			w.logger.Info("worker stopping", slog.String("reason", "stop requested"))
			return nil
		default:
		}

		if w.maxJobs > 0 && processed >= w.maxJobs {
			w.logger.Info("worker stopping", slog.String("reason", "max jobs reached"), slog.Int("processed", processed))
			return nil
		}
		if w.maxTime > 0 && time.Since(start) >= w.maxTime {
			w.logger.Info("worker stopping", slog.String("reason", "max time reached"), slog.Duration("elapsed", time.Since(start)))
			return nil
		}
		if w.memoryExceeded() {
			w.logger.Info("worker stopping", slog.String("reason", "memory limit reached"), slog.Uint64("limit_mb", w.memoryLimitMB))
			return nil
		}

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		j, err := w.queue.Pop(ctx, w.sleepInterval)
		if err != nil {
			return err
		}
		if j == nil {
			if w.stopWhenEmpty {
				w.logger.Info("worker stopping", slog.String("reason", "queue empty"))
				return nil
			}
			continue
		}

		w.process(ctx, j)
		processed++
	}
}

// process runs one record through resolution, the middleware chain,
// and the handler, then settles it with ack or the failure path.
func (w *Worker) process(ctx context.Context, j *job.Job) {
	h, err := w.registry.Resolve(j.Handler)
	if err == nil {
		chain := middleware.Chain(append([]middleware.Middleware{middleware.Recover(w.logger)}, w.mws...)...)
		err = chain(ctx, j, func(ctx context.Context) error {
			return h.Handle(ctx, j.Payload)
		})
		if err == nil {
			if !w.queue.Ack(ctx, j.ID) {
				w.logger.Warn("ack refused after success",
					slog.String("handler", j.Handler),
					slog.String("job_id", j.ID.String()),
				)
			}
			return
		}
	}
	w.fail(ctx, j, err)
}

// fail applies the retry contract. Attempts counts this delivery, so
// a handler with N retries is delivered N+1 times before its failed
// hook runs. If any step of this path itself blows up, the record is
// acknowledged unconditionally so a poisoned job cannot wedge the
// queue.
func (w *Worker) fail(ctx context.Context, j *job.Job, cause error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("failure path panicked, forcing ack",
				slog.String("handler", j.Handler),
				slog.String("job_id", j.ID.String()),
				slog.Any("panic", r),
			)
			w.queue.Ack(ctx, j.ID)
		}
	}()

	h, err := w.registry.Resolve(j.Handler)
	if err != nil {
		// No handler means no retry policy and no failed hook.
		w.logger.Error("handler unresolvable, discarding job",
			slog.String("handler", j.Handler),
			slog.String("job_id", j.ID.String()),
			slog.String("error", cause.Error()),
		)
		w.queue.Ack(ctx, j.ID)
		return
	}

	if j.Attempts <= h.Retries() {
		delay := retryDelay(h, j.Attempts)
		w.logger.Warn("job failed, retrying",
			slog.String("handler", j.Handler),
			slog.String("job_id", j.ID.String()),
			slog.Int("attempts", j.Attempts),
			slog.Duration("delay", delay),
			slog.String("error", cause.Error()),
		)
		if !w.queue.Nack(ctx, j.ID, delay) {
			w.logger.Warn("nack refused",
				slog.String("handler", j.Handler),
				slog.String("job_id", j.ID.String()),
			)
		}
		return
	}

	w.logger.Error("job failed permanently",
		slog.String("handler", j.Handler),
		slog.String("job_id", j.ID.String()),
		slog.Int("attempts", j.Attempts),
		slog.String("error", cause.Error()),
	)
	w.queue.Ack(ctx, j.ID)
	h.Failed(ctx, cause, j.Payload)
}

// retryDelay asks the handler's backoff strategy for a delay keyed by
// the delivery attempt, falling back to the flat RetryDelay.
func retryDelay(h job.Handler, attempt int) time.Duration {
	if bp, ok := h.(job.BackoffProvider); ok {
		if s := bp.RetryBackoff(); s != nil {
			return s.Delay(attempt)
		}
	}
	return h.RetryDelay()
}

// memoryExceeded reports whether heap allocation has crossed the
// configured ceiling. Checked between iterations only; a single large
// job can overshoot before the next check fires.
func (w *Worker) memoryExceeded() bool {
	if w.memoryLimitMB == 0 {
		return false
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc >= w.memoryLimitMB*1024*1024
}
