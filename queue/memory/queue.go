// Package memory implements the queue contract fully in memory.
// Safe for concurrent access. Intended for unit testing and
// development; records do not survive the process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vaibhavpandeyvpz/qatar/id"
	"github.com/vaibhavpandeyvpz/qatar/job"
	"github.com/vaibhavpandeyvpz/qatar/queue"
)

// Ensure Queue implements the contract at compile time.
var _ queue.Queue = (*Queue)(nil)

// pollPeriod is how often a blocking Pop rechecks for ready records.
const pollPeriod = 10 * time.Millisecond

// defaultVisibility is the claim deadline for in-flight records.
const defaultVisibility = 60 * time.Second

type delayedEntry struct {
	jobID       string
	availableAt time.Time
}

// Queue is an in-memory queue with the same region semantics as the
// Redis backend: a FIFO ready sequence, a delayed set ordered by
// availability, an in-flight claim map with visibility deadlines, and
// a per-id record map.
type Queue struct {
	mu         sync.Mutex
	records    map[string]*job.Job
	ready      []string             // FIFO of job ids
	delayed    []delayedEntry       // arrival order; scanned for due records
	processing map[string]time.Time // job id → visibility deadline

	visibility time.Duration
	now        func() time.Time
}

// Option configures the Queue.
type Option func(*Queue)

// WithVisibilityTimeout sets the claim deadline for in-flight records.
// Records not acknowledged within the window are swept back to ready
// on a later Pop.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithClock overrides the time source. Used in tests to step through
// delay and visibility windows without sleeping.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New returns a new empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		records:    make(map[string]*job.Job),
		processing: make(map[string]time.Time),
		visibility: defaultVisibility,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push stores a new record, parking it in the delayed region when a
// positive delay is given.
func (q *Queue) Push(_ context.Context, handler string, payload map[string]any, delay time.Duration) (id.JobID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	availableAt := now
	if delay > 0 {
		availableAt = now.Add(delay)
	}

	j := job.New(handler, payload, availableAt)
	key := j.ID.String()
	q.records[key] = j

	if delay > 0 {
		q.delayed = append(q.delayed, delayedEntry{jobID: key, availableAt: availableAt})
	} else {
		q.ready = append(q.ready, key)
	}
	return j.ID, nil
}

// Pop claims and returns the next ready record, blocking up to wait
// when none is ready yet.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*job.Job, error) {
	deadline := q.now().Add(wait)

	for {
		if j := q.tryPop(); j != nil {
			return j, nil
		}
		if wait <= 0 || !q.now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollPeriod):
		}
	}
}

// tryPop performs one migrate-then-claim pass.
func (q *Queue) tryPop() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	// Sweep expired claims back to ready.
	for key, deadline := range q.processing {
		if !deadline.After(now) {
			delete(q.processing, key)
			q.ready = append(q.ready, key)
		}
	}

	// Migrate due delayed records, preserving arrival order.
	remaining := q.delayed[:0]
	for _, entry := range q.delayed {
		if !entry.availableAt.After(now) {
			q.ready = append(q.ready, entry.jobID)
		} else {
			remaining = append(remaining, entry)
		}
	}
	q.delayed = remaining

	if len(q.ready) == 0 {
		return nil
	}

	key := q.ready[0]
	q.ready = q.ready[1:]

	rec, ok := q.records[key]
	if !ok {
		// Region referenced a purged record; skip it.
		return nil
	}

	rec.Attempts++
	q.processing[key] = now.Add(q.visibility)

	cp := *rec
	return &cp
}

// Ack removes a claimed record for good.
func (q *Queue) Ack(_ context.Context, jobID id.JobID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobID.String()
	if _, inflight := q.processing[key]; !inflight {
		return false
	}
	delete(q.processing, key)

	if _, ok := q.records[key]; !ok {
		return false
	}
	delete(q.records, key)
	return true
}

// Nack releases the claim and re-arms the record at now+delay.
func (q *Queue) Nack(_ context.Context, jobID id.JobID, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobID.String()
	if _, inflight := q.processing[key]; !inflight {
		return false
	}
	delete(q.processing, key)

	rec, ok := q.records[key]
	if !ok {
		return false
	}

	now := q.now()
	if delay > 0 {
		rec.AvailableAt = now.Add(delay)
		q.delayed = append(q.delayed, delayedEntry{jobID: key, availableAt: rec.AvailableAt})
	} else {
		rec.AvailableAt = now
		q.ready = append(q.ready, key)
	}
	return true
}

// Size counts ready plus delayed records, excluding in-flight ones.
func (q *Queue) Size(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.delayed)
}

// Purge removes every record in every state.
func (q *Queue) Purge(_ context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.records = make(map[string]*job.Job)
	q.ready = nil
	q.delayed = nil
	q.processing = make(map[string]time.Time)
}
