// Package redis implements the queue contract on Redis structured
// primitives: a List for the ready sequence, ZSets for the delayed and
// visibility-timeout regions, a Set for in-flight claims, and a Hash
// per record.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisqueue.New(client, "emails")
//	id, err := q.Push(ctx, "send_email", payload, 0)
//
// The caller owns the Redis client lifecycle.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vaibhavpandeyvpz/qatar/id"
	"github.com/vaibhavpandeyvpz/qatar/job"
	"github.com/vaibhavpandeyvpz/qatar/queue"
)

// Ensure Queue implements the contract at compile time.
var _ queue.Queue = (*Queue)(nil)

// defaultVisibility is the claim deadline for in-flight records.
const defaultVisibility = 60 * time.Second

// Queue is a Redis-backed job queue for a single queue name.
type Queue struct {
	client     goredis.Cmdable
	name       string
	visibility time.Duration
	logger     *slog.Logger
}

// Option configures the Queue.
type Option func(*Queue)

// WithVisibilityTimeout sets the claim deadline for in-flight records.
// Records not acknowledged within the window are swept back to ready
// on a later Pop.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a Redis-backed queue with the given name. The caller owns
// the Redis client lifecycle.
func New(client goredis.Cmdable, name string, opts ...Option) *Queue {
	q := &Queue{
		client:     client,
		name:       name,
		visibility: defaultVisibility,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push writes the record hash, then parks the id in the delayed ZSet
// for a positive delay or appends it to the ready list otherwise.
func (q *Queue) Push(ctx context.Context, handler string, payload map[string]any, delay time.Duration) (id.JobID, error) {
	now := time.Now()
	availableAt := now
	if delay > 0 {
		availableAt = now.Add(delay)
	}

	j := job.New(handler, payload, availableAt)
	key := j.ID.String()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(q.name, key), jobToMap(j))
	if delay > 0 {
		pipe.ZAdd(ctx, delayedKey(q.name), goredis.Z{Score: score(availableAt), Member: key})
	} else {
		pipe.RPush(ctx, readyKey(q.name), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return id.Nil, fmt.Errorf("qatar/redis: push: %w", err)
	}
	return j.ID, nil
}

// Pop migrates due and expired records to the ready list, then claims
// its head. A positive wait blocks in BLPOP up to that long.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*job.Job, error) {
	if err := q.migrate(ctx); err != nil {
		return nil, err
	}

	key, err := q.popReady(ctx, wait)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, nil
	}

	return q.claim(ctx, key)
}

// popReady removes and returns the head of the ready list, or "" when
// nothing is ready within the wait window.
func (q *Queue) popReady(ctx context.Context, wait time.Duration) (string, error) {
	if wait > 0 {
		vals, err := q.client.BLPop(ctx, wait, readyKey(q.name)).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return "", nil
			}
			return "", fmt.Errorf("qatar/redis: blpop: %w", err)
		}
		// BLPOP returns [key, member].
		return vals[1], nil
	}

	val, err := q.client.LPop(ctx, readyKey(q.name)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("qatar/redis: lpop: %w", err)
	}
	return val, nil
}

// claim marks the record in-flight, schedules its visibility deadline,
// and returns it with attempts incremented.
func (q *Queue) claim(ctx context.Context, key string) (*job.Job, error) {
	now := time.Now()

	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, processingKey(q.name), key)
	pipe.ZAdd(ctx, timeoutKey(q.name), goredis.Z{Score: score(now.Add(q.visibility)), Member: key})
	pipe.HIncrBy(ctx, jobKey(q.name, key), "attempts", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("qatar/redis: claim: %w", err)
	}

	vals, err := q.client.HGetAll(ctx, jobKey(q.name, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("qatar/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		// Record purged between pop and claim; drop the claim.
		q.release(ctx, key)
		return nil, nil
	}
	return mapToJob(vals)
}

// migrate moves due delayed records and expired in-flight claims to the
// tail of the ready list. Scan order breaks ties among records due in
// the same pass.
func (q *Queue) migrate(ctx context.Context) error {
	now := time.Now()
	cutoff := scoreMax(now)

	due, err := q.client.ZRangeByScore(ctx, delayedKey(q.name), &goredis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("qatar/redis: scan delayed: %w", err)
	}
	for _, key := range due {
		pipe := q.client.TxPipeline()
		pipe.RPush(ctx, readyKey(q.name), key)
		pipe.ZRem(ctx, delayedKey(q.name), key)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("qatar/redis: migrate delayed: %w", err)
		}
	}

	expired, err := q.client.ZRangeByScore(ctx, timeoutKey(q.name), &goredis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("qatar/redis: scan timeout: %w", err)
	}
	for _, key := range expired {
		pipe := q.client.TxPipeline()
		pipe.SRem(ctx, processingKey(q.name), key)
		pipe.ZRem(ctx, timeoutKey(q.name), key)
		pipe.RPush(ctx, readyKey(q.name), key)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("qatar/redis: reap expired claim: %w", err)
		}
		q.logger.Warn("reclaimed expired in-flight job",
			slog.String("queue", q.name),
			slog.String("job_id", key),
		)
	}

	return nil
}

// release drops the in-flight claim for a record without re-arming it.
func (q *Queue) release(ctx context.Context, key string) {
	pipe := q.client.TxPipeline()
	pipe.SRem(ctx, processingKey(q.name), key)
	pipe.ZRem(ctx, timeoutKey(q.name), key)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to release claim",
			slog.String("queue", q.name),
			slog.String("job_id", key),
			slog.String("error", err.Error()),
		)
	}
}

// Ack drops the claim and deletes the record. Success iff the record
// hash still existed.
func (q *Queue) Ack(ctx context.Context, jobID id.JobID) bool {
	key := jobID.String()

	exists, err := q.client.Exists(ctx, jobKey(q.name, key)).Result()
	if err != nil {
		return false
	}

	q.release(ctx, key)
	if exists == 0 {
		return false
	}

	if err := q.client.Del(ctx, jobKey(q.name, key)).Err(); err != nil {
		return false
	}
	return true
}

// Nack drops the claim and re-arms the record for delivery at
// now+delay.
func (q *Queue) Nack(ctx context.Context, jobID id.JobID, delay time.Duration) bool {
	key := jobID.String()
	q.release(ctx, key)

	exists, err := q.client.Exists(ctx, jobKey(q.name, key)).Result()
	if err != nil || exists == 0 {
		return false
	}

	now := time.Now()
	availableAt := now
	if delay > 0 {
		availableAt = now.Add(delay)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(q.name, key), "available_at", availableAt.UTC().Format(time.RFC3339Nano))
	if delay > 0 {
		pipe.ZAdd(ctx, delayedKey(q.name), goredis.Z{Score: score(availableAt), Member: key})
	} else {
		pipe.RPush(ctx, readyKey(q.name), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false
	}
	return true
}

// Size counts ready plus delayed records. Returns 0 on backend failure.
func (q *Queue) Size(ctx context.Context) int {
	ready, err := q.client.LLen(ctx, readyKey(q.name)).Result()
	if err != nil {
		return 0
	}
	delayed, err := q.client.ZCard(ctx, delayedKey(q.name)).Result()
	if err != nil {
		return 0
	}
	return int(ready + delayed)
}

// Purge removes every record in every state for this queue.
// Best-effort; errors are swallowed.
func (q *Queue) Purge(ctx context.Context) {
	var keys []string

	if ids, err := q.client.LRange(ctx, readyKey(q.name), 0, -1).Result(); err == nil {
		keys = append(keys, ids...)
	}
	if ids, err := q.client.ZRange(ctx, delayedKey(q.name), 0, -1).Result(); err == nil {
		keys = append(keys, ids...)
	}
	if ids, err := q.client.SMembers(ctx, processingKey(q.name)).Result(); err == nil {
		keys = append(keys, ids...)
	}

	pipe := q.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, jobKey(q.name, key))
	}
	pipe.Del(ctx,
		readyKey(q.name),
		delayedKey(q.name),
		processingKey(q.name),
		timeoutKey(q.name),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("purge failed",
			slog.String("queue", q.name),
			slog.String("error", err.Error()),
		)
	}
}
