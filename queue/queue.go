// Package queue defines the uniform queue contract that every backend
// implements and the worker exclusively depends on.
//
// Lifecycle of a record against any backend:
//
//	Push → delayed | ready → Pop (claimed, invisible) → Ack (gone)
//	                                                  → Nack (re-armed)
//
// Error conventions, shared by all backends: Push and Pop surface
// backend I/O failures to the caller — there is no safe local
// recovery. Ack and Nack convert both backend failures and
// unknown/expired ids to false; Size reports 0 on failure; Purge is
// best-effort and never raises.
package queue

import (
	"context"
	"time"

	"github.com/vaibhavpandeyvpz/qatar/id"
	"github.com/vaibhavpandeyvpz/qatar/job"
)

// Queue is the backend-agnostic job queue contract.
type Queue interface {
	// Push stores a new record and returns its fresh unique id. A
	// delay <= 0 means immediately available; a positive delay parks
	// the record in the delayed region until now+delay.
	Push(ctx context.Context, handler string, payload map[string]any, delay time.Duration) (id.JobID, error)

	// Pop retrieves at most one record whose availability time has
	// passed, atomically claims it so no other poller sees it, and
	// returns it with Attempts incremented. A zero wait returns
	// immediately when nothing is ready; a positive wait blocks up to
	// that long for a record to arrive. (nil, nil) means no record.
	Pop(ctx context.Context, wait time.Duration) (*job.Job, error)

	// Ack permanently removes a claimed record. Returns false when no
	// in-flight claim exists for the id (already acknowledged,
	// expired, or unknown) or the backend fails.
	Ack(ctx context.Context, jobID id.JobID) bool

	// Nack releases the claim and re-arms the record for delivery at
	// now+delay (immediately for delay <= 0). Returns false under the
	// same conditions as Ack.
	Nack(ctx context.Context, jobID id.JobID, delay time.Duration) bool

	// Size counts ready plus delayed records. In-flight records are
	// excluded.
	Size(ctx context.Context) int

	// Purge unconditionally removes all records in every state for
	// this queue. Best-effort; backend errors are swallowed.
	Purge(ctx context.Context)
}
