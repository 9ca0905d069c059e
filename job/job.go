package job

import (
	"time"

	"github.com/vaibhavpandeyvpz/qatar/id"
)

// Job is the unit of work carried between producer and worker. It is
// created at Push, delivered (with Attempts incremented) by Pop, and
// destroyed by Ack or re-armed by Nack. No record survives an Ack.
type Job struct {
	// ID is globally unique per push, generated by the producing side.
	ID id.JobID `json:"id"`

	// Handler names the registered handler to invoke. Not validated at
	// push time; resolution happens in the worker.
	Handler string `json:"handler"`

	// Payload is an opaque structured value, serialized for storage
	// and deserialized verbatim on delivery.
	Payload map[string]any `json:"payload"`

	// Attempts counts deliveries: 0 at push, incremented by the
	// backend each time the record is returned from Pop.
	Attempts int `json:"attempts"`

	// AvailableAt is the earliest time the record may be delivered.
	AvailableAt time.Time `json:"available_at"`
}

// New creates a Job with a fresh ID, zero attempts, and the given
// availability time.
func New(handler string, payload map[string]any, availableAt time.Time) *Job {
	return &Job{
		ID:          id.NewJobID(),
		Handler:     handler,
		Payload:     payload,
		Attempts:    0,
		AvailableAt: availableAt,
	}
}
