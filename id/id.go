// Package id defines the TypeID-based identity type for jobs.
//
// Job IDs are K-sortable (UUIDv7-based), globally unique without
// coordination, and URL-safe in the format "job_suffix". The producing
// side generates them at push time.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// prefix is the entity-type component of every job ID.
const prefix = "job"

// JobID identifies a single job record across all backends.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type JobID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value JobID.
var Nil JobID

// NewJobID generates a new globally unique job ID.
func NewJobID() JobID {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("id: generate: %v", err))
	}

	return JobID{inner: tid, valid: true}
}

// ParseJobID parses a TypeID string (e.g. "job_01h2xcejqtf2nbrexx3vqjhp41")
// into a JobID. Returns an error if the string is not valid or does not
// carry the "job" prefix.
func ParseJobID(s string) (JobID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if tid.Prefix() != prefix {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", prefix, tid.Prefix())
	}

	return JobID{inner: tid, valid: true}, nil
}

// MustParseJobID is like ParseJobID but panics on error. Use for
// hardcoded ID values.
func MustParseJobID(s string) JobID {
	parsed, err := ParseJobID(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// String returns the full TypeID string representation (job_suffix).
// Returns an empty string for the Nil ID.
func (i JobID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (i JobID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i JobID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *JobID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := ParseJobID(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so optional columns store NULL.
func (i JobID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *JobID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into JobID", src)
	}
}
