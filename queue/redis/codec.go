package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vaibhavpandeyvpz/qatar/id"
	"github.com/vaibhavpandeyvpz/qatar/job"
)

// jobToMap flattens a record into Redis hash fields.
func jobToMap(j *job.Job) map[string]interface{} {
	return map[string]interface{}{
		"id":           j.ID.String(),
		"handler":      j.Handler,
		"payload":      marshalPayload(j.Payload),
		"attempts":     strconv.Itoa(j.Attempts),
		"available_at": j.AvailableAt.UTC().Format(time.RFC3339Nano),
	}
}

// mapToJob rebuilds a record from Redis hash fields.
func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("qatar/redis: parse job id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])                        //nolint:errcheck // best-effort parse from trusted Redis data
	availableAt, _ := time.Parse(time.RFC3339Nano, m["available_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &job.Job{
		ID:          jID,
		Handler:     m["handler"],
		Payload:     unmarshalPayload(m["payload"]),
		Attempts:    attempts,
		AvailableAt: availableAt,
	}, nil
}

func marshalPayload(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	b, _ := json.Marshal(payload) //nolint:errcheck // marshal cannot fail for JSON-safe payloads
	return string(b)
}

func unmarshalPayload(s string) map[string]any {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]any)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}

// score renders a time as a ZSet score with millisecond precision.
func score(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1e3
}

// scoreMax renders the inclusive upper bound for a ZRangeByScore scan.
func scoreMax(t time.Time) string {
	return strconv.FormatFloat(score(t), 'f', 3, 64)
}
