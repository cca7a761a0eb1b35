package types

import "time"

// JobStatus overall status of a monitoring run
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobResult is the aggregate outcome across all shards of one monitoring
// run. It is assembled once every session reached a terminal state and is
// immutable thereafter.
//
// A job is "completed" even when individual shards failed; "failed" means
// the job could not proceed at all, i.e. topology discovery failed.
type JobResult struct {
	JobID         string        `json:"job_id"`
	Status        JobStatus     `json:"status"`
	Shards        []ShardStatus `json:"shards"`
	TotalCommands int64         `json:"total_commands"`
	TotalDrops    int64         `json:"total_drops"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	Error         string        `json:"error,omitempty"`
}
