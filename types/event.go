package types

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// CommandEvent is one operation observed on a shard's MONITOR stream.
//
// KeyPattern is derived deterministically from Key; key-less commands carry
// the NO_KEY sentinel. A CommandEvent is never mutated after construction.
type CommandEvent struct {
	JobID      string  `json:"job_id"`
	Shard      string  `json:"shard"`
	Timestamp  float64 `json:"timestamp"` // fractional seconds since epoch
	DB         int     `json:"db"`
	ClientIP   string  `json:"client_ip"`
	ClientPort int     `json:"client_port"`
	Command    string  `json:"command"` // uppercased
	Key        string  `json:"key,omitempty"`
	KeyPattern string  `json:"key_pattern,omitempty"`
	Raw        string  `json:"raw,omitempty"` // source line, retained for audit
}

// EventConsumer is the sink the capture pipeline writes to. Implementations
// must accept concurrent calls from different shard sessions; a failed
// ConsumeEvent never aborts the calling session.
type EventConsumer interface {
	// ConsumeEvent add a CommandEvent to this consumer
	ConsumeEvent(e CommandEvent) error
}

// PersistedCounter is optionally implemented by consumers that keep an
// authoritative count of persisted events per job. The coordinator reports
// the higher of its own count and the persisted count.
type PersistedCounter interface {
	PersistedCount(jobID string) int64
}

// Time converts the wire timestamp to a time.Time in UTC.
func (e CommandEvent) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Index index for event in ElasticSearch
func (e CommandEvent) Index() string {
	t := e.Time()
	return fmt.Sprintf("hotshard-%s-%04d-%02d-%02d", e.JobID, t.Year(), t.Month(), t.Day())
}

// MarshalBody marshals the event to one JSON document.
func (e CommandEvent) MarshalBody() ([]byte, error) {
	return json.Marshal(e)
}
