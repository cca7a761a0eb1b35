package types

import (
	"context"
	"fmt"
	"time"
)

// ShardRole role of a shard node
type ShardRole string

const (
	RolePrimary ShardRole = "primary"
	RoleReplica ShardRole = "replica"
)

// ShardInfo describes one node of a replicated cache cluster.
type ShardInfo struct {
	Name string    `json:"name"`
	Host string    `json:"host"`
	Port int       `json:"port"`
	Role ShardRole `json:"role"`
}

func (s ShardInfo) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TopologySource enumerates the shards of a cluster. A Discover failure is
// the only job-fatal error of a monitoring run.
type TopologySource interface {
	Discover(ctx context.Context) ([]ShardInfo, error)
}

// SessionState lifecycle state of a capture session
type SessionState int32

const (
	StatePending SessionState = iota
	StateConnecting
	StateMonitoring
	StateFinalizing
	StateCompleted
	StateFailed
)

var sessionStateNames = map[SessionState]string{
	StatePending:    "pending",
	StateConnecting: "connecting",
	StateMonitoring: "monitoring",
	StateFinalizing: "finalizing",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s SessionState) String() string {
	if n, ok := sessionStateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ShardStatus is a read-only snapshot of a running or finished session,
// safe to take at any time without blocking the session.
type ShardStatus struct {
	Shard     string       `json:"shard"`
	Host      string       `json:"host"`
	Port      int          `json:"port"`
	Role      ShardRole    `json:"role"`
	State     SessionState `json:"state"`
	Commands  int64        `json:"commands"`
	Drops     int64        `json:"drops"`
	QPS       float64      `json:"qps"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at,omitempty"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
}
