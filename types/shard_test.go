package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SessionState(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "monitoring", StateMonitoring.String())
	assert.Equal(t, "unknown", SessionState(99).String())

	assert.False(t, StatePending.Terminal())
	assert.False(t, StateFinalizing.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())

	buf, err := StateFailed.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"failed"`, string(buf))
}

func Test_ShardInfoAddr(t *testing.T) {
	s := ShardInfo{Name: "shard-0001", Host: "10.0.1.10", Port: 6379}
	assert.Equal(t, "10.0.1.10:6379", s.Addr())
}
