package internal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hotshardd/types"
)

type testEventConsumer struct {
	data chan types.CommandEvent
}

func (c *testEventConsumer) ConsumeEvent(e types.CommandEvent) error {
	c.data <- e
	return nil
}

type testCountingConsumer struct {
	testEventConsumer
	persisted int64
}

func (c *testCountingConsumer) PersistedCount(jobID string) int64 {
	return c.persisted
}

func TestQueue_PersistedCount(t *testing.T) {
	cc := &testCountingConsumer{
		testEventConsumer: testEventConsumer{data: make(chan types.CommandEvent, 1)},
		persisted:         42,
	}

	q, err := NewQueue(QueueOptions{Dir: "/tmp/hotshardd-queue-count-test", Name: "hs-test", Next: cc})
	if !assert.NoError(t, err, "should not fail to create Queue") {
		return
	}

	assert.Equal(t, int64(42), q.PersistedCount("test-job"), "should pass the downstream count through")

	// a downstream without an authoritative count reports zero
	ec := &testEventConsumer{data: make(chan types.CommandEvent, 1)}
	q, err = NewQueue(QueueOptions{Dir: "/tmp/hotshardd-queue-count-test", Name: "hs-test", Next: ec})
	if !assert.NoError(t, err) {
		return
	}
	assert.Zero(t, q.PersistedCount("test-job"))
}

func TestQueue_Run(t *testing.T) {
	const dir = "/tmp/hotshardd-queue-test"
	if !assert.NoError(
		t,
		os.RemoveAll(dir),
		"should not fail to remove test dir",
	) {
		return
	}

	ec := &testEventConsumer{data: make(chan types.CommandEvent, 5)}

	var q Queue
	var err error
	q, err = NewQueue(QueueOptions{Dir: dir, Name: "hs-test", Next: ec})
	if !assert.NoError(t, err, "should not fail to create Queue") {
		return
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	done := make(chan interface{})

	go func() {
		assert.NoError(t, q.Run(ctx), "should not fail to run Queue")
		close(done)
	}()

	time.Sleep(time.Millisecond * 100)

	e := types.CommandEvent{
		JobID:     "test-job",
		Shard:     "shard-0001",
		Timestamp: 1700000000.123456,
		ClientIP:  "10.0.0.5",
		Command:   "GET",
		Key:       "user:42",
	}

	assert.NoError(t,
		q.ConsumeEvent(e),
		"should not fail to ConsumeEvent",
	)

	time.Sleep(time.Millisecond * 100)

	ctxCancel()
	<-done

	assert.Equal(t, e, <-ec.data)
}
