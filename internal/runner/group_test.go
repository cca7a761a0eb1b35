package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// sleeper runs until cancelled or until its own lifetime elapses, recording
// which of the two happened.
type sleeper struct {
	lifetime time.Duration
	err      error

	ranOut    bool
	cancelled bool
}

func (s *sleeper) Run(ctx context.Context) error {
	t := time.NewTimer(s.lifetime)
	defer t.Stop()
	select {
	case <-t.C:
		s.ranOut = true
	case <-ctx.Done():
		s.cancelled = true
	}
	return s.err
}

func TestGroup_RunCancelsOnFirstExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan interface{})

	short := &sleeper{lifetime: time.Millisecond * 100, err: errors.New("exited early")}
	long1 := &sleeper{lifetime: time.Second * 5}
	long2 := &sleeper{lifetime: time.Second * 5}

	g := NewGroup(short, long1, long2)

	var err error
	go func() {
		err = g.Run(ctx, cancel, done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 2):
		t.Fatal("group did not shut down after a member exited")
	}
	time.Sleep(time.Millisecond * 50) // let the Run goroutine assign err

	assert.Error(t, err, "the early exit error should surface")
	assert.True(t, short.ranOut, "the short-lived member exits on its own")
	assert.True(t, long1.cancelled, "remaining members are cancelled")
	assert.True(t, long2.cancelled, "remaining members are cancelled")
}

func TestGroup_RunSingle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan interface{})

	only := &sleeper{lifetime: time.Millisecond * 50}
	assert.NoError(t, NewGroup(only).Run(ctx, cancel, done))
	assert.True(t, only.ranOut)

	select {
	case <-done:
	default:
		t.Fatal("done should be closed after Run returns")
	}
}

func TestGroup_RunEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan interface{})

	g := NewGroup()
	g.Add(nil) // nil members are ignored
	assert.NoError(t, g.Run(ctx, cancel, done))

	select {
	case <-done:
	default:
		t.Fatal("done should be closed even for an empty group")
	}
}
