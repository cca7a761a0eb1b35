package internal

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"go.guoyk.net/diskqueue"

	"hotshardd/internal/runner"
	"hotshardd/types"
)

type QueueOptions struct {
	Dir       string
	Name      string
	SyncEvery int

	Next types.EventConsumer
}

// Queue is a disk-backed buffer between the capture sessions and the
// outputs, so a slow sink never stalls a MONITOR stream. Persisted counts
// pass through to the downstream consumer, the queue itself never counts.
type Queue interface {
	types.EventConsumer
	types.PersistedCounter
	runner.Runnable
	Depth() int64
}

type queue struct {
	optDir       string
	optName      string
	optSyncEvery int

	dq diskqueue.DiskQueue

	next types.EventConsumer
}

func NewQueue(opts QueueOptions) (Queue, error) {
	if len(opts.Dir) == 0 {
		return nil, errors.New("queue: Dir is not set")
	}
	if len(opts.Name) == 0 {
		return nil, errors.New("queue: Name is not set")
	}
	if opts.Next == nil {
		return nil, errors.New("queue: Next is not set")
	}
	if opts.SyncEvery <= 0 {
		opts.SyncEvery = 100
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}
	log.Info().Str("queue", opts.Name).Str("dir", opts.Dir).Msg("queue created")
	return &queue{
		optDir:       opts.Dir,
		optName:      opts.Name,
		optSyncEvery: opts.SyncEvery,
		next:         opts.Next,
	}, nil
}

func (q *queue) PersistedCount(jobID string) int64 {
	if pc, ok := q.next.(types.PersistedCounter); ok {
		return pc.PersistedCount(jobID)
	}
	return 0
}

func (q *queue) Depth() int64 {
	dq := q.dq
	if dq == nil {
		return 0
	}
	return dq.Depth()
}

func (q *queue) ConsumeEvent(e types.CommandEvent) error {
	dq := q.dq
	if dq == nil {
		return errors.New("queue: not running")
	}
	buf, err := types.RecordMarshal(e)
	if err != nil {
		return err
	}
	return dq.Put(buf)
}

func (q *queue) Run(ctx context.Context) error {
	log.Info().Str("queue", q.optName).Msg("started")
	defer log.Info().Str("queue", q.optName).Msg("stopped")

	dq := diskqueue.New(q.optName,
		q.optDir,
		256*1024*1024,
		20,
		2*1024*1024,
		int64(q.optSyncEvery),
		time.Second*20,
	)
	q.dq = dq

loop:
	for {
		select {
		case buf := <-dq.ReadChan():
			var e types.CommandEvent
			var err error
			if e, err = types.RecordUnmarshal(buf); err != nil {
				log.Error().Err(err).Msg("queue: failed to unmarshal record")
				continue
			}
			if err = q.next.ConsumeEvent(e); err != nil {
				log.Error().Err(err).Msg("queue: consumer failed to consume event")
			}
		case <-ctx.Done():
			break loop
		}
	}

	q.dq = nil

	return dq.Close()
}
