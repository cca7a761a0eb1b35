package internal

import (
	"context"
	"errors"
	"time"

	"github.com/juju/ratelimit"
	"github.com/olivere/elastic"
	"github.com/rs/zerolog/log"

	"hotshardd/internal/runner"
	"hotshardd/types"
)

type ElasticOutputOptions struct {
	URLs         []string
	BatchSize    int
	BatchTimeout time.Duration
	// BatchRate/BatchBurst throttle bulk submissions so a hot capture never
	// floods the cluster that is supposed to help debug it
	BatchRate  int
	BatchBurst int
}

type ElasticOutput interface {
	runner.Runnable
	types.EventConsumer
}

// ElasticOutput bulk-indexes captured events, one index per job per day.
type elasticOutput struct {
	optBatchSize    int
	optBatchTimeout time.Duration

	bucket *ratelimit.Bucket
	client *elastic.Client

	ch chan types.CommandEvent
}

func NewElasticOutput(opts ElasticOutputOptions) (ElasticOutput, error) {
	if len(opts.URLs) == 0 {
		return nil, errors.New("elastic output: URLs is not set")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = time.Second * 3
	}
	if opts.BatchRate <= 0 {
		opts.BatchRate = 1000
	}
	if opts.BatchBurst <= 0 {
		opts.BatchBurst = 10000
	}
	client, err := elastic.NewClient(elastic.SetURL(opts.URLs...))
	if err != nil {
		return nil, err
	}
	log.Info().Str("output", "elastic").Strs("urls", opts.URLs).Msg("output created")
	return &elasticOutput{
		optBatchSize:    opts.BatchSize,
		optBatchTimeout: opts.BatchTimeout,
		bucket:          ratelimit.NewBucket(time.Second/time.Duration(opts.BatchRate), int64(opts.BatchBurst)),
		client:          client,
		ch:              make(chan types.CommandEvent),
	}, nil
}

func (e *elasticOutput) ConsumeEvent(ev types.CommandEvent) error {
	e.ch <- ev
	return nil
}

func (e *elasticOutput) submit(ctx context.Context, events []types.CommandEvent) {
	if len(events) == 0 {
		return
	}
	e.bucket.Wait(int64(len(events)))
	bs := elastic.NewBulkService(e.client)
	for _, ev := range events {
		body, err := ev.MarshalBody()
		if err != nil {
			continue
		}
		bs.Add(elastic.NewBulkIndexRequest().Index(ev.Index()).Type("_doc").Doc(string(body)))
	}
	res, err := bs.Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("output", "elastic").Int("count", len(events)).Msg("bulk failed to commit")
		return
	}
	if res.Errors {
		log.Error().Str("output", "elastic").Int("failed_count", len(res.Failed())).Int("total_count", len(events)).Msg("bulk partially failed")
		return
	}
	log.Debug().Str("output", "elastic").Int("count", len(events)).Msg("bulk committed")
}

func (e *elasticOutput) Run(ctx context.Context) error {
	log.Info().Str("output", "elastic").Msg("started")
	defer log.Info().Str("output", "elastic").Msg("stopped")

	t := time.NewTicker(e.optBatchTimeout)
	defer t.Stop()

	var events []types.CommandEvent

	for {
		select {
		case ev := <-e.ch:
			events = append(events, ev)
			if len(events) >= e.optBatchSize {
				e.submit(ctx, events)
				events = nil
			}
		case <-t.C:
			e.submit(ctx, events)
			events = nil
		case <-ctx.Done():
			// flush whatever is pending; use a fresh context, ours is gone
			flushCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			e.submit(flushCtx, events)
			cancel()
			return nil
		}
	}
}
