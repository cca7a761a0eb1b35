package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"hotshardd/internal/runner"
	"hotshardd/types"
)

type S3OutputOptions struct {
	Bucket        string
	Prefix        string
	Region        string
	BatchSize     int
	FlushInterval time.Duration
	Retries       int
}

type S3Output interface {
	runner.Runnable
	types.EventConsumer
}

// S3Output uploads captured events as gzip-compressed JSONL batches, one
// object per flush, keyed by job and upload time.
type s3Output struct {
	optBucket  string
	optPrefix  string
	optBatch   int
	optFlush   time.Duration
	optRetries int

	client *s3.Client

	ch  chan types.CommandEvent
	seq int
}

func NewS3Output(ctx context.Context, opts S3OutputOptions) (S3Output, error) {
	if len(opts.Bucket) == 0 {
		return nil, errors.New("s3 output: Bucket is not set")
	}
	if len(opts.Prefix) == 0 {
		opts.Prefix = "hotshard"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second * 30
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, err
	}
	log.Info().Str("output", "s3").Str("bucket", opts.Bucket).Str("prefix", opts.Prefix).Msg("output created")
	return &s3Output{
		optBucket:  opts.Bucket,
		optPrefix:  opts.Prefix,
		optBatch:   opts.BatchSize,
		optFlush:   opts.FlushInterval,
		optRetries: opts.Retries,
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.RetryMaxAttempts = 0
		}),
		ch: make(chan types.CommandEvent),
	}, nil
}

func (s *s3Output) ConsumeEvent(e types.CommandEvent) error {
	s.ch <- e
	return nil
}

// encodeBatch serializes a batch as gzip-compressed JSONL.
func encodeBatch(events []types.CommandEvent) ([]byte, error) {
	var buf bytes.Buffer
	gz, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	enc := json.NewEncoder(gz)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *s3Output) objectKey(jobID string) string {
	s.seq++
	return fmt.Sprintf("%s/%s/%s-%06d.jsonl.gz", s.optPrefix, jobID, time.Now().UTC().Format("20060102T150405"), s.seq)
}

func (s *s3Output) flush(ctx context.Context, events []types.CommandEvent) {
	if len(events) == 0 {
		return
	}
	body, err := encodeBatch(events)
	if err != nil {
		log.Error().Err(err).Str("output", "s3").Msg("failed to encode batch")
		return
	}
	key := s.objectKey(events[0].JobID)

	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= s.optRetries; attempt++ {
		putCtx, cancel := context.WithTimeout(ctx, time.Second*10)
		_, err = s.client.PutObject(putCtx, &s3.PutObjectInput{
			Bucket:        aws.String(s.optBucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
		})
		cancel()
		if err == nil {
			log.Debug().Str("output", "s3").Str("key", key).Int("count", len(events)).Msg("batch uploaded")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}
	log.Error().Err(err).Str("output", "s3").Str("key", key).Msg("batch dropped after retries")
}

func (s *s3Output) Run(ctx context.Context) error {
	log.Info().Str("output", "s3").Msg("started")
	defer log.Info().Str("output", "s3").Msg("stopped")

	t := time.NewTicker(s.optFlush)
	defer t.Stop()

	var events []types.CommandEvent

	for {
		select {
		case e := <-s.ch:
			events = append(events, e)
			if len(events) >= s.optBatch {
				s.flush(ctx, events)
				events = nil
			}
		case <-t.C:
			s.flush(ctx, events)
			events = nil
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
			s.flush(flushCtx, events)
			cancel()
			return nil
		}
	}
}
