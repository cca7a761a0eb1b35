package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/juju/ratelimit"
	"github.com/rs/zerolog/log"

	"hotshardd/types"
)

type SamplerOptions struct {
	JobID    string
	Shards   []types.ShardInfo
	Password string

	// Rate limits MEMORY USAGE lookups per second, Burst allows short spikes
	Rate  int
	Burst int
}

// Sampler enriches aggregated statistics with the byte size of observed
// keys, best-effort and read-only. Results are cached per key for the job so
// repeated sampling rounds never hit a shard twice for the same key.
//
// In a sharded cluster a key lives on exactly one shard, so every shard is
// asked in turn until one answers.
type Sampler struct {
	optJobID string

	clients map[string]*redis.Client
	order   []string
	bucket  *ratelimit.Bucket

	mu    sync.Mutex
	sizes map[string]*int64 // nil size: lookup failed everywhere
}

func NewSampler(opts SamplerOptions) (*Sampler, error) {
	if len(opts.Shards) == 0 {
		return nil, errors.New("sampler: no shards")
	}
	if opts.Rate <= 0 {
		opts.Rate = 100
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.Rate
	}
	s := &Sampler{
		optJobID: opts.JobID,
		clients:  make(map[string]*redis.Client),
		bucket:   ratelimit.NewBucket(time.Second/time.Duration(opts.Rate), int64(opts.Burst)),
		sizes:    make(map[string]*int64),
	}
	for _, shard := range opts.Shards {
		if _, dup := s.clients[shard.Name]; dup {
			continue
		}
		s.clients[shard.Name] = redis.NewClient(&redis.Options{
			Addr:        shard.Addr(),
			Password:    opts.Password,
			DialTimeout: time.Second * 5,
			ReadTimeout: time.Second * 3,
		})
		s.order = append(s.order, shard.Name)
	}
	return s, nil
}

// SampleKeys looks up the current byte size of each key, skipping keys
// already cached. Individual failures are recorded as unknown and never
// abort the batch.
func (s *Sampler) SampleKeys(ctx context.Context, keys []string) {
	var sampled, failed int
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.mu.Lock()
		_, cached := s.sizes[key]
		s.mu.Unlock()
		if cached {
			continue
		}

		s.bucket.Wait(1)

		size, ok := s.lookup(key)
		s.mu.Lock()
		if ok {
			s.sizes[key] = &size
		} else {
			s.sizes[key] = nil
			failed++
		}
		s.mu.Unlock()
		sampled++
	}
	log.Info().Str("job", s.optJobID).Int("sampled", sampled).Int("failed", failed).Msg("key sizes sampled")
}

func (s *Sampler) lookup(key string) (int64, bool) {
	for _, name := range s.order {
		size, err := s.clients[name].MemoryUsage(key).Result()
		if err != nil {
			continue
		}
		return size, true
	}
	return 0, false
}

// Sizes returns a copy of the cache; a nil value means the lookup failed.
func (s *Sampler) Sizes() map[string]*int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*int64, len(s.sizes))
	for k, v := range s.sizes {
		out[k] = v
	}
	return out
}

func (s *Sampler) Close() error {
	for _, c := range s.clients {
		_ = c.Close()
	}
	return nil
}
