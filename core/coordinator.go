package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hotshardd/types"
)

type CoordinatorOptions struct {
	JobID       string
	Topology    types.TopologySource
	Password    string
	Duration    time.Duration
	DialTimeout time.Duration
	Grace       time.Duration // force-close bound after the capture deadline

	Next types.EventConsumer
}

// Coordinator runs one monitoring job: discover the shard topology, launch
// one capture session per shard, wait for every session to reach a terminal
// state and assemble the JobResult. Sessions are fully independent; one
// shard failing never degrades its siblings. The only job-fatal path is
// topology discovery failing before any session starts.
type Coordinator struct {
	optJobID       string
	optPassword    string
	optDuration    time.Duration
	optDialTimeout time.Duration
	optGrace       time.Duration

	topology types.TopologySource
	next     types.EventConsumer

	mu       sync.Mutex
	sessions []*Session
}

func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Topology == nil {
		return nil, errors.New("coordinator: Topology is not set")
	}
	if opts.Next == nil {
		return nil, errors.New("coordinator: Next is not set")
	}
	if len(opts.JobID) == 0 {
		return nil, errors.New("coordinator: JobID is not set")
	}
	if opts.Duration <= 0 {
		opts.Duration = time.Minute
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = time.Second * 5
	}
	if opts.Grace <= 0 {
		opts.Grace = time.Second * 10
	}
	return &Coordinator{
		optJobID:       opts.JobID,
		optPassword:    opts.Password,
		optDuration:    opts.Duration,
		optDialTimeout: opts.DialTimeout,
		optGrace:       opts.Grace,
		topology:       opts.Topology,
		next:           opts.Next,
	}, nil
}

// Statuses snapshots every launched session, for status polling while the
// job runs. Empty until discovery succeeded.
func (c *Coordinator) Statuses() []types.ShardStatus {
	c.mu.Lock()
	sessions := c.sessions
	c.mu.Unlock()
	out := make([]types.ShardStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	return out
}

// Run executes the job and blocks until every session reached a terminal
// state or the force-close bound expired.
func (c *Coordinator) Run(ctx context.Context) (types.JobResult, error) {
	result := types.JobResult{
		JobID:     c.optJobID,
		StartedAt: time.Now().UTC(),
	}

	shards, err := c.topology.Discover(ctx)
	if err == nil && len(shards) == 0 {
		err = errors.New("topology discovery returned no shards")
	}
	if err != nil {
		log.Error().Err(err).Str("job", c.optJobID).Msg("topology discovery failed")
		result.Status = types.JobFailed
		result.Error = err.Error()
		result.EndedAt = time.Now().UTC()
		return result, err
	}
	log.Info().Str("job", c.optJobID).Int("shards", len(shards)).Dur("duration", c.optDuration).Msg("topology discovered")

	sessions := make([]*Session, 0, len(shards))
	for _, shard := range shards {
		var s *Session
		if s, err = NewSession(SessionOptions{
			JobID:       c.optJobID,
			Shard:       shard,
			Password:    c.optPassword,
			Duration:    c.optDuration,
			DialTimeout: c.optDialTimeout,
			Next:        c.next,
		}); err != nil {
			result.Status = types.JobFailed
			result.Error = err.Error()
			result.EndedAt = time.Now().UTC()
			return result, err
		}
		sessions = append(sessions, s)
	}
	c.mu.Lock()
	c.sessions = sessions
	c.mu.Unlock()

	wg := &sync.WaitGroup{}
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			// per-shard errors are contained here, reported via Status
			_ = s.Run(ctx)
			wg.Done()
		}(s)
	}

	done := make(chan interface{})
	go func() {
		wg.Wait()
		close(done)
	}()

	deadline := time.NewTimer(c.optDuration + c.optDialTimeout + c.optGrace)
	defer deadline.Stop()

	progress := time.NewTicker(time.Second * 5)
	defer progress.Stop()

wait:
	for {
		select {
		case <-done:
			break wait
		case <-progress.C:
			var commands int64
			for _, st := range c.Statuses() {
				commands += st.Commands
			}
			log.Info().Str("job", c.optJobID).Int64("commands", commands).Msg("capture in progress")
		case <-deadline.C:
			log.Warn().Str("job", c.optJobID).Msg("grace period over, force closing sessions")
			for _, s := range sessions {
				s.ForceClose()
			}
			// closed connections unblock stuck reads almost immediately;
			// never hang the job on a session that still does not return
			select {
			case <-done:
			case <-time.After(time.Second * 5):
				log.Error().Str("job", c.optJobID).Msg("sessions still not terminal after force close")
			}
			break wait
		}
	}

	for _, s := range sessions {
		st := s.Status()
		result.Shards = append(result.Shards, st)
		result.TotalCommands += st.Commands
		result.TotalDrops += st.Drops
	}

	// the sink may hold an authoritative persisted count; report whichever
	// is higher to absorb in-memory bookkeeping undercounts
	if pc, ok := c.next.(types.PersistedCounter); ok {
		if persisted := pc.PersistedCount(c.optJobID); persisted > result.TotalCommands {
			result.TotalCommands = persisted
		}
	}

	result.Status = types.JobCompleted
	result.EndedAt = time.Now().UTC()

	log.Info().
		Str("job", c.optJobID).
		Int64("commands", result.TotalCommands).
		Int64("drops", result.TotalDrops).
		Int("shards", len(result.Shards)).
		Msg("job completed")
	return result, nil
}
