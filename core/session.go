package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"hotshardd/types"
)

type SessionOptions struct {
	JobID       string
	Shard       types.ShardInfo
	Password    string
	Duration    time.Duration
	DialTimeout time.Duration

	Next types.EventConsumer
}

// Session owns the connection lifecycle to one shard's MONITOR stream:
// pending -> connecting -> monitoring -> finalizing -> completed, with
// failed absorbing from any non-terminal state.
//
// All counters are written only by the owning session; Status reads them
// without locks and may observe slightly stale values.
type Session struct {
	optJobID       string
	optShard       types.ShardInfo
	optPassword    string
	optDuration    time.Duration
	optDialTimeout time.Duration

	next types.EventConsumer

	state    int32
	commands int64
	drops    int64
	startNs  int64
	endNs    int64

	errVal  atomic.Value // string
	connVal atomic.Value // *monitorConn
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Next == nil {
		return nil, errors.New("session: Next is not set")
	}
	if len(opts.Shard.Host) == 0 || opts.Shard.Port == 0 {
		return nil, errors.New("session: shard host/port is not set")
	}
	if opts.Duration <= 0 {
		opts.Duration = time.Minute
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = time.Second * 5
	}
	return &Session{
		optJobID:       opts.JobID,
		optShard:       opts.Shard,
		optPassword:    opts.Password,
		optDuration:    opts.Duration,
		optDialTimeout: opts.DialTimeout,
		next:           opts.Next,
		state:          int32(types.StatePending),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	return types.SessionState(atomic.LoadInt32(&s.state))
}

// Status takes a read-only snapshot of the session. Safe to call from any
// goroutine at any time; it never blocks the capture loop.
func (s *Session) Status() types.ShardStatus {
	st := types.ShardStatus{
		Shard:    s.optShard.Name,
		Host:     s.optShard.Host,
		Port:     s.optShard.Port,
		Role:     s.optShard.Role,
		State:    s.State(),
		Commands: atomic.LoadInt64(&s.commands),
		Drops:    atomic.LoadInt64(&s.drops),
	}
	if v := s.errVal.Load(); v != nil {
		st.Error = v.(string)
	}
	startNs := atomic.LoadInt64(&s.startNs)
	if startNs == 0 {
		return st
	}
	st.StartedAt = time.Unix(0, startNs).UTC()
	endNs := atomic.LoadInt64(&s.endNs)
	if endNs != 0 {
		st.EndedAt = time.Unix(0, endNs).UTC()
	} else {
		endNs = time.Now().UnixNano()
	}
	if elapsed := time.Duration(endNs - startNs); elapsed > 0 {
		st.QPS = float64(st.Commands) / elapsed.Seconds()
	}
	return st
}

// ForceClose marks a non-responsive session failed and tears down its
// connection. Called by the coordinator once the grace period is over; a
// no-op on sessions that already reached a terminal state.
func (s *Session) ForceClose() {
	_ = s.fail(errors.New("session did not finalize within grace period, force closed"))
}

// Run drives the session to a terminal state. A context cancellation or the
// configured duration elapsing both trigger normal finalization; only
// connect/auth failures and unrecoverable stream errors yield failed.
func (s *Session) Run(ctx context.Context) error {
	log.Info().Str("shard", s.optShard.Name).Str("addr", s.optShard.Addr()).Msg("session started")

	atomic.StoreInt64(&s.startNs, time.Now().UnixNano())
	if !s.transition(types.StatePending, types.StateConnecting) {
		return nil
	}

	mc, err := dialMonitor(ctx, s.optShard.Addr(), s.optPassword, s.optDialTimeout)
	if err != nil {
		return s.fail(err)
	}
	s.connVal.Store(mc)

	if !s.transition(types.StateConnecting, types.StateMonitoring) {
		// force-closed while the handshake was in flight
		_ = mc.Close()
		return nil
	}

	lines := make(chan string, 1024)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := mc.ReadLine()
			if err != nil {
				readErr <- err
				close(lines)
				return
			}
			lines <- line
		}
	}()

	timer := time.NewTimer(s.optDuration)
	defer timer.Stop()

	var failure error
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				failure = <-readErr
				break loop
			}
			s.handleLine(line)
		case <-timer.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	if failure != nil {
		return s.fail(failure)
	}

	// one-way forward from here: lines still buffered are drained and
	// emitted, never discarded, and monitoring cannot resume
	s.transition(types.StateMonitoring, types.StateFinalizing)
	_ = mc.Close()
	for line := range lines {
		s.handleLine(line)
	}

	atomic.StoreInt64(&s.endNs, time.Now().UnixNano())
	if s.transition(types.StateFinalizing, types.StateCompleted) {
		st := s.Status()
		log.Info().
			Str("shard", s.optShard.Name).
			Int64("commands", st.Commands).
			Int64("drops", st.Drops).
			Float64("qps", st.QPS).
			Msg("session completed")
	}
	return nil
}

func (s *Session) handleLine(line string) {
	e, ok := ParseLine(line)
	if !ok {
		atomic.AddInt64(&s.drops, 1)
		return
	}
	e.JobID = s.optJobID
	e.Shard = s.optShard.Name
	e.KeyPattern = ExtractKeyPattern(e.Key)
	atomic.AddInt64(&s.commands, 1)
	if err := s.next.ConsumeEvent(e); err != nil {
		// persistence failures never terminate capture
		log.Warn().Err(err).Str("shard", s.optShard.Name).Msg("failed to consume event")
	}
}

func (s *Session) transition(from, to types.SessionState) bool {
	return atomic.CompareAndSwapInt32(&s.state, int32(from), int32(to))
}

// fail moves the session to failed from whatever non-terminal state it is
// in, recording the first error only.
func (s *Session) fail(err error) error {
	for {
		st := s.State()
		if st.Terminal() {
			return err
		}
		if atomic.CompareAndSwapInt32(&s.state, int32(st), int32(types.StateFailed)) {
			break
		}
	}
	s.errVal.Store(err.Error())
	atomic.StoreInt64(&s.endNs, time.Now().UnixNano())
	if v := s.connVal.Load(); v != nil {
		_ = v.(*monitorConn).Close()
	}
	log.Error().Err(err).Str("shard", s.optShard.Name).Msg("session failed")
	return err
}
