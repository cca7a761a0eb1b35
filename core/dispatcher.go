package core

import (
	"errors"
	"sort"
	"sync"

	"hotshardd/internal/errutil"
	"hotshardd/types"
)

type DispatcherOptions struct {
	// TrackKeys bounds the number of distinct keys tracked for later size
	// sampling; 0 disables tracking
	TrackKeys int

	Nexts []types.EventConsumer
}

// Dispatcher fans captured events out to every configured consumer and
// keeps a bounded tally of the hottest keys. One consumer failing never
// stops delivery to the others.
type Dispatcher struct {
	optTrackKeys int

	nexts []types.EventConsumer

	mu   sync.Mutex
	keys map[string]int64
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if len(opts.Nexts) == 0 {
		return nil, errors.New("dispatcher: no consumer is set")
	}
	return &Dispatcher{
		optTrackKeys: opts.TrackKeys,
		nexts:        opts.Nexts,
		keys:         make(map[string]int64),
	}, nil
}

func (d *Dispatcher) ConsumeEvent(e types.CommandEvent) error {
	if d.optTrackKeys > 0 && len(e.Key) > 0 {
		d.mu.Lock()
		if _, known := d.keys[e.Key]; known || len(d.keys) < d.optTrackKeys {
			d.keys[e.Key]++
		}
		d.mu.Unlock()
	}
	if len(d.nexts) == 1 {
		return d.nexts[0].ConsumeEvent(e)
	}
	eg := errutil.NewGroup()
	for _, n := range d.nexts {
		eg.Add(n.ConsumeEvent(e))
	}
	return eg.Err()
}

// PersistedCount reports the highest authoritative count any downstream
// consumer keeps for the job.
func (d *Dispatcher) PersistedCount(jobID string) (max int64) {
	for _, n := range d.nexts {
		if pc, ok := n.(types.PersistedCounter); ok {
			if c := pc.PersistedCount(jobID); c > max {
				max = c
			}
		}
	}
	return
}

// TopKeys returns up to n observed keys ordered by descending hit count.
func (d *Dispatcher) TopKeys(n int) []string {
	d.mu.Lock()
	keys := make([]string, 0, len(d.keys))
	for k := range d.keys {
		keys = append(keys, k)
	}
	counts := make(map[string]int64, len(d.keys))
	for k, v := range d.keys {
		counts[k] = v
	}
	d.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
