package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"hotshardd/internal/errutil"
	"hotshardd/internal/runner"
	"hotshardd/types"
)

type LocalOutputOptions struct {
	Dir      string
	Compress bool
}

type LocalOutput interface {
	runner.Runnable
	types.EventConsumer
	types.PersistedCounter
}

// LocalOutput appends captured events as JSONL files per (job, shard),
// optionally gzip compressed. It keeps an authoritative per-job count of
// events actually written, which the coordinator uses to reconcile totals.
type localOutput struct {
	optDir      string
	optCompress bool

	fs map[string]*localFile

	mu     sync.Mutex
	counts map[string]int64

	ch chan types.CommandEvent
}

type localFile struct {
	f   *os.File
	gz  *gzip.Writer
	enc *json.Encoder
}

func (lf *localFile) Close() error {
	eg := errutil.NewGroup()
	if lf.gz != nil {
		eg.Add(lf.gz.Close())
	}
	eg.Add(lf.f.Close())
	return eg.Err()
}

func NewLocalOutput(opts LocalOutputOptions) (LocalOutput, error) {
	if len(opts.Dir) == 0 {
		return nil, errors.New("local output: Dir is not set")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}
	return &localOutput{
		optDir:      opts.Dir,
		optCompress: opts.Compress,
		fs:          make(map[string]*localFile),
		counts:      make(map[string]int64),
		ch:          make(chan types.CommandEvent),
	}, nil
}

func (l *localOutput) PersistedCount(jobID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[jobID]
}

func (l *localOutput) takeFile(e types.CommandEvent) (lf *localFile, err error) {
	name := e.JobID + "-" + e.Shard + ".jsonl"
	if l.optCompress {
		name += ".gz"
	}

	if lf = l.fs[name]; lf != nil {
		return
	}

	var f *os.File
	if f, err = os.OpenFile(
		filepath.Join(l.optDir, name),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	); err != nil {
		return
	}

	lf = &localFile{f: f}
	var w io.Writer = f
	if l.optCompress {
		lf.gz = gzip.NewWriter(f)
		w = lf.gz
	}
	lf.enc = json.NewEncoder(w)
	l.fs[name] = lf

	log.Debug().Str("output", "local").Str("file", f.Name()).Msg("file opened")
	return
}

func (l *localOutput) closeFiles() error {
	eg := errutil.NewGroup()
	for _, lf := range l.fs {
		eg.Add(lf.Close())
	}
	l.fs = make(map[string]*localFile)
	return eg.Err()
}

func (l *localOutput) ConsumeEvent(e types.CommandEvent) error {
	l.ch <- e
	return nil
}

func (l *localOutput) Run(ctx context.Context) error {
	log.Info().Str("output", "local").Str("dir", l.optDir).Msg("started")
	defer log.Info().Str("output", "local").Msg("stopped")

loop:
	for {
		select {
		case e := <-l.ch:
			lf, err := l.takeFile(e)
			if err != nil {
				log.Error().Err(err).Str("output", "local").Msg("failed to open file")
				continue
			}
			if err = lf.enc.Encode(e); err != nil {
				log.Error().Err(err).Str("output", "local").Msg("failed to write event")
				continue
			}
			l.mu.Lock()
			l.counts[e.JobID]++
			l.mu.Unlock()
		case <-ctx.Done():
			break loop
		}
	}

	return l.closeFiles()
}
