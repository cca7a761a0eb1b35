package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hotshardd/core"
	"hotshardd/internal"
	"hotshardd/internal/discovery"
	"hotshardd/internal/runner"
	"hotshardd/types"
)

var (
	err error

	optionsFile string
	options     Options

	dev   bool
	serve bool
)

func exit() {
	if err != nil {
		log.Error().Err(err).Msg("exited")
		os.Exit(1)
	} else {
		log.Info().Msg("exited")
	}
}

func newJobID(name string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if len(name) > 0 {
		return name + "-" + id
	}
	return id
}

func newTopology(opt ClusterOptions) (types.TopologySource, error) {
	if len(opt.Shards) > 0 {
		shards := make([]types.ShardInfo, 0, len(opt.Shards))
		for _, s := range opt.Shards {
			role := types.ShardRole(s.Role)
			if len(role) == 0 {
				role = types.ShardRole(opt.Role)
			}
			shards = append(shards, types.ShardInfo{Name: s.Name, Host: s.Host, Port: s.Port, Role: role})
		}
		return discovery.NewStaticSource(shards)
	}
	return discovery.NewElastiCacheSource(context.Background(), discovery.ElastiCacheSourceOptions{
		ReplicationGroupID: opt.ReplicationGroupID,
		Region:             opt.Region,
		Role:               types.ShardRole(opt.Role),
	})
}

func main() {
	defer exit()

	// init logger
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true, TimeFormat: time.RFC3339})

	// decode command line arguments
	flag.StringVar(&optionsFile, "c", "/etc/hotshardd.yml", "config file")
	flag.BoolVar(&dev, "dev", false, "enable dev mode")
	flag.BoolVar(&serve, "serve", false, "keep serving the status api after the job finished")
	flag.Parse()

	// load options
	log.Info().Str("file", optionsFile).Msg("load options file")
	if options, err = LoadOptions(optionsFile); err != nil {
		log.Error().Err(err).Msg("failed to load options file")
		return
	}
	if dev {
		options.Verbose = true
	}

	// re-init logger
	if options.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	jobID := newJobID(options.JobName)
	log.Info().Str("job", jobID).Msg("job created")

	// create outputs
	consumers := make([]types.EventConsumer, 0)
	rg := runner.NewGroup()

	if options.OutputLocal.Enabled {
		var output internal.LocalOutput
		if output, err = internal.NewLocalOutput(internal.LocalOutputOptions{
			Dir:      options.OutputLocal.Dir,
			Compress: options.OutputLocal.Compress,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create local output")
			return
		}
		consumers = append(consumers, output)
		rg.Add(output)
	}

	if options.OutputES.Enabled {
		var output internal.ElasticOutput
		if output, err = internal.NewElasticOutput(internal.ElasticOutputOptions{
			URLs:         options.OutputES.URLs,
			BatchSize:    options.OutputES.BatchSize,
			BatchTimeout: time.Second * time.Duration(options.OutputES.BatchTimeout),
			BatchRate:    options.OutputES.BatchRate,
			BatchBurst:   options.OutputES.BatchBurst,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create elastic output")
			return
		}
		consumers = append(consumers, output)
		rg.Add(output)
	}

	if options.OutputS3.Enabled {
		var output internal.S3Output
		if output, err = internal.NewS3Output(context.Background(), internal.S3OutputOptions{
			Bucket:        options.OutputS3.Bucket,
			Prefix:        options.OutputS3.Prefix,
			Region:        options.OutputS3.Region,
			BatchSize:     options.OutputS3.BatchSize,
			FlushInterval: time.Second * time.Duration(options.OutputS3.FlushInterval),
			Retries:       options.OutputS3.Retries,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create s3 output")
			return
		}
		consumers = append(consumers, output)
		rg.Add(output)
	}

	if len(consumers) == 0 {
		err = errors.New("no output")
		return
	}

	// dispatcher fans events out and tracks hot keys for the sampler
	trackKeys := 0
	if options.Sampler.Enabled {
		trackKeys = options.Sampler.TopKeys * 100
	}
	var dispatcher *core.Dispatcher
	if dispatcher, err = core.NewDispatcher(core.DispatcherOptions{
		TrackKeys: trackKeys,
		Nexts:     consumers,
	}); err != nil {
		log.Error().Err(err).Msg("failed to create dispatcher")
		return
	}

	// sessions write either straight to the dispatcher or through the
	// disk-backed queue
	var sink types.EventConsumer = dispatcher
	if options.Queue.Enabled {
		var q internal.Queue
		if q, err = internal.NewQueue(internal.QueueOptions{
			Dir:       options.Queue.Dir,
			Name:      options.Queue.Name,
			SyncEvery: options.Queue.SyncEvery,
			Next:      dispatcher,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create queue")
			return
		}
		sink = q
		rg.Add(q)
	}

	var topology types.TopologySource
	if topology, err = newTopology(options.Cluster); err != nil {
		log.Error().Err(err).Msg("failed to create topology source")
		return
	}

	statusAPI := internal.NewStatusAPI(internal.StatusAPIOptions{Bind: options.Status.Bind})
	rg.Add(statusAPI)

	// run the long-lived plumbing
	plumbCtx, plumbCancel := context.WithCancel(context.Background())
	plumbDone := make(chan interface{})
	go func() {
		if perr := rg.Run(plumbCtx, plumbCancel, plumbDone); perr != nil {
			log.Error().Err(perr).Msg("plumbing exited with error")
		}
	}()

	// a signal cancels the job; sessions finalize and the job result still
	// reflects whatever was captured
	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("signal caught")
		jobCancel()
	}()

	var coordinator *core.Coordinator
	if coordinator, err = core.NewCoordinator(core.CoordinatorOptions{
		JobID:       jobID,
		Topology:    topology,
		Password:    options.Cluster.Auth,
		Duration:    time.Second * time.Duration(options.Capture.Duration),
		DialTimeout: time.Second * time.Duration(options.Capture.DialTimeout),
		Grace:       time.Second * time.Duration(options.Capture.Grace),
		Next:        sink,
	}); err != nil {
		log.Error().Err(err).Msg("failed to create coordinator")
		plumbCancel()
		<-plumbDone
		return
	}
	statusAPI.SetJob(jobID, coordinator)

	var result types.JobResult
	result, err = coordinator.Run(jobCtx)
	statusAPI.SetResult(result)

	// size sampling runs after capture so MONITOR load and lookups never mix
	if err == nil && options.Sampler.Enabled {
		shards := make([]types.ShardInfo, 0, len(result.Shards))
		for _, st := range result.Shards {
			shards = append(shards, types.ShardInfo{Name: st.Shard, Host: st.Host, Port: st.Port, Role: st.Role})
		}
		var sampler *core.Sampler
		var serr error
		if sampler, serr = core.NewSampler(core.SamplerOptions{
			JobID:    jobID,
			Shards:   shards,
			Password: options.Cluster.Auth,
			Rate:     options.Sampler.Rate,
			Burst:    options.Sampler.Burst,
		}); serr != nil {
			log.Error().Err(serr).Msg("failed to create sampler")
		} else {
			statusAPI.SetSizes(sampler.Sizes)
			sampler.SampleKeys(jobCtx, dispatcher.TopKeys(options.Sampler.TopKeys))
			_ = sampler.Close()
		}
	}

	// let the queue drain into the outputs before shutting the plumbing down
	if q, ok := sink.(internal.Queue); ok {
		drainDeadline := time.Now().Add(time.Second * 30)
		for q.Depth() > 0 && time.Now().Before(drainDeadline) {
			time.Sleep(time.Millisecond * 100)
		}
	}

	if serve && err == nil {
		log.Info().Str("bind", options.Status.Bind).Msg("job finished, serving status api until signal")
		<-jobCtx.Done()
	}

	plumbCancel()
	<-plumbDone
}
