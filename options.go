package main

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/go-yaml/yaml"
)

type ShardOptions struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Role string `yaml:"role"`
}

type ClusterOptions struct {
	ReplicationGroupID string         `yaml:"replication_group_id"` // ElastiCache replication group to discover
	Region             string         `yaml:"region"`
	Role               string         `yaml:"role"` // which endpoints to monitor, primary or replica
	Auth               string         `yaml:"auth"` // falls back to HOTSHARDD_AUTH
	Shards             []ShardOptions `yaml:"shards"` // static topology, skips discovery when set
}

type CaptureOptions struct {
	Duration    int `yaml:"duration"`     // seconds of MONITOR capture per shard
	Grace       int `yaml:"grace"`        // seconds to wait for finalization before force close
	DialTimeout int `yaml:"dial_timeout"` // seconds
}

type StatusOptions struct {
	Bind string `yaml:"bind"`
}

type QueueOptions struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	Name      string `yaml:"name"`
	SyncEvery int    `yaml:"sync_every"`
}

type LocalOutputOptions struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

type ESOutputOptions struct {
	Enabled      bool     `yaml:"enabled"`
	URLs         []string `yaml:"urls"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout int      `yaml:"batch_timeout"` // seconds
	BatchRate    int      `yaml:"batch_rate"`
	BatchBurst   int      `yaml:"batch_burst"`
}

type S3OutputOptions struct {
	Enabled       bool   `yaml:"enabled"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
	Retries       int    `yaml:"retries"`
}

type SamplerOptions struct {
	Enabled bool `yaml:"enabled"`
	TopKeys int  `yaml:"top_keys"` // hottest keys to size-sample after capture
	Rate    int  `yaml:"rate"`
	Burst   int  `yaml:"burst"`
}

// Options options for hotshardd
type Options struct {
	Verbose     bool               `yaml:"verbose"`
	JobName     string             `yaml:"job_name"`
	Cluster     ClusterOptions     `yaml:"cluster"`
	Capture     CaptureOptions     `yaml:"capture"`
	Status      StatusOptions      `yaml:"status"`
	Queue       QueueOptions       `yaml:"queue"`
	OutputLocal LocalOutputOptions `yaml:"output_local"`
	OutputES    ESOutputOptions    `yaml:"output_es"`
	OutputS3    S3OutputOptions    `yaml:"output_s3"`
	Sampler     SamplerOptions     `yaml:"sampler"`
}

func loadOptionsFile(filename string) (opt Options, err error) {
	var buf []byte
	if buf, err = ioutil.ReadFile(filename); err != nil {
		return
	}
	if err = yaml.Unmarshal(buf, &opt); err != nil {
		return
	}
	return
}

// LoadOptions load options from yaml file
func LoadOptions(filename string) (opt Options, err error) {
	if opt, err = loadOptionsFile(filename); err != nil {
		return
	}
	defaultStr(&opt.Cluster.Region, "ap-south-1")
	defaultStr(&opt.Cluster.Role, "replica")
	defaultStr(&opt.Cluster.Auth, os.Getenv("HOTSHARDD_AUTH"))
	defaultInt(&opt.Capture.Duration, 60)
	defaultInt(&opt.Capture.Grace, 10)
	defaultInt(&opt.Capture.DialTimeout, 5)
	defaultStr(&opt.Status.Bind, "0.0.0.0:8070")
	defaultStr(&opt.Queue.Dir, "/var/lib/hotshardd")
	defaultStr(&opt.Queue.Name, "hotshardd")
	defaultInt(&opt.Queue.SyncEvery, 100)
	defaultStr(&opt.OutputLocal.Dir, "/var/log/hotshardd")
	defaultStrSlice(&opt.OutputES.URLs, []string{"http://127.0.0.1:9200"})
	defaultInt(&opt.OutputES.BatchSize, 100)
	defaultInt(&opt.OutputES.BatchTimeout, 3)
	defaultInt(&opt.OutputES.BatchRate, 1000)
	defaultInt(&opt.OutputES.BatchBurst, 10000)
	defaultStr(&opt.OutputS3.Prefix, "hotshard")
	defaultStr(&opt.OutputS3.Region, opt.Cluster.Region)
	defaultInt(&opt.OutputS3.BatchSize, 5000)
	defaultInt(&opt.OutputS3.FlushInterval, 30)
	defaultInt(&opt.OutputS3.Retries, 3)
	defaultInt(&opt.Sampler.TopKeys, 100)
	defaultInt(&opt.Sampler.Rate, 100)
	defaultInt(&opt.Sampler.Burst, 100)
	return
}

func defaultStr(v *string, defaultValue string) {
	*v = strings.TrimSpace(*v)
	if len(*v) == 0 {
		*v = defaultValue
	}
}

func defaultStrSlice(v *[]string, defaultValue []string) {
	if len(*v) == 0 {
		*v = defaultValue
	}
}

func defaultInt(v *int, defaultValue int) {
	if *v <= 0 {
		*v = defaultValue
	}
}
