package discovery

import (
	"context"
	"errors"

	"hotshardd/types"
)

// StaticSource serves a fixed shard list straight from configuration, for
// clusters that are not fronted by a cloud control plane.
type StaticSource struct {
	shards []types.ShardInfo
}

func NewStaticSource(shards []types.ShardInfo) (*StaticSource, error) {
	if len(shards) == 0 {
		return nil, errors.New("discovery: no shards configured")
	}
	for _, s := range shards {
		if len(s.Name) == 0 || len(s.Host) == 0 || s.Port == 0 {
			return nil, errors.New("discovery: shard is missing name, host or port")
		}
	}
	return &StaticSource{shards: shards}, nil
}

func (s *StaticSource) Discover(ctx context.Context) ([]types.ShardInfo, error) {
	out := make([]types.ShardInfo, len(s.shards))
	copy(out, s.shards)
	return out, nil
}
