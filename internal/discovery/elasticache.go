package discovery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/rs/zerolog/log"

	"hotshardd/types"
)

type ElastiCacheSourceOptions struct {
	ReplicationGroupID string
	Region             string
	// Role selects which endpoint of each node group to monitor; replicas
	// by default so MONITOR load stays off the primaries
	Role types.ShardRole
}

// ElastiCacheSource resolves the shard topology of an ElastiCache
// replication group through the AWS control plane.
type ElastiCacheSource struct {
	optGroupID string
	optRole    types.ShardRole

	client *elasticache.Client
}

func NewElastiCacheSource(ctx context.Context, opts ElastiCacheSourceOptions) (*ElastiCacheSource, error) {
	if len(opts.ReplicationGroupID) == 0 {
		return nil, fmt.Errorf("discovery: replication group id is not set")
	}
	if len(opts.Role) == 0 {
		opts.Role = types.RoleReplica
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, err
	}
	return &ElastiCacheSource{
		optGroupID: opts.ReplicationGroupID,
		optRole:    opts.Role,
		client:     elasticache.NewFromConfig(cfg),
	}, nil
}

func (s *ElastiCacheSource) Discover(ctx context.Context) ([]types.ShardInfo, error) {
	out, err := s.client.DescribeReplicationGroups(ctx, &elasticache.DescribeReplicationGroupsInput{
		ReplicationGroupId: aws.String(s.optGroupID),
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: %s: %w", s.optGroupID, err)
	}
	if len(out.ReplicationGroups) == 0 {
		return nil, fmt.Errorf("discovery: replication group %s not found", s.optGroupID)
	}

	var shards []types.ShardInfo
	for _, group := range out.ReplicationGroups[0].NodeGroups {
		for _, member := range group.NodeGroupMembers {
			role := types.ShardRole(aws.ToString(member.CurrentRole))
			if role != s.optRole {
				continue
			}
			endpoint := member.ReadEndpoint
			if role == types.RolePrimary && group.PrimaryEndpoint != nil {
				endpoint = group.PrimaryEndpoint
			}
			if endpoint == nil {
				continue
			}
			shards = append(shards, types.ShardInfo{
				Name: aws.ToString(member.CacheClusterId),
				Host: aws.ToString(endpoint.Address),
				Port: int(aws.ToInt32(endpoint.Port)),
				Role: role,
			})
		}
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("discovery: replication group %s has no %s endpoints", s.optGroupID, s.optRole)
	}
	log.Info().Str("group", s.optGroupID).Int("shards", len(shards)).Msg("elasticache topology resolved")
	return shards, nil
}
