package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gridware/assetgraph/internal/platform/envutil"
	"github.com/gridware/assetgraph/internal/platform/logger"
)

// PendingRegistry reads the external set of write ids not yet confirmed
// durable. The set is maintained by the store-side confirmation process;
// this client only polls membership.
type PendingRegistry struct {
	log *logger.Logger
	rdb *goredis.Client
	key string
}

func NewPendingRegistry(log *logger.Logger) (*PendingRegistry, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	key := envutil.String("MATERIALIZE_PENDING_SET", "materialize:pending")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &PendingRegistry{
		log: log.With("client", "RedisPendingRegistry"),
		rdb: rdb,
		key: key,
	}, nil
}

// Unconfirmed returns the subset of ids still in the pending set.
func (r *PendingRegistry) Unconfirmed(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	flags, err := r.rdb.SMIsMember(ctx, r.key, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smismember: %w", err)
	}
	still := make([]string, 0, len(ids))
	for i, pending := range flags {
		if i < len(ids) && pending {
			still = append(still, ids[i])
		}
	}
	return still, nil
}

func (r *PendingRegistry) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
