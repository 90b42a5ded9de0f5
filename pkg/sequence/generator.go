package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-readable codes for records users see on
// statements and support tickets.
type Generator interface {
	NextWithdrawalCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

// NextWithdrawalCode returns codes like WD-20250830-000042, numbered per
// UTC day. The counter key expires two days out so stale days clean up.
func (g *RedisGenerator) NextWithdrawalCode(ctx context.Context) (string, error) {
	day := time.Now().UTC().Format("20060102")
	key := fmt.Sprintf("seq:withdrawal:%s", day)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}
	if seq == 1 {
		g.rdb.Expire(ctx, key, 48*time.Hour)
	}

	return fmt.Sprintf("WD-%s-%06d", day, seq), nil
}
