package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "roomly:presence:"

// Redis keeps one sorted set per user whose members are session ids scored
// by their expiry time. Sessions that stop refreshing fall out after ttl, so
// a crashed node does not leave its users online forever.
type Redis struct {
	rdb   redis.UniversalClient
	ttl   time.Duration
	clock func() time.Time
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Redis{rdb: rdb, ttl: ttl, clock: time.Now}
}

// SetClock replaces the time source, for tests
func (p *Redis) SetClock(clock func() time.Time) {
	p.clock = clock
}

func (p *Redis) key(userID string) string {
	return keyPrefix + userID
}

func (p *Redis) Online(ctx context.Context, userID, sessionID string) error {
	key := p.key(userID)
	expireAt := p.clock().Add(p.ttl).Unix()

	pipe := p.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(expireAt), Member: sessionID})
	pipe.Expire(ctx, key, 2*p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Redis) Offline(ctx context.Context, userID, sessionID string) error {
	return p.rdb.ZRem(ctx, p.key(userID), sessionID).Err()
}

// IsOnline sweeps expired sessions and reports whether any remain
func (p *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	key := p.key(userID)
	now := strconv.FormatInt(p.clock().Unix(), 10)

	pipe := p.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", now)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() > 0, nil
}
