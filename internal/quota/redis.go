package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding provider -> YYYY-MM-DD.
const DefaultRedisKey = "quota:exhausted"

// markScript keeps the newest date: HSET only when the field is missing or older.
var markScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if (not cur) or cur < ARGV[2] then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

var pruneScript = redis.NewScript(`
local all = redis.call('HGETALL', KEYS[1])
local removed = 0
for i = 1, #all, 2 do
	if all[i+1] < ARGV[1] then
		redis.call('HDEL', KEYS[1], all[i])
		removed = removed + 1
	end
end
return removed
`)

// RedisLedger shares exhaustion state between several service replicas.
type RedisLedger struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *RedisLedger {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLedger{client: client, key: key}
}

func (l *RedisLedger) IsExhausted(ctx context.Context, providerID string, today Date) (bool, error) {
	raw, err := l.client.HGet(ctx, l.key, providerID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis quota get %s: %w", providerID, err)
	}
	stored, err := ParseDate(raw)
	if err != nil {
		return false, err
	}
	return exhaustedOn(stored, today), nil
}

func (l *RedisLedger) MarkExhausted(ctx context.Context, providerID string, today Date) error {
	if err := markScript.Run(ctx, l.client, []string{l.key}, providerID, today.String()).Err(); err != nil {
		return fmt.Errorf("redis quota mark %s: %w", providerID, err)
	}
	return nil
}

func (l *RedisLedger) List(ctx context.Context) (map[string]Date, error) {
	raw, err := l.client.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis quota list: %w", err)
	}
	out := make(map[string]Date, len(raw))
	for id, v := range raw {
		d, err := ParseDate(v)
		if err != nil {
			return nil, err
		}
		out[id] = d
	}
	return out, nil
}

func (l *RedisLedger) Prune(ctx context.Context, before Date) (int, error) {
	n, err := pruneScript.Run(ctx, l.client, []string{l.key}, before.String()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis quota prune: %w", err)
	}
	return n, nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close is a no-op; the client is owned by the caller.
func (l *RedisLedger) Close() error { return nil }
