package otp

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeIfMatchScript deletes the key only when its value matches, in one
// round trip, so two drivers cannot both consume the same code.
var takeIfMatchScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is the shared, restartable Store backing the ledger when more
// than one API instance is running.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr, password string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, prefix: "otp:"}
}

func (r *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisStore) TakeIfMatch(ctx context.Context, key, value string) (bool, error) {
	n, err := takeIfMatchScript.Run(ctx, r.client, []string{r.prefix + key}, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
