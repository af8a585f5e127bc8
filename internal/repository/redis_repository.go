package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis_v9 "github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix   = "notification:lock:"
	statusKeyPrefix = "notification:job:"
)

// releaseScript deletes the lock only when it still holds our token, so an
// expired lock re-acquired by another worker is never released by us.
var releaseScript = redis_v9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisRepo struct {
	client *redis_v9.Client
}

func NewRedisRepo(client *redis_v9.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := lockKeyPrefix + name
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, name)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis_v9.Nil) {
			return fmt.Errorf("error releasing lock %s: %w", name, err)
		}
		return nil
	}
	return release, nil
}

// SaveStatus caches the last run status of a job.
func (r *RedisRepo) SaveStatus(ctx context.Context, job string, status any, ttl time.Duration) error {
	val, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("error encoding job status: %w", err)
	}
	if err := r.client.Set(ctx, statusKeyPrefix+job, val, ttl).Err(); err != nil {
		return fmt.Errorf("error saving job status: %w", err)
	}
	return nil
}

// LoadStatus decodes the cached status into model. It reports false when no
// status has been cached yet.
func (r *RedisRepo) LoadStatus(ctx context.Context, job string, model any) (bool, error) {
	raw, err := r.client.Get(ctx, statusKeyPrefix+job).Bytes()
	if err != nil {
		if errors.Is(err, redis_v9.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("error loading job status: %w", err)
	}
	return true, json.Unmarshal(raw, model)
}
