package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/geocoder89/taskflow/internal/cache"
	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/redis/go-redis/v9"
)

// PermissionCache memoizes a user's effective permission set. Entries must be
// dropped whenever the user's roles or the catalog change.
//
// Every invalidation advances a generation. Set only stores when the
// generation still matches the one read before the graph was consulted, so a
// set computed before a role change cannot outlive the invalidation.
type PermissionCache interface {
	Name() string
	Get(ctx context.Context, userID int64) ([]rbac.PermissionName, bool, error)
	Generation(ctx context.Context, userID int64) (Generation, error)
	Set(ctx context.Context, userID int64, gen Generation, perms []rbac.PermissionName) (stored bool, err error)
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// Generation is the invalidation state seen by one reader: the user's own
// counter and the catalog-wide one.
type Generation struct {
	User int64
	All  int64
}

type MemoryCache struct {
	mu    sync.Mutex
	c     *cache.Cache[int64, []rbac.PermissionName]
	gens  map[int64]int64
	epoch int64
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		c:    cache.New[int64, []rbac.PermissionName](ttl),
		gens: make(map[int64]int64),
	}
}

func (m *MemoryCache) Name() string { return "memory" }

func (m *MemoryCache) Get(_ context.Context, userID int64) ([]rbac.PermissionName, bool, error) {
	perms, ok := m.c.Get(userID)
	return perms, ok, nil
}

func (m *MemoryCache) Generation(_ context.Context, userID int64) (Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Generation{User: m.gens[userID], All: m.epoch}, nil
}

func (m *MemoryCache) Set(_ context.Context, userID int64, gen Generation, perms []rbac.PermissionName) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != (Generation{User: m.gens[userID], All: m.epoch}) {
		return false, nil
	}
	m.c.Set(userID, append([]rbac.PermissionName(nil), perms...))
	return true, nil
}

func (m *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	m.mu.Lock()
	m.gens[userID]++
	m.c.Delete(userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) InvalidateAll(context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.c.Clear()
	m.mu.Unlock()
	return nil
}

const (
	redisKeyPrefix = "authz:perms:"
	redisGenPrefix = "authz:gen:"
	redisEpochKey  = "authz:gen:all"
)

// RedisCache shares permission sets across API replicas. Generations live in
// plain counters without expiry so they survive the entries they guard.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (r *RedisCache) Name() string { return "redis" }

func redisKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}

func redisGenKey(userID int64) string {
	return redisGenPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisCache) Get(ctx context.Context, userID int64) ([]rbac.PermissionName, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get permissions: %w", err)
	}

	var perms []rbac.PermissionName
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false, fmt.Errorf("decode cached permissions: %w", err)
	}
	return perms, true, nil
}

func (r *RedisCache) Generation(ctx context.Context, userID int64) (Generation, error) {
	return readGeneration(ctx, r.rdb, userID)
}

// mgetter is satisfied by both *redis.Client and *redis.Tx.
type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func readGeneration(ctx context.Context, c mgetter, userID int64) (Generation, error) {
	vals, err := c.MGet(ctx, redisGenKey(userID), redisEpochKey).Result()
	if err != nil {
		return Generation{}, fmt.Errorf("redis read generation: %w", err)
	}

	var gen Generation
	for i, dst := range []*int64{&gen.User, &gen.All} {
		s, ok := vals[i].(string)
		if !ok {
			continue // never invalidated
		}
		if *dst, err = strconv.ParseInt(s, 10, 64); err != nil {
			return Generation{}, fmt.Errorf("decode generation: %w", err)
		}
	}
	return gen, nil
}

// Set writes under WATCH on both generation keys. A concurrent invalidation
// either aborts the transaction or is seen as a changed generation.
func (r *RedisCache) Set(ctx context.Context, userID int64, gen Generation, perms []rbac.PermissionName) (bool, error) {
	if perms == nil {
		perms = []rbac.PermissionName{}
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return false, err
	}

	stored := false
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey(userID), raw, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, redisGenKey(userID), redisEpochKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set permissions: %w", err)
	}
	return stored, nil
}

func (r *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, redisGenKey(userID))
		pipe.Del(ctx, redisKey(userID))
		return nil
	})
	return err
}

func (r *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := r.rdb.Incr(ctx, redisEpochKey).Err(); err != nil {
		return fmt.Errorf("bump cache epoch: %w", err)
	}

	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 200).Iterator()

	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached permissions: %w", err)
	}

	if len(batch) > 0 {
		return r.rdb.Del(ctx, batch...).Err()
	}
	return nil
}
