package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskcal/internal/domain"
)

var errStaleListing = errors.New("listing superseded by a write")

// Cache wraps a Store with Redis-backed caching for listings. Every result
// set of an owner lives in one hash so a write evicts them all at once.
// Writes also bump a per-owner generation; a listing read before the bump
// is never cached after it.
type Cache struct {
	base  Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context, q Query) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, q); ok {
		return tasks, nil
	}

	gen, cacheable := c.generation(ctx, q.OwnerID)
	tasks, err := c.base.List(ctx, q)
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.store(ctx, q, tasks, gen)
	}
	return tasks, nil
}

func (c *Cache) Create(ctx context.Context, ownerID string, in domain.NewTask) (domain.Task, error) {
	t, err := c.base.Create(ctx, ownerID, in)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return t, nil
}

func (c *Cache) Update(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := c.base.Update(ctx, ownerID, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return t, nil
}

func (c *Cache) Delete(ctx context.Context, ownerID, id string) error {
	if err := c.base.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) load(ctx context.Context, q Query) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := tasksCacheKey(q.OwnerID)
	data, err := c.redis.HGet(ctx, key, q.CacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

// generation returns the owner's write generation. It reports false when
// Redis cannot be consulted, in which case nothing is cached.
func (c *Cache) generation(ctx context.Context, ownerID string) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, tasksGenKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	return gen, err == nil
}

// store caches tasks only if no write bumped the owner's generation since
// gen was read. WATCH aborts the transaction if one lands in between.
func (c *Cache) store(ctx context.Context, q Query, tasks []domain.Task, gen int64) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	key, genKey := tasksCacheKey(q.OwnerID), tasksGenKey(q.OwnerID)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleListing
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, q.CacheKey(), data)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, tasksGenKey(ownerID))
		pipe.Del(ctx, tasksCacheKey(ownerID))
		return nil
	})
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}

func tasksGenKey(ownerID string) string {
	return "tasks-gen:" + ownerID
}
