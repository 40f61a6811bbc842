package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisRoomCache caches rooms under two keys, one per lookup form.
type RedisRoomCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRoomCache caches rooms in rdb for ttl.
func NewRedisRoomCache(rdb *redis.Client, ttl time.Duration) *RedisRoomCache {
	return &RedisRoomCache{rdb: rdb, ttl: ttl}
}

func roomIDKey(id uint) string {
	return fmt.Sprintf("rooms:id:%d", id)
}
func roomSlugKey(slug string) string {
	return fmt.Sprintf("rooms:slug:%s", slug)
}

func (c *RedisRoomCache) GetByID(ctx context.Context, id uint) (models.Room, bool, error) {
	return c.get(ctx, roomIDKey(id))
}

// GetBySlug resolves the slug index first, then loads the room record.
func (c *RedisRoomCache) GetBySlug(ctx context.Context, slug string) (models.Room, bool, error) {
	idStr, err := c.rdb.Get(ctx, roomSlugKey(slug)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Room{}, false, nil
	}
	if err != nil {
		return models.Room{}, false, err
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		// corrupt index entry, treat as a miss
		return models.Room{}, false, nil
	}
	return c.get(ctx, roomIDKey(uint(id)))
}

func (c *RedisRoomCache) get(ctx context.Context, key string) (models.Room, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Room{}, false, nil
	}
	if err != nil {
		return models.Room{}, false, err
	}
	var r models.Room
	if err := json.Unmarshal(val, &r); err != nil {
		return models.Room{}, false, err
	}
	return r, true, nil
}

// Put writes the record and its slug index atomically.
func (c *RedisRoomCache) Put(ctx context.Context, room models.Room) error {
	b, err := json.Marshal(room)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, roomIDKey(room.ID), b, c.ttl)
	pipe.Set(ctx, roomSlugKey(room.Slug), strconv.FormatUint(uint64(room.ID), 10), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}
