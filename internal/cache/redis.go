package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the Redis-backed cache backend. Values are stored as JSON, so
// structured values come back as generic maps; callers that need structure
// must decode (see firmware.releaseFromCache).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "eeprom:"
	}

	return &RedisCache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(key string) (interface{}, bool) {
	data, err := c.client.Get(context.Background(), c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return value, true
}

func (c *RedisCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *RedisCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.key(key), data, ttl)
}

func (c *RedisCache) Delete(key string) {
	c.client.Del(context.Background(), c.key(key))
}

func (c *RedisCache) Clear() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
