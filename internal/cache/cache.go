package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/contentos/contentos-backend/internal/metrics"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache key and channel names.
const (
	KeyAccounts    = "cos:accounts"
	KeySharePrefix = "cos:share:"
	ChannelEvents  = "cos:events"
)

// Cache is a Redis-backed cache plus the pub/sub channel the event fan-out
// rides on. When Redis is unreachable at startup both degrade to in-process
// equivalents, so a single-node deployment needs no Redis at all.
type Cache struct {
	client *redis.Client
	mem    *memoryCache
	hub    *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(addr string, logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-process cache and pubsub", "error", err)
		}
		return &Cache{
			mem:     newMemoryCache(),
			hub:     NewPubSubHub(),
			logger:  logger,
			metrics: m,
		}
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: m,
	}
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	var data []byte

	if c.client != nil {
		val, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				c.recordMiss(ctx, key)
				return ErrCacheMiss
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		data = val
	} else {
		val, ok := c.mem.get(key)
		if !ok {
			c.recordMiss(ctx, key)
			return ErrCacheMiss
		}
		data = val
	}

	c.recordHit(ctx, key)
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}

	c.mem.set(key, data, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}

	for _, key := range keys {
		c.mem.delete(key)
	}
	return nil
}

// Publish sends payload to everyone subscribed to channel, across instances
// when Redis backs the cache.
func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.client != nil {
		if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("publish error: %w", err)
		}
		return nil
	}

	c.hub.Publish(channel, payload)
	return nil
}

// Subscribe returns a subscription delivering messages for the channels.
// Close it when done.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *Subscription {
	if c.client != nil {
		pubsub := c.client.Subscribe(ctx, channels...)
		sub := &Subscription{
			C:     make(chan Message, 64),
			close: func() { pubsub.Close() },
		}
		go func() {
			defer close(sub.C)
			for msg := range pubsub.Channel() {
				select {
				case sub.C <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return sub
	}

	return c.hub.Subscribe(channels...)
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Cache) recordHit(ctx context.Context, key string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
}

func (c *Cache) recordMiss(ctx context.Context, key string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(ctx, key)
	}
}

// memoryCache is the DSN-less fallback: a TTL map checked on read.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (m *memoryCache) get(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		m.delete(key)
		return nil, false
	}
	return entry.data, true
}

func (m *memoryCache) set(key string, data []byte, ttl time.Duration) {
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

func (m *memoryCache) delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
