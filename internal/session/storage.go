package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Storage is a flat string key/value namespace scoped to one player tab.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStorage keeps values for the lifetime of the process.
type MemoryStorage struct {
	mu   sync.RWMutex
	vals map[string]string
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{vals: make(map[string]string)} }

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.vals[key] = value
	m.mu.Unlock()
	return nil
}

// RedisStorage keeps one hash per tab. Every write refreshes the TTL, so an
// abandoned tab's state disappears on its own.
type RedisStorage struct {
	rdb *redis.Client
	tab string
	ttl time.Duration
}

// NewTabID mints an id for a fresh tab namespace.
func NewTabID() string { return uuid.NewString() }

func NewRedisStorage(rdb *redis.Client, tab string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{rdb: rdb, tab: strings.TrimSpace(tab), ttl: ttl}
}

func (r *RedisStorage) key() string { return "tab:" + r.tab }

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, r.key(), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.key(), key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	return nil
}

// Tabs opens the storage namespace of one tab.
type Tabs func(tab string) Storage

// MemoryTabs keeps every tab's namespace in process.
func MemoryTabs() Tabs {
	var mu sync.Mutex
	tabs := make(map[string]*MemoryStorage)
	return func(tab string) Storage {
		mu.Lock()
		defer mu.Unlock()
		st, ok := tabs[tab]
		if !ok {
			st = NewMemoryStorage()
			tabs[tab] = st
		}
		return st
	}
}

func RedisTabs(rdb *redis.Client, ttl time.Duration) Tabs {
	return func(tab string) Storage { return NewRedisStorage(rdb, tab, ttl) }
}
