package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fedauth:session:"

// Store persists flow sessions under opaque string identifiers. The backend
// must provide read-after-write visibility across processes: a session written
// during auth initiation has to be loadable by the callback handler wherever
// the identity provider's redirect lands.
type Store interface {
	Load(ctx context.Context, id string) (Data, bool, error)
	Save(ctx context.Context, id string, data Data, ttl time.Duration) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore implements Store backed by Redis.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, id string) (Data, bool, error) {
	payload, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Data{}, false, nil
		}
		return Data{}, false, fmt.Errorf("load session: %w", err)
	}
	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return Data{}, false, fmt.Errorf("decode session: %w", err)
	}
	return data, true, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MemoryStore implements Store with an in-process expiring cache. Used when no
// Redis address is configured (single-process dev deployments and tests).
type MemoryStore struct {
	cache *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, 5*time.Minute)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Data, bool, error) {
	value, ok := s.cache.Get(keyPrefix + id)
	if !ok {
		return Data{}, false, nil
	}
	data, ok := value.(Data)
	if !ok {
		return Data{}, false, fmt.Errorf("unexpected session payload type %T", value)
	}
	return data, true, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, data Data, ttl time.Duration) error {
	s.cache.Set(keyPrefix+id, data, ttl)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.cache.Get(keyPrefix + id)
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(keyPrefix + id)
	return nil
}
