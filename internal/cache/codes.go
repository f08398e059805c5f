package cache

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/Wynand91/fedauth/internal/token"
)

const codePrefix = "auth_code:"

// NewCode mints a random url-safe exchange code.
func NewCode(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeStore holds short-lived exchange codes mapped to token pairs. Take is
// atomic get-and-delete: concurrent exchanges of the same code yield the pair
// to at most one caller.
type CodeStore interface {
	Put(ctx context.Context, code string, pair token.Pair, ttl time.Duration) error
	Take(ctx context.Context, code string) (token.Pair, bool, error)
}

// RedisCodeStore implements CodeStore on Redis, using GETDEL for single-use
// retrieval.
type RedisCodeStore struct {
	client redis.UniversalClient
}

var _ CodeStore = (*RedisCodeStore)(nil)

// NewRedisCodeStore constructs a Redis-backed code store.
func NewRedisCodeStore(client redis.UniversalClient) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Put(ctx context.Context, code string, pair token.Pair, ttl time.Duration) error {
	payload, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal token pair: %w", err)
	}
	if err := s.client.Set(ctx, codePrefix+code, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist exchange code: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Take(ctx context.Context, code string) (token.Pair, bool, error) {
	payload, err := s.client.GetDel(ctx, codePrefix+code).Bytes()
	if err != nil {
		if err == redis.Nil {
			return token.Pair{}, false, nil
		}
		return token.Pair{}, false, fmt.Errorf("take exchange code: %w", err)
	}
	var pair token.Pair
	if err := json.Unmarshal(payload, &pair); err != nil {
		return token.Pair{}, false, fmt.Errorf("decode token pair: %w", err)
	}
	return pair, true, nil
}

// MemoryCodeStore implements CodeStore in-process. The mutex makes Take a
// single critical section so the single-use guarantee holds under concurrency.
type MemoryCodeStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

var _ CodeStore = (*MemoryCodeStore)(nil)

// NewMemoryCodeStore constructs an in-memory code store.
func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (s *MemoryCodeStore) Put(_ context.Context, code string, pair token.Pair, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(codePrefix+code, pair, ttl)
	return nil
}

func (s *MemoryCodeStore) Take(_ context.Context, code string) (token.Pair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.cache.Get(codePrefix + code)
	if !ok {
		return token.Pair{}, false, nil
	}
	s.cache.Delete(codePrefix + code)
	pair, ok := value.(token.Pair)
	if !ok {
		return token.Pair{}, false, fmt.Errorf("unexpected code payload type %T", value)
	}
	return pair, true, nil
}
