package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Store maps (scope, Idempotency-Key) to the contract an upload produced.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(addr, password, prefix string, ttl time.Duration) (*Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("idempotency redis addr is required")
	}
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), prefix, ttl), nil
}

func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "contracts:idempotency"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, strings.TrimSpace(key))
}

func (s *Store) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return id, true, nil
}

// Remember records the first contract produced for a key; later writes for
// the same key are ignored.
func (s *Store) Remember(ctx context.Context, scope, key, contractID string) error {
	if err := s.client.SetNX(ctx, s.key(scope, key), contractID, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
