package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAccountListCacheStore versions each namespace with a generation
// counter. Invalidation bumps the counter, so stale pages are never read again
// and simply age out through their TTL.
type RedisAccountListCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAccountListCacheStore(client redis.UniversalClient, prefix string) *RedisAccountListCacheStore {
	if prefix == "" {
		prefix = "account_list_cache"
	}
	return &RedisAccountListCacheStore{client: client, prefix: prefix}
}

// Stored values carry an 8 byte unix-nano creation stamp ahead of the payload.
const pageStampLen = 8

func (s *RedisAccountListCacheStore) GetWithAge(ctx context.Context, namespace, key string) ([]byte, bool, time.Duration, error) {
	gen, err := s.generation(ctx, namespace)
	if err != nil {
		return nil, false, 0, err
	}
	raw, err := s.client.Get(ctx, s.pageKey(namespace, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, 0, nil
	}
	if err != nil {
		return nil, false, 0, err
	}
	if len(raw) < pageStampLen {
		return nil, false, 0, nil
	}
	createdAt := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:pageStampLen])))
	return raw[pageStampLen:], true, max(time.Since(createdAt), 0), nil
}

func (s *RedisAccountListCacheStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	gen, err := s.generation(ctx, namespace)
	if err != nil {
		return err
	}
	buf := make([]byte, pageStampLen, pageStampLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))
	buf = append(buf, value...)
	return s.client.Set(ctx, s.pageKey(namespace, gen, key), buf, ttl).Err()
}

func (s *RedisAccountListCacheStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	return s.client.Incr(ctx, s.generationKey(namespace)).Err()
}

func (s *RedisAccountListCacheStore) generation(ctx context.Context, namespace string) (int64, error) {
	gen, err := s.client.Get(ctx, s.generationKey(namespace)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (s *RedisAccountListCacheStore) generationKey(namespace string) string {
	return fmt.Sprintf("%s:gen:%s", s.prefix, namespace)
}

func (s *RedisAccountListCacheStore) pageKey(namespace string, gen int64, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:page:%s:g%d:%s", s.prefix, namespace, gen, hex.EncodeToString(sum[:]))
}
