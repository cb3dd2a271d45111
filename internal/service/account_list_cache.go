package service

import (
	"context"
	"sync"
	"time"
)

// AccountListCacheStore holds serialized admin list pages grouped by
// namespace. Any account write invalidates the whole namespace.
type AccountListCacheStore interface {
	GetWithAge(ctx context.Context, namespace, key string) ([]byte, bool, time.Duration, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

type NoopAccountListCacheStore struct{}

func NewNoopAccountListCacheStore() *NoopAccountListCacheStore {
	return &NoopAccountListCacheStore{}
}

func (s *NoopAccountListCacheStore) GetWithAge(context.Context, string, string) ([]byte, bool, time.Duration, error) {
	return nil, false, 0, nil
}

func (s *NoopAccountListCacheStore) Set(context.Context, string, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopAccountListCacheStore) InvalidateNamespace(context.Context, string) error {
	return nil
}

type cachedPage struct {
	payload   []byte
	createdAt time.Time
	expiresAt time.Time
}

type InMemoryAccountListCacheStore struct {
	mu    sync.Mutex
	now   func() time.Time
	pages map[string]map[string]cachedPage
}

func NewInMemoryAccountListCacheStore() *InMemoryAccountListCacheStore {
	return &InMemoryAccountListCacheStore{
		now:   time.Now,
		pages: make(map[string]map[string]cachedPage),
	}
}

func (s *InMemoryAccountListCacheStore) GetWithAge(_ context.Context, namespace, key string) ([]byte, bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.pages[namespace]
	page, ok := ns[key]
	if !ok {
		return nil, false, 0, nil
	}
	now := s.now().UTC()
	if !now.Before(page.expiresAt) {
		delete(ns, key)
		if len(ns) == 0 {
			delete(s.pages, namespace)
		}
		return nil, false, 0, nil
	}
	return append([]byte(nil), page.payload...), true, max(now.Sub(page.createdAt), 0), nil
}

func (s *InMemoryAccountListCacheStore) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.pages[namespace]
	if !ok {
		ns = make(map[string]cachedPage)
		s.pages[namespace] = ns
	}
	now := s.now().UTC()
	ns[key] = cachedPage{
		payload:   append([]byte(nil), value...),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (s *InMemoryAccountListCacheStore) InvalidateNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, namespace)
	return nil
}
