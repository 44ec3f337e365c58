package socialaccount

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"openpaws/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

var ErrStateNotFound = errors.New("oauth state not found")

// PendingConnect is what the callback needs to finish a connect flow.
type PendingConnect struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Platform       string `json:"platform"`
	Verifier       string `json:"verifier,omitempty"`
}

// StateStore keeps OAuth state values until their single use.
type StateStore interface {
	Put(ctx context.Context, state string, p PendingConnect, ttl time.Duration) error
	// Take returns and removes the entry.
	Take(ctx context.Context, state string) (*PendingConnect, error)
}

type redisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) StateStore {
	return &redisStateStore{rdb: rdb}
}

func (s *redisStateStore) Put(ctx context.Context, state string, p PendingConnect, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, rediskey.BuildOAuthStateKey(state), raw, ttl).Err()
}

func (s *redisStateStore) Take(ctx context.Context, state string) (*PendingConnect, error) {
	raw, err := s.rdb.GetDel(ctx, rediskey.BuildOAuthStateKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	var p PendingConnect
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type memoryEntry struct {
	p       PendingConnect
	expires time.Time
}

type memoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStateStore() StateStore {
	return &memoryStateStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *memoryStateStore) Put(_ context.Context, state string, p PendingConnect, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[state] = memoryEntry{p: p, expires: now.Add(ttl)}
	return nil
}

func (s *memoryStateStore) Take(_ context.Context, state string) (*PendingConnect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	delete(s.entries, state)
	if !ok || s.now().After(e.expires) {
		return nil, ErrStateNotFound
	}
	return &e.p, nil
}
