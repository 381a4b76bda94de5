package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brickmini/storefront/internal/checkout"
)

// Store persists checkout state snapshots per session id.
type Store interface {
	Load(ctx context.Context, id string) (checkout.State, bool, error)
	Save(ctx context.Context, id string, state checkout.State, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps encoded snapshots in process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: map[string]memoryEntry{}, now: now}
}

func (s *MemoryStore) Load(_ context.Context, id string) (checkout.State, bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok && !s.now().Before(entry.expiresAt) {
		delete(s.entries, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return checkout.State{}, false, nil
	}
	return decodeState(entry.payload)
}

func (s *MemoryStore) Save(_ context.Context, id string, state checkout.State, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	s.mu.Lock()
	s.entries[id] = memoryEntry{payload: payload, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired snapshots and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

const defaultRedisPrefix = "storefront:session:"

// RedisStore keeps snapshots as JSON strings with a sliding TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session: redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (checkout.State, bool, error) {
	payload, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.State{}, false, nil
	}
	if err != nil {
		return checkout.State{}, false, fmt.Errorf("session: load %s: %w", id, err)
	}
	return decodeState(payload)
}

func (s *RedisStore) Save(ctx context.Context, id string, state checkout.State, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

func decodeState(payload []byte) (checkout.State, bool, error) {
	var state checkout.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return checkout.State{}, false, fmt.Errorf("session: decode state: %w", err)
	}
	return state, true, nil
}
