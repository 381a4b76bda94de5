package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. It backs local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := storageID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok || existing.expired(now) {
		record := pendingRecord(key, fingerprint, now, normalizeTTL(ttl))
		s.records[id] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	if existing.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if existing.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: existing}, nil
	}
	return Reservation{State: ReservationStatePending, Record: existing}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := storageID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint}
	} else if record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completeRecord(record, resp, now, normalizeTTL(ttl))
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	delete(s.records, storageID(key))
	s.mu.Unlock()
	return nil
}

// Sweep drops expired records and reports how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if record.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}
