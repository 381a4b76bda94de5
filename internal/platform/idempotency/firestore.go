package idempotency

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/brickmini/storefront/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore keeps reservations in a Firestore collection. Expired documents are treated as absent;
// a TTL policy on expires_at removes them.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// FirestoreOption customises a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if n := strings.TrimSpace(name); n != "" {
			s.collection = n
		}
	}
}

func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{provider: provider, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(storageID(key)), nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = normalizeTTL(ttl)
	ref, err := s.ref(ctx, key)
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if !found || existing.expired(now) {
			record := pendingRecord(key, fingerprint, now, ttl)
			result = Reservation{State: ReservationStateNew, Record: record}
			return tx.Set(ref, record)
		}
		if existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		state := ReservationStatePending
		if existing.Status == StatusCompleted {
			state = ReservationStateCompleted
		}
		result = Reservation{State: state, Record: existing}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ttl = normalizeTTL(ttl)
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if !found {
			record = Record{Key: key, Fingerprint: fingerprint}
		} else if record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		return tx.Set(ref, completeRecord(record, resp, now, ttl))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && !pfirestore.IsNotFound(err) {
		return pfirestore.WrapError(s.collection+".release", err)
	}
	return nil
}

func readRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var record Record
	if err := snap.DataTo(&record); err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}
