package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a key stays reserved or replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle of a stored key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Reserve.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should do the work.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means the work is done; Record holds the stored response.
	ReservationStateCompleted
	// ReservationStatePending means another caller holds the key.
	ReservationStatePending
)

// Reservation is returned by Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state of a key.
type Record struct {
	Key             string              `json:"key" firestore:"key"`
	Fingerprint     string              `json:"fingerprint" firestore:"fingerprint"`
	Status          Status              `json:"status" firestore:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty" firestore:"response_status"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty" firestore:"response_headers"`
	ResponseBody    []byte              `json:"responseBody,omitempty" firestore:"response_body"`
	CreatedAt       time.Time           `json:"createdAt" firestore:"created_at"`
	UpdatedAt       time.Time           `json:"updatedAt" firestore:"updated_at"`
	ExpiresAt       time.Time           `json:"expiresAt" firestore:"expires_at"`
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the result stored against a completed key. HTTP callers store the response they wrote;
// other callers store whatever payload they need to replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and their results.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func completeRecord(record Record, resp Response, now time.Time, ttl time.Duration) Record {
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = storableHeaders(resp.Headers)
	record.ResponseBody = nil
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	return record
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// storageID hashes the caller's key so arbitrary header values are safe as document ids and Redis keys.
func storageID(key string) string {
	return digest([]byte(strings.TrimSpace(key)))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := hopHeaders[canonical]; skip {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
