package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultSignedURLExpiry = time.Hour
	// MaxSignedURLExpiry is the longest lifetime a V4 signed URL may have.
	MaxSignedURLExpiry = 7 * 24 * time.Hour
)

var (
	errNoSigner         = errors.New("storage: signer is required")
	errInvalidBucket    = errors.New("storage: bucket name is required")
	errInvalidObject    = errors.New("storage: object name is required")
	errMethodNotAllowed = errors.New("storage: only GET and HEAD may be signed")
	errExpiryTooLong    = errors.New("storage: expiry exceeds permitted maximum")
)

// Client generates read-only signed URLs for objects in private buckets.
type Client struct {
	signer Signer
	scheme storage.SigningScheme
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme storage.SigningScheme) ClientOption {
	return func(c *Client) {
		if scheme != 0 {
			c.scheme = scheme
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	client := &Client{
		signer: signer,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// DownloadOptions control how a signed download URL behaves.
type DownloadOptions struct {
	Method       string
	ExpiresIn    time.Duration
	CacheControl string
	ResponseType string
	Query        map[string]string
}

// SignedURLResult describes a generated signed URL.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// SignedURL signs a download URL for bucket/object.
func (c *Client) SignedURL(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = httpMethodGet
	}
	if method != httpMethodGet && method != httpMethodHead {
		return SignedURLResult{}, errMethodNotAllowed
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultSignedURLExpiry
	}
	if expiry > MaxSignedURLExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}

	query := map[string]string{}
	if opts.CacheControl != "" {
		query["response-cache-control"] = opts.CacheControl
	}
	if opts.ResponseType != "" {
		query["response-content-type"] = opts.ResponseType
	}
	for key, value := range opts.Query {
		if _, exists := query[key]; !exists {
			query[key] = value
		}
	}

	expiresAt := c.now().Add(expiry)
	urlOpts := storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         method,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}
	if len(query) > 0 {
		urlOpts.QueryParameters = mapToURLValues(query)
	}

	signed, err := storage.SignedURL(bucket, object, &urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURLResult{URL: signed, Method: method, ExpiresAt: expiresAt}, nil
}

const (
	httpMethodGet  = "GET"
	httpMethodHead = "HEAD"
)

func mapToURLValues(values map[string]string) url.Values {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(url.Values, len(values))
	for _, key := range keys {
		out.Add(key, values[key])
	}
	return out
}
