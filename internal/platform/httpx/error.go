package httpx

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/requestctx"
)

const (
	codeLimit    = 80
	messageLimit = 512
	traceLimit   = 64
	fieldLimit   = 64
)

// Error is the JSON error envelope returned by the storefront API. Fields carries per-input
// messages keyed by the request field they refer to, using the same keys as the checkout form.
type Error struct {
	Code       string
	Message    string
	Status     int
	RequestID  string
	TraceID    string
	Fields     map[string]string
	RetryAfter time.Duration
}

type envelope struct {
	Code      string            `json:"error"`
	Message   string            `json:"message"`
	Status    int               `json:"status"`
	RequestID string            `json:"request_id,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, codeLimit),
		Message: clean(message, messageLimit),
		Status:  status,
	}
}

// WithRequestID overrides the request id taken from the chi middleware.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, codeLimit)
	return e
}

// WithTraceID overrides the trace id taken from the request context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, traceLimit)
	return e
}

// WithField attaches a message for one request input, such as "productId" or "quantity".
func (e Error) WithField(name, message string) Error {
	name = clean(name, fieldLimit)
	if name == "" {
		return e
	}
	fields := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[name] = clean(message, messageLimit)
	e.Fields = fields
	return e
}

// WithFieldErrors attaches checkout form validation messages.
func (e Error) WithFieldErrors(errs domain.FieldErrors) Error {
	for field, message := range errs {
		e = e.WithField(string(field), message)
	}
	return e
}

// WithRetryAfter advertises when the client may retry; WriteError sends it as Retry-After seconds.
func (e Error) WithRetryAfter(d time.Duration) Error {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

// WriteError writes err as JSON, filling the request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := envelope{
		Code:      err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
		Fields:    err.Fields,
	}
	if body.RequestID == "" {
		body.RequestID = clean(middleware.GetReqID(ctx), codeLimit)
	}
	if body.TraceID == "" {
		body.TraceID = clean(requestctx.TraceID(ctx), traceLimit)
	}

	w.Header().Set("Content-Type", "application/json")
	if err.RetryAfter > 0 {
		seconds := int(math.Ceil(err.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clean drops control characters and truncates to limit bytes without splitting a rune.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value))
	if len(value) <= limit {
		return value
	}
	cut := 0
	for i := range value {
		if i > limit {
			break
		}
		cut = i
	}
	return value[:cut]
}
