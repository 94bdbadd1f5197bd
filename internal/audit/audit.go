// Package audit records authentication events. Recording never blocks the
// request path: entries go through a bounded buffer to a single writer, and
// sink failures are logged, never returned.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"tiergate.dev/internal/ids"
	"tiergate.dev/internal/obs"
)

type EventType string

const (
	LoginSuccess       EventType = "LOGIN_SUCCESS"
	LoginFailed        EventType = "LOGIN_FAILED"
	Logout             EventType = "LOGOUT"
	TokenRefresh       EventType = "TOKEN_REFRESH"
	TokenRefreshFailed EventType = "TOKEN_REFRESH_FAILED"
	PasswordChanged    EventType = "PASSWORD_CHANGED"
	AccountSuspended   EventType = "ACCOUNT_SUSPENDED"
	AccountApproved    EventType = "ACCOUNT_APPROVED"
	AccountRejected    EventType = "ACCOUNT_REJECTED"
)

// Entry is one append-only audit record.
type Entry struct {
	ID        string            `json:"id" db:"id"`
	Event     EventType         `json:"eventType" db:"event_type"`
	UserID    string            `json:"userId,omitempty" db:"user_id"`
	Email     string            `json:"email,omitempty" db:"email"`
	TokenID   string            `json:"tokenId,omitempty" db:"token_id"`
	IP        string            `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent string            `json:"userAgent,omitempty" db:"user_agent"`
	RequestID string            `json:"requestId,omitempty" db:"request_id"`
	Details   map[string]string `json:"details,omitempty" db:"-"`
	Timestamp time.Time         `json:"timestamp" db:"created_at"`
}

// Sink persists entries. Implementations must be safe for use by a single
// writer goroutine; they need not be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

func (f SinkFunc) Write(ctx context.Context, e Entry) error { return f(ctx, e) }

var ErrClosed = errors.New("audit: recorder closed")

const (
	defaultBuffer = 256
	writeTimeout  = 5 * time.Second
)

type Option func(*Recorder)

// WithBuffer sets the number of entries that may wait for the writer.
func WithBuffer(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithErrorHandler receives entries the sink failed to store.
func WithErrorHandler(fn func(Entry, error)) Option {
	return func(r *Recorder) { r.onError = fn }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// Recorder queues entries for asynchronous delivery to a Sink.
type Recorder struct {
	sink    Sink
	buffer  int
	onError func(Entry, error)
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, buffer: defaultBuffer, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan Entry, r.buffer)
	r.done = make(chan struct{})
	go r.run()
	return r
}

// Record stamps e and queues it. It reports false when the entry was dropped
// because the buffer is full or the recorder is closed. A nil Recorder
// drops everything.
func (r *Recorder) Record(ctx context.Context, e Entry) bool {
	if r == nil {
		return false
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	if e.ID == "" {
		e.ID = ids.NewAt(e.Timestamp)
	}
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- e:
		return true
	default:
		obs.AuditDropped()
		log := obs.Logger()
		log.Warn().Str("event", string(e.Event)).Str("audit_id", e.ID).Msg("audit buffer full, entry dropped")
		return false
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.write(e)
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := r.sink.Write(ctx, e)
	if err == nil {
		return
	}
	log := obs.Logger()
	log.Error().Err(err).Str("event", string(e.Event)).Str("audit_id", e.ID).Msg("audit write failed")
	if r.onError != nil {
		r.onError(e, err)
	}
}
