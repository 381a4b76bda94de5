package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/brickmini/storefront/internal/checkout"
)

const (
	interruptedSubmission = "Your previous checkout attempt was interrupted. Please try again."
	defaultIdleTimeout    = 15 * time.Minute
)

// ErrNotFound is returned when a valid token refers to a session that no longer exists.
var ErrNotFound = errors.New("session: not found")

// Logger receives structured session events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Session is the client's handle on a shopper session.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type entry struct {
	ctrl      *checkout.Controller
	persistMu sync.Mutex
	mu        sync.Mutex
	revision  int64
	saved     int64
	// lastSeen is guarded by Manager.mu.
	lastSeen time.Time
}

// Manager maps session tokens onto live checkout controllers, restoring them from the store on demand
// and persisting their state after each change.
type Manager struct {
	checkout *checkout.Service
	store    Store
	tokens   *Tokens
	newID    func() string
	clock    func() time.Time
	idle     time.Duration
	logger   Logger

	mu   sync.Mutex
	live map[string]*entry
}

// ManagerDeps wires a Manager.
type ManagerDeps struct {
	Checkout    *checkout.Service
	Store       Store
	Tokens      *Tokens
	IDGenerator func() string
	Clock       func() time.Time
	// IdleTimeout bounds how long an untouched controller stays in process. Defaults to 15 minutes.
	IdleTimeout time.Duration
	Logger      Logger
}

// NewManager validates deps and returns a Manager. A nil Store keeps state in process only.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Checkout == nil {
		return nil, errors.New("session: checkout service is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("session: token codec is required")
	}
	m := &Manager{
		checkout: deps.Checkout,
		store:    deps.Store,
		tokens:   deps.Tokens,
		newID:    deps.IDGenerator,
		clock:    deps.Clock,
		idle:     deps.IdleTimeout,
		logger:   deps.Logger,
		live:     map[string]*entry{},
	}
	if m.store == nil {
		m.store = NewMemoryStore(nil)
	}
	if m.newID == nil {
		m.newID = func() string { return ulid.Make().String() }
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.idle <= 0 {
		m.idle = defaultIdleTimeout
	}
	if m.logger == nil {
		m.logger = func(context.Context, string, map[string]any) {}
	}
	return m, nil
}

// Create starts a new empty session.
func (m *Manager) Create(ctx context.Context) (Session, error) {
	id := m.newID()
	token, expires, err := m.tokens.Issue(id)
	if err != nil {
		return Session{}, err
	}
	e := m.attach(id, checkout.Initial())
	if err := m.persist(ctx, id, e, true); err != nil {
		m.detach(id)
		return Session{}, err
	}
	m.logger(ctx, "session.created", map[string]any{"sessionId": id})
	return Session{ID: id, Token: token, ExpiresAt: expires}, nil
}

// Resolve verifies token and returns the session id.
func (m *Manager) Resolve(token string) (string, error) {
	return m.tokens.Parse(token)
}

// Controller returns the live controller for id, restoring it from the store when needed.
func (m *Manager) Controller(ctx context.Context, id string) (*checkout.Controller, error) {
	m.mu.Lock()
	e, ok := m.live[id]
	if ok {
		e.lastSeen = m.clock()
	}
	m.mu.Unlock()
	if ok {
		return e.ctrl, nil
	}

	state, found, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if state.Busy() {
		// The process that ran this submission is gone; release the checkout.
		if next, err := checkout.Reduce(state, checkout.Aborted{Message: interruptedSubmission}); err == nil {
			state = next
		}
		m.logger(ctx, "session.submission_interrupted", map[string]any{"sessionId": id})
	}

	e = m.newEntry(state)
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.live[id]; ok {
		existing.lastSeen = m.clock()
		return existing.ctrl, nil
	}
	e.lastSeen = m.clock()
	m.live[id] = e
	return e.ctrl, nil
}

// Persist writes the session's state if it changed since the last save.
func (m *Manager) Persist(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.live[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return m.persist(ctx, id, e, false)
}

// End closes the session's controller and deletes its state. In-flight submissions still finish
// but no longer change any state.
func (m *Manager) End(ctx context.Context, id string) error {
	if e := m.detach(id); e != nil {
		e.ctrl.Close()
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger(ctx, "session.ended", map[string]any{"sessionId": id})
	return nil
}

// Evict drops the in-process controller without deleting stored state.
func (m *Manager) Evict(id string) {
	if e := m.detach(id); e != nil {
		e.ctrl.Close()
	}
}

// Sweep flushes and closes controllers idle for longer than the idle timeout. Stored state is kept,
// so the next request restores it from the store. Controllers with a submission in flight stay.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.clock()
	m.mu.Lock()
	idle := make(map[string]*entry)
	for id, e := range m.live {
		if now.Sub(e.lastSeen) >= m.idle {
			idle[id] = e
		}
	}
	m.mu.Unlock()

	removed := 0
	for id, e := range idle {
		if e.ctrl.Snapshot().Busy() {
			continue
		}
		if err := m.persist(ctx, id, e, false); err != nil {
			continue
		}
		m.mu.Lock()
		current, ok := m.live[id]
		evict := ok && current == e && now.Sub(e.lastSeen) >= m.idle
		if evict {
			delete(m.live, id)
		}
		m.mu.Unlock()
		if evict {
			e.ctrl.Close()
			removed++
		}
	}
	if removed > 0 {
		m.logger(ctx, "session.swept", map[string]any{"count": removed})
	}
	return removed
}

// Live reports the number of in-process controllers.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) newEntry(state checkout.State) *entry {
	e := &entry{revision: state.Revision, saved: -1}
	e.ctrl = m.checkout.Controller(state, checkout.WithObserver(func(s checkout.State) {
		e.mu.Lock()
		e.revision = s.Revision
		e.mu.Unlock()
	}))
	return e
}

func (m *Manager) attach(id string, state checkout.State) *entry {
	e := m.newEntry(state)
	m.mu.Lock()
	e.lastSeen = m.clock()
	m.live[id] = e
	m.mu.Unlock()
	return e
}

func (m *Manager) detach(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live[id]
	if !ok {
		return nil
	}
	delete(m.live, id)
	return e
}

func (m *Manager) persist(ctx context.Context, id string, e *entry, force bool) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	state := e.ctrl.Snapshot()
	e.mu.Lock()
	if !force && state.Revision == e.saved && e.revision == e.saved {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := m.store.Save(ctx, id, state, m.tokens.TTL()); err != nil {
		m.logger(ctx, "session.persist_failed", map[string]any{"sessionId": id, "error": err.Error()})
		return err
	}
	e.mu.Lock()
	if state.Revision > e.saved {
		e.saved = state.Revision
	}
	e.mu.Unlock()
	return nil
}
