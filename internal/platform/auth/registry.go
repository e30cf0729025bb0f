package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Record is the persisted form of an admin session.
type Record struct {
	ID          string
	AccessToken string
	User        User
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Persister stores session records so that sessions survive a restart.
// Load returns (nil, nil) when no live record exists.
type Persister interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Registry maps session cookies to their auth stores. A store that logs out,
// for whatever reason, is removed from the registry and its record deleted.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Store
	persist  Persister
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	onEnd    []func(id string)
}

// NewRegistry creates a Registry. A nil persister keeps sessions in memory.
func NewRegistry(p Persister, ttl time.Duration, logger zerolog.Logger) *Registry {
	if p == nil {
		p = NewMemoryPersister()
	}
	return &Registry{
		sessions: make(map[string]*Store),
		persist:  p,
		ttl:      ttl,
		logger:   logger.With().Str("component", "sessions").Logger(),
		now:      time.Now,
	}
}

// Create starts a session for a freshly issued access token. The session
// ends at the earlier of the registry TTL and the token expiry.
func (r *Registry) Create(ctx context.Context, token string, user User, tokenExp time.Time) (string, *Store, error) {
	now := r.now()
	expiresAt := time.Time{}
	if r.ttl > 0 {
		expiresAt = now.Add(r.ttl)
	}
	if !tokenExp.IsZero() && (expiresAt.IsZero() || tokenExp.Before(expiresAt)) {
		expiresAt = tokenExp
	}

	rec := Record{
		ID:          uuid.NewString(),
		AccessToken: token,
		User:        user,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := r.persist.Save(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("save session: %w", err)
	}

	store := r.attach(rec)
	r.logger.Info().Str("session_id", rec.ID).Str("user", user.Email).Msg("admin session created")
	return rec.ID, store, nil
}

// OnEnd registers fn to run with the id of every session that ends. Register
// before the registry is in use.
func (r *Registry) OnEnd(fn func(id string)) {
	r.onEnd = append(r.onEnd, fn)
}

// Lookup returns the live store for id, restoring it from the persister
// when it is not in memory.
func (r *Registry) Lookup(ctx context.Context, id string) (*Store, bool, error) {
	if id == "" {
		return nil, false, nil
	}

	r.mu.Lock()
	store, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		if store.Expired(r.now()) {
			store.Logout("expired")
			return nil, false, nil
		}
		return store, store.IsAuthenticated(), nil
	}

	rec, err := r.persist.Load(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return nil, false, nil
	}
	if !rec.ExpiresAt.IsZero() && !r.now().Before(rec.ExpiresAt) {
		_ = r.persist.Delete(ctx, id)
		return nil, false, nil
	}
	return r.attach(*rec), true, nil
}

// End logs the session out.
func (r *Registry) End(id, reason string) {
	r.mu.Lock()
	store, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		store.Logout(reason)
		return
	}
	if err := r.persist.Delete(context.Background(), id); err != nil {
		r.logger.Warn().Err(err).Str("session_id", id).Msg("failed to delete session record")
	}
}

// Sweep logs out every expired session and purges expired records. It
// returns the number of in-memory sessions that were ended.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.now()
	r.mu.Lock()
	var expired []*Store
	for _, s := range r.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Logout("expired")
	}
	purged, err := r.persist.DeleteExpired(ctx, now)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to purge expired sessions")
	}
	if len(expired) > 0 || purged > 0 {
		r.logger.Info().Int("ended", len(expired)).Int("purged", purged).Msg("session sweep")
	}
	return len(expired)
}

// Len returns the number of in-memory sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// attach returns the in-memory store of rec, creating it unless a concurrent
// Lookup already did.
func (r *Registry) attach(rec Record) *Store {
	id := rec.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing
	}

	store := NewStore()
	store.SetAuth(rec.AccessToken, rec.User, rec.ExpiresAt)
	store.Subscribe(func(ev Event) {
		if ev.Kind != LoggedOut {
			return
		}
		r.mu.Lock()
		if r.sessions[id] == store {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		if err := r.persist.Delete(context.Background(), id); err != nil {
			r.logger.Warn().Err(err).Str("session_id", id).Msg("failed to delete session record")
		}
		for _, fn := range r.onEnd {
			fn(id)
		}
		r.logger.Info().Str("session_id", id).Str("reason", ev.Reason).Msg("admin session ended")
	})
	r.sessions[id] = store
	return store
}

// MemoryPersister keeps records in process memory.
type MemoryPersister struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{records: make(map[string]Record)}
}

func (m *MemoryPersister) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryPersister) Load(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryPersister) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryPersister) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.records {
		if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
