package auth

import (
	"sync"
	"time"
)

// User is the signed-in admin as described by the access token claims.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EventKind distinguishes auth state transitions.
type EventKind int

const (
	LoggedIn EventKind = iota + 1
	LoggedOut
)

func (k EventKind) String() string {
	switch k {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// Event is delivered to subscribers on every state change.
type Event struct {
	Kind   EventKind
	User   User
	Reason string
}

// Store holds the auth state of one admin session: the access token and the
// user it belongs to. Login sets it, logout or a 401 from the upstream API
// clears it, and subscribers are told about both.
//
// Store implements apiclient.Credentials.
type Store struct {
	mu        sync.RWMutex
	token     string
	user      User
	expiresAt time.Time

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewStore returns an empty, signed-out store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Event))}
}

// SetAuth stores the credentials of a successful login.
func (s *Store) SetAuth(token string, user User, expiresAt time.Time) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.expiresAt = expiresAt
	s.mu.Unlock()
	s.publish(Event{Kind: LoggedIn, User: user})
}

// Logout clears the credentials. Subscribers are only notified when the
// store was signed in.
func (s *Store) Logout(reason string) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	user := s.user
	s.token = ""
	s.user = User{}
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	s.publish(Event{Kind: LoggedOut, User: user, Reason: reason})
}

// AccessToken returns the bearer token, or "" when signed out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Invalidate is called by the transport when the upstream rejects the token.
func (s *Store) Invalidate(reason string) {
	s.Logout(reason)
}

// User returns the signed-in user.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.token != ""
}

// IsAuthenticated reports whether the store holds a token.
func (s *Store) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// ExpiresAt returns when the credentials stop being usable. The zero time
// means no known expiry.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Expired reports whether the store has a known expiry before now.
func (s *Store) Expired(now time.Time) bool {
	exp := s.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
