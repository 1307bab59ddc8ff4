package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// ErrInvalidSession is returned when a token is unknown, revoked, or expired.
var ErrInvalidSession = errors.New("invalid session")

const tokenBytes = 32 // 256 bits of entropy

// Store is the session surface consumed by handlers and the feed endpoint.
type Store interface {
	Issue(userID string) (string, error)
	Resolve(token string) (string, error)
	Revoke(token string)
}

type entry struct {
	userID     string
	lastActive time.Time
}

// Registry maps opaque tokens to user identities. Sessions live only in
// process memory; a restart invalidates all of them. Tokens idle longer than
// ttl are rejected and swept by a background janitor.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

// NewRegistry constructs a Registry with the given idle TTL and starts its
// janitor. Close must be called on shutdown.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Issue creates a new session for the user and returns its token. A user may
// hold any number of concurrent sessions.
func (r *Registry) Issue(userID string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	r.mu.Lock()
	r.sessions[token] = &entry{userID: userID, lastActive: r.now()}
	r.mu.Unlock()
	return token, nil
}

// Resolve returns the user id for a live token and refreshes its last-active
// time. Expired tokens are removed and reported as invalid.
func (r *Registry) Resolve(token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[token]
	if !ok {
		return "", ErrInvalidSession
	}
	now := r.now()
	if now.Sub(e.lastActive) > r.ttl {
		delete(r.sessions, token)
		return "", ErrInvalidSession
	}
	e.lastActive = now
	return e.userID, nil
}

// Revoke removes the token. Revoking an unknown token is a no-op.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// Close stops the janitor. Idempotent.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *Registry) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for token, e := range r.sessions {
		if now.Sub(e.lastActive) > r.ttl {
			delete(r.sessions, token)
		}
	}
}
