package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(ttl time.Duration) *Registry {
	r := NewRegistry(ttl)
	return r
}

func TestIssueAndResolve(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	token, err := r.Issue("u1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(token), 40)

	userID, err := r.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, "u1", userID)
}

func TestResolveUnknownToken(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	_, err := r.Resolve("nope")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestIssueIsUniquePerSession(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	t1, err := r.Issue("u1")
	require.NoError(t, err)
	t2, err := r.Issue("u1")
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)

	// both sessions stay live concurrently
	u, err := r.Resolve(t1)
	require.NoError(t, err)
	require.Equal(t, "u1", u)
	u, err = r.Resolve(t2)
	require.NoError(t, err)
	require.Equal(t, "u1", u)
}

func TestRevokeIsIdempotent(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	token, err := r.Issue("u1")
	require.NoError(t, err)

	r.Revoke(token)
	r.Revoke(token)

	_, err = r.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestIdleSessionExpires(t *testing.T) {
	r := newTestRegistry(time.Minute)
	defer r.Close()

	now := time.Now()
	r.now = func() time.Time { return now }

	token, err := r.Issue("u1")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = r.Resolve(token)
	require.NoError(t, err)

	// resolve refreshed last_active, so another 30s keeps it alive
	now = now.Add(30 * time.Second)
	_, err = r.Resolve(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = r.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSweepRemovesExpired(t *testing.T) {
	r := newTestRegistry(time.Minute)
	defer r.Close()

	now := time.Now()
	r.now = func() time.Time { return now }

	token, err := r.Issue("u1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	r.sweep()

	r.mu.RLock()
	_, ok := r.sessions[token]
	r.mu.RUnlock()
	require.False(t, ok)
}

func TestConcurrentIssueAndResolve(t *testing.T) {
	r := newTestRegistry(time.Hour)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := r.Issue("u1")
			require.NoError(t, err)
			userID, err := r.Resolve(token)
			require.NoError(t, err)
			require.Equal(t, "u1", userID)
			r.Revoke(token)
		}()
	}
	wg.Wait()
}
