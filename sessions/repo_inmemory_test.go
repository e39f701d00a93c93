package sessions

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dhowlett/go-login-server/identity"
)

const (
	testAnonTTL  = 15 * time.Minute
	testAuthTTL  = 24 * time.Hour
	testStateTTL = 10 * time.Minute
)

// newTestRepo returns a repo whose clock can be advanced at will.
func newTestRepo(t *testing.T) (*InMemoryRepo, *time.Time) {
	t.Helper()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := NewInMemoryRepo(testAnonTTL, testAuthTTL, testStateTTL)
	repo.now = func() time.Time { return now }
	return repo, &now
}

func testIdentity() identity.Identity {
	return identity.Identity{Subject: "abc123", Provider: "linkedin"}
}

func TestCreateAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)

	created, err := repo.Create()
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.Authenticated())

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = repo.Get("no-such-session")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpiredBehavesLikeAbsent(t *testing.T) {
	repo, now := newTestRepo(t)

	s, err := repo.Create()
	require.NoError(t, err)

	*now = now.Add(testAnonTTL + time.Second)

	_, err = repo.Get(s.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The expired record must be gone for every other operation too.
	require.ErrorIs(t, repo.SetPendingState(s.ID, "state"), ErrSessionNotFound)
	_, err = repo.Authenticate(s.ID, testIdentity())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConsumeState(t *testing.T) {
	t.Run("matching state succeeds once", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		s, _ := repo.Create()
		require.NoError(t, repo.SetPendingState(s.ID, "tok-1"))

		require.NoError(t, repo.ConsumeState(s.ID, "tok-1"))
		// Single use: replaying the same state must fail.
		require.ErrorIs(t, repo.ConsumeState(s.ID, "tok-1"), ErrInvalidState)
	})

	t.Run("mismatch fails and burns the pending token", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		s, _ := repo.Create()
		require.NoError(t, repo.SetPendingState(s.ID, "tok-1"))

		require.ErrorIs(t, repo.ConsumeState(s.ID, "wrong"), ErrInvalidState)
		require.ErrorIs(t, repo.ConsumeState(s.ID, "tok-1"), ErrInvalidState)
	})

	t.Run("no pending token fails", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		s, _ := repo.Create()
		require.ErrorIs(t, repo.ConsumeState(s.ID, "tok-1"), ErrInvalidState)
	})

	t.Run("empty received state fails", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		s, _ := repo.Create()
		require.NoError(t, repo.SetPendingState(s.ID, "tok-1"))
		require.ErrorIs(t, repo.ConsumeState(s.ID, ""), ErrInvalidState)
	})

	t.Run("expired token fails", func(t *testing.T) {
		repo, now := newTestRepo(t)
		s, _ := repo.Create()
		require.NoError(t, repo.SetPendingState(s.ID, "tok-1"))

		*now = now.Add(testStateTTL + time.Second)
		require.ErrorIs(t, repo.ConsumeState(s.ID, "tok-1"), ErrInvalidState)
	})

	t.Run("new state replaces the pending one", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		s, _ := repo.Create()
		require.NoError(t, repo.SetPendingState(s.ID, "tok-1"))
		require.NoError(t, repo.SetPendingState(s.ID, "tok-2"))

		require.ErrorIs(t, repo.ConsumeState(s.ID, "tok-1"), ErrInvalidState)
	})

	t.Run("unknown session fails", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		require.ErrorIs(t, repo.ConsumeState("no-such", "tok-1"), ErrInvalidState)
	})
}

func TestConsumeStateRace(t *testing.T) {
	repo, _ := newTestRepo(t)
	s, _ := repo.Create()
	require.NoError(t, repo.SetPendingState(s.ID, "tok-1"))

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- repo.ConsumeState(s.ID, "tok-1")
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, ErrInvalidState)
		}
	}
	require.Equal(t, 1, winners, "exactly one concurrent callback may consume the state")
}

func TestAuthenticateRotatesSessionID(t *testing.T) {
	repo, _ := newTestRepo(t)
	anon, _ := repo.Create()

	authed, err := repo.Authenticate(anon.ID, testIdentity())
	require.NoError(t, err)
	require.NotEqual(t, anon.ID, authed.ID, "session id must rotate on authentication")
	require.True(t, authed.Authenticated())
	require.Equal(t, "abc123", authed.Identity.Subject)

	// The pre-auth id must be dead.
	_, err = repo.Get(anon.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	got, err := repo.Get(authed.ID)
	require.NoError(t, err)
	require.True(t, got.Authenticated())
}

func TestAuthenticatedSessionUsesLongTTL(t *testing.T) {
	repo, now := newTestRepo(t)
	anon, _ := repo.Create()
	authed, err := repo.Authenticate(anon.ID, testIdentity())
	require.NoError(t, err)

	// Well past the anonymous TTL but within the authenticated one.
	*now = now.Add(testAnonTTL + time.Hour)
	_, err = repo.Get(authed.ID)
	require.NoError(t, err)

	*now = now.Add(testAuthTTL)
	_, err = repo.Get(authed.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	s, _ := repo.Create()

	require.NoError(t, repo.Delete(s.ID))
	require.NoError(t, repo.Delete(s.ID))
	require.NoError(t, repo.Delete("never-existed"))

	_, err := repo.Get(s.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPurgeExpired(t *testing.T) {
	repo, now := newTestRepo(t)

	stale, _ := repo.Create()
	*now = now.Add(testAnonTTL + time.Second)
	fresh, _ := repo.Create()

	require.Equal(t, 1, repo.PurgeExpired())
	require.Equal(t, 0, repo.PurgeExpired())

	_, err := repo.Get(stale.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.Get(fresh.ID)
	require.NoError(t, err)
}
