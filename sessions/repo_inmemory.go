package sessions

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhowlett/go-login-server/identity"
)

// InMemoryRepo is a mutex-guarded map store. Expired records are reaped
// lazily on lookup; PurgeExpired only bounds the memory held by abandoned
// flows and is never needed for correctness.
type InMemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session

	anonTTL  time.Duration
	authTTL  time.Duration
	stateTTL time.Duration

	now func() time.Time // stubbed in tests
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates an in-memory session repository. Anonymous and
// authenticated sessions expire on independent TTLs.
func NewInMemoryRepo(anonTTL, authTTL, stateTTL time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
		anonTTL:  anonTTL,
		authTTL:  authTTL,
		stateTTL: stateTTL,
		now:      time.Now,
	}
}

// Create mints a new anonymous session.
func (r *InMemoryRepo) Create() (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(r.anonTTL),
	}
	r.sessions[s.ID] = s
	return *s, nil
}

// Get returns the session for id. Expired records behave identically to
// absent ones.
func (r *InMemoryRepo) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.live(id)
	if err != nil {
		return Session{}, err
	}
	return *s, nil
}

// SetPendingState binds a fresh state token to the session, replacing any
// previously pending one.
func (r *InMemoryRepo) SetPendingState(id, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.live(id)
	if err != nil {
		return err
	}
	s.PendingState = state
	s.StateExpiresAt = r.now().Add(r.stateTTL)
	return nil
}

// ConsumeState validates and clears the pending state token in one step
// under the lock, so concurrent callbacks racing on the same token cannot
// both succeed. The token is cleared even on mismatch: one bad callback
// burns the whole attempt and the user restarts the flow.
func (r *InMemoryRepo) ConsumeState(id, received string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.live(id)
	if err != nil {
		return ErrInvalidState
	}

	pending, expiry := s.PendingState, s.StateExpiresAt
	s.PendingState, s.StateExpiresAt = "", time.Time{}

	if pending == "" || received == "" {
		return ErrInvalidState
	}
	if r.now().After(expiry) {
		return ErrInvalidState
	}
	if subtle.ConstantTimeCompare([]byte(pending), []byte(received)) != 1 {
		return ErrInvalidState
	}
	return nil
}

// Authenticate binds the identity to the session, rotating the session
// identifier so a pre-auth id never names an authenticated session. Returns
// ErrSessionNotFound if the session expired mid-flow.
func (r *InMemoryRepo) Authenticate(id string, ident identity.Identity) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.live(id); err != nil {
		return Session{}, err
	}
	delete(r.sessions, id)

	now := r.now()
	s := &Session{
		ID:        uuid.NewString(),
		Identity:  &ident,
		CreatedAt: now,
		ExpiresAt: now.Add(r.authTTL),
	}
	r.sessions[s.ID] = s
	return *s, nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (r *InMemoryRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// PurgeExpired drops expired records and reports how many were removed.
func (r *InMemoryRepo) PurgeExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, s := range r.sessions {
		if now.After(s.ExpiresAt) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// live returns the stored record for id, deleting it first if expired.
// Callers must hold the lock.
func (r *InMemoryRepo) live(id string) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if r.now().After(s.ExpiresAt) {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}
