// Package sessions owns the server-side session records. The browser only
// ever holds a session id; identity payloads never leave the store.
package sessions

import (
	"errors"
	"time"

	"github.com/dhowlett/go-login-server/identity"
)

var (
	// ErrSessionNotFound covers absent and expired sessions alike; callers
	// cannot tell the two apart, on purpose.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidState covers a missing, mismatched, expired or already
	// consumed state token.
	ErrInvalidState = errors.New("invalid state token")
)

// Session is one server-side session record.
type Session struct {
	ID        string
	Identity  *identity.Identity
	CreatedAt time.Time
	ExpiresAt time.Time

	// PendingState holds the anti-forgery token for one in-flight login
	// attempt. At most one is pending per session; storing a new one
	// replaces the old.
	PendingState   string
	StateExpiresAt time.Time
}

// Authenticated reports whether the session carries an identity. A session
// without one is anonymous and exists only to hold a pending login attempt.
func (s Session) Authenticated() bool { return s.Identity != nil }

// Repo is the session store contract. Implementations must serialize
// mutations on the same session and make ConsumeState an atomic
// check-and-clear, so two racing callbacks can never both win.
type Repo interface {
	Create() (Session, error)
	Get(id string) (Session, error)
	SetPendingState(id, state string) error
	ConsumeState(id, received string) error
	Authenticate(id string, ident identity.Identity) (Session, error)
	Delete(id string) error
	PurgeExpired() int
}
