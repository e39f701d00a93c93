package server

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const sessionCookieName = "session_id"

// cookieCodec signs and encrypts the session id before it reaches the
// browser. Both securecookie keys are derived from the one configured
// session secret, so tampering or forging a cookie requires the secret.
type cookieCodec struct {
	sc *securecookie.SecureCookie
}

func newCookieCodec(secret string) (*cookieCodec, error) {
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("session cookie keys"))
	keys := make([]byte, 64)
	if _, err := io.ReadFull(kdf, keys); err != nil {
		return nil, fmt.Errorf("deriving cookie keys: %w", err)
	}
	return &cookieCodec{sc: securecookie.New(keys[:32], keys[32:])}, nil
}

func (c *cookieCodec) encode(sessionID string) (string, error) {
	return c.sc.Encode(sessionCookieName, sessionID)
}

// sessionID extracts and decodes the session id from the request cookie.
// Absent and tampered cookies are indistinguishable to callers.
func (c *cookieCodec) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var id string
	if err := c.sc.Decode(sessionCookieName, cookie.Value, &id); err != nil {
		return "", false
	}
	return id, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
