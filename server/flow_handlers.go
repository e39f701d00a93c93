package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dhowlett/go-login-server/identity"
	"github.com/dhowlett/go-login-server/sessions"
)

const contentTypeHTML = "text/html; charset=utf-8"

// IndexHandler serves the entry page with the login link.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeHTML)
		fmt.Fprintf(w, `<h1>Please Navigate to <a href="/auth/%s">Sign In</a> to login</h1>`, s.provider.Name())
	}
}

// InitiateHandler starts a login flow: it ensures a session exists, binds a
// fresh state token to it and redirects the browser to the provider.
func (s *Server) InitiateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("provider") != s.provider.Name() {
			http.NotFound(w, r)
			return
		}

		session, err := s.currentOrNewSession(r)
		if err != nil {
			log.Err(err).Str("step", "session").Msg("login initiation failed")
			http.Redirect(w, r, RouteEntry, http.StatusFound)
			return
		}

		state := generateRandomString(32)
		if err := s.repo.SetPendingState(session.ID, state); err != nil {
			log.Err(err).Str("step", "state").Msg("login initiation failed")
			http.Redirect(w, r, RouteEntry, http.StatusFound)
			return
		}

		encoded, err := s.cookies.encode(session.ID)
		if err != nil {
			log.Err(err).Str("step", "cookie").Msg("login initiation failed")
			http.Redirect(w, r, RouteEntry, http.StatusFound)
			return
		}
		s.setSessionCookie(w, r, encoded, int(s.config.AnonSessionTTL.Seconds()))
		http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
	}
}

// currentOrNewSession resumes the session named by a valid cookie or mints a
// fresh anonymous one. Sessions are only created here, when a login flow
// actually starts, never for plain visitors.
func (s *Server) currentOrNewSession(r *http.Request) (sessions.Session, error) {
	if id, ok := s.cookies.sessionID(r); ok {
		if session, err := s.repo.Get(id); err == nil {
			return session, nil
		}
	}
	return s.repo.Create()
}

// CallbackHandler finishes the login flow: state validation, code exchange,
// profile fetch, normalization, then session rotation. Every failure logs
// the step that broke and sends the user back to the entry point; codes are
// single-use, so nothing is retried.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("provider") != s.provider.Name() {
			http.NotFound(w, r)
			return
		}

		fail := func(step string, err error) {
			log.Err(err).Str("step", step).Msg("login failed")
			http.Redirect(w, r, RouteEntry, http.StatusFound)
		}

		// Denied consent and other authorization failures arrive through
		// the error query parameter, with no code at all.
		if errParam := r.FormValue("error"); errParam != "" {
			fail("authorize", fmt.Errorf("provider returned %q: %s", errParam, r.FormValue("error_description")))
			return
		}

		state := r.FormValue("state")
		code := r.FormValue("code")
		if code == "" || state == "" {
			fail("authorize", errors.New("missing code or state parameter"))
			return
		}

		sessionID, ok := s.cookies.sessionID(r)
		if !ok {
			fail("state", sessions.ErrInvalidState)
			return
		}
		if err := s.repo.ConsumeState(sessionID, state); err != nil {
			fail("state", err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.ProviderTimeout)
		defer cancel()

		token, err := s.provider.Exchange(ctx, code)
		if err != nil {
			fail("exchange", err)
			return
		}

		rawProfile, err := s.provider.FetchProfile(ctx, token)
		if err != nil {
			fail("profile", err)
			return
		}

		ident, err := identity.Normalize(s.provider.Name(), rawProfile)
		if err != nil {
			fail("normalize", err)
			return
		}

		// Rotating the id here keeps a pre-auth session id from ever
		// naming an authenticated session.
		session, err := s.repo.Authenticate(sessionID, ident)
		if err != nil {
			fail("session", err)
			return
		}

		encoded, err := s.cookies.encode(session.ID)
		if err != nil {
			fail("cookie", err)
			return
		}
		s.setSessionCookie(w, r, encoded, int(s.config.SessionTTL.Seconds()))
		http.Redirect(w, r, RouteProfile, http.StatusFound)
	}
}

// ProfileHandler renders the identity record of the logged-in user. It runs
// behind RequireSessionAuth.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, RouteEntry, http.StatusFound)
			return
		}

		dump, err := json.MarshalIndent(ident, "", "  ")
		if err != nil {
			log.Err(err).Msg("rendering profile")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		fmt.Fprintf(w, "<h1>You're logged in </h1><pre>%s</pre>", dump)
	}
}

// LogoutHandler tears the session down. Logout always appears to succeed:
// invalidation errors are logged and the redirect happens regardless, so a
// user can never get stuck in a session they asked to leave.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := s.cookies.sessionID(r); ok {
			if err := s.repo.Delete(id); err != nil {
				log.Err(err).Msg("logout: failed to delete session")
			}
		}
		s.setSessionCookie(w, r, "", -1)
		http.Redirect(w, r, RouteEntry, http.StatusFound)
	}
}
