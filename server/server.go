// Package server wires the session store, the OAuth client and the HTTP
// surface together: initiating logins, handling the provider callback,
// gating protected routes and ending sessions.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dhowlett/go-login-server/internal/config"
	"github.com/dhowlett/go-login-server/provider"
	"github.com/dhowlett/go-login-server/sessions"
)

type Server struct {
	mux      *http.ServeMux
	config   config.Config
	provider *provider.Client
	repo     sessions.Repo
	cookies  *cookieCodec
}

// New builds the server. There is exactly one session repo per process,
// created by the caller and torn down with it; nothing here is ambient
// global state.
func New(cfg config.Config, client *provider.Client, repo sessions.Repo) (*Server, error) {
	codec, err := newCookieCodec(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		provider: client,
		repo:     repo,
		cookies:  codec,
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartSweeper purges expired sessions every interval until ctx is done.
// Lookup-time reaping already keeps the store correct; this only bounds the
// memory held by abandoned flows.
func (s *Server) StartSweeper(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.repo.PurgeExpired(); n > 0 {
					log.Debug().Int("removed", n).Msg("purged expired sessions")
				}
			}
		}
	}()
}

// getScheme determines the request scheme (http/https), honouring the
// forwarded-proto header set by TLS-terminating proxies.
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
