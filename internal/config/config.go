package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the process-wide configuration. It is read from the
// environment once at startup and never mutated afterwards.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	AppName string `env:"APP_NAME" envDefault:"Go Login Server"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Provider credentials. The provider slug is part of the login routes,
	// e.g. /auth/linkedin.
	Provider     string   `env:"OAUTH_PROVIDER" envDefault:"linkedin"`
	ClientID     string   `env:"OAUTH_CLIENT_ID,required,notEmpty"`
	ClientSecret string   `env:"OAUTH_CLIENT_SECRET,required,notEmpty"`
	CallbackURL  string   `env:"OAUTH_CALLBACK_URL,required,notEmpty"`
	Scopes       []string `env:"OAUTH_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	// Either an OIDC issuer for endpoint discovery, or the three explicit
	// provider endpoints.
	Issuer     string `env:"OAUTH_ISSUER"`
	AuthURL    string `env:"OAUTH_AUTH_URL"`
	TokenURL   string `env:"OAUTH_TOKEN_URL"`
	ProfileURL string `env:"OAUTH_PROFILE_URL"`

	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`

	// Anonymous sessions only exist to carry a pending login attempt, so
	// they live on a much shorter leash than authenticated ones.
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	AnonSessionTTL  time.Duration `env:"ANON_SESSION_TTL" envDefault:"15m"`
	StateTTL        time.Duration `env:"STATE_TTL" envDefault:"10m"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// Load parses and validates the environment. Any missing required value is
// fatal: the process must not start half-configured.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 bytes")
	}
	if c.Issuer == "" && (c.AuthURL == "" || c.TokenURL == "" || c.ProfileURL == "") {
		return errors.New("either OAUTH_ISSUER or all of OAUTH_AUTH_URL, OAUTH_TOKEN_URL and OAUTH_PROFILE_URL must be set")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	if len(c.Port) > 0 && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}
