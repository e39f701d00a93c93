// Package provider performs the authorization-code leg of an OAuth2 login:
// building the authorization URL, exchanging the code for a token and
// fetching the identity profile.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	// ErrTokenExchange wraps any failure of the code-for-token exchange:
	// non-2xx responses, network errors, timeouts, malformed bodies.
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrProfileFetch wraps any failure fetching or decoding the identity
	// profile, including ID-token verification failures in OIDC mode.
	ErrProfileFetch = errors.New("profile fetch failed")
)

// Credentials configure one OAuth2 provider. They are immutable for the
// process lifetime. Set Issuer for OIDC endpoint discovery, or all three
// explicit endpoints for plain OAuth2 providers.
type Credentials struct {
	Name         string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	Issuer     string
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

// Client talks to a single identity provider. Safe for concurrent use.
type Client struct {
	name    string
	oauth   *oauth2.Config
	profile string

	// Set only in OIDC discovery mode.
	oidcProvider *oidc.Provider
	verifier     *oidc.IDTokenVerifier
}

// New builds a provider client. In OIDC mode the issuer's discovery document
// is fetched once, here, so a misconfigured issuer fails at startup rather
// than on the first login.
func New(ctx context.Context, creds Credentials) (*Client, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.CallbackURL,
		Scopes:       creds.Scopes,
	}
	c := &Client{name: creds.Name, oauth: conf, profile: creds.ProfileURL}

	if creds.Issuer != "" {
		p, err := oidc.NewProvider(ctx, creds.Issuer)
		if err != nil {
			return nil, fmt.Errorf("provider %q discovery: %w", creds.Name, err)
		}
		conf.Endpoint = p.Endpoint()
		c.oidcProvider = p
		c.verifier = p.Verifier(&oidc.Config{ClientID: creds.ClientID})
		return c, nil
	}

	if creds.AuthURL == "" || creds.TokenURL == "" || creds.ProfileURL == "" {
		return nil, fmt.Errorf("provider %q: an issuer or explicit auth, token and profile endpoints are required", creds.Name)
	}
	conf.Endpoint = oauth2.Endpoint{AuthURL: creds.AuthURL, TokenURL: creds.TokenURL}
	return c, nil
}

// Name returns the provider slug used in routes and identity records.
func (c *Client) Name() string { return c.name }

// AuthCodeURL builds the provider authorization URL embedding the client id,
// callback URL, scopes and the anti-forgery state token. Pure, no I/O.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange swaps the authorization code for a token. Codes are single-use,
// so a failed exchange is never retried here; it fails the login attempt.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	return tok, nil
}

// FetchProfile retrieves the raw identity profile for the token. It must run
// strictly after Exchange, which is enforced by needing its token.
func (c *Client) FetchProfile(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	if c.oidcProvider != nil {
		return c.fetchUserInfo(ctx, tok)
	}
	return c.fetchProfileURL(ctx, tok)
}

func (c *Client) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	info, err := c.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", ErrProfileFetch, err)
	}
	raw := map[string]any{}
	if err := info.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding userinfo claims: %v", ErrProfileFetch, err)
	}

	// An ID token, when present, carries signed claims; after verification
	// they take precedence over the userinfo body.
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := c.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("%w: id token verification: %v", ErrProfileFetch, err)
		}
		idClaims := map[string]any{}
		if err := idToken.Claims(&idClaims); err != nil {
			return nil, fmt.Errorf("%w: decoding id token claims: %v", ErrProfileFetch, err)
		}
		for k, v := range idClaims {
			raw[k] = v
		}
	}
	return raw, nil
}

func (c *Client) fetchProfileURL(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profile, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrProfileFetch, c.profile, resp.StatusCode, body)
	}

	raw := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding profile body: %v", ErrProfileFetch, err)
	}
	return raw, nil
}
