// Package identity maps provider-specific profile payloads onto the one
// canonical record the rest of the service stores and renders.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedProfile is returned when a provider profile is missing the
// subject identifier. It is worth logging loudly: it means the provider broke
// its own contract.
var ErrMalformedProfile = errors.New("malformed profile")

// Identity is the canonical identity record held in the session. Field names
// are stable regardless of provider quirks; the untouched payload stays
// available under Raw.
type Identity struct {
	Subject  string         `json:"sub"`
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	Picture  string         `json:"picture,omitempty"`
	Provider string         `json:"provider"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// Normalize maps a raw provider profile onto the canonical record. It is a
// pure function: same payload in, same record out. The only way it fails is
// a missing subject identifier; every other field is best-effort.
func Normalize(provider string, raw map[string]any) (Identity, error) {
	sub := subject(raw)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject identifier", ErrMalformedProfile)
	}

	return Identity{
		Subject:  sub,
		Name:     stringField(raw, "name", "localizedFirstName", "login", "username"),
		Email:    stringField(raw, "email", "emailAddress"),
		Picture:  stringField(raw, "picture", "avatar_url"),
		Provider: provider,
		Raw:      raw,
	}, nil
}

// subject finds the provider-assigned subject identifier. OIDC providers use
// "sub"; plain OAuth2 profile endpoints tend to use "id", sometimes numeric.
func subject(raw map[string]any) string {
	for _, key := range []string{"sub", "id"} {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
