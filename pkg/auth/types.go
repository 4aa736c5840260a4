package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoCredentials is returned when a provider has nothing to offer.
	ErrNoCredentials = errors.New("auth: no credentials")

	// ErrInvalidKey is returned for an API key not of the form "name:secret".
	ErrInvalidKey = errors.New("auth: invalid API key")

	// ErrNotRenewable is returned by Renew on providers with fixed credentials.
	ErrNotRenewable = errors.New("auth: credentials cannot be renewed")
)

// Credentials identify the client when opening a connection. Exactly one of
// Key or Token is set.
type Credentials struct {
	Key      string
	Token    string
	ClientID string

	// Expires is the token expiry. Zero means unknown or never.
	Expires time.Time
}

// IsZero reports whether no credential is set.
func (c Credentials) IsZero() bool {
	return c.Key == "" && c.Token == ""
}

// Expired reports whether the token is past its expiry at now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// Provider supplies credentials for each connection attempt.
type Provider interface {
	// Credentials returns the current credentials, fetching them if none
	// are cached or the cached token has expired.
	Credentials(ctx context.Context) (Credentials, error)

	// Renew discards cached credentials and fetches new ones.
	Renew(ctx context.Context) (Credentials, error)

	// CanRenew reports whether Renew can produce different credentials.
	CanRenew() bool
}

// TokenFunc fetches a fresh token, typically from the application's own
// backend.
type TokenFunc func(ctx context.Context) (Credentials, error)
