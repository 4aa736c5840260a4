package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ParseKey splits an API key into its name and secret.
func ParseKey(key string) (name, secret string, err error) {
	name, secret, ok := strings.Cut(key, ":")
	if !ok || name == "" || secret == "" {
		return "", "", ErrInvalidKey
	}
	return name, secret, nil
}

// KeyProvider authenticates with a fixed API key.
type KeyProvider struct {
	key      string
	clientID string
}

// NewKeyProvider validates key and returns a provider for it.
func NewKeyProvider(key, clientID string) (*KeyProvider, error) {
	if _, _, err := ParseKey(key); err != nil {
		return nil, err
	}
	return &KeyProvider{key: key, clientID: clientID}, nil
}

// Credentials implements Provider.
func (p *KeyProvider) Credentials(context.Context) (Credentials, error) {
	return Credentials{Key: p.key, ClientID: p.clientID}, nil
}

// Renew implements Provider. A key never changes.
func (p *KeyProvider) Renew(context.Context) (Credentials, error) {
	return Credentials{}, ErrNotRenewable
}

// CanRenew implements Provider.
func (p *KeyProvider) CanRenew() bool { return false }

// TokenProvider authenticates with a fixed token.
type TokenProvider struct {
	creds Credentials
}

// NewTokenProvider returns a provider for a token obtained out of band.
func NewTokenProvider(token, clientID string) *TokenProvider {
	return &TokenProvider{creds: Credentials{Token: token, ClientID: clientID}}
}

// Credentials implements Provider.
func (p *TokenProvider) Credentials(context.Context) (Credentials, error) {
	if p.creds.Token == "" {
		return Credentials{}, ErrNoCredentials
	}
	return p.creds, nil
}

// Renew implements Provider.
func (p *TokenProvider) Renew(context.Context) (Credentials, error) {
	return Credentials{}, ErrNotRenewable
}

// CanRenew implements Provider.
func (p *TokenProvider) CanRenew() bool { return false }

// CallbackProvider caches the token returned by a TokenFunc and calls it
// again when the token expires or the connection asks for a renewal.
type CallbackProvider struct {
	fetch TokenFunc
	now   func() time.Time

	mu     sync.Mutex
	cached Credentials
}

// NewCallbackProvider creates a renewable provider around fetch.
func NewCallbackProvider(fetch TokenFunc) *CallbackProvider {
	return &CallbackProvider{fetch: fetch, now: time.Now}
}

// Credentials implements Provider.
func (p *CallbackProvider) Credentials(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cached.IsZero() && !p.cached.Expired(p.now()) {
		return p.cached, nil
	}
	return p.fetchLocked(ctx)
}

// Renew implements Provider.
func (p *CallbackProvider) Renew(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cached = Credentials{}
	return p.fetchLocked(ctx)
}

// CanRenew implements Provider.
func (p *CallbackProvider) CanRenew() bool { return true }

func (p *CallbackProvider) fetchLocked(ctx context.Context) (Credentials, error) {
	creds, err := p.fetch(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: fetch token: %w", err)
	}
	if creds.IsZero() {
		return Credentials{}, ErrNoCredentials
	}
	p.cached = creds
	return creds, nil
}

// tokenResponse is the JSON body accepted from a token URL.
type tokenResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
	Expires  int64  `json:"expires"` // unix milliseconds
}

// URLTokenFunc returns a TokenFunc that GETs url. The response is either a
// JSON object {"token", "clientId", "expires"} or a bare token in plain text.
func URLTokenFunc(url string, client *http.Client) TokenFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context) (Credentials, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Credentials{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return Credentials{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return Credentials{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return Credentials{}, fmt.Errorf("token endpoint returned %s", resp.Status)
		}

		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			var tr tokenResponse
			if err := json.Unmarshal(body, &tr); err != nil {
				return Credentials{}, fmt.Errorf("decode token response: %w", err)
			}
			creds := Credentials{Token: tr.Token, ClientID: tr.ClientID}
			if tr.Expires > 0 {
				creds.Expires = time.UnixMilli(tr.Expires)
			}
			return creds, nil
		}
		return Credentials{Token: strings.TrimSpace(string(body))}, nil
	}
}
