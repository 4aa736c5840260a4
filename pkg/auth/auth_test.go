package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vango-dev/pulse/pkg/auth"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		key     string
		name    string
		wantErr bool
	}{
		{"app.key:secret", "app.key", false},
		{"a:b:c", "a", false},
		{"nosecret", "", true},
		{":secret", "", true},
		{"name:", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			name, _, err := auth.ParseKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey(%q) err = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if name != tt.name {
				t.Errorf("name = %q, want %q", name, tt.name)
			}
		})
	}
}

func TestKeyProvider(t *testing.T) {
	if _, err := auth.NewKeyProvider("bad", ""); !errors.Is(err, auth.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}

	p, err := auth.NewKeyProvider("app:secret", "alice")
	if err != nil {
		t.Fatal(err)
	}
	creds, err := p.Credentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if creds.Key != "app:secret" || creds.ClientID != "alice" {
		t.Errorf("unexpected credentials %+v", creds)
	}
	if p.CanRenew() {
		t.Error("key provider should not renew")
	}
	if _, err := p.Renew(context.Background()); !errors.Is(err, auth.ErrNotRenewable) {
		t.Errorf("expected ErrNotRenewable, got %v", err)
	}
}

func TestTokenProvider_Empty(t *testing.T) {
	p := auth.NewTokenProvider("", "")
	if _, err := p.Credentials(context.Background()); !errors.Is(err, auth.ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestCallbackProvider_CachesUntilRenew(t *testing.T) {
	calls := 0
	p := auth.NewCallbackProvider(func(ctx context.Context) (auth.Credentials, error) {
		calls++
		return auth.Credentials{Token: "tok"}, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := p.Credentials(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}

	if _, err := p.Renew(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected renew to fetch, got %d calls", calls)
	}
	if !p.CanRenew() {
		t.Error("callback provider should renew")
	}
}

func TestCallbackProvider_RefetchesExpired(t *testing.T) {
	calls := 0
	p := auth.NewCallbackProvider(func(ctx context.Context) (auth.Credentials, error) {
		calls++
		return auth.Credentials{Token: "tok", Expires: time.Now().Add(-time.Second)}, nil
	})

	p.Credentials(context.Background())
	p.Credentials(context.Background())
	if calls != 2 {
		t.Errorf("expected expired token to be refetched, got %d calls", calls)
	}
}

func TestCallbackProvider_Error(t *testing.T) {
	boom := errors.New("boom")
	p := auth.NewCallbackProvider(func(ctx context.Context) (auth.Credentials, error) {
		return auth.Credentials{}, boom
	})
	if _, err := p.Credentials(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestURLTokenFunc(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"token":"abc","clientId":"bob","expires":1700000000000}`))
		}))
		defer srv.Close()

		creds, err := auth.URLTokenFunc(srv.URL, srv.Client())(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if creds.Token != "abc" || creds.ClientID != "bob" {
			t.Errorf("unexpected credentials %+v", creds)
		}
		if creds.Expires.UnixMilli() != 1700000000000 {
			t.Errorf("unexpected expiry %v", creds.Expires)
		}
	})

	t.Run("plain", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("plain-token\n"))
		}))
		defer srv.Close()

		creds, err := auth.URLTokenFunc(srv.URL, nil)(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if creds.Token != "plain-token" {
			t.Errorf("token = %q", creds.Token)
		}
	})

	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		if _, err := auth.URLTokenFunc(srv.URL, nil)(context.Background()); err == nil {
			t.Error("expected error for 403")
		}
	})
}
