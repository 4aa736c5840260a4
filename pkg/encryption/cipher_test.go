package encryption

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/vango-dev/pulse/pkg/protocol"
)

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantAlg string
		wantErr bool
	}{
		{"aes-128", 16, "aes-128-cbc", false},
		{"aes-256", 32, "aes-256-cbc", false},
		{"aes-192 unsupported", 24, "", true},
		{"empty", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(make([]byte, tt.keyLen))
			if tt.wantErr {
				if !errors.Is(err, ErrKeyLength) {
					t.Errorf("expected ErrKeyLength, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c.Algorithm() != tt.wantAlg {
				t.Errorf("Algorithm() = %q, want %q", c.Algorithm(), tt.wantAlg)
			}
		})
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	key, err := GenerateKey(256)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}

	for _, plain := range [][]byte{
		{},
		[]byte("hello"),
		[]byte("exactly sixteen!"),
		bytes.Repeat([]byte{0xAB}, 100),
	} {
		ct, err := c.Encrypt(plain)
		if err != nil {
			t.Fatal(err)
		}
		if len(ct)%16 != 0 || len(ct) < 32 {
			t.Errorf("ciphertext length %d for %d byte plaintext", len(ct), len(plain))
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("round trip = %x, want %x", got, plain)
		}
	}
}

func TestCipher_IVPrefix(t *testing.T) {
	c, _ := NewCipher(make([]byte, 16))
	iv := bytes.Repeat([]byte{7}, 16)
	c.rand = bytes.NewReader(iv)

	ct, err := c.Encrypt([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ct[:16], iv) {
		t.Errorf("IV prefix = %x", ct[:16])
	}
	if len(ct) != 32 {
		t.Errorf("len = %d, want 32", len(ct))
	}

	// Reader exhausted.
	if _, err := c.Encrypt([]byte("x")); err == nil {
		t.Error("expected an error when no IV can be read")
	}
}

func TestCipher_DecryptErrors(t *testing.T) {
	c, _ := NewCipher(make([]byte, 16))

	for _, ct := range [][]byte{nil, make([]byte, 16), make([]byte, 33)} {
		if _, err := c.Decrypt(ct); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("len %d: expected ErrInvalidCiphertext, got %v", len(ct), err)
		}
	}
}

func TestUnpad(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    []byte
		wantErr bool
	}{
		{"one byte", append([]byte("abc"), 1), []byte("abc"), false},
		{"full block", bytes.Repeat([]byte{16}, 16), []byte{}, false},
		{"zero", []byte{'a', 0}, nil, true},
		{"too large", []byte{'a', 17}, nil, true},
		{"inconsistent", []byte{'a', 1, 2}, nil, true},
		{"empty", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unpad(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrPadding) {
					t.Errorf("expected ErrPadding, got %v", err)
				}
				return
			}
			if err != nil || !bytes.Equal(got, tt.want) {
				t.Errorf("unpad = %q, %v", got, err)
			}
		})
	}
}

func TestCipher_WithEncodingChain(t *testing.T) {
	key, _ := GenerateKey(128)
	c, _ := NewCipher(key)

	data, enc, err := protocol.EncodeData(map[string]any{"n": 1}, "", c, protocol.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if enc != "json/cipher+aes-128-cbc/base64" {
		t.Errorf("encoding = %q", enc)
	}

	decoded, rest, err := protocol.DecodeData(data, enc, c)
	if err != nil {
		t.Fatal(err)
	}
	if rest != "" {
		t.Errorf("remaining encoding = %q", rest)
	}
	if m, ok := decoded.(map[string]any); !ok || m["n"] != float64(1) {
		t.Errorf("decoded = %#v", decoded)
	}

	other, _ := NewCipher(make([]byte, 32))
	if _, _, err := protocol.DecodeData(data, enc, other); !errors.Is(err, protocol.ErrCipherMismatch) {
		t.Errorf("expected ErrCipherMismatch, got %v", err)
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("pulse-salt-0001")
	a, err := DeriveKey("correct horse", salt, 256)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := DeriveKey("correct horse", salt, 256)
	if !bytes.Equal(a, b) || len(a) != 32 {
		t.Error("derivation should be deterministic and 32 bytes")
	}
	c, _ := DeriveKey("battery staple", salt, 256)
	if bytes.Equal(a, c) {
		t.Error("different passphrases must give different keys")
	}

	if _, err := DeriveKey("x", salt, 192); !errors.Is(err, ErrKeyLength) {
		t.Errorf("expected ErrKeyLength, got %v", err)
	}
	if _, err := DeriveKey("", salt, 128); err == nil {
		t.Error("expected an error for an empty passphrase")
	}
	if _, err := DeriveKey("x", []byte("short"), 128); err == nil {
		t.Error("expected an error for a short salt")
	}
}

func TestParseKey(t *testing.T) {
	key := bytes.Repeat([]byte{0xfb}, 32)
	for _, s := range []string{
		"+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/s=",
		"-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_s",
	} {
		got, err := ParseKey(s)
		if err != nil {
			t.Errorf("ParseKey(%q): %v", s, err)
			continue
		}
		if !bytes.Equal(got, key) {
			t.Errorf("ParseKey(%q) = %x", s, got)
		}
	}

	if _, err := ParseKey("AAAA"); !errors.Is(err, ErrKeyLength) {
		t.Errorf("expected ErrKeyLength, got %v", err)
	}
	if _, err := ParseKey("not base64!"); err == nil || !strings.Contains(err.Error(), "base64") {
		t.Errorf("expected base64 error, got %v", err)
	}
}
