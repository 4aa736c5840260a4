package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters for passphrase keys.
const (
	DefaultKeyBits   = 256
	DeriveIterations = 100_000
	SaltSize         = 16
)

var (
	ErrKeyLength         = errors.New("encryption: key must be 128 or 256 bits")
	ErrInvalidCiphertext = errors.New("encryption: ciphertext is not a whole number of blocks")
	ErrPadding           = errors.New("encryption: invalid padding")
)

// Cipher is an AES-CBC payload cipher. It is safe for concurrent use.
type Cipher struct {
	block cipher.Block
	bits  int

	// rand supplies IVs.
	rand io.Reader
}

// NewCipher returns a cipher for a 16 or 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	switch len(key) {
	case 16, 32:
	default:
		return nil, fmt.Errorf("%w: got %d bits", ErrKeyLength, len(key)*8)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block, bits: len(key) * 8, rand: rand.Reader}, nil
}

// Algorithm returns "aes-128-cbc" or "aes-256-cbc".
func (c *Cipher) Algorithm() string {
	return fmt.Sprintf("aes-%d-cbc", c.bits)
}

// KeyBits returns the key length in bits.
func (c *Cipher) KeyBits() int {
	return c.bits
}

// Encrypt pads plaintext and encrypts it under a fresh random IV, which
// prefixes the result.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, aes.BlockSize, aes.BlockSize+len(plaintext)+aes.BlockSize)
	if _, err := io.ReadFull(c.rand, out[:aes.BlockSize]); err != nil {
		return nil, fmt.Errorf("encryption: generating IV: %w", err)
	}
	padded := pad(plaintext)
	out = out[:aes.BlockSize+len(padded)]
	cipher.NewCBCEncrypter(c.block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)
	return unpad(plain)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-n], nil
}

// GenerateKey returns a random key of the given size in bits.
func GenerateKey(bits int) ([]byte, error) {
	if bits != 128 && bits != 256 {
		return nil, ErrKeyLength
	}
	key := make([]byte, bits/8)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKey derives a key from a passphrase with PBKDF2-SHA256. Every
// client of a channel must use the same salt.
func DeriveKey(passphrase string, salt []byte, bits int) ([]byte, error) {
	if bits != 128 && bits != 256 {
		return nil, ErrKeyLength
	}
	if passphrase == "" {
		return nil, errors.New("encryption: empty passphrase")
	}
	if len(salt) < 8 {
		return nil, errors.New("encryption: salt must be at least 8 bytes")
	}
	return pbkdf2.Key([]byte(passphrase), salt, DeriveIterations, bits/8, sha256.New), nil
}

// ParseKey decodes a base64 key, standard or URL alphabet, padded or not.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(s); err == nil {
			if len(key) != 16 && len(key) != 32 {
				return nil, fmt.Errorf("%w: got %d bits", ErrKeyLength, len(key)*8)
			}
			return key, nil
		}
	}
	return nil, errors.New("encryption: key is not valid base64")
}
