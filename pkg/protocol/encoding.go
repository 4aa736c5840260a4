package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Data encoding steps. A message's Encoding field lists the steps applied
// before send, separated by '/', innermost first.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
	EncodingJSON   = "json"
	EncodingCBOR   = "cbor"

	// CipherPrefix starts an encryption step, e.g. "cipher+aes-256-cbc".
	CipherPrefix = "cipher+"
)

// Cipher encrypts and decrypts message payloads for one channel.
type Cipher interface {
	// Algorithm names the cipher as it appears in the encoding step,
	// for example "aes-128-cbc".
	Algorithm() string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Encoding errors.
var (
	ErrUnsupportedData = errors.New("protocol: unsupported data type")
	ErrNoCipher        = errors.New("protocol: encrypted payload but no cipher configured")
	ErrCipherMismatch  = errors.New("protocol: payload encrypted with a different algorithm")
)

// EncodeData prepares data for the wire. Structured values are serialized
// (JSON for the json format, CBOR for binary), an optional cipher encrypts
// the result, and binary payloads are base64-encoded when the wire format
// cannot carry raw bytes. It returns the new data and the full encoding.
func EncodeData(data any, encoding string, cipher Cipher, format Format) (any, string, error) {
	var raw []byte
	var isBinary bool

	switch v := data.(type) {
	case nil:
		return nil, encoding, nil
	case string:
		if cipher == nil {
			return v, encoding, nil
		}
		raw = []byte(v)
		encoding = appendEncoding(encoding, EncodingUTF8)
	case []byte:
		raw = v
		isBinary = true
	default:
		var err error
		if format == FormatBinary {
			raw, err = cbor.Marshal(v)
			encoding = appendEncoding(encoding, EncodingCBOR)
			isBinary = true
		} else {
			raw, err = json.Marshal(v)
			encoding = appendEncoding(encoding, EncodingJSON)
		}
		if err != nil {
			return nil, encoding, fmt.Errorf("%w: %v", ErrUnsupportedData, err)
		}
		if cipher == nil && !isBinary {
			return string(raw), encoding, nil
		}
	}

	if cipher != nil {
		ct, err := cipher.Encrypt(raw)
		if err != nil {
			return nil, encoding, err
		}
		raw = ct
		encoding = appendEncoding(encoding, CipherPrefix+cipher.Algorithm())
		isBinary = true
	}

	if isBinary && format != FormatBinary {
		return base64.StdEncoding.EncodeToString(raw), appendEncoding(encoding, EncodingBase64), nil
	}
	return raw, encoding, nil
}

// DecodeData reverses EncodeData, unwinding the encoding steps from the
// outermost one. If a step fails, decoding stops there: the returned data and
// encoding describe the partially decoded payload and the error explains the
// failing step.
func DecodeData(data any, encoding string, cipher Cipher) (any, string, error) {
	if encoding == "" {
		return data, "", nil
	}
	steps := strings.Split(encoding, "/")
	for len(steps) > 0 {
		step := steps[len(steps)-1]
		next, err := decodeStep(data, step, cipher)
		if err != nil {
			return data, strings.Join(steps, "/"), fmt.Errorf("protocol: decode %q: %w", step, err)
		}
		data = next
		steps = steps[:len(steps)-1]
	}
	return data, "", nil
}

func decodeStep(data any, step string, cipher Cipher) (any, error) {
	switch {
	case step == EncodingBase64:
		s, ok := data.(string)
		if !ok {
			return nil, ErrUnsupportedData
		}
		return base64.StdEncoding.DecodeString(s)

	case step == EncodingUTF8:
		b, err := asBytes(data)
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case step == EncodingJSON:
		b, err := asBytes(data)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil

	case step == EncodingCBOR:
		b, err := asBytes(data)
		if err != nil {
			return nil, err
		}
		var v any
		if err := cborDecMode.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil

	case strings.HasPrefix(step, CipherPrefix):
		if cipher == nil {
			return nil, ErrNoCipher
		}
		if alg := strings.TrimPrefix(step, CipherPrefix); !strings.EqualFold(alg, cipher.Algorithm()) {
			return nil, fmt.Errorf("%w: %s", ErrCipherMismatch, alg)
		}
		b, err := asBytes(data)
		if err != nil {
			return nil, err
		}
		return cipher.Decrypt(b)

	default:
		return nil, fmt.Errorf("unknown encoding step")
	}
}

func asBytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, ErrUnsupportedData
	}
}

func appendEncoding(encoding, step string) string {
	if encoding == "" {
		return step
	}
	return encoding + "/" + step
}

// Encode encodes the message payload in place.
func (m *Message) Encode(cipher Cipher, format Format) error {
	data, enc, err := EncodeData(m.Data, m.Encoding, cipher, format)
	if err != nil {
		return err
	}
	m.Data, m.Encoding = data, enc
	return nil
}

// Decode decodes the message payload in place. On error the message keeps
// whatever could be decoded.
func (m *Message) Decode(cipher Cipher) error {
	data, enc, err := DecodeData(m.Data, m.Encoding, cipher)
	m.Data, m.Encoding = data, enc
	return err
}

// Encode encodes the presence payload in place.
func (p *PresenceMessage) Encode(cipher Cipher, format Format) error {
	data, enc, err := EncodeData(p.Data, p.Encoding, cipher, format)
	if err != nil {
		return err
	}
	p.Data, p.Encoding = data, enc
	return nil
}

// Decode decodes the presence payload in place.
func (p *PresenceMessage) Decode(cipher Cipher) error {
	data, enc, err := DecodeData(p.Data, p.Encoding, cipher)
	p.Data, p.Encoding = data, enc
	return err
}
