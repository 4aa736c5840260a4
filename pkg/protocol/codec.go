package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the wire encoding of ProtocolMessage frames.
type Format string

const (
	// FormatJSON sends text frames containing JSON.
	FormatJSON Format = "json"

	// FormatBinary sends binary frames containing CBOR.
	FormatBinary Format = "binary"
)

// MaxFrameSize bounds a single decoded frame.
const MaxFrameSize = 1 << 20

// Codec errors.
var (
	ErrUnknownFormat = errors.New("protocol: unknown format")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrInvalidAction = errors.New("protocol: invalid action")
)

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxArrayElements: 65536,
		MaxMapPairs:      65536,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// ParseFormat converts a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatBinary, "cbor":
		return FormatBinary, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// IsBinary reports whether frames of this format travel as binary messages.
func (f Format) IsBinary() bool {
	return f == FormatBinary
}

// Marshal encodes an envelope for the wire.
func Marshal(f Format, pm *ProtocolMessage) ([]byte, error) {
	switch f {
	case FormatJSON, "":
		return json.Marshal(pm)
	case FormatBinary:
		return cbor.Marshal(pm)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Unmarshal decodes one frame into an envelope.
func Unmarshal(f Format, data []byte) (*ProtocolMessage, error) {
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	pm := &ProtocolMessage{}
	var err error
	switch f {
	case FormatJSON, "":
		err = json.Unmarshal(data, pm)
	case FormatBinary:
		err = cborDecMode.Unmarshal(data, pm)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return nil, err
	}
	if !pm.Action.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAction, pm.Action)
	}
	return pm, nil
}
