package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vango-dev/pulse/pkg/protocol"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantMsg    string
		wantStatus int
		wantCat    Category
	}{
		{
			name:       "suspended",
			code:       protocol.CodeSuspended,
			wantMsg:    "Connection unavailable",
			wantStatus: 503,
			wantCat:    CategoryConnection,
		},
		{
			name:       "channel state",
			code:       protocol.CodeChannelState,
			wantMsg:    "Unable to publish in the current channel state",
			wantStatus: 400,
			wantCat:    CategoryChannel,
		},
		{
			name:       "no client id",
			code:       protocol.CodeNoClientID,
			wantMsg:    "Unable to enter presence channel without a clientId",
			wantStatus: 400,
			wantCat:    CategoryPresence,
		},
		{
			name:       "unknown code",
			code:       12345,
			wantMsg:    "Unknown error",
			wantStatus: 500,
			wantCat:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.wantStatus)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %d, want %d", err.Code, tt.code)
			}
			if got := CategoryOf(tt.code); got != tt.wantCat {
				t.Errorf("CategoryOf() = %q, want %q", got, tt.wantCat)
			}
		})
	}
}

func TestHelpURL(t *testing.T) {
	err := New(protocol.CodeChannelState)
	want := "https://pulse.dev/docs/errors/90001"
	if err.HRef != want {
		t.Errorf("HRef = %q, want %q", err.HRef, want)
	}
	if New(99999).HRef != "" {
		t.Error("unknown code has a help URL")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(protocol.CodeChannelState, "cannot publish in state %s", "detached")
	if err.Message != "cannot publish in state detached" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != protocol.CodeChannelState {
		t.Errorf("Code = %d", err.Code)
	}
}

func TestWrapAndFromError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Wrap(protocol.CodeDisconnected, cause)
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}

	if got := FromError(err, protocol.CodeInternal); got != err {
		t.Error("FromError re-wrapped an ErrorInfo")
	}
	if got := FromError(cause, protocol.CodeInternal); got.Code != protocol.CodeInternal {
		t.Errorf("FromError code = %d, want %d", got.Code, protocol.CodeInternal)
	}
	if FromError(nil, protocol.CodeInternal) != nil {
		t.Error("FromError(nil) != nil")
	}
}

func TestRegistryConsistency(t *testing.T) {
	for _, code := range Codes() {
		tmpl, ok := Lookup(code)
		if !ok {
			t.Fatalf("Lookup(%d) missing", code)
		}
		if tmpl.Message == "" {
			t.Errorf("code %d has no message", code)
		}
		if tmpl.Category == "" {
			t.Errorf("code %d has no category", code)
		}
		if tmpl.StatusCode < 400 || tmpl.StatusCode > 599 {
			t.Errorf("code %d status %d out of range", code, tmpl.StatusCode)
		}
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := Wrap(protocol.CodeSuspended, fmt.Errorf("no route to host"))
	out := Format(err)

	for _, want := range []string{
		"ERROR 80002: Connection unavailable",
		"Cause: no route to host",
		"unreachable",
		"https://pulse.dev/docs/errors/80002",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q\n%s", want, out)
		}
	}

	plain := Format(fmt.Errorf("plain"))
	if !strings.Contains(plain, "ERROR: plain") {
		t.Errorf("Format(plain) = %q", plain)
	}

	if got := FormatCompact(err); got != "80002: Connection unavailable: no route to host" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q longer than 10", l)
		}
	}
	if wrapText("", 10) != nil {
		t.Error("wrapText(\"\") != nil")
	}
}
