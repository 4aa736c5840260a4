package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorInfoClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *ErrorInfo
		wantToken bool
		wantAuth  bool
	}{
		{"token expired", NewErrorInfo(CodeTokenExpired, 401, "token expired"), true, true},
		{"token range start", NewErrorInfo(CodeTokenErrorMin, 0, ""), true, true},
		{"token range end", NewErrorInfo(CodeTokenErrorMax, 0, ""), true, true},
		{"unauthorized", NewErrorInfo(CodeUnauthorized, 401, ""), false, true},
		{"forbidden", NewErrorInfo(CodeForbidden, 0, ""), false, true},
		{"status only", NewErrorInfo(CodeBadRequest, 403, ""), false, true},
		{"disconnected", NewErrorInfo(CodeDisconnected, 503, "gone"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsTokenError(); got != tt.wantToken {
				t.Errorf("IsTokenError() = %v, want %v", got, tt.wantToken)
			}
			if got := tt.err.IsAuthError(); got != tt.wantAuth {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.wantAuth)
			}
		})
	}
}

func TestErrorInfoError(t *testing.T) {
	e := NewErrorInfo(CodeConnectionFailed, 500, "dial failed")
	if got := e.Error(); got != "[ErrorInfo code=80000 statusCode=500] dial failed" {
		t.Errorf("Error() = %q", got)
	}

	e.Cause = io.ErrUnexpectedEOF
	if !strings.HasSuffix(e.Error(), ": "+io.ErrUnexpectedEOF.Error()) {
		t.Errorf("cause missing from %q", e.Error())
	}

	var nilErr *ErrorInfo
	if nilErr.Error() != "<nil>" {
		t.Errorf("nil Error() = %q", nilErr.Error())
	}
}

func TestErrorInfoWrapping(t *testing.T) {
	e := &ErrorInfo{Code: CodeDisconnected, Cause: io.EOF}
	wrapped := fmt.Errorf("transport: %w", e)

	if !errors.Is(wrapped, io.EOF) {
		t.Error("errors.Is should reach the cause")
	}
	if !errors.Is(wrapped, NewErrorInfo(CodeDisconnected, 0, "")) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(wrapped, NewErrorInfo(CodeSuspended, 0, "")) {
		t.Error("errors.Is matched a different code")
	}

	var ei *ErrorInfo
	if !errors.As(wrapped, &ei) || ei.Code != CodeDisconnected {
		t.Errorf("errors.As = %v", ei)
	}
}

func TestErrorInfoClone(t *testing.T) {
	e := NewErrorInfo(CodeChannelFailed, 400, "original")
	c := e.Clone()
	c.Message = "changed"
	if e.Message != "original" {
		t.Error("Clone shares state with the original")
	}

	var nilErr *ErrorInfo
	if nilErr.Clone() != nil {
		t.Error("nil Clone() should be nil")
	}
}
