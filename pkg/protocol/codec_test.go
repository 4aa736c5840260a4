package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatBinary} {
		t.Run(string(format), func(t *testing.T) {
			pm := NewProtocolMessage(ActionMessage, "demo")
			pm.MsgSerial = 7
			pm.Messages = []*Message{NewMessage("greeting", "hello")}
			pm.Error = NewErrorInfo(CodeInternal, 500, "boom")

			data, err := Marshal(format, pm)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := Unmarshal(format, data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if got.Action != ActionMessage {
				t.Errorf("Action = %v, want MESSAGE", got.Action)
			}
			if got.Channel != "demo" {
				t.Errorf("Channel = %q, want demo", got.Channel)
			}
			if got.MsgSerial != 7 {
				t.Errorf("MsgSerial = %d, want 7", got.MsgSerial)
			}
			if len(got.Messages) != 1 || got.Messages[0].Data != "hello" {
				t.Errorf("Messages = %+v, want one 'hello'", got.Messages)
			}
			if got.Error == nil || got.Error.Code != CodeInternal {
				t.Errorf("Error = %+v, want code %d", got.Error, CodeInternal)
			}
		})
	}
}

func TestUnmarshalRejectsUnknownAction(t *testing.T) {
	_, err := Unmarshal(FormatJSON, []byte(`{"action":99}`))
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Unmarshal() error = %v, want ErrInvalidAction", err)
	}
}

func TestUnmarshalSerialZeroPresent(t *testing.T) {
	data, err := Marshal(FormatJSON, NewProtocolMessage(ActionMessage, "c"))
	if err != nil {
		t.Fatal(err)
	}
	if want := `"msgSerial":0`; !strings.Contains(string(data), want) {
		t.Errorf("JSON %s does not contain %s", data, want)
	}
}

func TestUnmarshalConnectionSerialZero(t *testing.T) {
	tests := []struct {
		name string
		data string
		want *int64
	}{
		{"absent", `{"action":15,"channel":"c"}`, nil},
		{"zero", `{"action":15,"channel":"c","connectionSerial":0}`, new(int64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := Unmarshal(FormatJSON, []byte(tt.data))
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.want == nil && pm.ConnectionSerial != nil:
				t.Errorf("ConnectionSerial = %d, want absent", *pm.ConnectionSerial)
			case tt.want != nil && (pm.ConnectionSerial == nil || *pm.ConnectionSerial != *tt.want):
				t.Errorf("ConnectionSerial = %v, want %d", pm.ConnectionSerial, *tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"binary", FormatBinary, false},
		{"cbor", FormatBinary, false},
		{"xml", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
