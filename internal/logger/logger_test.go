package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestAnonymize(t *testing.T) {
	cases := map[string]string{
		"signup from kermit@pond.org":                        "signup from [REDACTED_EMAIL]",
		"token eyJhbGciOiJIUzI1NiJ9.e30.sig issued":          "token [REDACTED_TOKEN] issued",
		"follow by user_id=0192b3a4-5c6d-7e8f-9a0b-1c2d3e4f": "follow by user_id=[USER_ID]",
		"form password1=hunter2&password2=hunter2":           "form password=[REDACTED]&password=[REDACTED]",
		"nothing to hide":                                    "nothing to hide",
	}
	for in, want := range cases {
		if got := Anonymize(in); got != want {
			t.Errorf("Anonymize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("store", "connected")
	l.Warn("cache", "falling back to memory")
	l.Error("http/login", "lookup failed for kermit@pond.org", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[2]), &entry); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if entry.Level != ErrorLevel || entry.Module != "http/login" || entry.Error != "boom" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if strings.Contains(entry.Message, "kermit@pond.org") {
		t.Fatalf("email was not anonymized: %q", entry.Message)
	}

	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if entry.Level != WarnLevel {
		t.Fatalf("expected WARN level, got %s", entry.Level)
	}
}
