package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"testing"

	"github.com/rs/zerolog"
)

func TestInfofWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info").With("component", "test")
	l.Infof("hello %d", 5)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if line["message"] != "hello 5" || line["level"] != "info" || line["component"] != "test" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "error")
	l.Infof("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at error level, got %q", buf.String())
	}
	l.Errorf("kept")
	if !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Fatalf("expected error line, got %q", buf.String())
	}
}

func TestStdlibBridge(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(New(&buf, "info"), "", 0)
	std.Printf("tls handshake error")
	if !bytes.Contains(buf.Bytes(), []byte(`"level":"error"`)) {
		t.Fatalf("expected error level line, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
