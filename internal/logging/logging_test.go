package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
)

func TestLevelFilter(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"", false, true},
		{"error", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(&buf, "logfmt", tt.level)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			level.Debug(logger).Log("msg", "dbg")
			level.Warn(logger).Log("msg", "wrn")

			out := buf.String()
			if got := strings.Contains(out, "msg=dbg"); got != tt.debug {
				t.Errorf("debug logged = %v, want %v\n%s", got, tt.debug, out)
			}
			if got := strings.Contains(out, "msg=wrn"); got != tt.warn {
				t.Errorf("warn logged = %v, want %v\n%s", got, tt.warn, out)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	level.Info(logger).Log("msg", "hello", "rows", 3)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, buf.String())
	}
	for _, key := range []string{"ts", "caller", "level", "msg"} {
		if _, ok := rec[key]; !ok {
			t.Errorf("record lacks %q: %v", key, rec)
		}
	}
	if !strings.HasPrefix(rec["caller"].(string), "logging_test.go:") {
		t.Errorf("caller = %v", rec["caller"])
	}
}

func TestBadOptions(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Errorf("expected error for unknown format")
	}
	if _, err := New(&bytes.Buffer{}, "logfmt", "trace"); err == nil {
		t.Errorf("expected error for unknown level")
	}
}
