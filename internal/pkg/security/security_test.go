package security

import (
	"net/http"
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "add milk", "add milk"},
		{"newline", "add\nmilk", "add\\nmilk"},
		{"carriage return", "add\r\nmilk", "add\\r\\nmilk"},
		{"tab", "add\tmilk", "add\\tmilk"},
		{"control", "add\x00\x1bmilk", "addmilk"},
		{"unicode", "añadir té", "añadir té"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLog_Truncates(t *testing.T) {
	got := SanitizeForLog(strings.Repeat("a", 500))
	if len(got) != DefaultLogLength+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("len = %d, suffix ok = %v", len(got), strings.HasSuffix(got, "..."))
	}

	if got := SanitizeForLogWithLength("ééééé", 2); got != "éé..." {
		t.Errorf("SanitizeForLogWithLength() = %q", got)
	}
}

func TestMaskSensitiveHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("X-Api-Key", "secret")
	h.Set("Cookie", "session=1")
	h.Set("Content-Type", "application/json")
	h.Set("X-Request-ID", "req-1")

	masked := MaskSensitiveHeaders(h)

	for _, k := range []string{"Authorization", "X-Api-Key", "Cookie"} {
		if got := masked.Get(k); got != "[REDACTED]" {
			t.Errorf("%s = %q, want [REDACTED]", k, got)
		}
	}
	for _, k := range []string{"Content-Type", "X-Request-ID"} {
		if masked.Get(k) != h.Get(k) {
			t.Errorf("%s = %q, want %q", k, masked.Get(k), h.Get(k))
		}
	}

	if h.Get("Authorization") != "Bearer abc" {
		t.Error("original headers modified")
	}

	if MaskSensitiveHeaders(nil) != nil {
		t.Error("MaskSensitiveHeaders(nil) != nil")
	}
}
