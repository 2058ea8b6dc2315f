package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"", LevelOff},
		{"off", LevelOff},
		{"error", LevelError},
		{"info", LevelInfo},
		{"debug", LevelDebug},
		{"garbage", LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRequestLogLevelOverrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/generate?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query log=1: %v", got)
	}
	r = httptest.NewRequest("GET", "/generate?log=error", nil)
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("query log=error: %v", got)
	}
	r = httptest.NewRequest("GET", "/generate", nil)
	r.Header.Set("X-Log-Level", "debug")
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("header override: %v", got)
	}
}

func TestLoggingLineWriterBuffersPartialLines(t *testing.T) {
	lw := &loggingLineWriter{}
	if _, err := lw.Write([]byte(`{"token":"he`)); err != nil {
		t.Fatal(err)
	}
	if len(lw.buf) == 0 {
		t.Fatal("partial line must stay buffered")
	}
	if _, err := lw.Write([]byte("llo\"}\n")); err != nil {
		t.Fatal(err)
	}
	if len(lw.buf) != 0 {
		t.Fatalf("complete line must be flushed, %d bytes left", len(lw.buf))
	}
}
