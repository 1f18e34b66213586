package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogRecordsStatusAndRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	initLogger(&buf, "info")

	handler := WithRequestID(WithRequestLog("portal", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("oops"))
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/teams", nil)
	req.Header.Set("X-Request-Id", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "http_request" || entry["level"] != "WARN" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-42" || entry["service"] != "portal" {
		t.Fatalf("missing request metadata: %v", entry)
	}
	if entry["status"] != float64(http.StatusBadGateway) || entry["bytes"] != float64(4) {
		t.Fatalf("unexpected status/bytes: %v", entry)
	}
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := &StatusRecorder{ResponseWriter: httptest.NewRecorder()}
	if rec.Code() != http.StatusOK {
		t.Fatalf("expected 200 before any write")
	}
	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.Code() != http.StatusOK {
		t.Fatalf("late WriteHeader must not change recorded status")
	}
}
