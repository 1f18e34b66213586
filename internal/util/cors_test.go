package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "any origin", origin: "http://x.test", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "allowed origin", origins: []string{"http://app.test/"}, origin: "http://app.test", method: http.MethodGet, wantOrigin: "http://app.test", wantStatus: http.StatusOK},
		{name: "unknown origin", origins: []string{"http://app.test"}, origin: "http://evil.test", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "preflight", origin: "http://x.test", method: http.MethodOptions, wantOrigin: "*", wantStatus: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/teams", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			WithCORS(tc.origins, next).ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}
