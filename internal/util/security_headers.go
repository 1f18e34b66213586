package util

import (
	"mime"
	"net/http"
	"strings"
)

const (
	apiCSP        = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	attachmentCSP = "sandbox; default-src 'none'; frame-ancestors 'none'"
	hstsValue     = "max-age=31536000; includeSubDomains"
)

var baseSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Content-Security-Policy", apiCSP},
	{"Cache-Control", "no-store"},
}

// WithSecurityHeaders hardens every portal response. Bodies are either JSON
// or student uploads, so nothing is framed, cached or sniffed. When a handler
// answers with an attachment, the policy is tightened before the header is
// flushed: the CSP gains sandbox and X-Download-Options stops old browsers
// from opening the file in the portal's origin.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range baseSecurityHeaders {
			h.Set(kv[0], kv[1])
		}
		if isHTTPS(r) {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		next.ServeHTTP(&attachmentGuard{ResponseWriter: w}, r)
	})
}

type attachmentGuard struct {
	http.ResponseWriter
	wroteHeader bool
}

func (g *attachmentGuard) WriteHeader(statusCode int) {
	if !g.wroteHeader {
		g.wroteHeader = true
		if isAttachment(g.Header().Get("Content-Disposition")) {
			g.Header().Set("Content-Security-Policy", attachmentCSP)
			g.Header().Set("X-Download-Options", "noopen")
		}
	}
	g.ResponseWriter.WriteHeader(statusCode)
}

func (g *attachmentGuard) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	return g.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (g *attachmentGuard) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func isAttachment(disposition string) bool {
	if disposition == "" {
		return false
	}
	kind, _, err := mime.ParseMediaType(disposition)
	if err != nil {
		kind, _, _ = strings.Cut(disposition, ";")
	}
	return strings.EqualFold(strings.TrimSpace(kind), "attachment")
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
