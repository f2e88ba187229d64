package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "req-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			var hadLogger bool
			h := RequestIDMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
				_, hadLogger = r.Context().Value(LoggerKey).(*slog.Logger)
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("request id missing from context")
			}
			if tt.incoming != "" && seen != tt.incoming {
				t.Errorf("request id = %q, want %q", seen, tt.incoming)
			}
			if got := rec.Header().Get("X-Request-ID"); got != seen {
				t.Errorf("X-Request-ID header = %q, want %q", got, seen)
			}
			if !hadLogger {
				t.Error("enriched logger missing from context")
			}
		})
	}
}

func TestLoggerFromContext_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if LoggerFromContext(req.Context()) == nil {
		t.Error("LoggerFromContext() returned nil")
	}
}

func TestDNSRebindingProtection(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantCORS   bool
	}{
		{"no origin", nil, "", http.MethodGet, http.StatusOK, false},
		{"local-only blocks origin", nil, "http://evil.example", http.MethodGet, http.StatusForbidden, false},
		{"allowed origin", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodGet, http.StatusOK, true},
		{"disallowed origin", []string{"http://localhost:3000"}, "http://evil.example", http.MethodPost, http.StatusForbidden, false},
		{"preflight", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodOptions, http.StatusNoContent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DNSRebindingProtection(tt.allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "/v1/sync", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin") != ""; got != tt.wantCORS {
				t.Errorf("CORS header present = %v, want %v", got, tt.wantCORS)
			}
		})
	}
}
