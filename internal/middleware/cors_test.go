package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{name: "explicit origin", allowed: []string{"https://app.example.com"}, origin: "https://app.example.com", method: http.MethodGet, wantOrigin: "https://app.example.com", wantCreds: "true", wantStatus: http.StatusTeapot},
		{name: "wildcard without credentials", allowed: []string{"*"}, origin: "https://other.example.com", method: http.MethodGet, wantOrigin: "https://other.example.com", wantStatus: http.StatusTeapot},
		{name: "rejected origin", allowed: []string{"https://app.example.com"}, origin: "https://evil.example.com", method: http.MethodGet, wantStatus: http.StatusTeapot},
		{name: "preflight", allowed: []string{"*"}, origin: "https://app.example.com", method: http.MethodOptions, wantOrigin: "https://app.example.com", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/config", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("expected allow-origin %q, got %q", tt.wantOrigin, got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Fatalf("expected allow-credentials %q, got %q", tt.wantCreds, got)
			}
			if tt.wantOrigin != "" && !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
				t.Fatal("expected Authorization to be an allowed header")
			}
		})
	}
}
