package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dialog-trainer/internal/domain"
)

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	lastSeen map[string]time.Time
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*domain.User{}, lastSeen: map[string]time.Time{}}
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUsers) UpsertUser(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.UserID] = u
	return nil
}

func (f *fakeUsers) UpdateLastSeen(_ context.Context, id string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen[id] = t
	return nil
}

func TestMiddlewareAssignsIdentity(t *testing.T) {
	users := newFakeUsers()
	var gotUser, gotSession, gotCred string
	h := Middleware(users, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
		gotCred = CredentialFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?session_id=tab-1", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !isValidAnonID(gotUser) {
		t.Fatalf("expected generated anon id, got %q", gotUser)
	}
	if gotSession != "tab-1" {
		t.Fatalf("expected session tab-1, got %q", gotSession)
	}
	if gotCred != "secret-token" {
		t.Fatalf("expected bearer credential, got %q", gotCred)
	}
	if _, ok := users.users[gotUser]; !ok {
		t.Fatal("expected user to be persisted")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != gotUser {
		t.Fatalf("expected identity cookie, got %+v", cookies)
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	users := newFakeUsers()
	id := "anon_0123456789abcdef0123456789abcdef"
	users.users[id] = &domain.User{UserID: id}

	var gotUser string
	h := Middleware(users, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != id {
		t.Fatalf("expected cookie id %q, got %q", id, gotUser)
	}
	if _, ok := users.lastSeen[id]; !ok {
		t.Fatal("expected last seen to be refreshed for a known user")
	}
}

func TestCredentialFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "case insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "non bearer scheme", header: "Basic dXNlcg==", want: ""},
		{name: "query fallback", query: "xyz", want: "xyz"},
		{name: "header wins over query", header: "Bearer abc", query: "xyz", want: "abc"},
		{name: "none", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/ws/chat"
			if tt.query != "" {
				target += "?" + AccessTokenQueryParam + "=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := CredentialFromRequest(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeSessionID(t *testing.T) {
	if got := sanitizeSessionID("  "); got != DefaultSessionIDValue {
		t.Fatalf("expected default, got %q", got)
	}
	if got := sanitizeSessionID("bad id with spaces"); got != DefaultSessionIDValue {
		t.Fatalf("expected default for invalid id, got %q", got)
	}
	if got := sanitizeSessionID("tab-1:abc"); got != "tab-1:abc" {
		t.Fatalf("expected id to be kept, got %q", got)
	}
}
