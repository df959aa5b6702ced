package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gymdesk/internal/application/guard"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

type fakeStore struct {
	s        session.Session
	hydrated bool
}

func (f *fakeStore) Current() session.Session { return f.s }
func (f *fakeStore) Hydrated() bool           { return f.hydrated }

func signedIn(r role.Role) session.Session {
	return session.Session{
		Token:  "tok",
		User:   &session.User{ID: "u1", Name: "Pat", Email: "pat@example.com", Role: r},
		Status: session.StatusSucceeded,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			http.Error(w, "no session in context", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// TestRequireRole covers every guard outcome over HTTP.
func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		policy   guard.Policy
		wantCode int
		wantLoc  string
	}{
		{"allowed", &fakeStore{s: signedIn(role.Owner), hydrated: true}, guard.Policy{}, http.StatusOK, ""},
		{"wrongRoleRedirectsHome", &fakeStore{s: signedIn(role.Member), hydrated: true}, guard.Policy{}, http.StatusSeeOther, "/member"},
		{"unresolvedPermissive", &fakeStore{s: session.Empty()}, guard.Policy{}, http.StatusOK, ""},
		{"signedOutPermissiveHydrated", &fakeStore{s: session.Empty(), hydrated: true}, guard.Policy{}, http.StatusSeeOther, "/login"},
		{"unresolvedStrictLoading", &fakeStore{s: session.Empty()}, guard.Policy{BlockUntilHydrated: true}, http.StatusServiceUnavailable, ""},
		{"unresolvedStrictHydrated", &fakeStore{s: session.Empty(), hydrated: true}, guard.Policy{BlockUntilHydrated: true}, http.StatusSeeOther, "/login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireRole(tt.store, tt.policy, role.Owner)(okHandler())
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest("GET", "/owner", nil))
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if loc := rr.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}
}

// TestAuth_CapturesSession verifies the session reaches handlers.
func TestAuth_CapturesSession(t *testing.T) {
	store := &fakeStore{s: signedIn(role.Trainer)}
	var got session.User
	h := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/trainer", nil))
	if got.ID != "u1" || got.Role != role.Trainer {
		t.Errorf("user = %+v", got)
	}
}

// TestRateLimit_RejectsBurst verifies the per-IP bucket.
func TestRateLimit_RejectsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	h := RateLimit(rl)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		Auth(&fakeStore{})(h).ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	other := httptest.NewRequest("GET", "/", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	rr := httptest.NewRecorder()
	Auth(&fakeStore{})(h).ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rr.Code)
	}
}

// TestCSRF_ExemptsJSON verifies JSON posts pass and form posts need a token.
func TestCSRF_ExemptsJSON(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))
	h := CSRF(key, false, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	jsonReq := httptest.NewRequest("POST", "/login", strings.NewReader(`{}`))
	jsonReq.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq)
	if rr.Code != http.StatusNoContent {
		t.Errorf("json status = %d, want 204", rr.Code)
	}

	formReq := httptest.NewRequest("POST", "/login", strings.NewReader("email=a"))
	formReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, formReq)
	if rr.Code != http.StatusForbidden {
		t.Errorf("form status = %d, want 403", rr.Code)
	}
}

// TestSecurityHeaders verifies the headers are set.
func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	for _, h := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}
