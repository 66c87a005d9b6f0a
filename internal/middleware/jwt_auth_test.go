package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestMiddleware(t *testing.T, skipPaths ...string) *JWTAuthMiddleware {
	t.Helper()

	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return NewJWTAuthMiddleware(&JWTAuthConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
		SkipPaths:         skipPaths,
	})
}

// echoOperator writes the operator identity from the request context
func echoOperator() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetOperatorFromContext(r.Context())))
	})
}

func TestValidateCredentials(t *testing.T) {
	m := newTestMiddleware(t)

	if !m.ValidateCredentials("admin", "hunter2") {
		t.Error("expected valid credentials to pass")
	}
	if m.ValidateCredentials("admin", "wrong") {
		t.Error("expected wrong password to fail")
	}
	if m.ValidateCredentials("root", "hunter2") {
		t.Error("expected wrong username to fail")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestMiddleware(t)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q, want admin", claims.Username)
	}
	if claims.Issuer != "pagerbell" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	m := newTestMiddleware(t)
	other := NewJWTAuthMiddleware(&JWTAuthConfig{JWTSecret: "other-secret", JWTExpiryHours: 1})

	token, err := other.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expected validation to fail for a foreign signature")
	}
}

func TestWrap_RequiresToken(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.Wrap(echoOperator())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/incidents", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWrap_ValidToken(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.Wrap(echoOperator())

	token, _ := m.GenerateToken("admin")
	req := httptest.NewRequest("GET", "/api/incidents", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "admin" {
		t.Errorf("status = %d, operator = %q", rec.Code, rec.Body.String())
	}
}

func TestWrap_SkipPathNeverRequiresToken(t *testing.T) {
	m := newTestMiddleware(t, "/health", "/dashboard*")
	handler := m.Wrap(echoOperator())

	for _, path := range []string{"/health", "/dashboard", "/dashboard/action"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

// A bearer token on a skip path is optional but still attaches the
// operator identity when it validates.
func TestWrap_SkipPathAttachesOptionalIdentity(t *testing.T) {
	m := newTestMiddleware(t, "/dashboard*")
	handler := m.Wrap(echoOperator())

	token, _ := m.GenerateToken("admin")
	req := httptest.NewRequest("POST", "/dashboard/action", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Body.String() != "admin" {
		t.Errorf("operator = %q, want admin", rec.Body.String())
	}

	// An invalid token on a skip path is ignored, not rejected
	req = httptest.NewRequest("POST", "/dashboard/action", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "" {
		t.Errorf("status = %d, operator = %q", rec.Code, rec.Body.String())
	}
}
