package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"applicant@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"", false},
		{"no-at-sign", false},
		{"missing@tld", false},
		{"@example.com", false},
	}

	for _, tt := range tests {
		if got := validateEmail(tt.email); got != tt.valid {
			t.Errorf("validateEmail(%q) = %v, want %v", tt.email, got, tt.valid)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"long enough", "correct horse battery", true},
		{"exactly eight", "12345678", true},
		{"too short", "1234567", false},
		{"too long", strings.Repeat("x", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := validatePassword(tt.password)
			if ok != tt.valid {
				t.Errorf("validatePassword(%q) = %v, want %v", tt.password, ok, tt.valid)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := normalizeEmail("  Applicant@Example.COM "); got != "applicant@example.com" {
		t.Errorf("normalizeEmail = %q", got)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("s3cret-enough")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !verifyPassword("s3cret-enough", hash) {
		t.Error("correct password rejected")
	}
	if verifyPassword("wrong-password", hash) {
		t.Error("wrong password accepted")
	}
}

// Registration rejects bad input before touching the database, so these run
// with no DB attached.
func TestRegisterValidation(t *testing.T) {
	cfg, _, _ := newTestConfig(t)
	router := cfg.Routes()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing fields", `{}`},
		{"bad email", `{"email":"nope","password":"longenough1"}`},
		{"weak password", `{"email":"a@example.com","password":"short"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestLoginValidation(t *testing.T) {
	cfg, _, _ := newTestConfig(t)
	router := cfg.Routes()

	for name, body := range map[string]string{
		"invalid json":   "{oops",
		"missing fields": `{"email":"a@example.com"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestAuthStatusUnauthenticated(t *testing.T) {
	cfg, _, _ := newTestConfig(t)
	router := cfg.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Authenticated {
		t.Error("reported authenticated without a session")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	cfg, _, _ := newTestConfig(t)
	router := cfg.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != cfg.Auth.cookieName() {
		t.Fatalf("expected one cleared session cookie, got %v", cookies)
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("cookie MaxAge = %d, want -1", cookies[0].MaxAge)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	cfg, _, _ := newTestConfig(t)
	router := cfg.Routes()
	cookie := sessionCookie(t, cfg.Auth, "3f8e8c61-1bb1-4b7a-9f44-000000000001")

	t.Run("requires auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader("{nope"))
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("missing personalInfo", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{}`))
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}
