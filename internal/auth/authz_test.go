// ABOUTME: Tests for the declarative permission gate
// ABOUTME: Covers granted, missing, and unauthenticated cases with generic 403 bodies

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequirePermission_Granted(t *testing.T) {
	gate := RequirePermission("update_employee")

	var called bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	principal := &Principal{Subject: "alice@x.com", Permissions: []string{"read", "update_employee"}}
	req := httptest.NewRequest(http.MethodGet, "/api/update", nil)
	req = req.WithContext(WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()

	gate(handler).ServeHTTP(rec, req)

	if !called {
		t.Error("handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestRequirePermission_Missing(t *testing.T) {
	gate := RequirePermission("update_employee")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	principal := &Principal{Subject: "alice@x.com", Permissions: []string{"read"}}
	req := httptest.NewRequest(http.MethodGet, "/api/update", nil)
	req = req.WithContext(WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()

	gate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}

	// The body must not reveal which permission was required
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if strings.Contains(body["message"], "update_employee") {
		t.Errorf("message %q leaks the required permission", body["message"])
	}
	if body["error"] != "Forbidden" {
		t.Errorf("error = %q, want %q", body["error"], "Forbidden")
	}
}

func TestRequirePermission_CaseSensitive(t *testing.T) {
	gate := RequirePermission("Read")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	principal := &Principal{Subject: "alice@x.com", Permissions: []string{"read"}}
	req := httptest.NewRequest(http.MethodGet, "/api/read", nil)
	req = req.WithContext(WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()

	gate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}
}

func TestRequirePermission_NoPrincipal(t *testing.T) {
	gate := RequirePermission("read")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/read", nil)
	rec := httptest.NewRecorder()

	gate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
