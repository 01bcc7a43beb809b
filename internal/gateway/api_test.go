// ABOUTME: Tests for the gateway HTTP surface
// ABOUTME: Covers the OTP login flow end to end and the permission gates

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunware/authgate/internal/config"
	"github.com/sunware/authgate/internal/store"
)

type captureDeliverer struct {
	mu   sync.Mutex
	otps map[string]string
}

func (d *captureDeliverer) SendOTP(_ context.Context, email, otp string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.otps == nil {
		d.otps = make(map[string]string)
	}
	d.otps[email] = otp
	return nil
}

func (d *captureDeliverer) otpFor(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.otps[email]
}

type failingDeliverer struct{}

func (failingDeliverer) SendOTP(context.Context, string, string) error {
	return fmt.Errorf("smtp unreachable")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = "unused"
	cfg.Auth.JWTSecret = "gateway-test-secret"
	cfg.Auth.JWTAlgorithm = "HS256"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.PublicPrefixes = config.DefaultPublicPrefixes
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func newTestGateway(t *testing.T, deliverer interface {
	SendOTP(context.Context, string, string) error
}) (*Gateway, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := NewWithDeps(testConfig(), st, deliverer, logger)
	require.NoError(t, err)
	return gw, st
}

func seedIdentity(t *testing.T, st *store.MockStore, email string, permissions ...string) {
	t.Helper()
	err := st.CreateIdentity(context.Background(), &store.Identity{
		ID:          "id-" + email,
		Email:       email,
		Permissions: permissions,
	})
	require.NoError(t, err)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getWithToken(handler http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// loginFor drives the full OTP flow and returns a bearer token.
func loginFor(t *testing.T, handler http.Handler, deliverer *captureDeliverer, email string) string {
	t.Helper()
	rec := postJSON(t, handler, "/auth/generate-otp", GenerateOTPRequest{Email: email})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, handler, "/auth/validate-otp", ValidateOTPRequest{
		Email: email,
		OTP:   deliverer.otpFor(email),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "OTP validated successfully", body["message"])
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func TestLoginFlow_ReadOnlyIdentity(t *testing.T) {
	deliverer := &captureDeliverer{}
	gw, st := newTestGateway(t, deliverer)
	seedIdentity(t, st, "alice@x.com", "read")
	handler := gw.Handler()

	token := loginFor(t, handler, deliverer, "alice@x.com")

	// No update_employee permission: generic forbidden body.
	rec := getWithToken(handler, "/api/update", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "You do not have permission to access this resource.", body["message"])
	assert.NotContains(t, rec.Body.String(), "update_employee")

	// /api/read only needs a valid token.
	rec = getWithToken(handler, "/api/read", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reading employee data")
}

func TestProtectedRoutes_PermissionMatrix(t *testing.T) {
	deliverer := &captureDeliverer{}
	gw, st := newTestGateway(t, deliverer)
	seedIdentity(t, st, "admin@x.com", "onboard_employee", "update_employee", "delete_employee")
	seedIdentity(t, st, "viewer@x.com", "read")
	handler := gw.Handler()

	adminToken := loginFor(t, handler, deliverer, "admin@x.com")
	viewerToken := loginFor(t, handler, deliverer, "viewer@x.com")

	tests := []struct {
		path       string
		token      string
		wantStatus int
	}{
		{"/api/onboard", adminToken, http.StatusOK},
		{"/api/update", adminToken, http.StatusOK},
		{"/api/delete", adminToken, http.StatusOK},
		{"/api/read", adminToken, http.StatusOK},
		{"/api/onboard", viewerToken, http.StatusForbidden},
		{"/api/delete", viewerToken, http.StatusForbidden},
		{"/api/read", viewerToken, http.StatusOK},
	}
	for _, tt := range tests {
		rec := getWithToken(handler, tt.path, tt.token)
		assert.Equal(t, tt.wantStatus, rec.Code, "%s", tt.path)
	}
}

func TestProtectedRoutes_TokenFailures(t *testing.T) {
	deliverer := &captureDeliverer{}
	gw, st := newTestGateway(t, deliverer)
	seedIdentity(t, st, "alice@x.com", "read")
	handler := gw.Handler()

	// Missing header is a 400, not a 401.
	rec := getWithToken(handler, "/api/read", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Authorization header missing or invalid.", body["message"])

	// A garbage token collapses into the generic 401 body.
	rec = getWithToken(handler, "/api/read", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "Invalid or expired token.", body["message"])
}

func TestGenerateOTP_UnknownEmail(t *testing.T) {
	gw, _ := newTestGateway(t, &captureDeliverer{})

	rec := postJSON(t, gw.Handler(), "/auth/generate-otp", GenerateOTPRequest{Email: "nobody@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Bad Request", body["error"])
	assert.Equal(t, "Unknown email address.", body["message"])
}

func TestGenerateOTP_BadBody(t *testing.T) {
	gw, _ := newTestGateway(t, &captureDeliverer{})

	req := httptest.NewRequest(http.MethodPost, "/auth/generate-otp", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateOTP_DeliveryFailure(t *testing.T) {
	gw, st := newTestGateway(t, failingDeliverer{})
	seedIdentity(t, st, "alice@x.com", "read")

	rec := postJSON(t, gw.Handler(), "/auth/generate-otp", GenerateOTPRequest{Email: "alice@x.com"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Bad Gateway", body["error"])

	// The stored passcode survives a failed delivery.
	identity, err := st.FindByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, identity.OTP)
}

func TestValidateOTP_WrongCode(t *testing.T) {
	deliverer := &captureDeliverer{}
	gw, st := newTestGateway(t, deliverer)
	seedIdentity(t, st, "alice@x.com", "read")
	handler := gw.Handler()

	rec := postJSON(t, handler, "/auth/generate-otp", GenerateOTPRequest{Email: "alice@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, handler, "/auth/validate-otp", ValidateOTPRequest{Email: "alice@x.com", OTP: "zzzzzz"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Invalid or expired OTP.", body["message"])
	assert.Empty(t, body["token"])
}

func TestValidateOTP_Replay(t *testing.T) {
	deliverer := &captureDeliverer{}
	gw, st := newTestGateway(t, deliverer)
	seedIdentity(t, st, "alice@x.com", "read")
	handler := gw.Handler()

	loginFor(t, handler, deliverer, "alice@x.com")

	rec := postJSON(t, handler, "/auth/validate-otp", ValidateOTPRequest{
		Email: "alice@x.com",
		OTP:   deliverer.otpFor("alice@x.com"),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthEndpoints_MethodNotAllowed(t *testing.T) {
	gw, _ := newTestGateway(t, &captureDeliverer{})
	handler := gw.Handler()

	for _, path := range []string{"/auth/generate-otp", "/auth/validate-otp"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s", path)
	}
}

func TestHealthEndpoints(t *testing.T) {
	gw, _ := newTestGateway(t, &captureDeliverer{})
	handler := gw.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	deliverer := &captureDeliverer{}
	gw, st := newTestGateway(t, deliverer)
	seedIdentity(t, st, "alice@x.com", "read")
	handler := gw.Handler()

	loginFor(t, handler, deliverer, "alice@x.com")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authgate_otp_requested_total 1")
	assert.Contains(t, rec.Body.String(), `authgate_otp_redeemed_total{outcome="redeemed"} 1`)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	gw, _ := newTestGateway(t, &captureDeliverer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
