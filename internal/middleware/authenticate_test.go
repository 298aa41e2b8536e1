package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/auth"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/permission"
)

type stubVerifier map[string]auth.CredentialGrant

func (s stubVerifier) Verify(_ context.Context, secret string) (auth.CredentialGrant, error) {
	g, ok := s[secret]
	if !ok {
		return auth.CredentialGrant{}, apperr.ErrInvalidCredential
	}
	return g, nil
}

type allPrincipals struct{}

func (allPrincipals) Exists(context.Context, string) (bool, error) { return true, nil }

func newAuthApp(t *testing.T) (*fiber.App, *auth.Sessions) {
	t.Helper()
	sessions := auth.NewSessions("test-secret", "walletd", time.Hour)
	verifier := stubVerifier{
		"sk_test_reader": {CredentialID: "k1", PrincipalID: "p1", Permissions: permission.NewSet(permission.Read)},
	}
	resolver := auth.NewResolver(sessions, verifier, allPrincipals{})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	api := app.Group("/", Authenticate(resolver))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) }
	api.Get("/read", RequirePermission(permission.Read), ok)
	api.Post("/transfer", RequirePermission(permission.Transfer), ok)
	api.Get("/keys", RequireSession(), ok)
	return app, sessions
}

func doRequest(t *testing.T, app *fiber.App, method, path string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestAuthenticateStatuses(t *testing.T) {
	app, sessions := newAuthApp(t)
	token, err := sessions.Issue("p1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	bearer := map[string]string{fiber.HeaderAuthorization: "Bearer " + token.AccessToken}
	reader := map[string]string{APIKeyHeader: "sk_test_reader"}

	cases := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		status  int
		kind    string
	}{
		{"no credentials", http.MethodGet, "/read", nil, http.StatusUnauthorized, "unauthenticated"},
		{"bad token", http.MethodGet, "/read", map[string]string{fiber.HeaderAuthorization: "Bearer nope"}, http.StatusUnauthorized, "invalid_credential"},
		{"session reads", http.MethodGet, "/read", bearer, http.StatusNoContent, ""},
		{"session transfers", http.MethodPost, "/transfer", bearer, http.StatusNoContent, ""},
		{"key reads", http.MethodGet, "/read", reader, http.StatusNoContent, ""},
		{"key lacks transfer", http.MethodPost, "/transfer", reader, http.StatusForbidden, "forbidden"},
		{"key cannot manage keys", http.MethodGet, "/keys", reader, http.StatusForbidden, "forbidden"},
		{"session manages keys", http.MethodGet, "/keys", bearer, http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		status, body := doRequest(t, app, tc.method, tc.path, tc.headers)
		if status != tc.status {
			t.Fatalf("%s: expected %d got %d (%v)", tc.name, tc.status, status, body)
		}
		if tc.kind != "" && body["error"] != tc.kind {
			t.Fatalf("%s: expected kind %s got %v", tc.name, tc.kind, body["error"])
		}
	}
}

func TestForbiddenNamesMissingPermission(t *testing.T) {
	app, _ := newAuthApp(t)
	_, body := doRequest(t, app, http.MethodPost, "/transfer", map[string]string{APIKeyHeader: "sk_test_reader"})
	if body["permission"] != "transfer" {
		t.Fatalf("expected missing permission transfer, got %v", body)
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("pq: connection refused on 10.0.0.3") })
	status, body := doRequest(t, app, http.MethodGet, "/boom", nil)
	if status != http.StatusInternalServerError || body["message"] != "internal server error" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}
