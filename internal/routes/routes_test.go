package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/middleware"
	"github.com/congo-pay/walletd/internal/webhook"
)

const testWebhookSecret = "whsec_test"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := config.Config{
		AppName:           "walletd-test",
		AppEnv:            "development",
		JWTSecret:         "jwt-test-secret",
		AccessTokenTTL:    time.Hour,
		APIKeyPrefix:      "sk_test",
		CredentialPepper:  "pepper",
		AuthRatePerMinute: 1000,
		WebhookSecret:     testWebhookSecret,
		CheckoutURL:       "https://checkout.test",
		OAuthURL:          "https://accounts.test/auth",
		OAuthRedirectURL:  "http://localhost/callback",
		Currency:          "NGN",
		IdempotencyTTL:    time.Minute,
	}
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	if _, err := Setup(app, Deps{Cfg: cfg, Logger: logger}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

type client struct {
	t       *testing.T
	app     *fiber.App
	headers map[string]string
}

func (c client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				c.t.Fatalf("encode: %v", err)
			}
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.app.Test(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type signIn struct {
	UserID       string `json:"user_id"`
	WalletNumber string `json:"wallet_number"`
	AccessToken  string `json:"access_token"`
}

func signInAs(t *testing.T, app *fiber.App, code string) (client, signIn) {
	t.Helper()
	var s signIn
	anon := client{t: t, app: app}
	if status := anon.do(http.MethodGet, "/api/v1/auth/google/callback?code="+code, nil, &s); status != http.StatusOK {
		t.Fatalf("sign in: expected 200 got %d", status)
	}
	return client{t: t, app: app, headers: map[string]string{fiber.HeaderAuthorization: "Bearer " + s.AccessToken}}, s
}

func deliver(t *testing.T, app *fiber.App, path, event, reference string) int {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"status":"success"}}`, event, reference))
	sig := webhook.NewGuard(testWebhookSecret, nil, nil).Sign(payload)
	c := client{t: t, app: app, headers: map[string]string{webhook.SignatureHeader: sig}}
	return c.do(http.MethodPost, path, payload, nil)
}

func TestEndToEndWalletFlow(t *testing.T) {
	app := newTestApp(t)
	alice, _ := signInAs(t, app, "alice-code")
	_, bob := signInAs(t, app, "bob-code")

	var dep struct {
		Reference string `json:"reference"`
	}
	if status := alice.do(http.MethodPost, "/api/v1/wallet/deposit", map[string]int64{"amount": 10_000}, &dep); status != http.StatusCreated {
		t.Fatalf("deposit: expected 201 got %d", status)
	}

	if status := deliver(t, app, "/api/v1/wallet/paystack/webhook", webhook.EventChargeSuccess, dep.Reference); status != http.StatusOK {
		t.Fatalf("webhook: expected 200 got %d", status)
	}
	// Redelivery on the legacy path must not credit twice.
	if status := deliver(t, app, "/api/v1/payments/paystack/webhook", webhook.EventChargeSuccess, dep.Reference); status != http.StatusOK {
		t.Fatalf("webhook redelivery: expected 200 got %d", status)
	}

	var bal struct {
		Balance int64 `json:"balance"`
	}
	alice.do(http.MethodGet, "/api/v1/wallet/balance", nil, &bal)
	if bal.Balance != 10_000 {
		t.Fatalf("expected 10000 after deposit, got %d", bal.Balance)
	}

	transfer := map[string]any{"recipient_wallet_number": bob.WalletNumber, "amount": 2_500}
	if status := alice.do(http.MethodPost, "/api/v1/wallet/transfer", transfer, nil); status != http.StatusOK {
		t.Fatalf("transfer: expected 200 got %d", status)
	}
	alice.do(http.MethodGet, "/api/v1/wallet/balance", nil, &bal)
	if bal.Balance != 7_500 {
		t.Fatalf("expected 7500 after transfer, got %d", bal.Balance)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app := newTestApp(t)
	c := client{t: t, app: app, headers: map[string]string{webhook.SignatureHeader: "deadbeef"}}
	var body map[string]any
	if status := c.do(http.MethodPost, "/api/v1/wallet/paystack/webhook", []byte(`{"event":"charge.success"}`), &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", status)
	}
	if body["error"] != "signature" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAPIKeyScopesAndManagement(t *testing.T) {
	app := newTestApp(t)
	alice, _ := signInAs(t, app, "alice-code")

	var issued struct {
		ID     string `json:"id"`
		APIKey string `json:"api_key"`
	}
	create := map[string]any{"name": "reporting", "permissions": []string{"read"}, "expiry": "1D"}
	if status := alice.do(http.MethodPost, "/api/v1/keys/create", create, &issued); status != http.StatusCreated {
		t.Fatalf("create key: expected 201 got %d", status)
	}

	key := client{t: t, app: app, headers: map[string]string{middleware.APIKeyHeader: issued.APIKey}}
	if status := key.do(http.MethodGet, "/api/v1/wallet/balance", nil, nil); status != http.StatusOK {
		t.Fatalf("read with key: expected 200 got %d", status)
	}
	var denied map[string]any
	if status := key.do(http.MethodPost, "/api/v1/wallet/deposit", map[string]int64{"amount": 100}, &denied); status != http.StatusForbidden {
		t.Fatalf("deposit with read key: expected 403 got %d", status)
	}
	if denied["permission"] != "deposit" {
		t.Fatalf("expected missing deposit permission, got %v", denied)
	}
	if status := key.do(http.MethodGet, "/api/v1/keys", nil, nil); status != http.StatusForbidden {
		t.Fatalf("key listing keys: expected 403 got %d", status)
	}

	var views []map[string]any
	alice.do(http.MethodGet, "/api/v1/keys", nil, &views)
	if len(views) != 1 {
		t.Fatalf("expected one key, got %v", views)
	}
	for _, field := range []string{"api_key", "hash", "secret"} {
		if _, leaked := views[0][field]; leaked {
			t.Fatalf("key listing exposes %s", field)
		}
	}

	if status := alice.do(http.MethodDelete, "/api/v1/keys/"+issued.ID, nil, nil); status != http.StatusNoContent {
		t.Fatalf("revoke: expected 204 got %d", status)
	}
	var body map[string]any
	if status := key.do(http.MethodGet, "/api/v1/wallet/balance", nil, &body); status != http.StatusForbidden || body["error"] != "credential_inactive" {
		t.Fatalf("revoked key: expected 403 credential_inactive, got %d %v", status, body)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	app := newTestApp(t)
	anon := client{t: t, app: app}
	if status := anon.do(http.MethodGet, "/api/v1/wallet/balance", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", status)
	}
	bad := client{t: t, app: app, headers: map[string]string{middleware.APIKeyHeader: "sk_test_notarealkey"}}
	if status := bad.do(http.MethodGet, "/api/v1/wallet/balance", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)
	anon := client{t: t, app: app}
	if status := anon.do(http.MethodGet, "/healthz", nil, nil); status != http.StatusOK {
		t.Fatalf("healthz: expected 200 got %d", status)
	}
	if status := anon.do(http.MethodGet, "/metrics", nil, nil); status != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", status)
	}
}
