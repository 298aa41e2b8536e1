package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletd/internal/auth"
	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/credential"
	"github.com/congo-pay/walletd/internal/gateway"
	"github.com/congo-pay/walletd/internal/identity"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/metrics"
	"github.com/congo-pay/walletd/internal/middleware"
	"github.com/congo-pay/walletd/internal/notification"
	"github.com/congo-pay/walletd/internal/wallet"
	"github.com/congo-pay/walletd/internal/webhook"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Services exposes the wired core to callers that run work outside HTTP.
type Services struct {
	Engine  *ledger.Engine
	Gateway gateway.Gateway
}

// Setup configures middlewares and all application routes. Without a
// database (development only) every store is in memory.
func Setup(app *fiber.App, d Deps) (Services, error) {
	if !d.Cfg.Development() && d.DB == nil {
		return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(metrics.Middleware(middleware.StatusForError))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		store     ledger.Store
		identRepo identity.Repository
		credRepo  credential.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		identRepo = identity.NewPostgresRepository(d.DB)
		credRepo = credential.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		identRepo = identity.NewMemoryRepository(store)
		credRepo = credential.NewMemoryRepository()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}
	engine := ledger.NewEngine(store, ledger.WithNotifier(notifier), ledger.WithLogger(d.Logger))

	identitySvc := identity.NewService(identRepo, store)
	sessions := auth.NewSessions(d.Cfg.JWTSecret, d.Cfg.AppName, d.Cfg.AccessTokenTTL)
	credentialSvc := credential.NewService(credRepo, credential.NewHasher(d.Cfg.APIKeyPrefix, d.Cfg.CredentialPepper), d.Logger)
	resolver := auth.NewResolver(sessions, credentialSvc, identitySvc)

	provider := identity.StaticProvider{BaseURL: d.Cfg.OAuthURL, RedirectURL: d.Cfg.OAuthRedirectURL}
	gw := gateway.StaticGateway{BaseURL: d.Cfg.CheckoutURL}
	walletSvc := wallet.NewService(engine, gw, identitySvc, d.Cfg.Currency, d.Logger)

	authHandler := auth.NewHandler(provider, identitySvc, sessions)
	keyHandler := credential.NewHandler(credentialSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	webhookHandler := webhook.NewHandler(webhook.NewGuard(d.Cfg.WebhookSecret, engine, d.Logger))

	// authn runs on every route that acts for a principal. The rate limiter
	// goes first so unauthenticated guessing is counted too.
	authn := []fiber.Handler{
		middleware.AuthRateLimit(d.Cache, d.Cfg.AuthRatePerMinute, d.Logger),
		middleware.Authenticate(resolver),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDFrom(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, authHandler)
	RegisterWebhookRoutes(api, webhookHandler)
	RegisterKeyRoutes(api, keyHandler, authn)
	RegisterWalletRoutes(api, walletHandler, authn)

	return Services{Engine: engine, Gateway: gw}, nil
}

// with returns chain followed by handlers as a fresh slice.
func with(chain []fiber.Handler, handlers ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(chain)+len(handlers))
	out = append(out, chain...)
	return append(out, handlers...)
}
