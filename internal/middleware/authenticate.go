package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/auth"
	"github.com/congo-pay/walletd/internal/permission"
)

// APIKeyHeader carries a service credential secret.
const APIKeyHeader = "x-api-key"

// Authenticate resolves the bearer session token and/or the API key header
// into a principal and stores it on the request.
func Authenticate(resolver *auth.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := resolver.Resolve(c.UserContext(), bearerToken(c), strings.TrimSpace(c.Get(APIKeyHeader)))
		if err != nil {
			return err
		}
		auth.SetPrincipal(c, p)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

// RequirePermission rejects principals that were not granted perm.
func RequirePermission(perm permission.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			return apperr.ErrUnauthenticated
		}
		if err := auth.Require(p.Permissions(), perm); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireSession admits only principals that signed in interactively. API
// keys cannot manage API keys.
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			return apperr.ErrUnauthenticated
		}
		if _, session := p.(auth.SessionPrincipal); !session {
			return &apperr.Error{Kind: apperr.KindForbidden, Message: "API keys cannot manage API keys; sign in instead"}
		}
		return c.Next()
	}
}
