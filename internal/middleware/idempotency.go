package middleware

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/walletd/internal/auth"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	maxIdempotencyKey    = 255
	cacheOpTimeout       = 2 * time.Second
)

// replay is what a key holds in Redis. A reservation carries only the request
// fingerprint; Status is zero until the handler's response is recorded.
type replay struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

func (r replay) pending() bool { return r.Status == 0 }

type replayStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func (s replayStore) get(key string) (replay, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return replay{}, false, nil
	}
	if err != nil {
		return replay{}, false, err
	}
	var r replay
	if err := json.Unmarshal(raw, &r); err != nil {
		return replay{}, false, err
	}
	return r, true, nil
}

func (s replayStore) reserve(key, fingerprint string) (bool, error) {
	payload, err := json.Marshal(replay{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	return s.cache.SetNX(ctx, key, payload, s.ttl).Result()
}

func (s replayStore) save(key string, r replay) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s replayStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("idempotency release failed", slog.String("key", key), slog.Any("error", err))
	}
}

// fingerprint binds a key to the request it was first used with.
func fingerprint(c *fiber.Ctx) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

// Idempotency replays the stored response when an unsafe request repeats an
// Idempotency-Key. Keys are scoped to the authenticated principal, so two
// callers can never see each other's responses, and reusing a key for a
// different request is rejected. Requests without the header, or with no
// cache configured, pass straight through. Server errors are not recorded so
// the client may retry them.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayStore{cache: cache, ttl: ttl, logger: logger}

	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" || cache == nil {
			return c.Next()
		}
		if len(key) > maxIdempotencyKey {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}

		scope := "anonymous"
		if p, ok := auth.PrincipalFrom(c); ok {
			scope = p.ID()
		}
		cacheKey := idempotencyPrefix + scope + ":" + key
		fp := fingerprint(c)

		prior, found, err := store.get(cacheKey)
		if err != nil {
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if found {
			return replayTo(c, prior, fp)
		}

		reserved, err := store.reserve(cacheKey, fp)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			store.release(cacheKey)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			store.release(cacheKey)
			return nil
		}

		rec := replay{
			Fingerprint: fp,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		}
		if err := store.save(cacheKey, rec); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			store.release(cacheKey)
		}
		return nil
	}
}

func replayTo(c *fiber.Ctx, prior replay, fp string) error {
	if prior.Fingerprint != fp {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was used with a different request")
	}
	if prior.pending() {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	if prior.ContentType != "" {
		c.Set(fiber.HeaderContentType, prior.ContentType)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(prior.Status).SendString(prior.Body)
}
