package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"marketplace/internal/async"
	"marketplace/internal/logging"
)

// KeyFunc derives the cache key of a request. An empty key bypasses the cache.
type KeyFunc func(c *fiber.Ctx) string

// ProductsKey caches product listings per full URL.
func ProductsKey(c *fiber.Ctx) string {
	return "products:" + c.OriginalURL()
}

// ProductKey caches a single product per id and URL.
func ProductKey(c *fiber.Ctx) string {
	return "product:" + c.Params("id") + ":" + c.OriginalURL()
}

// OrdersKey caches order reads per user. userID extracts the caller from the request.
func OrdersKey(userID func(*fiber.Ctx) string) KeyFunc {
	return func(c *fiber.Ctx) string {
		id := userID(c)
		if id == "" {
			return ""
		}
		return "orders:" + id + ":" + c.OriginalURL()
	}
}

// Middleware serves GET responses out of the cache and stores successful ones for ttl.
// A hit is returned with "fromCache": true added to the stored body.
func Middleware(store *Cache, key KeyFunc, ttl time.Duration, logger *zap.Logger) fiber.Handler {
	logger = logging.OrNop(logger).Named("cache")
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet {
			return c.Next()
		}
		k := key(c)
		if k == "" {
			return c.Next()
		}
		ctx := c.UserContext()

		raw, ok, err := store.GetRaw(ctx, k)
		if err != nil {
			logger.Warn("cache read failed", zap.String("key", k), zap.Error(err))
			return c.Next()
		}
		if ok {
			if err := store.RecordHit(ctx); err != nil {
				logger.Debug("hit counter failed", zap.Error(err))
			}
			return serveCached(c, raw)
		}
		if err := store.RecordMiss(ctx); err != nil {
			logger.Debug("miss counter failed", zap.Error(err))
		}

		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		body := bytes.Clone(c.Response().Body())
		if err := store.SetRaw(ctx, k, body, ttl); err != nil {
			logger.Warn("cache write failed", zap.String("key", k), zap.Error(err))
		}
		return nil
	}
}

func serveCached(c *fiber.Ctx, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).Send(raw)
	}
	body["fromCache"] = true
	return c.Status(fiber.StatusOK).JSON(body)
}

// Submitter runs background jobs. *async.Dispatcher implements it.
type Submitter interface {
	Submit(name string, job async.Job) bool
}

// ResponseTimer records how long each matched route took to answer.
// Samples are written through submit when it is set, inline otherwise.
func ResponseTimer(store *Cache, submit Submitter, logger *zap.Logger) fiber.Handler {
	logger = logging.OrNop(logger).Named("cache")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		method := strings.Clone(c.Method())
		route := strings.Clone(c.Route().Path)
		record := func(ctx context.Context) error {
			return store.RecordResponseTime(ctx, method, route, elapsed)
		}
		if submit != nil {
			submit.Submit("record response time", record)
		} else if recErr := record(c.UserContext()); recErr != nil {
			logger.Debug("response time not recorded", zap.Error(recErr))
		}
		return err
	}
}
