package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"marketplace/internal/cache"
	"marketplace/internal/middleware"
	"marketplace/internal/services"
)

// Guards are the per-route middlewares handlers attach to their routes.
type Guards struct {
	Auth   fiber.Handler
	cached func(cache.KeyFunc) fiber.Handler
}

// Cached serves the route out of the response cache, or passes through when none is configured.
func (g Guards) Cached(key cache.KeyFunc) fiber.Handler {
	if g.cached == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return g.cached(key)
}

// Deps is everything the HTTP layer needs.
type Deps struct {
	Auth       *services.AuthService
	Products   *services.ProductService
	Reviews    *services.ReviewService
	Categories *services.CategoryService
	Carts      *services.CartService
	Coupons    *services.CouponService
	Orders     *services.OrderService

	Cache      *cache.Cache // optional
	CacheTTL   time.Duration
	Background cache.Submitter // optional, runs response time sampling

	HealthChecks map[string]HealthCheck
	Logger       *zap.Logger
}

// NewRouter builds the fiber app with every route under /api/v1.
func NewRouter(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(d.Logger),
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(d.Logger))

	guards := Guards{Auth: middleware.AuthRequired(d.Auth)}
	if d.Cache != nil {
		app.Use(cache.ResponseTimer(d.Cache, d.Background, d.Logger))
		guards.cached = func(key cache.KeyFunc) fiber.Handler {
			return cache.Middleware(d.Cache, key, d.CacheTTL, d.Logger)
		}
	}

	perf := NewPerformanceHandler(d.Cache, d.HealthChecks)
	app.Get("/health", perf.HandleHealth)

	validate := validator.New()
	api := app.Group("/api/v1")
	NewAuthHandler(d.Auth, validate).RegisterRoutes(api)
	NewProductHandler(d.Products, d.Reviews, validate).RegisterRoutes(api, guards)
	NewCategoryHandler(d.Categories, validate).RegisterRoutes(api, guards)
	NewCartHandler(d.Carts, validate).RegisterRoutes(api, guards)
	NewCouponHandler(d.Coupons, validate).RegisterRoutes(api, guards)
	NewOrderHandler(d.Orders, validate).RegisterRoutes(api, guards)
	perf.RegisterRoutes(api, guards)

	return app
}
