package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"marketplace/internal/apperror"
	"marketplace/internal/cache"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// PerformanceHandler reports liveness and cache metrics.
type PerformanceHandler struct {
	cache   *cache.Cache // nil when redis is unavailable
	checks  map[string]HealthCheck
	started time.Time
}

func NewPerformanceHandler(store *cache.Cache, checks map[string]HealthCheck) *PerformanceHandler {
	return &PerformanceHandler{cache: store, checks: checks, started: time.Now()}
}

func (h *PerformanceHandler) RegisterRoutes(router fiber.Router, g Guards) {
	perfRoutes := router.Group("/performance")
	perfRoutes.Get("/health", h.HandleHealth)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	perfRoutes.Get("/stats", g.Auth, adminOnly, h.HandleStats)
	perfRoutes.Post("/cache/reset", g.Auth, adminOnly, h.HandleResetStats)
}

// HandleHealth runs every dependency check. Any failure turns the answer into a 503.
func (h *PerformanceHandler) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := fiber.StatusOK
	services := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			services[name] = "unavailable"
			status = fiber.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	state := "healthy"
	if status != fiber.StatusOK {
		state = "degraded"
	}
	return c.Status(status).JSON(Response{
		Success: status == fiber.StatusOK,
		Data: fiber.Map{
			"status":   state,
			"time":     time.Now().UTC().Format(time.RFC3339),
			"uptime":   time.Since(h.started).Round(time.Second).String(),
			"services": services,
		},
	})
}

func (h *PerformanceHandler) HandleStats(c *fiber.Ctx) error {
	if h.cache == nil {
		return apperror.New(fiber.StatusServiceUnavailable, "Cache unavailable")
	}
	stats, err := h.cache.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", stats)
}

func (h *PerformanceHandler) HandleResetStats(c *fiber.Ctx) error {
	if h.cache == nil {
		return apperror.New(fiber.StatusServiceUnavailable, "Cache unavailable")
	}
	if err := h.cache.ResetStats(c.UserContext()); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Cache statistics reset", nil)
}
