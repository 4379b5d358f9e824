package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"marketplace/internal/cache"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/pagination"
	"marketplace/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validate,
	}
}

// RegisterRoutes registers the order routes. Every route needs a signed-in caller.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, g Guards) {
	orderRoutes := router.Group("/orders", g.Auth)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/", g.Cached(cache.OrdersKey(middleware.UserID)), h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Patch("/:id/status", middleware.RequireRole(models.RoleAdmin), h.HandleUpdateOrderStatus)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	CouponCodes []string `json:"couponCodes" validate:"omitempty,dive,required"`
}

// HandleCreateOrder turns the caller's cart into an order.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if len(c.Body()) > 0 {
		if err := bind(c, h.validate, &req); err != nil {
			return err
		}
	}

	order, err := h.service.CreateOrder(c.UserContext(), middleware.UserID(c), req.CouponCodes)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "Order created successfully", fiber.Map{"order": order})
}

// HandleGetOrders lists the caller's orders, newest first.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	page := pageParams(c, pagination.DefaultLimit)
	result, err := h.service.GetOrders(c.UserContext(), middleware.UserID(c), c.Query("status"), page)
	if err != nil {
		return err
	}
	return respondPage(c, "", fiber.Map{"orders": result.Orders}, result.Metadata)
}

// HandleGetOrderByID retrieves a single order with its items and coupons.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrderByID(c.UserContext(), middleware.Actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"order": order})
}

// UpdateStatusRequest is the body of PATCH /orders/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Order status updated", fiber.Map{"order": order})
}

// HandleCancelOrder cancels an order of the caller, or any order for an admin.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	order, err := h.service.CancelOrder(c.UserContext(), middleware.Actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Order cancelled", fiber.Map{"order": order})
}
