package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/services"
)

// CouponHandler exposes coupon management to admins.
type CouponHandler struct {
	service  *services.CouponService
	validate *validator.Validate
}

func NewCouponHandler(service *services.CouponService, validate *validator.Validate) *CouponHandler {
	return &CouponHandler{service: service, validate: validate}
}

func (h *CouponHandler) RegisterRoutes(router fiber.Router, g Guards) {
	couponRoutes := router.Group("/coupons", g.Auth, middleware.RequireRole(models.RoleAdmin))
	couponRoutes.Get("/", h.HandleListCoupons)
	couponRoutes.Post("/", h.HandleCreateCoupon)
	couponRoutes.Patch("/:id/active", h.HandleSetActive)
}

func (h *CouponHandler) HandleListCoupons(c *fiber.Ctx) error {
	coupons, err := h.service.ListCoupons(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"coupons": coupons})
}

func (h *CouponHandler) HandleCreateCoupon(c *fiber.Ctx) error {
	var input services.CouponInput
	if err := bind(c, h.validate, &input); err != nil {
		return err
	}
	coupon, err := h.service.CreateCoupon(c.UserContext(), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "Coupon created successfully", fiber.Map{"coupon": coupon})
}

// ActiveRequest is the body of PATCH /coupons/:id/active.
type ActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

func (h *CouponHandler) HandleSetActive(c *fiber.Ctx) error {
	var req ActiveRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	coupon, err := h.service.SetCouponActive(c.UserContext(), c.Params("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Coupon updated", fiber.Map{"coupon": coupon})
}
