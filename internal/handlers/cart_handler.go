package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"marketplace/internal/middleware"
	"marketplace/internal/services"
)

type CartHandler struct {
	service  *services.CartService
	validate *validator.Validate
}

func NewCartHandler(service *services.CartService, validate *validator.Validate) *CartHandler {
	return &CartHandler{service: service, validate: validate}
}

func (h *CartHandler) RegisterRoutes(router fiber.Router, g Guards) {
	cartRoutes := router.Group("/cart", g.Auth)
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Delete("/", h.HandleClearCart)
	cartRoutes.Post("/items", h.HandleAddItem)
	cartRoutes.Patch("/items/:productId", h.HandleUpdateItem)
	cartRoutes.Delete("/items/:productId", h.HandleRemoveItem)
}

func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	cart, err := h.service.GetCart(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"cart": cart})
}

func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var input services.CartItemInput
	if err := bind(c, h.validate, &input); err != nil {
		return err
	}
	cart, err := h.service.AddItem(c.UserContext(), middleware.UserID(c), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Item added to cart", fiber.Map{"cart": cart})
}

// QuantityRequest is the body of PATCH /cart/items/:productId.
type QuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

func (h *CartHandler) HandleUpdateItem(c *fiber.Ctx) error {
	var req QuantityRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	input := services.CartItemInput{ProductID: c.Params("productId"), Quantity: req.Quantity}
	cart, err := h.service.UpdateItem(c.UserContext(), middleware.UserID(c), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Cart updated", fiber.Map{"cart": cart})
}

func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	cart, err := h.service.RemoveItem(c.UserContext(), middleware.UserID(c), c.Params("productId"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Item removed from cart", fiber.Map{"cart": cart})
}

func (h *CartHandler) HandleClearCart(c *fiber.Ctx) error {
	if err := h.service.ClearCart(c.UserContext(), middleware.UserID(c)); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Cart cleared", nil)
}
