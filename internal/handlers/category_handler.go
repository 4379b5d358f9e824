package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/services"
)

type CategoryHandler struct {
	service  *services.CategoryService
	validate *validator.Validate
}

func NewCategoryHandler(service *services.CategoryService, validate *validator.Validate) *CategoryHandler {
	return &CategoryHandler{service: service, validate: validate}
}

func (h *CategoryHandler) RegisterRoutes(router fiber.Router, g Guards) {
	categoryRoutes := router.Group("/categories")
	categoryRoutes.Get("/", h.HandleListCategories)
	categoryRoutes.Post("/", g.Auth, middleware.RequireRole(models.RoleAdmin), h.HandleCreateCategory)
}

func (h *CategoryHandler) HandleListCategories(c *fiber.Ctx) error {
	categories, err := h.service.ListCategories(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"categories": categories})
}

func (h *CategoryHandler) HandleCreateCategory(c *fiber.Ctx) error {
	var input services.CategoryInput
	if err := bind(c, h.validate, &input); err != nil {
		return err
	}
	category, err := h.service.CreateCategory(c.UserContext(), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "Category created successfully", fiber.Map{"category": category})
}
