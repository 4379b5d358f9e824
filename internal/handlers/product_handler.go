package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"marketplace/internal/apperror"
	"marketplace/internal/cache"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/services"
)

// ProductHandler serves the catalog, product reviews and admin moderation.
type ProductHandler struct {
	products *services.ProductService
	reviews  *services.ReviewService
	validate *validator.Validate
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(products *services.ProductService, reviews *services.ReviewService, validate *validator.Validate) *ProductHandler {
	return &ProductHandler{products: products, reviews: reviews, validate: validate}
}

// RegisterRoutes registers the product, review and moderation routes.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, g Guards) {
	sellers := middleware.RequireRole(models.RoleSeller, models.RoleAdmin)

	productRoutes := router.Group("/products")
	productRoutes.Get("/", g.Cached(cache.ProductsKey), h.HandleListProducts)
	productRoutes.Get("/slug/:slug", h.HandleGetProductBySlug)
	productRoutes.Get("/:id", g.Cached(cache.ProductKey), h.HandleGetProduct)
	productRoutes.Post("/", g.Auth, sellers, h.HandleCreateProduct)
	productRoutes.Put("/:id", g.Auth, sellers, h.HandleUpdateProduct)
	productRoutes.Delete("/:id", g.Auth, sellers, h.HandleDeleteProduct)
	productRoutes.Patch("/:id/visibility", g.Auth, sellers, h.HandleSetVisibility)
	productRoutes.Get("/:id/reviews", h.HandleListReviews)
	productRoutes.Post("/:id/reviews", g.Auth, h.HandleCreateReview)

	adminRoutes := router.Group("/admin/products", g.Auth, middleware.RequireRole(models.RoleAdmin))
	adminRoutes.Get("/pending", h.HandleListPending)
	adminRoutes.Patch("/:id/validate", h.HandleValidateProduct)
	adminRoutes.Patch("/:id/reject", h.HandleRejectProduct)
}

// HandleListProducts searches the catalog.
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	minPrice, err := priceQuery(c, "minPrice")
	if err != nil {
		return err
	}
	maxPrice, err := priceQuery(c, "maxPrice")
	if err != nil {
		return err
	}

	result, err := h.products.ListProducts(c.UserContext(), services.ProductQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		InStock:  c.QueryBool("inStock"),
		SellerID: c.Query("seller"),
		SortBy:   strings.ToLower(c.Query("sortBy")),
		Order:    c.Query("order"),
		Page:     pageParams(c, services.DefaultProductLimit),
	})
	if err != nil {
		return err
	}
	return respondPage(c, "", fiber.Map{"products": result.Products}, result.Metadata)
}

func priceQuery(c *fiber.Ctx, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperror.Invalid("Invalid %s", key)
	}
	return &price, nil
}

func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	product, err := h.products.GetProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"product": product})
}

func (h *ProductHandler) HandleGetProductBySlug(c *fiber.Ctx) error {
	product, err := h.products.GetProductBySlug(c.UserContext(), c.Params("slug"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"product": product})
}

// HandleCreateProduct lists a new product for moderation.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var input services.ProductInput
	if err := bind(c, h.validate, &input); err != nil {
		return err
	}
	product, err := h.products.CreateProduct(c.UserContext(), middleware.Actor(c), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "Product created successfully", fiber.Map{"product": product})
}

func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	var input services.ProductUpdate
	if err := bind(c, h.validate, &input); err != nil {
		return err
	}
	product, err := h.products.UpdateProduct(c.UserContext(), middleware.Actor(c), c.Params("id"), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Product updated successfully", fiber.Map{"product": product})
}

func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.products.DeleteProduct(c.UserContext(), middleware.Actor(c), c.Params("id")); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Product deleted successfully", nil)
}

// VisibilityRequest is the body of PATCH /products/:id/visibility.
type VisibilityRequest struct {
	IsVisible *bool `json:"isVisible" validate:"required"`
}

func (h *ProductHandler) HandleSetVisibility(c *fiber.Ctx) error {
	var req VisibilityRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	product, err := h.products.SetVisibility(c.UserContext(), middleware.Actor(c), c.Params("id"), *req.IsVisible)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Product visibility updated", fiber.Map{"product": product})
}

func (h *ProductHandler) HandleListReviews(c *fiber.Ctx) error {
	if _, err := h.products.GetProduct(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	summary, err := h.reviews.Summary(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", summary)
}

func (h *ProductHandler) HandleCreateReview(c *fiber.Ctx) error {
	var input services.CreateReviewInput
	if err := bind(c, h.validate, &input); err != nil {
		return err
	}
	review, err := h.reviews.CreateReview(c.UserContext(), middleware.UserID(c), c.Params("id"), input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "Review added successfully", fiber.Map{"review": review})
}

func (h *ProductHandler) HandleListPending(c *fiber.Ctx) error {
	products, err := h.products.ListPending(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"products": products})
}

func (h *ProductHandler) HandleValidateProduct(c *fiber.Ctx) error {
	product, err := h.products.ValidateProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Product validated", fiber.Map{"product": product})
}

// RejectRequest is the body of PATCH /admin/products/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *ProductHandler) HandleRejectProduct(c *fiber.Ctx) error {
	var req RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.Invalid("Invalid request body")
	}
	product, err := h.products.RejectProduct(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Product rejected", fiber.Map{"product": product})
}
