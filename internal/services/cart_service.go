package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace/internal/apperror"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
)

// CartLine is a cart item with its line total.
type CartLine struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Slug      string          `json:"slug"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CartView is what the client sees of its cart.
type CartView struct {
	ID       string          `json:"id,omitempty"`
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Count    int             `json:"count"`
}

// CartItemInput adds or sets a product quantity.
type CartItemInput struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CartService manages the single cart of each user.
type CartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
}

func NewCartService(carts repositories.CartRepository, products repositories.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

// GetCart returns the user's cart, empty when the user has none yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*CartView, error) {
	cart, err := s.carts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &CartView{Items: []CartLine{}, Subtotal: decimal.Zero}, nil
		}
		return nil, err
	}
	return s.view(ctx, cart)
}

// AddItem increases the quantity of a product, creating the cart on first use.
func (s *CartService) AddItem(ctx context.Context, userID string, input CartItemInput) (*CartView, error) {
	if input.Quantity < 1 {
		return nil, apperror.Invalid("Quantity must be at least 1")
	}
	product, err := s.orderableProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := s.carts.GetItem(ctx, cart.ID, product.ID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		item = &models.CartItem{CartID: cart.ID, ProductID: product.ID}
	case err != nil:
		return nil, err
	}

	if item.Quantity+input.Quantity > product.Stock {
		return nil, apperror.Invalid("Insufficient stock")
	}
	item.Quantity += input.Quantity
	if err := s.carts.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// UpdateItem sets the quantity of a product already in the cart.
func (s *CartService) UpdateItem(ctx context.Context, userID string, input CartItemInput) (*CartView, error) {
	if input.Quantity < 1 {
		return nil, apperror.Invalid("Quantity must be at least 1")
	}
	cart, item, err := s.existingItem(ctx, userID, input.ProductID)
	if err != nil {
		return nil, err
	}
	product, err := s.orderableProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if input.Quantity > product.Stock {
		return nil, apperror.Invalid("Insufficient stock")
	}
	item.Quantity = input.Quantity
	if err := s.carts.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// RemoveItem drops a product from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*CartView, error) {
	cart, _, err := s.existingItem(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.DeleteItem(ctx, cart.ID, productID); err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// ClearCart empties the cart. A missing cart is already empty.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	cart, err := s.carts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.carts.Clear(ctx, cart.ID)
}

func (s *CartService) existingItem(ctx context.Context, userID, productID string) (*models.Cart, *models.CartItem, error) {
	cart, err := s.carts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, apperror.NotFound("Cart not found")
		}
		return nil, nil, err
	}
	item, err := s.carts.GetItem(ctx, cart.ID, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, apperror.NotFound("Item not found in cart")
		}
		return nil, nil, err
	}
	return cart, item, nil
}

func (s *CartService) orderableProduct(ctx context.Context, productID string) (*models.Product, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return nil, apperror.Invalid("Invalid product ID")
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Product not found")
		}
		return nil, err
	}
	if product.IsDeleted() || !product.IsAvailable {
		return nil, apperror.Invalid("Product no longer available")
	}
	return product, nil
}

func (s *CartService) view(ctx context.Context, cart *models.Cart) (*CartView, error) {
	items, err := s.carts.Items(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	view := &CartView{ID: cart.ID, Items: make([]CartLine, 0, len(items)), Subtotal: decimal.Zero}
	for _, item := range items {
		line := CartLine{
			ProductID: item.ProductID,
			Title:     item.Product.Title,
			Slug:      item.Product.Slug,
			Price:     item.Product.Price,
			Stock:     item.Product.Stock,
			Quantity:  item.Quantity,
			LineTotal: item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		view.Items = append(view.Items, line)
		view.Subtotal = view.Subtotal.Add(line.LineTotal)
		view.Count += item.Quantity
	}
	return view, nil
}
