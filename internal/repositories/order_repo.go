package repositories

import (
	"context"

	"marketplace/internal/models"
)

// OrderListFilter selects one page of a user's orders.
type OrderListFilter struct {
	UserID string
	Status models.OrderStatus // empty means any
	Offset int
	Limit  int
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	// Create stores the order together with its items.
	Create(ctx context.Context, order *models.Order) error
	// GetByID returns the order with its items and coupon redemptions.
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// ListByUser returns newest-first orders with their coupon redemptions, and the total count.
	ListByUser(ctx context.Context, filter OrderListFilter) ([]models.Order, int64, error)
	Items(ctx context.Context, orderID string) ([]models.OrderItem, error)
	// UpdateStatus moves an order that is not cancelled or delivered to status.
	// A frozen order is left untouched and reported as *FrozenOrderError.
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
}
