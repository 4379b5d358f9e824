package services

import (
	"context"

	"marketplace/internal/models"
)

// Notifier emits domain events. Delivery is best-effort and never reports failure to the caller.
type Notifier interface {
	EmitOrderUpdated(ctx context.Context, order models.Order)
	EmitPublishProduct(ctx context.Context, product models.Product)
}

// CacheInvalidator drops cached responses after writes. Best-effort.
type CacheInvalidator interface {
	InvalidateProducts(ctx context.Context)
	InvalidateSpecificProduct(ctx context.Context, productID string)
	InvalidateUserOrders(ctx context.Context, userID string)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type noopNotifier struct{}

func (noopNotifier) EmitOrderUpdated(context.Context, models.Order)     {}
func (noopNotifier) EmitPublishProduct(context.Context, models.Product) {}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateProducts(context.Context)                {}
func (noopInvalidator) InvalidateSpecificProduct(context.Context, string) {}
func (noopInvalidator) InvalidateUserOrders(context.Context, string)      {}
