package repositories

import (
	"errors"
	"fmt"

	"marketplace/internal/models"
)

var (
	// ErrNotFound is wrapped by every lookup that matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientStock is returned when a conditional stock decrement matched no row.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// FrozenOrderError is returned when a status change matched an order that is
// already cancelled or delivered.
type FrozenOrderError struct {
	OrderID string
	Status  models.OrderStatus
}

func (e *FrozenOrderError) Error() string {
	return fmt.Sprintf("order %s is %s", e.OrderID, e.Status)
}
