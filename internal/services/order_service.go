package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/apperror"
	"marketplace/internal/logging"
	"marketplace/internal/models"
	"marketplace/internal/pagination"
	"marketplace/internal/repositories"
)

// OrderService handles business logic related to orders.
type OrderService struct {
	uow      repositories.UnitOfWork
	orders   repositories.OrderRepository
	notifier Notifier
	cache    CacheInvalidator
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new OrderService. notifier and cache may be nil.
func NewOrderService(
	uow repositories.UnitOfWork,
	orders repositories.OrderRepository,
	notifier Notifier,
	cache CacheInvalidator,
	logger *zap.Logger,
) *OrderService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &OrderService{
		uow:      uow,
		orders:   orders,
		notifier: notifier,
		cache:    cache,
		logger:   logging.OrNop(logger).Named("orders"),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests exercising coupon expiry.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// OrderPage is one page of a user's orders.
type OrderPage struct {
	Orders   []models.Order
	Metadata pagination.Metadata
}

// CreateOrder turns the user's cart into an order. Every check runs before
// the first write and all writes share one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, couponCodes []string) (*models.Order, error) {
	var order *models.Order

	err := s.uow.RunInTx(ctx, func(repos repositories.Repositories) error {
		cart, err := repos.Carts.GetByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperror.NotFound("Cart not found")
			}
			return err
		}

		cartItems, err := repos.Carts.Items(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(cartItems) == 0 {
			return apperror.Invalid("Cart is empty")
		}

		subtotal := decimal.Zero
		for _, item := range cartItems {
			if err := checkOrderable(item); err != nil {
				return err
			}
			subtotal = subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		now := s.now()
		orderID := uuid.New().String()

		applied, discount, err := s.applyCoupons(ctx, repos.Coupons, userID, subtotal, couponCodes)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(cartItems))
		for _, ci := range cartItems {
			imageURL, err := primaryImageURL(ctx, repos.Products, ci.ProductID)
			if err != nil {
				return err
			}
			items = append(items, models.OrderItem{
				ProductID: ci.ProductID,
				Title:     ci.Product.Title,
				ImageURL:  imageURL,
				Price:     ci.Product.Price,
				Quantity:  ci.Quantity,
			})
		}

		total := subtotal.Sub(discount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		order = &models.Order{
			ID:       orderID,
			UserID:   userID,
			Subtotal: subtotal,
			Discount: discount,
			Total:    total,
			Status:   models.OrderStatusPending,
			Items:    items,
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		for _, item := range items {
			if err := repos.Products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, repositories.ErrInsufficientStock) {
					return apperror.Invalid("Insufficient stock")
				}
				return err
			}
		}

		redemptions := make([]models.UserCoupon, 0, len(applied))
		for i := range applied {
			applied[i].OrderID = orderID
			redemptions = append(redemptions, models.UserCoupon{
				UserID:   userID,
				CouponID: applied[i].CouponID,
				UsedAt:   now,
			})
		}
		if err := repos.Coupons.CreateRedemptions(ctx, redemptions); err != nil {
			return err
		}
		if err := repos.Coupons.CreateOrderCoupons(ctx, applied); err != nil {
			return err
		}
		order.Coupons = applied

		return repos.Carts.Clear(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("coupons", len(order.Coupons)),
	)

	s.cache.InvalidateProducts(ctx)
	s.cache.InvalidateUserOrders(ctx, userID)
	s.notifier.EmitOrderUpdated(ctx, *order)
	return order, nil
}

func checkOrderable(item models.CartItem) error {
	if item.Product.ID == "" {
		return apperror.Invalid("Product no longer available")
	}
	switch item.Product.State().(type) {
	case models.Deleted:
		return apperror.Invalid("Product no longer available")
	case models.Active:
	}
	if item.Quantity > item.Product.Stock {
		return apperror.Invalid("Insufficient stock")
	}
	return nil
}

func primaryImageURL(ctx context.Context, products repositories.ProductRepository, productID string) (string, error) {
	images, err := products.Images(ctx, productID)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", nil
	}
	return images[0].ImageURL, nil
}

// applyCoupons validates each code in order and returns the pending order
// coupons with the cumulative discount. Repeated codes apply independently.
func (s *OrderService) applyCoupons(
	ctx context.Context,
	coupons repositories.CouponRepository,
	userID string,
	subtotal decimal.Decimal,
	codes []string,
) ([]models.OrderCoupon, decimal.Decimal, error) {
	discount := decimal.Zero
	applied := make([]models.OrderCoupon, 0, len(codes))
	now := s.now()

	for _, code := range codes {
		coupon, err := coupons.GetActiveByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, decimal.Zero, apperror.Invalid("Invalid coupon: %s", code)
			}
			return nil, decimal.Zero, err
		}
		if coupon.Expired(now) {
			return nil, decimal.Zero, apperror.Invalid("Coupon expired: %s", code)
		}

		used, err := coupons.HasRedeemed(ctx, userID, coupon.ID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if used {
			return nil, decimal.Zero, apperror.Invalid("Coupon already used: %s", code)
		}

		if coupon.MinAmount.Valid && subtotal.LessThan(coupon.MinAmount.Decimal) {
			return nil, decimal.Zero, apperror.Invalid("Minimum amount %s required for coupon: %s", coupon.MinAmount.Decimal.String(), code)
		}

		// Global cap across all users, separate from the per-user check above.
		if coupon.UsageLimit != nil {
			if err := coupons.LockForRedemption(ctx, coupon.ID); err != nil {
				return nil, decimal.Zero, err
			}
			count, err := coupons.CountRedemptions(ctx, coupon.ID)
			if err != nil {
				return nil, decimal.Zero, err
			}
			if count >= int64(*coupon.UsageLimit) {
				return nil, decimal.Zero, apperror.Invalid("Coupon usage limit reached: %s", code)
			}
		}

		amount := CouponDiscount(*coupon, subtotal, subtotal.Sub(discount))
		discount = discount.Add(amount)
		applied = append(applied, models.OrderCoupon{
			CouponID: coupon.ID,
			Code:     coupon.Code,
			Discount: amount,
		})
	}
	return applied, discount, nil
}

// CouponDiscount is the amount a coupon takes off subtotal, rounded to cents
// and capped at remaining so the cumulative discount never exceeds the subtotal.
func CouponDiscount(coupon models.Coupon, subtotal, remaining decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch coupon.Type {
	case models.CouponPercentage:
		amount = subtotal.Mul(coupon.Value).Div(decimal.NewFromInt(100))
	default:
		amount = coupon.Value
	}
	amount = amount.Round(2)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if amount.GreaterThan(remaining) {
		amount = remaining
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount
}

// GetOrders returns one newest-first page of the user's orders, optionally filtered by status.
func (s *OrderService) GetOrders(ctx context.Context, userID string, status string, page pagination.Params) (*OrderPage, error) {
	page = pagination.Must(page)
	filter := repositories.OrderListFilter{
		UserID: userID,
		Offset: page.Offset(),
		Limit:  page.Limit,
	}
	if status != "" {
		st := models.OrderStatus(status)
		if !st.Valid() {
			return nil, apperror.Invalid("Invalid status")
		}
		filter.Status = st
	}

	orders, total, err := s.orders.ListByUser(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: orders, Metadata: pagination.NewMetadata(total, page)}, nil
}

// GetOrderByID returns the order with items and coupons. Only the owner or an admin may read it.
func (s *OrderService) GetOrderByID(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, apperror.Forbidden("not allowed")
	}
	return order, nil
}

// UpdateOrderStatus sets a new status on an order that is not cancelled or
// delivered. Moving to cancelled restores stock and coupons like CancelOrder.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status string) (*models.Order, error) {
	next := models.OrderStatus(status)
	if !next.Valid() {
		return nil, apperror.Invalid("Invalid status")
	}
	if next == models.OrderStatusCancelled {
		return s.cancel(ctx, Actor{Role: models.RoleAdmin}, orderID, "update")
	}

	order, err := s.loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkEditable(order.Status, "update"); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, next); err != nil {
		return nil, frozenAsInvalid(err, "update")
	}
	order.Status = next
	order.UpdatedAt = s.now()

	s.logger.Info("order status updated", zap.String("order_id", order.ID), zap.String("status", string(next)))
	s.notifier.EmitOrderUpdated(ctx, *order)
	s.cache.InvalidateUserOrders(ctx, order.UserID)
	return order, nil
}

// CancelOrder returns stock and frees coupons in one transaction. Only the
// owner or an admin may cancel.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	return s.cancel(ctx, actor, orderID, "cancel")
}

func (s *OrderService) cancel(ctx context.Context, actor Actor, orderID, verb string) (*models.Order, error) {
	var order *models.Order

	err := s.uow.RunInTx(ctx, func(repos repositories.Repositories) error {
		var err error
		order, err = s.loadOrder(ctx, repos.Orders, orderID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && order.UserID != actor.UserID {
			return apperror.Forbidden("not allowed")
		}
		if err := checkEditable(order.Status, verb); err != nil {
			return err
		}

		// Status first: losing a race with another cancel or status change
		// must abort before any stock moves.
		if err := repos.Orders.UpdateStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
			return frozenAsInvalid(err, verb)
		}

		for _, item := range order.Items {
			if err := repos.Products.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		applied, err := repos.Coupons.OrderCoupons(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, oc := range applied {
			if err := repos.Coupons.DeleteRedemption(ctx, order.UserID, oc.CouponID); err != nil {
				return err
			}
		}
		if err := repos.Coupons.DeleteOrderCoupons(ctx, order.ID); err != nil {
			return err
		}

		order.Status = models.OrderStatusCancelled
		order.Coupons = []models.OrderCoupon{}
		order.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", zap.String("order_id", order.ID), zap.String("by", actor.UserID))
	s.notifier.EmitOrderUpdated(ctx, *order)
	s.cache.InvalidateUserOrders(ctx, order.UserID)
	s.cache.InvalidateProducts(ctx)
	return order, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orders repositories.OrderRepository, orderID string) (*models.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperror.Invalid("Invalid order ID")
	}
	order, err := orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Order not found")
		}
		return nil, err
	}
	return order, nil
}

func checkEditable(status models.OrderStatus, verb string) error {
	if !status.Frozen() {
		return nil
	}
	return apperror.Invalid("Cannot %s %s order", verb, status)
}

func frozenAsInvalid(err error, verb string) error {
	var frozen *repositories.FrozenOrderError
	if errors.As(err, &frozen) {
		return checkEditable(frozen.Status, verb)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return apperror.NotFound("Order not found")
	}
	return err
}
