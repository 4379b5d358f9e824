// Package notify turns domain changes into events on the message broker.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/async"
	"marketplace/internal/logging"
	"marketplace/internal/models"
)

const (
	RouteOrderUpdated     = "order.updated"
	RouteProductPublished = "product.published"
)

// Publisher sends one event. *rabbitmq.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Submitter runs background jobs. *async.Dispatcher implements it.
type Submitter interface {
	Submit(name string, job async.Job) bool
}

// OrderUpdated is published whenever an order is created or changes status.
type OrderUpdated struct {
	OrderID    string             `json:"orderId"`
	UserID     string             `json:"userId"`
	Status     models.OrderStatus `json:"status"`
	Total      decimal.Decimal    `json:"total"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// ProductPublished is published when an admin approves a product.
type ProductPublished struct {
	ProductID  string          `json:"productId"`
	SellerID   string          `json:"sellerId"`
	Title      string          `json:"title"`
	Slug       string          `json:"slug"`
	Price      decimal.Decimal `json:"price"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Emitter publishes events without blocking the caller. Delivery is best effort.
type Emitter struct {
	publisher Publisher
	submit    Submitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewEmitter builds an Emitter. A nil submit publishes inline.
func NewEmitter(publisher Publisher, submit Submitter, logger *zap.Logger) *Emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Emitter{
		publisher: publisher,
		submit:    submit,
		logger:    logging.OrNop(logger).Named("notify"),
		now:       time.Now,
	}
}

func (e *Emitter) EmitOrderUpdated(ctx context.Context, order models.Order) {
	e.emit(ctx, RouteOrderUpdated, OrderUpdated{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total,
		OccurredAt: e.now().UTC(),
	})
}

func (e *Emitter) EmitPublishProduct(ctx context.Context, product models.Product) {
	e.emit(ctx, RouteProductPublished, ProductPublished{
		ProductID:  product.ID,
		SellerID:   product.SellerID,
		Title:      product.Title,
		Slug:       product.Slug,
		Price:      product.Price,
		OccurredAt: e.now().UTC(),
	})
}

func (e *Emitter) emit(ctx context.Context, routingKey string, event any) {
	job := func(ctx context.Context) error {
		return e.publisher.Publish(ctx, routingKey, event)
	}
	if e.submit != nil {
		e.submit.Submit("publish "+routingKey, job)
		return
	}
	if err := job(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("event not published", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// NopPublisher discards events. It stands in when no broker is reachable.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
