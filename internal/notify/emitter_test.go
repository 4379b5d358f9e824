package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace/internal/async"
	"marketplace/internal/models"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	args := m.Called(ctx, routingKey, payload)
	return args.Error(0)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEmitter(p Publisher, s Submitter) *Emitter {
	e := NewEmitter(p, s, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestEmitOrderUpdated(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, RouteOrderUpdated, mock.MatchedBy(func(ev OrderUpdated) bool {
		return ev.OrderID == "o1" && ev.UserID == "u1" && ev.Status == models.OrderStatusPaid &&
			ev.Total.Equal(decimal.NewFromInt(80)) && ev.OccurredAt.Equal(fixedNow)
	})).Return(nil).Once()

	e := newTestEmitter(pub, nil)
	e.EmitOrderUpdated(context.Background(), models.Order{
		ID:     "o1",
		UserID: "u1",
		Status: models.OrderStatusPaid,
		Total:  decimal.RequireFromString("80"),
	})

	pub.AssertExpectations(t)
}

func TestEmitPublishProduct(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, RouteProductPublished, mock.MatchedBy(func(ev ProductPublished) bool {
		return ev.ProductID == "p1" && ev.SellerID == "s1" && ev.Slug == "mug" && ev.OccurredAt.Equal(fixedNow)
	})).Return(nil).Once()

	e := newTestEmitter(pub, nil)
	e.EmitPublishProduct(context.Background(), models.Product{ID: "p1", SellerID: "s1", Title: "Mug", Slug: "mug"})

	pub.AssertExpectations(t)
}

func TestEmit_PublishFailureIsSwallowed(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, RouteOrderUpdated, mock.Anything).Return(errors.New("broker down"))

	e := newTestEmitter(pub, nil)
	assert.NotPanics(t, func() {
		e.EmitOrderUpdated(context.Background(), models.Order{ID: "o1"})
	})
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestEmit_CancelledRequestStillPublishes(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), RouteOrderUpdated, mock.Anything).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	newTestEmitter(pub, nil).EmitOrderUpdated(ctx, models.Order{ID: "o1"})

	pub.AssertExpectations(t)
}

func TestEmit_ThroughDispatcher(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, RouteOrderUpdated, mock.Anything).Return(nil).Twice()

	d := async.NewDispatcher(async.Options{Workers: 2, Buffer: 8, Timeout: time.Second}, nil)
	e := newTestEmitter(pub, d)
	e.EmitOrderUpdated(context.Background(), models.Order{ID: "o1"})
	e.EmitOrderUpdated(context.Background(), models.Order{ID: "o2"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	pub.AssertExpectations(t)
}

func TestNewEmitter_NilPublisher(t *testing.T) {
	e := NewEmitter(nil, nil, nil)
	assert.NotPanics(t, func() {
		e.EmitPublishProduct(context.Background(), models.Product{ID: "p1"})
	})
}
