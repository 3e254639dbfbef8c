package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/card-shop/internal/infrastructure/store"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// validTransitions defines allowed state transitions. Orders are immutable
// after checkout except for this one field.
var validTransitions = map[store.OrderStatus][]store.OrderStatus{
	store.OrderPending:   {store.OrderPaid, store.OrderCancelled},
	store.OrderPaid:      {store.OrderShipped, store.OrderCancelled},
	store.OrderShipped:   {store.OrderDelivered},
	store.OrderDelivered: {}, // terminal
	store.OrderCancelled: {}, // terminal
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to store.OrderStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) Get(ctx context.Context, id string) (*store.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
	}
	return o, err
}

func (s *Service) ForUser(ctx context.Context, userID string) ([]*store.Order, error) {
	return s.store.OrdersForUser(ctx, userID)
}

func (s *Service) All(ctx context.Context) ([]*store.Order, error) {
	return s.store.AllOrders(ctx)
}

// UpdateStatus moves an order along its lifecycle, rejecting transitions the
// state machine does not allow.
func (s *Service) UpdateStatus(ctx context.Context, id string, next store.OrderStatus) error {
	if _, known := validTransitions[next]; !known {
		return fmt.Errorf("%q: %w", next, ErrInvalidStatus)
	}
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%s -> %s: %w", o.Status, next, ErrInvalidTransition)
	}
	return s.store.UpdateOrderStatus(ctx, id, next)
}
