package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/example/card-shop/internal/domain/ledger"
	"github.com/example/card-shop/internal/events"
	"github.com/example/card-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

var ErrEmptyCart = errors.New("cart is empty")

// ShippingInfo is the buyer-supplied delivery detail captured on the order.
type ShippingInfo struct {
	Name          string
	Address       string
	PaymentMethod string
}

// Result is returned on a committed checkout.
type Result struct {
	OrderID   string `json:"order_id"`
	OrderCode string `json:"order_code"`
	Total     int    `json:"total"`
}

// Service converts a cart into an order. The whole conversion is one store
// transaction: availability is re-validated under the ledger locks, and either
// the order rows, the ledger decrements, and the cart deletion all commit, or
// none do.
type Service struct {
	store     store.Store
	ledger    *ledger.Service
	publisher events.Publisher
}

func NewService(st store.Store, led *ledger.Service, pub events.Publisher) *Service {
	return &Service{store: st, ledger: led, publisher: pub}
}

type checkoutLine struct {
	item *store.CartItem
	key  ledger.Key
	line *store.StockLine // re-read under lock during validation
}

// Checkout runs the full transaction for a user's cart.
func (s *Service) Checkout(ctx context.Context, userID string, info ShippingInfo) (*Result, error) {
	items, err := s.store.CartItemsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	// Resolve each cart row to its ledger key before taking any locks.
	lines := make([]*checkoutLine, 0, len(items))
	for _, item := range items {
		stockLine, err := s.store.GetStockLine(ctx, item.StockLineID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, ledger.ErrInsufficientStock)
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, &checkoutLine{
			item: item,
			key:  ledger.Key{ProductID: stockLine.ProductID, Condition: stockLine.Condition},
		})
	}
	sortLines(lines)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Validate: lock every key in ascending order and re-read availability.
	// Nothing is written until every line passes.
	for _, cl := range lines {
		locked, err := tx.StockLineForUpdate(ctx, cl.key.ProductID, cl.key.Condition)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", cl.key.ProductID, ledger.ErrInsufficientStock)
		}
		if err != nil {
			return nil, err
		}
		if cl.item.Quantity > locked.Quantity {
			return nil, fmt.Errorf("product %s: %w", cl.key.ProductID, ledger.ErrInsufficientStock)
		}
		cl.line = locked
	}

	// Commit phase. Prices come from the just-validated reads, not from
	// whatever the lines were priced at when they entered the cart.
	priced := make([]PricedLine, len(lines))
	for i, cl := range lines {
		priced[i] = PricedLine{Quantity: cl.item.Quantity, UnitPrice: cl.line.Price}
	}
	total := Total(priced)

	now := time.Now()
	order := &store.Order{
		ID:              uuid.New().String(),
		Code:            NewOrderCode(),
		UserID:          userID,
		Status:          store.OrderPending,
		Total:           total,
		ShippingName:    info.Name,
		ShippingAddress: info.Address,
		PaymentMethod:   info.PaymentMethod,
		CreatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	eventItems := make([]events.OrderLine, 0, len(lines))
	for _, cl := range lines {
		orderItem := &store.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			ProductID: cl.item.ProductID,
			Quantity:  cl.item.Quantity,
			Price:     cl.line.Price,
		}
		if err := tx.InsertOrderItem(ctx, orderItem); err != nil {
			return nil, err
		}
		if _, err := s.ledger.Adjust(ctx, tx, cl.key.ProductID, cl.key.Condition, -cl.item.Quantity); err != nil {
			return nil, err
		}
		eventItems = append(eventItems, events.OrderLine{
			ProductID: cl.item.ProductID,
			Quantity:  cl.item.Quantity,
			Price:     cl.line.Price,
		})
	}

	if err := tx.DeleteCartItems(ctx, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.publishPlaced(ctx, order, eventItems)

	return &Result{OrderID: order.ID, OrderCode: order.Code, Total: total}, nil
}

// publishPlaced emits the OrderPlaced event. The order is already committed;
// a publish failure is logged, not returned.
func (s *Service) publishPlaced(ctx context.Context, order *store.Order, items []events.OrderLine) {
	if s.publisher == nil {
		return
	}
	env, err := events.Wrap(events.TypeOrderPlaced, events.OrderPlaced{
		OrderID:  order.ID,
		Code:     order.Code,
		UserID:   order.UserID,
		Total:    order.Total,
		Items:    items,
		PlacedAt: order.CreatedAt,
	})
	if err != nil {
		log.Printf("[Checkout] Failed to build OrderPlaced event for %s: %v", order.Code, err)
		return
	}
	if err := s.publisher.Publish(ctx, order.ID, env); err != nil {
		log.Printf("[Checkout] Failed to publish OrderPlaced for %s: %v", order.Code, err)
	}
}

// sortLines orders checkout lines by ascending ledger key so lock acquisition
// order is deterministic across concurrent checkouts.
func sortLines(lines []*checkoutLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].key.Less(lines[j].key) })
}

// NewOrderCode generates a fresh public order code.
func NewOrderCode() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:8])
}
