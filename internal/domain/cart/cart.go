package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/card-shop/internal/domain/ledger"
	"github.com/example/card-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrNotOwner        = errors.New("cart item belongs to another user")
	ErrProductMismatch = errors.New("stock line does not belong to product")
)

// Line is one cart row joined with its product and stock line for display.
type Line struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Condition    store.Condition `json:"condition"`
	Quantity     int             `json:"quantity"`
	Price        int             `json:"price"`
	Subtotal     int             `json:"subtotal"`
}

// Summary is the full cart view with a running total.
type Summary struct {
	Items []Line `json:"items"`
	Total int    `json:"total"`
	Count int    `json:"count"`
}

// Service manages a user's cart. Cart rows are intent, not reservations: the
// availability check at add time is advisory, and checkout re-validates under
// the ledger locks.
type Service struct {
	store  store.Store
	ledger *ledger.Service
}

func NewService(st store.Store, led *ledger.Service) *Service {
	return &Service{store: st, ledger: led}
}

// AddItem puts quantity units of a stock line into the user's cart. Adding a
// (product, stock line) pair already in the cart merges into the existing row
// instead of duplicating it.
func (s *Service) AddItem(ctx context.Context, userID, productID, stockLineID string, quantity int) (*store.CartItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	line, err := s.store.GetStockLine(ctx, stockLineID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("stock %s: %w", stockLineID, ledger.ErrStockLineNotFound)
	}
	if err != nil {
		return nil, err
	}
	if line.ProductID != productID {
		return nil, ErrProductMismatch
	}

	if quantity > line.Quantity {
		return nil, fmt.Errorf("product %s: %w", productID, ledger.ErrInsufficientStock)
	}

	existing, err := s.store.FindCartItem(ctx, userID, productID, stockLineID)
	if err == nil {
		existing.Quantity += quantity
		if err := s.store.SaveCartItem(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	item := &store.CartItem{
		ID:          uuid.New().String(),
		UserID:      userID,
		ProductID:   productID,
		StockLineID: stockLineID,
		Quantity:    quantity,
		CreatedAt:   time.Now(),
	}
	if err := s.store.SaveCartItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem overwrites a cart row's quantity. A quantity of zero or less
// deletes the row. Availability is not re-checked here; checkout validates.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, quantity int) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		return s.store.DeleteCartItem(ctx, item.ID)
	}
	item.Quantity = quantity
	return s.store.SaveCartItem(ctx, item)
}

// RemoveItem deletes a cart row.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	return s.store.DeleteCartItem(ctx, item.ID)
}

func (s *Service) ownedItem(ctx context.Context, userID, itemID string) (*store.CartItem, error) {
	item, err := s.store.GetCartItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("cart item %s: %w", itemID, ErrItemNotFound)
	}
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, ErrNotOwner
	}
	return item, nil
}

// Items returns the user's cart lines in insertion order, each with its
// current price and subtotal, plus the running total.
func (s *Service) Items(ctx context.Context, userID string) (*Summary, error) {
	items, err := s.store.CartItemsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Count: len(items)}
	for _, item := range items {
		stockLine, err := s.store.GetStockLine(ctx, item.StockLineID)
		if err != nil {
			return nil, fmt.Errorf("stock %s: %w", item.StockLineID, err)
		}
		line := Line{
			ID:        item.ID,
			ProductID: item.ProductID,
			Condition: stockLine.Condition,
			Quantity:  item.Quantity,
			Price:     stockLine.Price,
			Subtotal:  stockLine.Price * item.Quantity,
		}
		if product, err := s.store.GetProduct(ctx, item.ProductID); err == nil {
			line.ProductName = product.Name
			line.ProductImage = product.ImageURL
		}
		summary.Items = append(summary.Items, line)
		summary.Total += line.Subtotal
	}
	return summary, nil
}

// Count returns the number of cart rows for a user.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	items, err := s.store.CartItemsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
