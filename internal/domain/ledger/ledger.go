package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/card-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

var (
	ErrStockLineNotFound = errors.New("stock line not found")
	ErrWouldGoNegative   = errors.New("stock would go negative")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidDelta      = errors.New("delta must be non-zero")
)

// Key identifies one ledger row.
type Key struct {
	ProductID string
	Condition store.Condition
}

func (k Key) Less(other Key) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID < other.ProductID
	}
	return k.Condition < other.Condition
}

// SortKeys orders keys ascending by (productID, condition). Every multi-key
// transaction locks in this order, so two transactions over overlapping
// product sets can never deadlock.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// Service is the stock ledger: the single authority over per-(product,
// condition) quantities. Every quantity mutation goes through Adjust; no
// other component writes quantities.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// GetAvailable returns the current quantity and unit price for a ledger key.
// This is an advisory read; checkout re-reads under lock before committing.
func (s *Service) GetAvailable(ctx context.Context, productID string, condition store.Condition) (quantity, price int, err error) {
	line, err := s.store.GetStockLineByKey(ctx, productID, condition)
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, fmt.Errorf("%s/%s: %w", productID, condition, ErrStockLineNotFound)
	}
	if err != nil {
		return 0, 0, err
	}
	return line.Quantity, line.Price, nil
}

// Adjust applies delta to the key's quantity inside tx, under the key's
// exclusive lock. A negative delta that would take the quantity below zero
// fails with ErrWouldGoNegative and writes nothing.
func (s *Service) Adjust(ctx context.Context, tx store.Tx, productID string, condition store.Condition, delta int) (int, error) {
	if delta == 0 {
		return 0, ErrInvalidDelta
	}

	line, err := tx.StockLineForUpdate(ctx, productID, condition)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("%s/%s: %w", productID, condition, ErrStockLineNotFound)
	}
	if err != nil {
		return 0, err
	}

	next := line.Quantity + delta
	if next < 0 {
		return 0, fmt.Errorf("%s/%s: have %d, delta %d: %w",
			productID, condition, line.Quantity, delta, ErrWouldGoNegative)
	}

	if err := tx.SetStockQuantity(ctx, line.ID, next); err != nil {
		return 0, err
	}
	return next, nil
}

// FindOrCreate returns the ledger row for a key, creating it with quantity 0
// if none exists. Stock-in uses this before its first Adjust on a new key.
// The zero initialPrice default mirrors manual price entry happening later.
func (s *Service) FindOrCreate(ctx context.Context, tx store.Tx, productID string, condition store.Condition, initialPrice int) (*store.StockLine, error) {
	line, err := tx.StockLineForUpdate(ctx, productID, condition)
	if err == nil {
		return line, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	line = &store.StockLine{
		ID:        uuid.New().String(),
		ProductID: productID,
		Condition: condition,
		Quantity:  0,
		Price:     initialPrice,
	}
	if err := tx.InsertStockLine(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}
