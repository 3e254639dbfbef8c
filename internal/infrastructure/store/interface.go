package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("record already exists")
)

// ProductFilter narrows ListProducts. Zero value means no filtering.
type ProductFilter struct {
	Search  string
	SetCode string
	Offset  int
	Limit   int
}

// Store is the persistence boundary for the shop core. Reads and single-row
// writes go through the Store directly; anything that must be atomic across
// rows (checkout, stock batches) runs inside a Tx.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// Catalog
	InsertProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]*Product, int, error)

	// Ledger reads
	GetStockLine(ctx context.Context, id string) (*StockLine, error)
	GetStockLineByKey(ctx context.Context, productID string, condition Condition) (*StockLine, error)
	StockLinesForProduct(ctx context.Context, productID string) ([]*StockLine, error)

	// Cart
	GetCartItem(ctx context.Context, id string) (*CartItem, error)
	FindCartItem(ctx context.Context, userID, productID, stockLineID string) (*CartItem, error)
	CartItemsForUser(ctx context.Context, userID string) ([]*CartItem, error)
	SaveCartItem(ctx context.Context, item *CartItem) error
	DeleteCartItem(ctx context.Context, id string) error

	// Orders
	GetOrder(ctx context.Context, id string) (*Order, error)
	OrdersForUser(ctx context.Context, userID string) ([]*Order, error)
	AllOrders(ctx context.Context) ([]*Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) error

	// Stock batches
	GetStockBatch(ctx context.Context, id string) (*StockBatch, error)
	ListStockBatches(ctx context.Context, kind string) ([]*StockBatch, error)

	// Users
	InsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Tx is one atomic unit of work. Either every write in the Tx is applied at
// Commit, or none survive Rollback.
//
// StockLineForUpdate acquires the exclusive lock for the (product, condition)
// key and returns the current row as seen by this Tx, including its own
// uncommitted writes. On ErrNotFound the key lock is still held, so the caller
// may InsertStockLine under it. Callers locking several keys must do so in
// ascending (productID, condition) order; locks are released by Commit or
// Rollback.
type Tx interface {
	Commit() error
	Rollback() error

	StockLineForUpdate(ctx context.Context, productID string, condition Condition) (*StockLine, error)
	InsertStockLine(ctx context.Context, line *StockLine) error
	SetStockQuantity(ctx context.Context, lineID string, quantity int) error

	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderItem(ctx context.Context, item *OrderItem) error
	DeleteCartItems(ctx context.Context, userID string) error

	InsertStockBatch(ctx context.Context, b *StockBatch) error
	InsertStockBatchLine(ctx context.Context, line *StockBatchLine) error
}
