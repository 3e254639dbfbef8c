package store

import "time"

// Condition is the physical grading of a card. It is part of the ledger key
// together with the product ID.
type Condition string

const (
	ConditionNearMint      Condition = "NM"
	ConditionLightlyPlayed Condition = "LP"
	ConditionModeratePlay  Condition = "MP"
	ConditionHeavilyPlayed Condition = "HP"
)

// OrderStatus is the lifecycle state of a customer order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Batch kinds for inventory adjustments.
const (
	BatchStockIn  = "stock_in"
	BatchStockOut = "stock_out"
)

// Product is a catalog entry. Descriptive only; quantities and prices live on
// the product's stock lines.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	SetCode   string    `json:"set_code"`
	SetName   string    `json:"set_name"`
	Rarity    string    `json:"rarity"`
	CardType  string    `json:"card_type"`
	ImageURL  string    `json:"image_url"`
	Language  string    `json:"language"`
	Foil      bool      `json:"is_foil"`
	CreatedAt time.Time `json:"created_at"`

	// Materialized aggregates, maintained on every quantity change.
	TotalQuantity int `json:"total_quantity"`
	MinPrice      int `json:"min_price"`
}

// StockLine is the ledger row: at most one per (product, condition).
// Price is in cents. Quantity never goes below zero.
type StockLine struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Condition Condition `json:"condition"`
	Quantity  int       `json:"quantity"`
	Price     int       `json:"price"`
}

// CartItem is a user's pending purchase intent for one stock line.
// At most one per (user, product, stock line); adding again merges quantities.
type CartItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ProductID   string    `json:"product_id"`
	StockLineID string    `json:"stock_id"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Order is immutable after commit except for Status. Total is captured at
// commit time and never recomputed.
type Order struct {
	ID              string      `json:"id"`
	Code            string      `json:"code"`
	UserID          string      `json:"user_id"`
	Status          OrderStatus `json:"status"`
	Total           int         `json:"total"`
	ShippingName    string      `json:"shipping_name"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"`
	CreatedAt       time.Time   `json:"created_at"`
	Items           []OrderItem `json:"items"`
}

// OrderItem copies the stock line price at commit time; later price changes
// never affect historical orders.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
}

// StockBatch is one stock-in or stock-out adjustment, committed as a unit.
type StockBatch struct {
	ID        string           `json:"id"`
	Kind      string           `json:"order_type"`
	Reference string           `json:"reference"`
	Notes     string           `json:"notes"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Lines     []StockBatchLine `json:"lines"`
}

// StockBatchLine is the audit record for one adjusted ledger key. Applied is
// the quantity actually added or removed, which for stock-out may be less than
// Requested (the ledger floors at zero).
type StockBatchLine struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batch_id"`
	ProductID   string    `json:"product_id"`
	Condition   Condition `json:"condition"`
	Requested   int       `json:"requested"`
	Applied     int       `json:"applied"`
	CostPerItem int       `json:"cost_per_item"`
	Reason      string    `json:"reason"`
}

// User is an account record. Role is "customer" or "admin".
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
