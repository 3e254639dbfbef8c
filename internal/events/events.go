package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderPlaced       = "OrderPlaced"
	TypeStockBatchApplied = "StockBatchApplied"
)

// Envelope wraps a domain event for the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher is the outbound side of the event stream. The Kafka producer
// implements it; services treat a nil Publisher as "publishing disabled".
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Wrap envelopes a typed event payload.
func Wrap(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		Data:       raw,
		OccurredAt: time.Now(),
	}, nil
}

// OrderPlaced is published after a checkout commits.
type OrderPlaced struct {
	OrderID  string      `json:"order_id"`
	Code     string      `json:"code"`
	UserID   string      `json:"user_id"`
	Total    int         `json:"total"`
	Items    []OrderLine `json:"items"`
	PlacedAt time.Time   `json:"placed_at"`
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
}

// StockBatchApplied is published after a stock-in or stock-out batch commits.
type StockBatchApplied struct {
	BatchID   string    `json:"batch_id"`
	Kind      string    `json:"kind"`
	Reference string    `json:"reference"`
	LineCount int       `json:"line_count"`
	AppliedAt time.Time `json:"applied_at"`
}
