package checkout

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/card-shop/internal/domain/ledger"
	"github.com/example/card-shop/internal/events"
	"github.com/example/card-shop/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []events.Envelope
}

func (p *capturePublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event.(events.Envelope))
	return nil
}

func newTestCheckout(t *testing.T) (*Service, *store.MemoryStore, *capturePublisher) {
	t.Helper()
	st := store.NewMemoryStore()
	pub := &capturePublisher{}
	return NewService(st, ledger.NewService(st), pub), st, pub
}

func seedStock(t *testing.T, st *store.MemoryStore, line *store.StockLine) {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.StockLineForUpdate(ctx, line.ProductID, line.Condition)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, tx.InsertStockLine(ctx, line))
	require.NoError(t, tx.Commit())
}

func seedCartItem(t *testing.T, st *store.MemoryStore, userID, productID, stockLineID string, quantity int) {
	t.Helper()
	require.NoError(t, st.SaveCartItem(context.Background(), &store.CartItem{
		ID:          userID + "-" + stockLineID,
		UserID:      userID,
		ProductID:   productID,
		StockLineID: stockLineID,
		Quantity:    quantity,
		CreatedAt:   time.Now(),
	}))
}

var testShipping = ShippingInfo{
	Name:          "Taro Test",
	Address:       "1-2-3 Example St",
	PaymentMethod: "cod",
}

// ============================================
// Checkout Tests
// ============================================

func TestService_Checkout(t *testing.T) {
	service, st, pub := newTestCheckout(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  5,
		Price:     1000,
	})
	seedCartItem(t, st, "user-1", "prod-1", "stock-1", 3)

	result, err := service.Checkout(ctx, "user-1", testShipping)

	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.True(t, strings.HasPrefix(result.OrderCode, "ORD-"))
	assert.Equal(t, 3000, result.Total)

	// Ledger decremented.
	line, err := st.GetStockLine(ctx, "stock-1")
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)

	// Cart emptied.
	items, err := st.CartItemsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	// Order persisted with its items.
	order, err := st.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderPending, order.Status)
	assert.Equal(t, 3000, order.Total)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, 1000, order.Items[0].Price)

	// OrderPlaced published after commit.
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeOrderPlaced, pub.published[0].Type)
}

func TestService_Checkout_EmptyCart(t *testing.T) {
	service, _, pub := newTestCheckout(t)
	ctx := context.Background()

	_, err := service.Checkout(ctx, "user-1", testShipping)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, pub.published)
}

func TestService_Checkout_InsufficientStock(t *testing.T) {
	service, st, _ := newTestCheckout(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  2,
		Price:     1000,
	})
	seedCartItem(t, st, "user-1", "prod-1", "stock-1", 3)

	_, err := service.Checkout(ctx, "user-1", testShipping)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// Nothing committed: stock untouched, cart intact, no order.
	line, err := st.GetStockLine(ctx, "stock-1")
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)

	items, err := st.CartItemsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	orders, err := st.AllOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestService_Checkout_AllOrNothing(t *testing.T) {
	service, st, _ := newTestCheckout(t)
	ctx := context.Background()

	// Two lines, the second short by one.
	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  10,
		Price:     500,
	})
	seedStock(t, st, &store.StockLine{
		ID:        "stock-2",
		ProductID: "prod-2",
		Condition: store.ConditionNearMint,
		Quantity:  1,
		Price:     700,
	})
	seedCartItem(t, st, "user-1", "prod-1", "stock-1", 2)
	seedCartItem(t, st, "user-1", "prod-2", "stock-2", 2)

	_, err := service.Checkout(ctx, "user-1", testShipping)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// The passing line was not decremented either.
	line, err := st.GetStockLine(ctx, "stock-1")
	require.NoError(t, err)
	assert.Equal(t, 10, line.Quantity)
}

func TestService_Checkout_SecondAttemptFails(t *testing.T) {
	service, st, _ := newTestCheckout(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  3,
		Price:     1000,
	})
	seedCartItem(t, st, "user-1", "prod-1", "stock-1", 3)

	_, err := service.Checkout(ctx, "user-1", testShipping)
	require.NoError(t, err)

	// Cart was emptied by the first checkout.
	_, err = service.Checkout(ctx, "user-1", testShipping)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestService_Checkout_MultiLineTotal(t *testing.T) {
	service, st, _ := newTestCheckout(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  5,
		Price:     1000,
	})
	seedStock(t, st, &store.StockLine{
		ID:        "stock-2",
		ProductID: "prod-1",
		Condition: store.ConditionLightlyPlayed,
		Quantity:  5,
		Price:     700,
	})
	seedCartItem(t, st, "user-1", "prod-1", "stock-1", 2)
	seedCartItem(t, st, "user-1", "prod-1", "stock-2", 3)

	result, err := service.Checkout(ctx, "user-1", testShipping)
	require.NoError(t, err)
	assert.Equal(t, 2*1000+3*700, result.Total)

	order, err := st.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
}

// ============================================
// Concurrency Tests
// ============================================

func TestService_Checkout_ConcurrentOneWinner(t *testing.T) {
	service, st, _ := newTestCheckout(t)
	ctx := context.Background()

	// One unit on the shelf, ten buyers.
	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  1,
		Price:     5000,
	})

	const buyers = 10
	for i := 0; i < buyers; i++ {
		userID := "user-" + string(rune('a'+i))
		seedCartItem(t, st, userID, "prod-1", "stock-1", 1)
	}

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		userID := "user-" + string(rune('a'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Checkout(ctx, userID, testShipping)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded)

	line, err := st.GetStockLine(ctx, "stock-1")
	require.NoError(t, err)
	assert.Equal(t, 0, line.Quantity)

	orders, err := st.AllOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

// ============================================
// Order Code Tests
// ============================================

func TestNewOrderCode(t *testing.T) {
	code := NewOrderCode()

	require.Len(t, code, len("ORD-")+8)
	assert.True(t, strings.HasPrefix(code, "ORD-"))
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestNewOrderCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewOrderCode()
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
