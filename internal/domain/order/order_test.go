package order

import (
	"context"
	"testing"
	"time"

	"github.com/example/card-shop/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st), st
}

func seedOrder(t *testing.T, st *store.MemoryStore, o *store.Order) {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertOrder(ctx, o))
	require.NoError(t, tx.Commit())
}

// ============================================
// Transition Tests
// ============================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to store.OrderStatus
		want     bool
	}{
		{store.OrderPending, store.OrderPaid, true},
		{store.OrderPending, store.OrderCancelled, true},
		{store.OrderPending, store.OrderShipped, false},
		{store.OrderPaid, store.OrderShipped, true},
		{store.OrderPaid, store.OrderCancelled, true},
		{store.OrderPaid, store.OrderDelivered, false},
		{store.OrderShipped, store.OrderDelivered, true},
		{store.OrderShipped, store.OrderCancelled, false},
		{store.OrderDelivered, store.OrderPaid, false},
		{store.OrderCancelled, store.OrderPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

// ============================================
// UpdateStatus Tests
// ============================================

func TestService_UpdateStatus(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedOrder(t, st, &store.Order{
		ID:        "order-1",
		Code:      "ORD-AAAA1111",
		UserID:    "user-1",
		Status:    store.OrderPending,
		CreatedAt: time.Now(),
	})

	err := service.UpdateStatus(ctx, "order-1", store.OrderPaid)
	require.NoError(t, err)

	o, err := service.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, store.OrderPaid, o.Status)
}

func TestService_UpdateStatus_InvalidTransition(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedOrder(t, st, &store.Order{
		ID:        "order-1",
		Status:    store.OrderDelivered,
		CreatedAt: time.Now(),
	})

	err := service.UpdateStatus(ctx, "order-1", store.OrderPaid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_UpdateStatus_UnknownStatus(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedOrder(t, st, &store.Order{
		ID:        "order-1",
		Status:    store.OrderPending,
		CreatedAt: time.Now(),
	})

	err := service.UpdateStatus(ctx, "order-1", store.OrderStatus("refunded"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestService_UpdateStatus_NotFound(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	err := service.UpdateStatus(ctx, "order-missing", store.OrderPaid)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// ============================================
// Query Tests
// ============================================

func TestService_ForUser(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	now := time.Now()
	seedOrder(t, st, &store.Order{ID: "order-1", UserID: "user-1", Status: store.OrderPending, CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, st, &store.Order{ID: "order-2", UserID: "user-1", Status: store.OrderPaid, CreatedAt: now})
	seedOrder(t, st, &store.Order{ID: "order-3", UserID: "user-2", Status: store.OrderPending, CreatedAt: now})

	orders, err := service.ForUser(ctx, "user-1")
	require.NoError(t, err)

	// Newest first.
	require.Len(t, orders, 2)
	assert.Equal(t, "order-2", orders[0].ID)
	assert.Equal(t, "order-1", orders[1].ID)
}

func TestService_All(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedOrder(t, st, &store.Order{ID: "order-1", UserID: "user-1", Status: store.OrderPending, CreatedAt: time.Now()})
	seedOrder(t, st, &store.Order{ID: "order-2", UserID: "user-2", Status: store.OrderPending, CreatedAt: time.Now()})

	orders, err := service.All(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}
