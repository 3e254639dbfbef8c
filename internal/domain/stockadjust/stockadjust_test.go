package stockadjust

import (
	"context"
	"strings"
	"testing"

	"github.com/example/card-shop/internal/domain/ledger"
	"github.com/example/card-shop/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, ledger.NewService(st), nil), st
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

// ============================================
// Stock-In Tests
// ============================================

func TestService_ApplyStockIn_NewKey(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	batch, err := service.ApplyStockIn(ctx, "", "initial intake", []Line{
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 10, CostPerItem: 300},
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(batch.Reference, "STK-"))
	assert.Equal(t, store.BatchStockIn, batch.Kind)
	assert.Equal(t, "completed", batch.Status)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, 10, batch.Lines[0].Requested)
	assert.Equal(t, 10, batch.Lines[0].Applied)
	assert.Equal(t, 300, batch.Lines[0].CostPerItem)

	// Ledger row created with price 0 until an operator sets one.
	line, err := st.GetStockLineByKey(ctx, "prod-1", store.ConditionNearMint)
	require.NoError(t, err)
	assert.Equal(t, 10, line.Quantity)
	assert.Equal(t, 0, line.Price)
}

func TestService_ApplyStockIn_ExistingKey(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  4,
		Price:     1200,
	})

	_, err := service.ApplyStockIn(ctx, "STK-TEST0001", "", []Line{
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 6},
	})
	require.NoError(t, err)

	line, err := st.GetStockLineByKey(ctx, "prod-1", store.ConditionNearMint)
	require.NoError(t, err)
	assert.Equal(t, 10, line.Quantity)
	assert.Equal(t, 1200, line.Price)
}

func TestService_ApplyStockIn_MultipleLines(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	batch, err := service.ApplyStockIn(ctx, "", "", []Line{
		{ProductID: "prod-2", Condition: store.ConditionNearMint, Quantity: 1},
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 2},
		{ProductID: "prod-1", Condition: store.ConditionHeavilyPlayed, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, batch.Lines, 3)

	// Audit lines appear in ledger key order.
	assert.Equal(t, store.ConditionHeavilyPlayed, batch.Lines[0].Condition)
	assert.Equal(t, "prod-1", batch.Lines[1].ProductID)
	assert.Equal(t, "prod-2", batch.Lines[2].ProductID)

	line, err := st.GetStockLineByKey(ctx, "prod-1", store.ConditionHeavilyPlayed)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)
}

func TestService_ApplyStockIn_EmptyBatch(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyStockIn(ctx, "", "", nil)
	assert.ErrorIs(t, err, ErrNoLines)
}

func TestService_ApplyStockIn_InvalidQuantity(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	_, err := service.ApplyStockIn(ctx, "", "", []Line{
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 5},
		{ProductID: "prod-2", Condition: store.ConditionNearMint, Quantity: 0},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// Whole batch rejected: the valid line was not applied.
	_, err = st.GetStockLineByKey(ctx, "prod-1", store.ConditionNearMint)
	assert.ErrorIs(t, err, store.ErrNotFound)

	batches, err := st.ListStockBatches(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, batches)
}

// ============================================
// Stock-Out Tests
// ============================================

func TestService_ApplyStockOut(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  10,
		Price:     500,
	})

	batch, err := service.ApplyStockOut(ctx, "", "damaged in storage", []Line{
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 4, Reason: "damaged"},
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(batch.Reference, "OUT-"))
	assert.Equal(t, store.BatchStockOut, batch.Kind)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, 4, batch.Lines[0].Requested)
	assert.Equal(t, 4, batch.Lines[0].Applied)
	assert.Equal(t, "damaged", batch.Lines[0].Reason)

	line, err := st.GetStockLineByKey(ctx, "prod-1", store.ConditionNearMint)
	require.NoError(t, err)
	assert.Equal(t, 6, line.Quantity)
}

func TestService_ApplyStockOut_ClampsAtZero(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedStock(t, st, &store.StockLine{
		ID:        "stock-1",
		ProductID: "prod-1",
		Condition: store.ConditionNearMint,
		Quantity:  3,
		Price:     500,
	})

	batch, err := service.ApplyStockOut(ctx, "", "", []Line{
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 10, Reason: "lost"},
	})

	// The request exceeds the shelf; the batch still completes and the audit
	// records the quantity actually removed.
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, 10, batch.Lines[0].Requested)
	assert.Equal(t, 3, batch.Lines[0].Applied)

	line, err := st.GetStockLineByKey(ctx, "prod-1", store.ConditionNearMint)
	require.NoError(t, err)
	assert.Equal(t, 0, line.Quantity)
}

func TestService_ApplyStockOut_UnknownKey(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	batch, err := service.ApplyStockOut(ctx, "", "", []Line{
		{ProductID: "prod-missing", Condition: store.ConditionNearMint, Quantity: 5, Reason: "correction"},
	})

	// Nothing on the shelf: zero removed, still audited.
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, 5, batch.Lines[0].Requested)
	assert.Equal(t, 0, batch.Lines[0].Applied)

	_, err = st.GetStockBatch(ctx, batch.ID)
	require.NoError(t, err)
}

func TestService_ApplyStockOut_MixedLines(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

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
		Quantity:  2,
		Price:     800,
	})

	batch, err := service.ApplyStockOut(ctx, "", "", []Line{
		{ProductID: "prod-1", Condition: store.ConditionNearMint, Quantity: 4, Reason: "sold"},
		{ProductID: "prod-2", Condition: store.ConditionNearMint, Quantity: 5, Reason: "lost"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, 4, batch.Lines[0].Applied)
	assert.Equal(t, 2, batch.Lines[1].Applied)

	line, err := st.GetStockLineByKey(ctx, "prod-2", store.ConditionNearMint)
	require.NoError(t, err)
	assert.Equal(t, 0, line.Quantity)
}

// ============================================
// Reference Tests
// ============================================

func TestNewReference(t *testing.T) {
	in := NewReference(store.BatchStockIn)
	out := NewReference(store.BatchStockOut)

	assert.True(t, strings.HasPrefix(in, "STK-"))
	assert.True(t, strings.HasPrefix(out, "OUT-"))
	assert.Len(t, in, len("STK-")+8)
	assert.Len(t, out, len("OUT-")+8)
}
