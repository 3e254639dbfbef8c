package stockadjust

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

var (
	ErrNoLines         = errors.New("batch has no lines")
	ErrInvalidQuantity = errors.New("line quantity must be positive")
)

// Line is one requested adjustment within a batch. CostPerItem applies to
// stock-in, Reason to stock-out.
type Line struct {
	ProductID   string
	Condition   store.Condition
	Quantity    int
	CostPerItem int
	Reason      string
}

// Service applies batched stock-in and stock-out adjustments against the
// ledger. A batch commits as one unit together with its audit lines.
type Service struct {
	store     store.Store
	ledger    *ledger.Service
	publisher events.Publisher
}

func NewService(st store.Store, led *ledger.Service, pub events.Publisher) *Service {
	return &Service{store: st, ledger: led, publisher: pub}
}

// ApplyStockIn adds inventory. Ledger rows are created on first sight of a
// key (price 0 until an operator sets one). Increments cannot go negative, so
// a stock-in batch only fails on bad input or storage errors, and then fails
// whole: no partial batch survives.
func (s *Service) ApplyStockIn(ctx context.Context, reference, notes string, lines []Line) (*store.StockBatch, error) {
	if err := validate(lines); err != nil {
		return nil, err
	}
	if reference == "" {
		reference = NewReference(store.BatchStockIn)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	batch := newBatch(store.BatchStockIn, reference, notes)
	if err := tx.InsertStockBatch(ctx, batch); err != nil {
		return nil, err
	}

	for _, line := range sorted(lines) {
		if _, err := s.ledger.FindOrCreate(ctx, tx, line.ProductID, line.Condition, 0); err != nil {
			return nil, err
		}
		if _, err := s.ledger.Adjust(ctx, tx, line.ProductID, line.Condition, line.Quantity); err != nil {
			return nil, err
		}
		audit := &store.StockBatchLine{
			ID:          uuid.New().String(),
			BatchID:     batch.ID,
			ProductID:   line.ProductID,
			Condition:   line.Condition,
			Requested:   line.Quantity,
			Applied:     line.Quantity,
			CostPerItem: line.CostPerItem,
		}
		if err := tx.InsertStockBatchLine(ctx, audit); err != nil {
			return nil, err
		}
		batch.Lines = append(batch.Lines, *audit)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publishApplied(ctx, batch)
	return batch, nil
}

// ApplyStockOut removes inventory. A request exceeding the available quantity
// is clamped: the ledger floors at zero and the audit line records the
// quantity actually removed, which callers must read instead of assuming the
// request was fully applied. A missing ledger key removes nothing but is
// still audited. The batch always completes.
func (s *Service) ApplyStockOut(ctx context.Context, reference, notes string, lines []Line) (*store.StockBatch, error) {
	if err := validate(lines); err != nil {
		return nil, err
	}
	if reference == "" {
		reference = NewReference(store.BatchStockOut)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	batch := newBatch(store.BatchStockOut, reference, notes)
	if err := tx.InsertStockBatch(ctx, batch); err != nil {
		return nil, err
	}

	for _, line := range sorted(lines) {
		applied := 0
		current, err := tx.StockLineForUpdate(ctx, line.ProductID, line.Condition)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Nothing on the shelf for this key; audit zero removed.
		case err != nil:
			return nil, err
		default:
			applied = line.Quantity
			if applied > current.Quantity {
				applied = current.Quantity
			}
			if applied > 0 {
				if _, err := s.ledger.Adjust(ctx, tx, line.ProductID, line.Condition, -applied); err != nil {
					return nil, err
				}
			}
		}

		audit := &store.StockBatchLine{
			ID:        uuid.New().String(),
			BatchID:   batch.ID,
			ProductID: line.ProductID,
			Condition: line.Condition,
			Requested: line.Quantity,
			Applied:   applied,
			Reason:    line.Reason,
		}
		if err := tx.InsertStockBatchLine(ctx, audit); err != nil {
			return nil, err
		}
		batch.Lines = append(batch.Lines, *audit)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publishApplied(ctx, batch)
	return batch, nil
}

func validate(lines []Line) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%s/%s: %w", line.ProductID, line.Condition, ErrInvalidQuantity)
		}
	}
	return nil
}

// sorted returns lines in ascending ledger-key order so lock acquisition
// cannot deadlock against a concurrent checkout over the same keys.
func sorted(lines []Line) []Line {
	out := append([]Line(nil), lines...)
	sort.Slice(out, func(i, j int) bool {
		a := ledger.Key{ProductID: out[i].ProductID, Condition: out[i].Condition}
		b := ledger.Key{ProductID: out[j].ProductID, Condition: out[j].Condition}
		return a.Less(b)
	})
	return out
}

func newBatch(kind, reference, notes string) *store.StockBatch {
	return &store.StockBatch{
		ID:        uuid.New().String(),
		Kind:      kind,
		Reference: reference,
		Notes:     notes,
		Status:    "completed",
		CreatedAt: time.Now(),
	}
}

func (s *Service) publishApplied(ctx context.Context, batch *store.StockBatch) {
	if s.publisher == nil {
		return
	}
	env, err := events.Wrap(events.TypeStockBatchApplied, events.StockBatchApplied{
		BatchID:   batch.ID,
		Kind:      batch.Kind,
		Reference: batch.Reference,
		LineCount: len(batch.Lines),
		AppliedAt: batch.CreatedAt,
	})
	if err != nil {
		log.Printf("[StockAdjust] Failed to build StockBatchApplied event for %s: %v", batch.Reference, err)
		return
	}
	if err := s.publisher.Publish(ctx, batch.ID, env); err != nil {
		log.Printf("[StockAdjust] Failed to publish StockBatchApplied for %s: %v", batch.Reference, err)
	}
}

// NewReference generates a batch reference in the operator-facing format.
func NewReference(kind string) string {
	prefix := "STK"
	if kind == store.BatchStockOut {
		prefix = "OUT"
	}
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + strings.ToUpper(hex[:8])
}
