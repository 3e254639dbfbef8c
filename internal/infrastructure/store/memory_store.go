package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// LedgerKey is the lock granularity of the ledger: one key per
// (product, condition) pair.
func LedgerKey(productID string, condition Condition) string {
	return productID + "/" + string(condition)
}

// MemoryStore keeps everything in process. It honors the same Tx contract as
// the PostgreSQL store: per-ledger-key exclusive locks held until Commit or
// Rollback, with writes staged until Commit.
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[string]*Product
	stockLines   map[string]*StockLine
	stockByKey   map[string]string // ledger key -> stock line ID
	cartItems    map[string]*CartItem
	orders       map[string]*Order
	batches      map[string]*StockBatch
	users        map[string]*User
	userByEmail  map[string]string
	keyLocks     map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]*Product),
		stockLines:  make(map[string]*StockLine),
		stockByKey:  make(map[string]string),
		cartItems:   make(map[string]*CartItem),
		orders:      make(map[string]*Order),
		batches:     make(map[string]*StockBatch),
		users:       make(map[string]*User),
		userByEmail: make(map[string]string),
		keyLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}

// refreshProductAggregates recomputes the materialized quantity/price fields.
// Caller holds s.mu.
func (s *MemoryStore) refreshProductAggregates(productID string) {
	p, ok := s.products[productID]
	if !ok {
		return
	}
	total := 0
	min := 0
	for _, line := range s.stockLines {
		if line.ProductID != productID {
			continue
		}
		total += line.Quantity
		if line.Quantity > 0 && (min == 0 || line.Price < min) {
			min = line.Price
		}
	}
	p.TotalQuantity = total
	p.MinPrice = min
}

// Begin starts a transaction. Writes are staged and become visible to other
// readers only at Commit.
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{
		store:      s,
		held:       make(map[string]bool),
		newLines:   make(map[string]*StockLine),
		qtyChanges: make(map[string]int),
	}, nil
}

type memoryTx struct {
	store    *MemoryStore
	done     bool
	heldKeys []string
	held     map[string]bool

	newLines      map[string]*StockLine // ledger key -> inserted line
	qtyChanges    map[string]int        // stock line ID -> new quantity
	newOrders     []*Order
	newOrderItems []*OrderItem
	clearedCarts  []string
	newBatches    []*StockBatch
	newBatchLines []*StockBatchLine
}

func (tx *memoryTx) StockLineForUpdate(ctx context.Context, productID string, condition Condition) (*StockLine, error) {
	key := LedgerKey(productID, condition)
	if !tx.held[key] {
		tx.store.keyLock(key).Lock()
		tx.held[key] = true
		tx.heldKeys = append(tx.heldKeys, key)
	}

	// Read-your-writes: a line inserted earlier in this tx is visible.
	if line, ok := tx.newLines[key]; ok {
		cp := *line
		return &cp, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	id, ok := tx.store.stockByKey[key]
	if !ok {
		// Key lock stays held so the caller can insert under it.
		return nil, ErrNotFound
	}
	cp := *tx.store.stockLines[id]
	if qty, staged := tx.qtyChanges[id]; staged {
		cp.Quantity = qty
	}
	return &cp, nil
}

func (tx *memoryTx) InsertStockLine(ctx context.Context, line *StockLine) error {
	key := LedgerKey(line.ProductID, line.Condition)
	if _, ok := tx.newLines[key]; ok {
		return ErrDuplicate
	}
	tx.store.mu.RLock()
	_, exists := tx.store.stockByKey[key]
	tx.store.mu.RUnlock()
	if exists {
		return ErrDuplicate
	}
	cp := *line
	tx.newLines[key] = &cp
	return nil
}

func (tx *memoryTx) SetStockQuantity(ctx context.Context, lineID string, quantity int) error {
	for _, line := range tx.newLines {
		if line.ID == lineID {
			line.Quantity = quantity
			return nil
		}
	}
	tx.store.mu.RLock()
	_, ok := tx.store.stockLines[lineID]
	tx.store.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	tx.qtyChanges[lineID] = quantity
	return nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, o *Order) error {
	cp := *o
	tx.newOrders = append(tx.newOrders, &cp)
	return nil
}

func (tx *memoryTx) InsertOrderItem(ctx context.Context, item *OrderItem) error {
	cp := *item
	tx.newOrderItems = append(tx.newOrderItems, &cp)
	return nil
}

func (tx *memoryTx) DeleteCartItems(ctx context.Context, userID string) error {
	tx.clearedCarts = append(tx.clearedCarts, userID)
	return nil
}

func (tx *memoryTx) InsertStockBatch(ctx context.Context, b *StockBatch) error {
	cp := *b
	tx.newBatches = append(tx.newBatches, &cp)
	return nil
}

func (tx *memoryTx) InsertStockBatchLine(ctx context.Context, line *StockBatchLine) error {
	cp := *line
	tx.newBatchLines = append(tx.newBatchLines, &cp)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	s := tx.store
	s.mu.Lock()

	touched := make(map[string]bool)
	for key, line := range tx.newLines {
		cp := *line
		s.stockLines[cp.ID] = &cp
		s.stockByKey[key] = cp.ID
		touched[cp.ProductID] = true
	}
	for id, qty := range tx.qtyChanges {
		if line, ok := s.stockLines[id]; ok {
			line.Quantity = qty
			touched[line.ProductID] = true
		}
	}
	for _, o := range tx.newOrders {
		cp := *o
		s.orders[cp.ID] = &cp
	}
	for _, item := range tx.newOrderItems {
		if o, ok := s.orders[item.OrderID]; ok {
			o.Items = append(o.Items, *item)
		}
	}
	for _, userID := range tx.clearedCarts {
		for id, item := range s.cartItems {
			if item.UserID == userID {
				delete(s.cartItems, id)
			}
		}
	}
	for _, b := range tx.newBatches {
		cp := *b
		s.batches[cp.ID] = &cp
	}
	for _, line := range tx.newBatchLines {
		if b, ok := s.batches[line.BatchID]; ok {
			b.Lines = append(b.Lines, *line)
		}
	}
	for productID := range touched {
		s.refreshProductAggregates(productID)
	}
	s.mu.Unlock()

	tx.release()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.release()
	return nil
}

func (tx *memoryTx) release() {
	tx.done = true
	for i := len(tx.heldKeys) - 1; i >= 0; i-- {
		tx.store.keyLock(tx.heldKeys[i]).Unlock()
	}
	tx.heldKeys = nil
}

// Catalog

func (s *MemoryStore) InsertProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return ErrDuplicate
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, f ProductFilter) ([]*Product, int, error) {
	s.mu.RLock()
	var matched []*Product
	for _, p := range s.products {
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		if f.SetCode != "" && p.SetCode != f.SetCode {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// Ledger reads

func (s *MemoryStore) GetStockLine(ctx context.Context, id string) (*StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.stockLines[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *line
	return &cp, nil
}

func (s *MemoryStore) GetStockLineByKey(ctx context.Context, productID string, condition Condition) (*StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.stockByKey[LedgerKey(productID, condition)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.stockLines[id]
	return &cp, nil
}

func (s *MemoryStore) StockLinesForProduct(ctx context.Context, productID string) ([]*StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lines []*StockLine
	for _, line := range s.stockLines {
		if line.ProductID == productID {
			cp := *line
			lines = append(lines, &cp)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Condition < lines[j].Condition })
	return lines, nil
}

// Cart

func (s *MemoryStore) GetCartItem(ctx context.Context, id string) (*CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.cartItems[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *MemoryStore) FindCartItem(ctx context.Context, userID, productID, stockLineID string) (*CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.cartItems {
		if item.UserID == userID && item.ProductID == productID && item.StockLineID == stockLineID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CartItemsForUser(ctx context.Context, userID string) ([]*CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []*CartItem
	for _, item := range s.cartItems {
		if item.UserID == userID {
			cp := *item
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) SaveCartItem(ctx context.Context, item *CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.cartItems[item.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteCartItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cartItems[id]; !ok {
		return ErrNotFound
	}
	delete(s.cartItems, id)
	return nil
}

// Orders

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp, nil
}

func (s *MemoryStore) OrdersForUser(ctx context.Context, userID string) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []*Order
	for _, o := range s.orders {
		if o.UserID == userID {
			cp := *o
			cp.Items = append([]OrderItem(nil), o.Items...)
			orders = append(orders, &cp)
		}
	}
	sortOrders(orders)
	return orders, nil
}

func (s *MemoryStore) AllOrders(ctx context.Context) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []*Order
	for _, o := range s.orders {
		cp := *o
		cp.Items = append([]OrderItem(nil), o.Items...)
		orders = append(orders, &cp)
	}
	sortOrders(orders)
	return orders, nil
}

func sortOrders(orders []*Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	return nil
}

// Stock batches

func (s *MemoryStore) GetStockBatch(ctx context.Context, id string) (*StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	cp.Lines = append([]StockBatchLine(nil), b.Lines...)
	return &cp, nil
}

func (s *MemoryStore) ListStockBatches(ctx context.Context, kind string) ([]*StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var batches []*StockBatch
	for _, b := range s.batches {
		if kind != "" && b.Kind != kind {
			continue
		}
		cp := *b
		cp.Lines = append([]StockBatchLine(nil), b.Lines...)
		batches = append(batches, &cp)
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].CreatedAt.Equal(batches[j].CreatedAt) {
			return batches[i].ID < batches[j].ID
		}
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})
	return batches, nil
}

// Users

func (s *MemoryStore) InsertUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userByEmail[u.Email]; ok {
		return ErrDuplicate
	}
	cp := *u
	s.users[u.ID] = &cp
	s.userByEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}
