package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PostgresStore persists the shop core in PostgreSQL. Tx maps to a database
// transaction; StockLineForUpdate takes the row lock with SELECT ... FOR
// UPDATE, so the per-key exclusive lock contract holds without any in-process
// locking.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Commit() error   { return t.tx.Commit() }
func (t *postgresTx) Rollback() error { return t.tx.Rollback() }

func (t *postgresTx) StockLineForUpdate(ctx context.Context, productID string, condition Condition) (*StockLine, error) {
	var line StockLine
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, product_id, condition, quantity, price
		 FROM stock_lines
		 WHERE product_id = $1 AND condition = $2
		 FOR UPDATE`,
		productID, condition,
	).Scan(&line.ID, &line.ProductID, &line.Condition, &line.Quantity, &line.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock stock line: %w", err)
	}
	return &line, nil
}

func (t *postgresTx) InsertStockLine(ctx context.Context, line *StockLine) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stock_lines (id, product_id, condition, quantity, price)
		 VALUES ($1, $2, $3, $4, $5)`,
		line.ID, line.ProductID, line.Condition, line.Quantity, line.Price,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *postgresTx) SetStockQuantity(ctx context.Context, lineID string, quantity int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE stock_lines SET quantity = $2 WHERE id = $1`,
		lineID, quantity,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (id, code, user_id, status, total, shipping_name, shipping_address, payment_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.Code, o.UserID, o.Status, o.Total,
		o.ShippingName, o.ShippingAddress, o.PaymentMethod, o.CreatedAt,
	)
	return err
}

func (t *postgresTx) InsertOrderItem(ctx context.Context, item *OrderItem) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, product_id, quantity, price)
		 VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price,
	)
	return err
}

func (t *postgresTx) DeleteCartItems(ctx context.Context, userID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (t *postgresTx) InsertStockBatch(ctx context.Context, b *StockBatch) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stock_batches (id, kind, reference, notes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Kind, b.Reference, b.Notes, b.Status, b.CreatedAt,
	)
	return err
}

func (t *postgresTx) InsertStockBatchLine(ctx context.Context, line *StockBatchLine) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stock_batch_lines (id, batch_id, product_id, condition, requested, applied, cost_per_item, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		line.ID, line.BatchID, line.ProductID, line.Condition,
		line.Requested, line.Applied, line.CostPerItem, line.Reason,
	)
	return err
}

// Catalog

const productColumns = `p.id, p.name, p.slug, p.set_code, p.set_name, p.rarity, p.card_type,
	p.image_url, p.language, p.is_foil, p.created_at,
	COALESCE(SUM(s.quantity), 0),
	COALESCE(MIN(s.price) FILTER (WHERE s.quantity > 0), 0)`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.SetCode, &p.SetName, &p.Rarity, &p.CardType,
		&p.ImageURL, &p.Language, &p.Foil, &p.CreatedAt, &p.TotalQuantity, &p.MinPrice)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) InsertProduct(ctx context.Context, p *Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, slug, set_code, set_name, rarity, card_type, image_url, language, is_foil, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Slug, p.SetCode, p.SetName, p.Rarity, p.CardType,
		p.ImageURL, p.Language, p.Foil, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 LEFT JOIN stock_lines s ON s.product_id = p.id
		 WHERE p.id = $1
		 GROUP BY p.id`,
		id,
	)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]*Product, int, error) {
	where := `WHERE ($1 = '' OR p.name ILIKE '%' || $1 || '%')
	          AND ($2 = '' OR p.set_code = $2)`

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products p `+where, f.Search, f.SetCode,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 24
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 LEFT JOIN stock_lines s ON s.product_id = p.id
		 `+where+`
		 GROUP BY p.id
		 ORDER BY p.name ASC
		 OFFSET $3 LIMIT $4`,
		f.Search, f.SetCode, f.Offset, limit,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// Ledger reads

func (s *PostgresStore) GetStockLine(ctx context.Context, id string) (*StockLine, error) {
	var line StockLine
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, condition, quantity, price FROM stock_lines WHERE id = $1`,
		id,
	).Scan(&line.ID, &line.ProductID, &line.Condition, &line.Quantity, &line.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *PostgresStore) GetStockLineByKey(ctx context.Context, productID string, condition Condition) (*StockLine, error) {
	var line StockLine
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, condition, quantity, price
		 FROM stock_lines WHERE product_id = $1 AND condition = $2`,
		productID, condition,
	).Scan(&line.ID, &line.ProductID, &line.Condition, &line.Quantity, &line.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *PostgresStore) StockLinesForProduct(ctx context.Context, productID string) ([]*StockLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, condition, quantity, price
		 FROM stock_lines WHERE product_id = $1 ORDER BY condition ASC`,
		productID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*StockLine
	for rows.Next() {
		var line StockLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Condition, &line.Quantity, &line.Price); err != nil {
			return nil, err
		}
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

// Cart

func (s *PostgresStore) GetCartItem(ctx context.Context, id string) (*CartItem, error) {
	var item CartItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, stock_line_id, quantity, created_at
		 FROM cart_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.UserID, &item.ProductID, &item.StockLineID, &item.Quantity, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) FindCartItem(ctx context.Context, userID, productID, stockLineID string) (*CartItem, error) {
	var item CartItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, stock_line_id, quantity, created_at
		 FROM cart_items WHERE user_id = $1 AND product_id = $2 AND stock_line_id = $3`,
		userID, productID, stockLineID,
	).Scan(&item.ID, &item.UserID, &item.ProductID, &item.StockLineID, &item.Quantity, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) CartItemsForUser(ctx context.Context, userID string) ([]*CartItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, product_id, stock_line_id, quantity, created_at
		 FROM cart_items WHERE user_id = $1 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CartItem
	for rows.Next() {
		var item CartItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.StockLineID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) SaveCartItem(ctx context.Context, item *CartItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, user_id, product_id, stock_line_id, quantity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		item.ID, item.UserID, item.ProductID, item.StockLineID, item.Quantity, item.CreatedAt,
	)
	return err
}

func (s *PostgresStore) DeleteCartItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Orders

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, user_id, status, total, shipping_name, shipping_address, payment_method, created_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Code, &o.UserID, &o.Status, &o.Total,
		&o.ShippingName, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *PostgresStore) orderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price
		 FROM order_items WHERE order_id = $1 ORDER BY id ASC`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ordersWhere(ctx context.Context, where string, args ...any) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, user_id, status, total, shipping_name, shipping_address, payment_method, created_at
		 FROM orders `+where+` ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Code, &o.UserID, &o.Status, &o.Total,
			&o.ShippingName, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range orders {
		items, err := s.orderItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}
	return orders, nil
}

func (s *PostgresStore) OrdersForUser(ctx context.Context, userID string) ([]*Order, error) {
	return s.ordersWhere(ctx, `WHERE user_id = $1`, userID)
}

func (s *PostgresStore) AllOrders(ctx context.Context) ([]*Order, error) {
	return s.ordersWhere(ctx, ``)
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stock batches

func (s *PostgresStore) GetStockBatch(ctx context.Context, id string) (*StockBatch, error) {
	var b StockBatch
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, reference, notes, status, created_at FROM stock_batches WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Kind, &b.Reference, &b.Notes, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := s.batchLines(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Lines = lines
	return &b, nil
}

func (s *PostgresStore) batchLines(ctx context.Context, batchID string) ([]StockBatchLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, product_id, condition, requested, applied, cost_per_item, reason
		 FROM stock_batch_lines WHERE batch_id = $1 ORDER BY id ASC`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []StockBatchLine
	for rows.Next() {
		var line StockBatchLine
		if err := rows.Scan(&line.ID, &line.BatchID, &line.ProductID, &line.Condition,
			&line.Requested, &line.Applied, &line.CostPerItem, &line.Reason); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *PostgresStore) ListStockBatches(ctx context.Context, kind string) ([]*StockBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, reference, notes, status, created_at
		 FROM stock_batches
		 WHERE ($1 = '' OR kind = $1)
		 ORDER BY created_at DESC`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*StockBatch
	for rows.Next() {
		var b StockBatch
		if err := rows.Scan(&b.ID, &b.Kind, &b.Reference, &b.Notes, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range batches {
		lines, err := s.batchLines(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Lines = lines
	}
	return batches, nil
}

// Users

func (s *PostgresStore) InsertUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at FROM users WHERE email = $1`, email))
}

func (s *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
