package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the schema if it does not exist. Statements are idempotent
// so repeated startups are safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL,
			slug VARCHAR(255) NOT NULL DEFAULT '',
			set_code VARCHAR(32) NOT NULL DEFAULT '',
			set_name TEXT NOT NULL DEFAULT '',
			rarity VARCHAR(32) NOT NULL DEFAULT '',
			card_type VARCHAR(64) NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			language VARCHAR(16) NOT NULL DEFAULT 'en',
			is_foil BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_set_code ON products(set_code)`,

		`CREATE TABLE IF NOT EXISTS stock_lines (
			id VARCHAR(64) PRIMARY KEY,
			product_id VARCHAR(64) NOT NULL REFERENCES products(id),
			condition VARCHAR(4) NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			price INTEGER NOT NULL DEFAULT 0,
			UNIQUE (product_id, condition)
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL DEFAULT 'customer',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS cart_items (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			product_id VARCHAR(64) NOT NULL REFERENCES products(id),
			stock_line_id VARCHAR(64) NOT NULL REFERENCES stock_lines(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (user_id, product_id, stock_line_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cart_items_user_id ON cart_items(user_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			code VARCHAR(32) NOT NULL UNIQUE,
			user_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			total INTEGER NOT NULL DEFAULT 0,
			shipping_name TEXT NOT NULL DEFAULT '',
			shipping_address TEXT NOT NULL DEFAULT '',
			payment_method VARCHAR(32) NOT NULL DEFAULT 'cod',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,

		`CREATE TABLE IF NOT EXISTS order_items (
			id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id VARCHAR(64) NOT NULL,
			quantity INTEGER NOT NULL,
			price INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,

		`CREATE TABLE IF NOT EXISTS stock_batches (
			id VARCHAR(64) PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			reference VARCHAR(32) NOT NULL UNIQUE,
			notes TEXT NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'completed',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_batches_kind ON stock_batches(kind)`,

		`CREATE TABLE IF NOT EXISTS stock_batch_lines (
			id VARCHAR(64) PRIMARY KEY,
			batch_id VARCHAR(64) NOT NULL REFERENCES stock_batches(id) ON DELETE CASCADE,
			product_id VARCHAR(64) NOT NULL,
			condition VARCHAR(4) NOT NULL,
			requested INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			cost_per_item INTEGER NOT NULL DEFAULT 0,
			reason VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_batch_lines_batch_id ON stock_batch_lines(batch_id)`,
	}

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
