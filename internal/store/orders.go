package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"shopbot/internal/checkout"
)

// newOrderRef produces a customer-facing order reference like ORD-5F3A9C21.
func newOrderRef() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// CreateOrder snapshots the given lines into a pending order. The lines are
// copied into order_items so later catalog edits never change the order.
func (s *Store) CreateOrder(ctx context.Context, businessID, customerID string, lines []checkout.CartItem) (*checkout.Order, error) {
	start := time.Now()
	order := &checkout.Order{
		ID:            newOrderRef(),
		BusinessID:    businessID,
		CustomerID:    customerID,
		Lines:         append([]checkout.CartItem(nil), lines...),
		Subtotal:      checkout.CartTotal(lines),
		Status:        checkout.OrderPending,
		PaymentStatus: checkout.PaymentPending,
	}
	order.Total = order.Subtotal
	if len(lines) > 0 {
		order.Currency = lines[0].Currency
	}

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		const q = `
INSERT INTO orders (id, business_id, customer_id, subtotal, total, currency, status, payment_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at;
`
		if err := tx.QueryRow(ctx, q,
			order.ID,
			order.BusinessID,
			order.CustomerID,
			order.Subtotal,
			order.Total,
			order.Currency,
			order.Status,
			order.PaymentStatus,
		).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		const itemQ = `
INSERT INTO order_items (order_id, product_ref, variant_ref, name, unit_price, currency, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
		for _, line := range order.Lines {
			if _, err := tx.Exec(ctx, itemQ,
				order.ID,
				line.ProductRef,
				line.VariantRef,
				line.Name,
				line.UnitPrice,
				line.Currency,
				line.Quantity,
			); err != nil {
				return fmt.Errorf("insert order item %s: %w", line.ProductRef, err)
			}
		}

		const histQ = `INSERT INTO order_history (order_id, note) VALUES ($1, $2);`
		if _, err := tx.Exec(ctx, histQ, order.ID, "order created"); err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
		return nil
	})
	s.observe("order.create", start, err)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Order loads an order with its line items.
func (s *Store) Order(ctx context.Context, orderID string) (*checkout.Order, error) {
	start := time.Now()
	const q = `
SELECT id, business_id, customer_id, subtotal, total, currency, status, payment_status,
       payment_provider, payment_number, payment_url, shipping_method, shipping_address,
       created_at, updated_at
FROM orders
WHERE id = $1;
`
	var order checkout.Order
	err := s.pool.QueryRow(ctx, q, orderID).Scan(
		&order.ID,
		&order.BusinessID,
		&order.CustomerID,
		&order.Subtotal,
		&order.Total,
		&order.Currency,
		&order.Status,
		&order.PaymentStatus,
		&order.PaymentProvider,
		&order.PaymentNumber,
		&order.PaymentURL,
		&order.ShippingMethod,
		&order.ShippingAddress,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		s.observe("order.get", start, nil)
		return nil, checkout.ErrOrderNotFound
	}
	if err != nil {
		s.observe("order.get", start, err)
		return nil, fmt.Errorf("query order %s: %w", orderID, err)
	}

	lines, err := s.orderItems(ctx, orderID)
	if err != nil {
		s.observe("order.get", start, err)
		return nil, err
	}
	order.Lines = lines
	s.observe("order.get", start, nil)
	return &order, nil
}

// LatestPendingOrder returns the newest pending order for a conversation.
func (s *Store) LatestPendingOrder(ctx context.Context, businessID, customerID string) (*checkout.Order, error) {
	start := time.Now()
	const q = `
SELECT id
FROM orders
WHERE business_id = $1 AND customer_id = $2 AND status = 'pending'
ORDER BY created_at DESC
LIMIT 1;
`
	var orderID string
	err := s.pool.QueryRow(ctx, q, businessID, customerID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		s.observe("order.pending", start, nil)
		return nil, checkout.ErrOrderNotFound
	}
	if err != nil {
		s.observe("order.pending", start, err)
		return nil, fmt.Errorf("query pending order: %w", err)
	}
	s.observe("order.pending", start, nil)
	return s.Order(ctx, orderID)
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]checkout.CartItem, error) {
	const q = `
SELECT product_ref, variant_ref, name, unit_price, currency, quantity
FROM order_items
WHERE order_id = $1
ORDER BY id;
`
	rows, err := s.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var lines []checkout.CartItem
	for rows.Next() {
		var line checkout.CartItem
		if err := rows.Scan(&line.ProductRef, &line.VariantRef, &line.Name, &line.UnitPrice, &line.Currency, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return lines, nil
}

// UpdateOrderStatus sets the lifecycle status of an order.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status checkout.OrderStatus) error {
	start := time.Now()
	const q = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, orderID, status)
	s.observe("order.update_status", start, err)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

// UpdateOrderPayment writes the payment fields chosen during checkout.
func (s *Store) UpdateOrderPayment(ctx context.Context, orderID string, upd checkout.PaymentUpdate) error {
	start := time.Now()
	const q = `
UPDATE orders
SET payment_status = $2, payment_provider = $3, payment_number = $4, payment_url = $5, updated_at = NOW()
WHERE id = $1;
`
	ct, err := s.pool.Exec(ctx, q, orderID, upd.Status, upd.Provider, upd.Number, upd.URL)
	s.observe("order.update_payment", start, err)
	if err != nil {
		return fmt.Errorf("update order payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

// UpdateOrderShipping writes the shipping method and destination.
func (s *Store) UpdateOrderShipping(ctx context.Context, orderID string, method checkout.ShippingMethod, address string) error {
	start := time.Now()
	const q = `
UPDATE orders
SET shipping_method = $2, shipping_address = $3, updated_at = NOW()
WHERE id = $1;
`
	ct, err := s.pool.Exec(ctx, q, orderID, method, address)
	s.observe("order.update_shipping", start, err)
	if err != nil {
		return fmt.Errorf("update order shipping: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

// AppendOrderHistory adds a free-text note to the order's audit trail.
func (s *Store) AppendOrderHistory(ctx context.Context, orderID, note string) error {
	start := time.Now()
	const q = `INSERT INTO order_history (order_id, note) VALUES ($1, $2);`
	_, err := s.pool.Exec(ctx, q, orderID, note)
	s.observe("order.append_history", start, err)
	if err != nil {
		return fmt.Errorf("append order history: %w", err)
	}
	return nil
}

// OrderHistory returns the order's audit notes, oldest first.
func (s *Store) OrderHistory(ctx context.Context, orderID string) ([]string, error) {
	const q = `SELECT note FROM order_history WHERE order_id = $1 ORDER BY created_at, id;`
	rows, err := s.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order history: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order history: %w", err)
	}
	return notes, nil
}

// FinalizeOrder confirms the order and clears the originating cart in a
// single transaction, and bumps the customer's order counter.
func (s *Store) FinalizeOrder(ctx context.Context, orderID, businessID, customerID string) error {
	start := time.Now()
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
UPDATE orders SET status = 'confirmed', updated_at = NOW()
WHERE id = $1 AND business_id = $2;
`, orderID, businessID)
		if err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return checkout.ErrOrderNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE business_id = $1 AND customer_id = $2`, businessID, customerID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO order_history (order_id, note) VALUES ($1, 'order confirmed')`, orderID); err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
		if _, err := tx.Exec(ctx, `
UPDATE customers SET total_orders = total_orders + 1, updated_at = NOW()
WHERE business_id = $1 AND wa_id = $2;
`, businessID, customerID); err != nil {
			return fmt.Errorf("bump customer orders: %w", err)
		}
		return nil
	})
	s.observe("order.finalize", start, err)
	return err
}

// RecentOrders lists the customer's latest orders, newest first.
func (s *Store) RecentOrders(ctx context.Context, businessID, customerID string, limit int) ([]checkout.Order, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT id, status, payment_status, total, currency, created_at
FROM orders
WHERE business_id = $1 AND customer_id = $2
ORDER BY created_at DESC
LIMIT $3;
`
	rows, err := s.pool.Query(ctx, q, businessID, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	defer rows.Close()

	var orders []checkout.Order
	for rows.Next() {
		var order checkout.Order
		if err := rows.Scan(&order.ID, &order.Status, &order.PaymentStatus, &order.Total, &order.Currency, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent order: %w", err)
		}
		order.BusinessID = businessID
		order.CustomerID = customerID
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent orders: %w", err)
	}
	return orders, nil
}
