package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"shopbot/internal/checkout"
)

// Cart returns the customer's current cart lines.
func (s *Store) Cart(ctx context.Context, businessID, customerID string) ([]checkout.CartItem, error) {
	start := time.Now()
	const q = `
SELECT product_ref, variant_ref, name, unit_price, currency, quantity
FROM cart_items
WHERE business_id = $1 AND customer_id = $2
ORDER BY added_at;
`
	rows, err := s.pool.Query(ctx, q, businessID, customerID)
	if err != nil {
		s.observe("cart.get", start, err)
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var items []checkout.CartItem
	for rows.Next() {
		var item checkout.CartItem
		if err := rows.Scan(&item.ProductRef, &item.VariantRef, &item.Name, &item.UnitPrice, &item.Currency, &item.Quantity); err != nil {
			s.observe("cart.get", start, err)
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		s.observe("cart.get", start, err)
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	s.observe("cart.get", start, nil)
	return items, nil
}

// ReplaceCart swaps the cart contents for the given lines in one transaction.
func (s *Store) ReplaceCart(ctx context.Context, businessID, customerID string, items []checkout.CartItem) error {
	start := time.Now()
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE business_id = $1 AND customer_id = $2`, businessID, customerID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return insertCartItems(ctx, tx, businessID, customerID, items)
	})
	s.observe("cart.replace", start, err)
	return err
}

// ClearCart removes every line from the customer's cart.
func (s *Store) ClearCart(ctx context.Context, businessID, customerID string) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE business_id = $1 AND customer_id = $2`, businessID, customerID)
	s.observe("cart.clear", start, err)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// AddCartItem adds a line to the cart, accumulating quantity when the same
// product and variant is already present.
func (s *Store) AddCartItem(ctx context.Context, businessID, customerID string, item checkout.CartItem) error {
	start := time.Now()
	const q = `
INSERT INTO cart_items (business_id, customer_id, product_ref, variant_ref, name, unit_price, currency, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (business_id, customer_id, product_ref, variant_ref) DO UPDATE SET
    quantity = cart_items.quantity + EXCLUDED.quantity,
    unit_price = EXCLUDED.unit_price,
    name = EXCLUDED.name;
`
	_, err := s.pool.Exec(ctx, q,
		businessID,
		customerID,
		item.ProductRef,
		item.VariantRef,
		item.Name,
		item.UnitPrice,
		item.Currency,
		item.Quantity,
	)
	s.observe("cart.add", start, err)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// SetCartQuantity sets an existing line's quantity. A quantity of zero or
// less removes the line.
func (s *Store) SetCartQuantity(ctx context.Context, businessID, customerID, productRef, variantRef string, quantity int) error {
	start := time.Now()
	if quantity <= 0 {
		return s.RemoveCartItem(ctx, businessID, customerID, productRef, variantRef)
	}
	const q = `
UPDATE cart_items
SET quantity = $5
WHERE business_id = $1 AND customer_id = $2 AND product_ref = $3 AND variant_ref = $4;
`
	ct, err := s.pool.Exec(ctx, q, businessID, customerID, productRef, variantRef, quantity)
	s.observe("cart.set_quantity", start, err)
	if err != nil {
		return fmt.Errorf("set cart quantity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cart item not found: %s", productRef)
	}
	return nil
}

// RemoveCartItem deletes a single line from the cart.
func (s *Store) RemoveCartItem(ctx context.Context, businessID, customerID, productRef, variantRef string) error {
	start := time.Now()
	const q = `
DELETE FROM cart_items
WHERE business_id = $1 AND customer_id = $2 AND product_ref = $3 AND variant_ref = $4;
`
	_, err := s.pool.Exec(ctx, q, businessID, customerID, productRef, variantRef)
	s.observe("cart.remove", start, err)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func insertCartItems(ctx context.Context, tx pgx.Tx, businessID, customerID string, items []checkout.CartItem) error {
	const q = `
INSERT INTO cart_items (business_id, customer_id, product_ref, variant_ref, name, unit_price, currency, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	for _, item := range items {
		if _, err := tx.Exec(ctx, q,
			businessID,
			customerID,
			item.ProductRef,
			item.VariantRef,
			item.Name,
			item.UnitPrice,
			item.Currency,
			item.Quantity,
		); err != nil {
			return fmt.Errorf("insert cart item %s: %w", item.ProductRef, err)
		}
	}
	return nil
}
