package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"shopbot/internal/checkout"
)

// ErrBusinessNotFound is returned when no business matches the id.
var ErrBusinessNotFound = errors.New("business not found")

// BusinessSettings loads the per-business checkout configuration.
func (s *Store) BusinessSettings(ctx context.Context, businessID string) (*checkout.BusinessSettings, error) {
	start := time.Now()
	const q = `
SELECT id, name, currency, momo_networks, pickup_address, delivery_estimate
FROM businesses
WHERE id = $1;
`
	var settings checkout.BusinessSettings
	err := s.pool.QueryRow(ctx, q, businessID).Scan(
		&settings.BusinessID,
		&settings.Name,
		&settings.Currency,
		&settings.MomoNetworks,
		&settings.PickupAddress,
		&settings.DeliveryEstimate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		s.observe("business.settings", start, nil)
		return nil, ErrBusinessNotFound
	}
	s.observe("business.settings", start, err)
	if err != nil {
		return nil, fmt.Errorf("query business settings: %w", err)
	}
	return &settings, nil
}

// StockLevel returns the available quantity for a product or variant
// reference, tenant scoped. Unknown references count as zero stock.
func (s *Store) StockLevel(ctx context.Context, businessID, stockRef string) (int, error) {
	start := time.Now()
	const q = `
SELECT quantity
FROM inventory
WHERE business_id = $1 AND stock_ref = $2;
`
	var qty int
	err := s.pool.QueryRow(ctx, q, businessID, stockRef).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		s.observe("inventory.get", start, nil)
		return 0, nil
	}
	s.observe("inventory.get", start, err)
	if err != nil {
		return 0, fmt.Errorf("query stock level %s: %w", stockRef, err)
	}
	return qty, nil
}

// StockLevels returns every stock reference and quantity for a business.
// Used to prime the inventory cache.
func (s *Store) StockLevels(ctx context.Context, businessID string) (map[string]int, error) {
	start := time.Now()
	const q = `
SELECT stock_ref, quantity
FROM inventory
WHERE business_id = $1;
`
	rows, err := s.pool.Query(ctx, q, businessID)
	if err != nil {
		s.observe("inventory.list", start, err)
		return nil, fmt.Errorf("query stock levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[string]int)
	for rows.Next() {
		var ref string
		var qty int
		if err := rows.Scan(&ref, &qty); err != nil {
			s.observe("inventory.list", start, err)
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels[ref] = qty
	}
	if err := rows.Err(); err != nil {
		s.observe("inventory.list", start, err)
		return nil, fmt.Errorf("iterate stock levels: %w", err)
	}
	s.observe("inventory.list", start, nil)
	return levels, nil
}
