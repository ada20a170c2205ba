package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shopbot/internal/checkout"
)

// EnsureCustomer stores or refreshes the directory record for a WhatsApp id,
// keyed per business.
func (s *Store) EnsureCustomer(ctx context.Context, businessID, waID, displayName string) (*checkout.Customer, error) {
	start := time.Now()
	const q = `
INSERT INTO customers (business_id, wa_id, display_name, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (business_id, wa_id) DO UPDATE SET
    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), customers.display_name),
    updated_at = NOW()
RETURNING id, business_id, wa_id, display_name, total_orders;
`
	var c checkout.Customer
	err := s.pool.QueryRow(ctx, q, businessID, waID, displayName).Scan(
		&c.ID, &c.BusinessID, &c.WAID, &c.DisplayName, &c.TotalOrders,
	)
	s.observe("customer.ensure", start, err)
	if err != nil {
		return nil, fmt.Errorf("ensure customer: %w", err)
	}
	return &c, nil
}

// PaymentAccounts lists the customer's saved mobile money accounts, default
// first, then most recently used.
func (s *Store) PaymentAccounts(ctx context.Context, businessID, customerID string) ([]checkout.PaymentAccount, error) {
	start := time.Now()
	const q = `
SELECT id, provider, number, holder_name, is_default, last_used_at
FROM payment_accounts
WHERE business_id = $1 AND customer_id = $2
ORDER BY is_default DESC, last_used_at DESC;
`
	rows, err := s.pool.Query(ctx, q, businessID, customerID)
	if err != nil {
		s.observe("payment_account.list", start, err)
		return nil, fmt.Errorf("query payment accounts: %w", err)
	}
	defer rows.Close()

	var accounts []checkout.PaymentAccount
	for rows.Next() {
		var acc checkout.PaymentAccount
		if err := rows.Scan(&acc.ID, &acc.Provider, &acc.Number, &acc.HolderName, &acc.IsDefault, &acc.LastUsedAt); err != nil {
			s.observe("payment_account.list", start, err)
			return nil, fmt.Errorf("scan payment account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		s.observe("payment_account.list", start, err)
		return nil, fmt.Errorf("iterate payment accounts: %w", err)
	}
	s.observe("payment_account.list", start, nil)
	return accounts, nil
}

// SavePaymentAccount stores a mobile money account, deduplicated by
// (provider, number). Re-saving an existing account bumps its last_used_at.
// The customer's first account becomes the default.
func (s *Store) SavePaymentAccount(ctx context.Context, businessID, customerID string, acc checkout.PaymentAccount) (*checkout.PaymentAccount, error) {
	start := time.Now()
	const q = `
INSERT INTO payment_accounts (business_id, customer_id, provider, number, holder_name, is_default, last_used_at)
VALUES ($1, $2, $3, $4, $5,
        NOT EXISTS (SELECT 1 FROM payment_accounts WHERE business_id = $1 AND customer_id = $2),
        NOW())
ON CONFLICT (business_id, customer_id, provider, number) DO UPDATE SET
    holder_name = COALESCE(NULLIF(EXCLUDED.holder_name, ''), payment_accounts.holder_name),
    last_used_at = NOW()
RETURNING id, provider, number, holder_name, is_default, last_used_at;
`
	var saved checkout.PaymentAccount
	err := s.pool.QueryRow(ctx, q, businessID, customerID, acc.Provider, strings.TrimSpace(acc.Number), acc.HolderName).Scan(
		&saved.ID, &saved.Provider, &saved.Number, &saved.HolderName, &saved.IsDefault, &saved.LastUsedAt,
	)
	s.observe("payment_account.save", start, err)
	if err != nil {
		return nil, fmt.Errorf("save payment account: %w", err)
	}
	return &saved, nil
}

// Addresses lists the customer's saved delivery addresses, default first.
func (s *Store) Addresses(ctx context.Context, businessID, customerID string) ([]checkout.Address, error) {
	start := time.Now()
	const q = `
SELECT id, label, recipient, street, city, region, phone, is_default
FROM addresses
WHERE business_id = $1 AND customer_id = $2
ORDER BY is_default DESC, updated_at DESC;
`
	rows, err := s.pool.Query(ctx, q, businessID, customerID)
	if err != nil {
		s.observe("address.list", start, err)
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	var addresses []checkout.Address
	for rows.Next() {
		var addr checkout.Address
		if err := rows.Scan(&addr.ID, &addr.Label, &addr.Recipient, &addr.Street, &addr.City, &addr.Region, &addr.Phone, &addr.IsDefault); err != nil {
			s.observe("address.list", start, err)
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}
	if err := rows.Err(); err != nil {
		s.observe("address.list", start, err)
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	s.observe("address.list", start, nil)
	return addresses, nil
}

// SaveAddress stores a delivery address, deduplicated by case-insensitive
// (street, city). The customer's first address becomes the default.
func (s *Store) SaveAddress(ctx context.Context, businessID, customerID string, addr checkout.Address) (*checkout.Address, error) {
	start := time.Now()
	const q = `
INSERT INTO addresses (business_id, customer_id, label, recipient, street, city, region, phone, is_default, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
        NOT EXISTS (SELECT 1 FROM addresses WHERE business_id = $1 AND customer_id = $2),
        NOW())
ON CONFLICT (business_id, customer_id, lower(street), lower(city)) DO UPDATE SET
    label = COALESCE(NULLIF(EXCLUDED.label, ''), addresses.label),
    recipient = COALESCE(NULLIF(EXCLUDED.recipient, ''), addresses.recipient),
    updated_at = NOW()
RETURNING id, label, recipient, street, city, region, phone, is_default;
`
	var saved checkout.Address
	err := s.pool.QueryRow(ctx, q,
		businessID,
		customerID,
		addr.Label,
		addr.Recipient,
		strings.TrimSpace(addr.Street),
		strings.TrimSpace(addr.City),
		addr.Region,
		addr.Phone,
	).Scan(&saved.ID, &saved.Label, &saved.Recipient, &saved.Street, &saved.City, &saved.Region, &saved.Phone, &saved.IsDefault)
	s.observe("address.save", start, err)
	if err != nil {
		return nil, fmt.Errorf("save address: %w", err)
	}
	return &saved, nil
}
