package store

import (
	"context"

	"shopbot/internal/checkout"
)

// The adapters below expose Store methods under the port names the checkout
// engine expects, so a single pool backs every storage concern.

// Carts implements checkout.CartStore.
type Carts struct{ *Store }

func (c Carts) Get(ctx context.Context, businessID, customerID string) ([]checkout.CartItem, error) {
	return c.Store.Cart(ctx, businessID, customerID)
}

func (c Carts) Replace(ctx context.Context, businessID, customerID string, items []checkout.CartItem) error {
	return c.Store.ReplaceCart(ctx, businessID, customerID, items)
}

func (c Carts) Clear(ctx context.Context, businessID, customerID string) error {
	return c.Store.ClearCart(ctx, businessID, customerID)
}

// Ledger implements checkout.OrderLedger.
type Ledger struct{ *Store }

func (l Ledger) Create(ctx context.Context, businessID, customerID string, lines []checkout.CartItem) (*checkout.Order, error) {
	return l.Store.CreateOrder(ctx, businessID, customerID, lines)
}

func (l Ledger) Get(ctx context.Context, orderID string) (*checkout.Order, error) {
	return l.Store.Order(ctx, orderID)
}

func (l Ledger) LatestPending(ctx context.Context, businessID, customerID string) (*checkout.Order, error) {
	return l.Store.LatestPendingOrder(ctx, businessID, customerID)
}

func (l Ledger) UpdateStatus(ctx context.Context, orderID string, status checkout.OrderStatus) error {
	return l.Store.UpdateOrderStatus(ctx, orderID, status)
}

func (l Ledger) UpdatePayment(ctx context.Context, orderID string, upd checkout.PaymentUpdate) error {
	return l.Store.UpdateOrderPayment(ctx, orderID, upd)
}

func (l Ledger) UpdateShipping(ctx context.Context, orderID string, method checkout.ShippingMethod, address string) error {
	return l.Store.UpdateOrderShipping(ctx, orderID, method, address)
}

func (l Ledger) AppendHistory(ctx context.Context, orderID, note string) error {
	return l.Store.AppendOrderHistory(ctx, orderID, note)
}

func (l Ledger) Finalize(ctx context.Context, orderID, businessID, customerID string) error {
	return l.Store.FinalizeOrder(ctx, orderID, businessID, customerID)
}

// Directory implements checkout.CustomerDirectory.
type Directory struct{ *Store }

func (d Directory) GetOrCreate(ctx context.Context, businessID, customerID, displayName string) (*checkout.Customer, error) {
	return d.Store.EnsureCustomer(ctx, businessID, customerID, displayName)
}

// Businesses implements checkout.BusinessDirectory.
type Businesses struct{ *Store }

func (b Businesses) Settings(ctx context.Context, businessID string) (*checkout.BusinessSettings, error) {
	return b.Store.BusinessSettings(ctx, businessID)
}
