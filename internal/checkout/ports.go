package checkout

import (
	"context"
	"errors"
)

// ErrConversationBusy is returned by a ConversationLocker when another
// transition for the same (business, customer) pair is in flight.
var ErrConversationBusy = errors.New("conversation transition already in flight")

// ErrOrderNotFound is returned by an OrderLedger when no order matches.
var ErrOrderNotFound = errors.New("order not found")

// CartStore holds the mutable line items per (business, customer).
type CartStore interface {
	Get(ctx context.Context, businessID, customerID string) ([]CartItem, error)
	Replace(ctx context.Context, businessID, customerID string, items []CartItem) error
	Clear(ctx context.Context, businessID, customerID string) error
}

// InventoryOracle answers how many units of a product are available right
// now. Implementations may serve from a staleness-bounded cache; verdicts
// are re-derived at use time, so bounded staleness is acceptable.
type InventoryOracle interface {
	AvailableQty(ctx context.Context, businessID, stockRef string) (int, error)
}

// OrderLedger creates immutable order snapshots and mutates their status,
// payment and shipping fields over the order's lifetime.
type OrderLedger interface {
	Create(ctx context.Context, businessID, customerID string, lines []CartItem) (*Order, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	// LatestPending returns the newest pending order for the conversation,
	// or ErrOrderNotFound when none exists. Order creation consults it so a
	// retried confirmation resumes the order it already created.
	LatestPending(ctx context.Context, businessID, customerID string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error
	UpdatePayment(ctx context.Context, orderID string, upd PaymentUpdate) error
	UpdateShipping(ctx context.Context, orderID string, method ShippingMethod, address string) error
	AppendHistory(ctx context.Context, orderID, note string) error
	// Finalize marks the order confirmed and clears the originating cart
	// as one unit: neither a confirmed order with a re-checkoutable cart
	// nor a cleared cart without a confirmed order may be observable.
	Finalize(ctx context.Context, orderID, businessID, customerID string) error
}

// ContextStore persists the per-conversation checkout context. Get returns
// nil when no context exists yet.
type ContextStore interface {
	Get(ctx context.Context, businessID, customerID string) (*ConversationContext, error)
	Set(ctx context.Context, cc *ConversationContext) error
}

// ConversationLocker serializes transitions per conversation. Acquire
// returns ErrConversationBusy when the lock is held; the returned release
// function is safe to call exactly once.
type ConversationLocker interface {
	Acquire(ctx context.Context, businessID, customerID string) (release func(), err error)
}

// Notifier is the only channel back to the customer. The core hands over
// semantic content; rendering to a concrete transport happens elsewhere.
type Notifier interface {
	Notify(ctx context.Context, businessID, customerID string, msg Message) error
}

// CustomerDirectory stores customers and their reusable payment accounts
// and addresses, scoped per business.
type CustomerDirectory interface {
	GetOrCreate(ctx context.Context, businessID, customerID, displayName string) (*Customer, error)
	PaymentAccounts(ctx context.Context, businessID, customerID string) ([]PaymentAccount, error)
	SavePaymentAccount(ctx context.Context, businessID, customerID string, acc PaymentAccount) (*PaymentAccount, error)
	Addresses(ctx context.Context, businessID, customerID string) ([]Address, error)
	SaveAddress(ctx context.Context, businessID, customerID string, addr Address) (*Address, error)
}

// BusinessDirectory resolves per-business checkout settings.
type BusinessDirectory interface {
	Settings(ctx context.Context, businessID string) (*BusinessSettings, error)
}
