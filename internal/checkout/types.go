package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one line in a customer's cart. Quantity is always positive;
// a zero-or-negative quantity update removes the line instead.
type CartItem struct {
	ProductRef string          `json:"product_ref"`
	VariantRef string          `json:"variant_ref,omitempty"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Currency   string          `json:"currency"`
	Quantity   int             `json:"quantity"`
}

// LineTotal returns unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StockRef returns the identifier used for inventory lookups. Variant-level
// stock takes precedence over product-level stock when a variant is set.
func (i CartItem) StockRef() string {
	if i.VariantRef != "" {
		return i.VariantRef
	}
	return i.ProductRef
}

// CartTotal sums the line totals of the given items.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks how far payment has progressed for an order.
type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentPendingExternal PaymentStatus = "pending_external"
	PaymentCashOnDelivery  PaymentStatus = "cash_on_delivery"
	PaymentPaid            PaymentStatus = "paid"
)

// ShippingMethod distinguishes delivery destinations from store pickup.
type ShippingMethod string

const (
	ShipDelivery ShippingMethod = "delivery"
	ShipPickup   ShippingMethod = "pickup"
)

// Order is an immutable snapshot of a cart at checkout time plus the
// mutable payment and shipping fields written during the flow. Totals are
// fixed at creation and never change after the order is confirmed.
type Order struct {
	ID              string
	BusinessID      string
	CustomerID      string
	Lines           []CartItem
	Subtotal        decimal.Decimal
	Total           decimal.Decimal
	Currency        string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentProvider string
	PaymentNumber   string
	PaymentURL      string
	ShippingMethod  ShippingMethod
	ShippingAddress string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentUpdate carries the payment fields written when a method is chosen.
type PaymentUpdate struct {
	Status   PaymentStatus
	Provider string
	Number   string
	URL      string
}

// PaymentAccount is a reusable, business-scoped mobile money instrument.
// Accounts are deduplicated by (provider, number).
type PaymentAccount struct {
	ID         string
	Provider   string
	Number     string
	HolderName string
	IsDefault  bool
	LastUsedAt time.Time
}

// Address is a reusable, business-scoped delivery address. Deduplicated by
// normalized (street, city).
type Address struct {
	ID        string
	Label     string
	Recipient string
	Street    string
	City      string
	Region    string
	Phone     string
	IsDefault bool
}

// Formatted renders the address the way it is written onto an order.
func (a Address) Formatted() string {
	out := a.Recipient + "\n" + a.Street + "\n" + a.City
	if a.Region != "" {
		out += ", " + a.Region
	}
	if a.Phone != "" {
		out += "\nPhone: " + a.Phone
	}
	return out
}

// Customer is the directory record for a (business, customer) pair.
type Customer struct {
	ID          string
	BusinessID  string
	WAID        string
	DisplayName string
	TotalOrders int
}

// BusinessSettings holds the per-business knobs the checkout flow reads.
type BusinessSettings struct {
	BusinessID       string
	Name             string
	Currency         string
	MomoNetworks     []string
	PickupAddress    string
	DeliveryEstimate string
}

// SharedLocation is an opaque location payload forwarded by the transport.
// No geocoding happens here; text fields are trusted as given.
type SharedLocation struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}
