package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.StringFixed(2)
	}
	return currency + " " + amount.StringFixed(2)
}

// formatCartSummary renders the cart the way it is shown at confirmation.
func formatCartSummary(items []CartItem, fallbackCurrency string) string {
	if len(items) == 0 {
		return "Your cart is empty."
	}

	currency := items[0].Currency
	if currency == "" {
		currency = fallbackCurrency
	}

	var b strings.Builder
	b.WriteString("*Your Shopping Cart*\n\n")
	for _, item := range items {
		b.WriteString(fmt.Sprintf("- %s x %d = %s\n", item.Name, item.Quantity, money(item.LineTotal(), currency)))
	}
	b.WriteString(fmt.Sprintf("\n*Total: %s*", money(CartTotal(items), currency)))
	return b.String()
}

// formatStockReport renders a reconciliation pass for the customer: what
// is short, what is fine, and what the reduced order would look like.
func formatStockReport(result *ReconcileResult, fallbackCurrency string) string {
	currency := fallbackCurrency
	if len(result.FeasibleCart) > 0 && result.FeasibleCart[0].Currency != "" {
		currency = result.FeasibleCart[0].Currency
	}

	var b strings.Builder
	b.WriteString("*Stock Availability Update*\n\nSome items in your cart have limited availability:\n\n")

	for _, v := range result.Verdicts {
		switch v.Status {
		case VerdictOutOfStock:
			b.WriteString(fmt.Sprintf("- %s - out of stock (requested %d)\n", v.Name, v.RequestedQty))
		case VerdictInsufficient:
			b.WriteString(fmt.Sprintf("- %s - limited stock (requested %d, available %d)\n", v.Name, v.RequestedQty, v.AvailableQty))
		default:
			b.WriteString(fmt.Sprintf("- %s - available (requested %d)\n", v.Name, v.RequestedQty))
		}
	}

	if len(result.FeasibleCart) > 0 {
		b.WriteString("\n*Your order would be modified to:*\n")
		for _, item := range result.FeasibleCart {
			b.WriteString(fmt.Sprintf("- %s x %d = %s\n", item.Name, item.Quantity, money(item.LineTotal(), currency)))
		}
		b.WriteString(fmt.Sprintf("\n*New Total: %s* (Original: %s)\n\n", money(result.FeasibleTotal, currency), money(result.OriginalTotal, currency)))
		b.WriteString("Would you like to proceed with the available items or cancel your order?")
	} else {
		b.WriteString("\n*All requested items are currently out of stock.*")
	}

	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatOrderSummary renders an order for confirmation and tracking.
func formatOrderSummary(order *Order) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("*Order %s*\n", order.ID))
	b.WriteString(fmt.Sprintf("*Status:* %s\n", capitalize(string(order.Status))))
	b.WriteString(fmt.Sprintf("*Date:* %s\n", order.CreatedAt.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("*Payment:* %s\n\n", strings.ReplaceAll(string(order.PaymentStatus), "_", " ")))

	b.WriteString("*Items:*\n")
	for _, item := range order.Lines {
		b.WriteString(fmt.Sprintf("- %s x %d = %s\n", item.Name, item.Quantity, money(item.LineTotal(), order.Currency)))
	}
	b.WriteString(fmt.Sprintf("\n*Total: %s*\n", money(order.Total, order.Currency)))

	if order.ShippingAddress != "" {
		label := "Shipping Address"
		if order.ShippingMethod == ShipPickup {
			label = "Pickup At"
		}
		b.WriteString(fmt.Sprintf("\n*%s:*\n%s\n", label, order.ShippingAddress))
	}
	return b.String()
}
