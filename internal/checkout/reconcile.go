package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VerdictStatus classifies one cart line against current stock.
type VerdictStatus string

const (
	VerdictAvailable    VerdictStatus = "available"
	VerdictInsufficient VerdictStatus = "insufficient"
	VerdictOutOfStock   VerdictStatus = "out_of_stock"
)

// InventoryVerdict is the per-line outcome of a reconciliation pass. It is
// never persisted on its own; it lives in the conversation payload only
// while the customer decides what to do about it.
type InventoryVerdict struct {
	ProductRef   string        `json:"product_ref"`
	Name         string        `json:"name"`
	RequestedQty int           `json:"requested_qty"`
	AvailableQty int           `json:"available_qty"`
	Status       VerdictStatus `json:"status"`
}

// ReconcileResult compares a cart snapshot against live stock. FeasibleCart
// is the reduction inventory can actually satisfy; the caller applies it to
// the cart store only after the customer agrees.
type ReconcileResult struct {
	HasIssues     bool
	OriginalTotal decimal.Decimal
	FeasibleTotal decimal.Decimal
	FeasibleCart  []CartItem
	Verdicts      []InventoryVerdict
}

// Feasible reports whether anything at all can be fulfilled.
func (r *ReconcileResult) Feasible() bool {
	return len(r.FeasibleCart) > 0
}

// Reconcile classifies every cart line against the availability lookup and
// builds the feasible reduced cart. It is a pure computation: nothing is
// written anywhere, and availability is the only external input.
func Reconcile(cart []CartItem, availableQty func(stockRef string) (int, error)) (*ReconcileResult, error) {
	result := &ReconcileResult{
		OriginalTotal: decimal.Zero,
		FeasibleTotal: decimal.Zero,
	}

	for _, item := range cart {
		available, err := availableQty(item.StockRef())
		if err != nil {
			return nil, fmt.Errorf("stock lookup for %s: %w", item.StockRef(), err)
		}
		if available < 0 {
			available = 0
		}

		result.OriginalTotal = result.OriginalTotal.Add(item.LineTotal())

		verdict := InventoryVerdict{
			ProductRef:   item.ProductRef,
			Name:         item.Name,
			RequestedQty: item.Quantity,
			AvailableQty: available,
		}

		switch {
		case available <= 0:
			verdict.Status = VerdictOutOfStock
			verdict.AvailableQty = 0
			result.HasIssues = true
		case available < item.Quantity:
			verdict.Status = VerdictInsufficient
			result.HasIssues = true
			reduced := item
			reduced.Quantity = available
			result.FeasibleCart = append(result.FeasibleCart, reduced)
			result.FeasibleTotal = result.FeasibleTotal.Add(reduced.LineTotal())
		default:
			verdict.Status = VerdictAvailable
			verdict.AvailableQty = item.Quantity
			result.FeasibleCart = append(result.FeasibleCart, item)
			result.FeasibleTotal = result.FeasibleTotal.Add(item.LineTotal())
		}

		result.Verdicts = append(result.Verdicts, verdict)
	}

	return result, nil
}
