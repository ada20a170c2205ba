package checkout

import (
	"context"
	"fmt"
)

// finalize confirms the order and clears the originating cart as one unit,
// then resets the conversation. The ledger owns the atomicity of
// confirm-plus-clear; a crash after that but before the context write is
// repaired on the next message by re-deriving state from the order.
func (e *Engine) finalize(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	if err := e.withRetry(ctx, "finalize order", func() error {
		return e.deps.Ledger.Finalize(ctx, order.ID, conv.BusinessID, conv.CustomerID)
	}); err != nil {
		return err
	}

	// Re-read so the summary reflects every field written during the flow.
	confirmed, err := e.deps.Ledger.Get(ctx, order.ID)
	if err != nil {
		e.logger.Warn("could not re-read confirmed order", "order_id", order.ID, "error", err)
		confirmed = order
		confirmed.Status = OrderConfirmed
	}

	settings := e.settings(ctx, conv.BusinessID)
	body := fmt.Sprintf("Order Confirmed Successfully!\n\n%s\nYou'll receive updates via WhatsApp as your order progresses.\nEstimated delivery: %s\n\nThank you for shopping with us!",
		formatOrderSummary(confirmed), settings.DeliveryEstimate)

	e.notify(ctx, conv, Choices("Order Management", body, []Choice{
		{ID: "track_" + confirmed.ID, Title: "Track Order"},
		{ID: "browse", Title: "Continue Shopping"},
		{ID: "support", Title: "Get Help"},
	}))

	if e.metrics != nil {
		method := string(confirmed.PaymentStatus)
		e.metrics.OrdersConfirmed.WithLabelValues(method).Inc()
	}
	e.logger.Info("order confirmed",
		"order_id", confirmed.ID,
		"business_id", conv.BusinessID,
		"customer_id", conv.CustomerID,
		"total", confirmed.Total.String(),
		"payment_status", confirmed.PaymentStatus,
	)

	cctx.reset()
	return nil
}
