package checkout

import (
	"context"
	"strings"
	"testing"
	"time"
)

var testConv = Conversation{BusinessID: "biz-1", CustomerID: "233241234567", DisplayName: "Ama"}

func seedCart(w *world, items ...CartItem) {
	w.carts[key(testConv.BusinessID, testConv.CustomerID)] = items
}

func setStock(w *world, ref string, qty int) {
	w.stock[key(testConv.BusinessID, ref)] = qty
}

func handle(t *testing.T, e *Engine, in Input) {
	t.Helper()
	handled, err := e.Handle(context.Background(), testConv, in)
	if err != nil {
		t.Fatalf("handle %+v: %v", in, err)
	}
	if !handled {
		t.Fatalf("input %+v was not handled", in)
	}
}

// walkToPaymentMethod drives a fully-stocked cart to the payment menu.
func walkToPaymentMethod(t *testing.T, e *Engine, w *world) {
	t.Helper()
	seedCart(w, item("A", "Product A", 10, 2))
	setStock(w, "A", 10)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	handle(t, e, Input{ChoiceID: "confirm_checkout"})
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingPaymentMethod {
		t.Fatalf("state = %s, want %s", got, StateAwaitingPaymentMethod)
	}
}

func TestStartCheckoutEmptyCartStaysIdle(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)

	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if !strings.Contains(w.lastMessage().Body, "cart is empty") {
		t.Errorf("expected empty-cart notice, got %q", w.lastMessage().Body)
	}
}

func TestStartCheckoutShowsSummaryAndAwaitsConfirmation(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 2))

	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingConfirmation {
		t.Fatalf("state = %s, want %s", got, StateAwaitingConfirmation)
	}
	msg := w.lastMessage()
	if msg.Kind != KindChoices || len(msg.Choices) != 2 {
		t.Fatalf("expected 2-choice confirmation prompt, got %+v", msg)
	}
	if !strings.Contains(msg.Body, "GHS 20.00") {
		t.Errorf("summary missing total: %q", msg.Body)
	}
}

func TestConfirmWithInsufficientStockParksDecision(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 5))
	setStock(w, "A", 3)

	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	cc := w.contexts[key(testConv.BusinessID, testConv.CustomerID)]
	if cc.State != StateAwaitingInventoryDecision {
		t.Fatalf("state = %s, want %s", cc.State, StateAwaitingInventoryDecision)
	}
	if cc.Payload.Inventory == nil || len(cc.Payload.Inventory.FeasibleCart) != 1 {
		t.Fatalf("expected parked feasible cart, got %+v", cc.Payload.Inventory)
	}
	if cc.Payload.Inventory.FeasibleCart[0].Quantity != 3 {
		t.Errorf("feasible qty = %d, want 3", cc.Payload.Inventory.FeasibleCart[0].Quantity)
	}
	if len(w.orders) != 0 {
		t.Errorf("no order should exist before the decision, got %d", len(w.orders))
	}
	if !strings.Contains(w.lastMessage().Body, "GHS 30.00") {
		t.Errorf("stock report missing reduced total: %q", w.lastMessage().Body)
	}
}

func TestCancelAfterInventoryIssuesPreservesCart(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 5))
	setStock(w, "A", 3)

	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	handle(t, e, Input{ChoiceID: "confirm_checkout"})
	handle(t, e, Input{ChoiceID: "cancel_order"})

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	cart := w.carts[key(testConv.BusinessID, testConv.CustomerID)]
	if len(cart) != 1 || cart[0].Quantity != 5 {
		t.Errorf("cart should be untouched at qty 5, got %+v", cart)
	}
	if len(w.orders) != 0 {
		t.Errorf("cancel must not leave an order behind, got %d", len(w.orders))
	}
}

func TestAllOutOfStockRejectsProceed(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("B", "Product B", 20, 1))
	setStock(w, "B", 0)

	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	msg := w.lastMessage()
	if len(msg.Choices) != 1 || msg.Choices[0].ID != "cancel_order" {
		t.Fatalf("only cancel should be on offer, got %+v", msg.Choices)
	}

	// A proceed trigger smuggled in anyway must not create an order.
	handle(t, e, Input{ChoiceID: "proceed_with_available"})
	if len(w.orders) != 0 {
		t.Errorf("proceed with nothing feasible created %d orders", len(w.orders))
	}
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingInventoryDecision {
		t.Errorf("state = %s, want unchanged %s", got, StateAwaitingInventoryDecision)
	}
}

func TestProceedWithAvailableReducesCartAndCreatesOrder(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 5))
	setStock(w, "A", 3)

	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	handle(t, e, Input{ChoiceID: "confirm_checkout"})
	handle(t, e, Input{ChoiceID: "proceed_with_available"})

	cart := w.carts[key(testConv.BusinessID, testConv.CustomerID)]
	if len(cart) != 1 || cart[0].Quantity != 3 {
		t.Errorf("cart should be reduced to qty 3, got %+v", cart)
	}
	if len(w.orders) != 1 {
		t.Fatalf("want exactly one order, got %d", len(w.orders))
	}
	for _, order := range w.orders {
		if !order.Total.Equal(order.Subtotal) || order.Total.String() != "30" {
			t.Errorf("order total = %s, want 30", order.Total)
		}
	}
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingPaymentMethod {
		t.Errorf("state = %s, want %s", got, StateAwaitingPaymentMethod)
	}
}

func TestDuplicateConfirmCreatesOneOrder(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	walkToPaymentMethod(t, e, w)

	before := w.lastMessage()
	// Duplicate webhook delivery of the same confirm reply.
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	if len(w.orders) != 1 {
		t.Fatalf("duplicate confirm produced %d orders, want 1", len(w.orders))
	}
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingPaymentMethod {
		t.Errorf("state = %s, want unchanged", got)
	}
	after := w.lastMessage()
	if after.Title != before.Title {
		t.Errorf("replay should re-send the same prompt, got %q vs %q", after.Title, before.Title)
	}
}

func TestConcurrentInvocationRejected(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 1))
	setStock(w, "A", 1)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	// Simulate an in-flight transition holding the conversation lock.
	w.locked[key(testConv.BusinessID, testConv.CustomerID)] = true
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	if len(w.orders) != 0 {
		t.Errorf("rejected invocation must not create orders, got %d", len(w.orders))
	}
	delete(w.locked, key(testConv.BusinessID, testConv.CustomerID))

	handle(t, e, Input{ChoiceID: "confirm_checkout"})
	if len(w.orders) != 1 {
		t.Errorf("retry after lock release should create exactly one order, got %d", len(w.orders))
	}
}

func TestMissingOrderAbortsToIdle(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	w.contexts[key(testConv.BusinessID, testConv.CustomerID)] = &ConversationContext{
		BusinessID: testConv.BusinessID,
		CustomerID: testConv.CustomerID,
		State:      StateAwaitingPaymentMethod,
		Payload: Payload{
			OrderID: "ORD-GONE",
			Choices: []Choice{{ID: "payment_cod", Title: "Cash on Delivery"}},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	handle(t, e, Input{ChoiceID: "payment_cod"})

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateIdle {
		t.Errorf("state = %s, want idle after session expiry", got)
	}
	if !strings.Contains(w.lastMessage().Body, "expired") {
		t.Errorf("expected session-expired notice, got %q", w.lastMessage().Body)
	}
}

func TestBusinessMismatchAbortsToIdle(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	w.orders["ORD-0001"] = &Order{ID: "ORD-0001", BusinessID: "other-biz", Status: OrderPending}
	w.contexts[key(testConv.BusinessID, testConv.CustomerID)] = &ConversationContext{
		BusinessID: testConv.BusinessID,
		CustomerID: testConv.CustomerID,
		State:      StateAwaitingPaymentMethod,
		Payload: Payload{
			OrderID: "ORD-0001",
			Choices: []Choice{{ID: "payment_cod", Title: "Cash on Delivery"}},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	handle(t, e, Input{ChoiceID: "payment_cod"})

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateIdle {
		t.Errorf("state = %s, want idle on tenant mismatch", got)
	}
	if w.orders["ORD-0001"].Status != OrderPending {
		t.Errorf("mismatched order must not be mutated")
	}
}

func TestExpiredContextRestartsFromIdle(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	w.contexts[key(testConv.BusinessID, testConv.CustomerID)] = &ConversationContext{
		BusinessID: testConv.BusinessID,
		CustomerID: testConv.CustomerID,
		State:      StateAwaitingMomoNumber,
		Payload:    Payload{OrderID: "ORD-OLD", Momo: &MomoCapture{Network: "MTN"}},
		ExpiresAt:  time.Now().Add(-time.Hour),
	}

	handled, err := e.Handle(context.Background(), testConv, Input{Text: "0241234567"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	// After expiry the conversation is idle, so the number is not checkout
	// input any more.
	if handled {
		t.Error("expired context should fall back to idle handling")
	}
}

func TestDownstreamFailureLeavesContextRetryable(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 1))
	setStock(w, "A", 1)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	// Order creation fails on both the call and its single retry.
	w.failures["order.create"] = 2
	if _, err := e.Handle(context.Background(), testConv, Input{ChoiceID: "confirm_checkout"}); err == nil {
		t.Fatal("expected transition error")
	}

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingConfirmation {
		t.Fatalf("state = %s, want unchanged %s for safe retry", got, StateAwaitingConfirmation)
	}

	// The same trigger succeeds once the ledger recovers.
	handle(t, e, Input{ChoiceID: "confirm_checkout"})
	if len(w.orders) != 1 {
		t.Errorf("retried confirm created %d orders, want 1", len(w.orders))
	}
}

func TestContextWriteFailureRetriedConfirmResumesOrder(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 2))
	setStock(w, "A", 10)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	// The order is created, then the context write fails on both the call
	// and its single retry.
	w.failures["context.set"] = 2
	if _, err := e.Handle(context.Background(), testConv, Input{ChoiceID: "confirm_checkout"}); err == nil {
		t.Fatal("expected transition error")
	}
	if len(w.orders) != 1 {
		t.Fatalf("orders after failed context write = %d, want 1", len(w.orders))
	}
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingConfirmation {
		t.Fatalf("state = %s, want unchanged %s for safe retry", got, StateAwaitingConfirmation)
	}

	// The retried confirm resumes the order it already created instead of
	// minting a second one.
	handle(t, e, Input{ChoiceID: "confirm_checkout"})
	if len(w.orders) != 1 {
		t.Fatalf("retried confirm produced %d orders, want 1", len(w.orders))
	}
	cc := w.contexts[key(testConv.BusinessID, testConv.CustomerID)]
	if cc.State != StateAwaitingPaymentMethod {
		t.Errorf("state = %s, want %s", cc.State, StateAwaitingPaymentMethod)
	}
	if cc.Payload.OrderID == "" {
		t.Error("payload should carry the resumed order id")
	}
}

func TestContextWriteTransientFailureAbsorbed(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 2))
	setStock(w, "A", 10)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	w.failures["context.set"] = 1
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	if len(w.orders) != 1 {
		t.Errorf("single transient context failure should be absorbed, got %d orders", len(w.orders))
	}
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingPaymentMethod {
		t.Errorf("state = %s, want %s", got, StateAwaitingPaymentMethod)
	}
}

func TestChangedCartDoesNotResumeStalePendingOrder(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 2))
	setStock(w, "A", 10)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	w.failures["context.set"] = 2
	if _, err := e.Handle(context.Background(), testConv, Input{ChoiceID: "confirm_checkout"}); err == nil {
		t.Fatal("expected transition error")
	}

	// The customer edits the cart before retrying, so the pending order no
	// longer matches the snapshot and must not be reused.
	seedCart(w, item("A", "Product A", 10, 3))
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	if len(w.orders) != 2 {
		t.Fatalf("changed cart should create a fresh order, got %d orders", len(w.orders))
	}
	cc := w.contexts[key(testConv.BusinessID, testConv.CustomerID)]
	order := w.orders[cc.Payload.OrderID]
	if order == nil || order.Total.String() != "30" {
		t.Errorf("active order should snapshot the edited cart, got %+v", order)
	}
}

func TestConfirmedOrderRepairsOnAnyInput(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	w.orders["ORD-0001"] = &Order{
		ID:         "ORD-0001",
		BusinessID: testConv.BusinessID,
		CustomerID: testConv.CustomerID,
		Status:     OrderConfirmed,
	}
	stalePrompt := Choices("Choose Shipping Option", "How should we get your order to you?", []Choice{
		{ID: "ship_pickup", Title: "Pickup"},
		{ID: "ship_new_address", Title: "New Address"},
	})
	w.contexts[key(testConv.BusinessID, testConv.CustomerID)] = &ConversationContext{
		BusinessID: testConv.BusinessID,
		CustomerID: testConv.CustomerID,
		State:      StateAwaitingShippingOption,
		Payload: Payload{
			OrderID: "ORD-0001",
			Prompt:  &stalePrompt,
			Choices: stalePrompt.Choices,
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	// Free text that resolves to no trigger must still repair from the
	// confirmed order, not re-send the stale shipping prompt.
	handle(t, e, Input{Text: "did my order go through?"})

	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateIdle {
		t.Errorf("state = %s, want idle after repair", got)
	}
	if !strings.Contains(w.lastMessage().Body, "already confirmed") {
		t.Errorf("expected confirmed-order notice, got %q", w.lastMessage().Body)
	}
}

func TestTransientFailureRecoveredByRetry(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 1))
	setStock(w, "A", 1)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	w.failures["order.create"] = 1
	handle(t, e, Input{ChoiceID: "confirm_checkout"})

	if len(w.orders) != 1 {
		t.Errorf("single transient failure should be absorbed, got %d orders", len(w.orders))
	}
}

func TestNumericReplyResolvesAgainstOfferedChoices(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)
	seedCart(w, item("A", "Product A", 10, 1))
	setStock(w, "A", 1)
	if err := e.StartCheckout(context.Background(), testConv); err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	// "1" is the first offered choice: Confirm Checkout.
	handle(t, e, Input{Text: "1"})
	if got := w.contextState(testConv.BusinessID, testConv.CustomerID); got != StateAwaitingPaymentMethod {
		t.Errorf("state = %s, want %s", got, StateAwaitingPaymentMethod)
	}
}

func TestIdleUnrelatedInputNotHandled(t *testing.T) {
	w := newWorld()
	e := newTestEngine(w)

	handled, err := e.Handle(context.Background(), testConv, Input{Text: "hello there"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if handled {
		t.Error("idle small talk should not be claimed by checkout")
	}
}
