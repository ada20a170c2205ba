package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"shopbot/internal/metrics"
)

// errSessionExpired marks a trigger that referenced a missing or mismatched
// order. It resets the conversation instead of failing the transition.
var errSessionExpired = errors.New("checkout session expired")

// Conversation identifies one customer talking to one business.
type Conversation struct {
	BusinessID  string
	CustomerID  string
	DisplayName string
}

// Input is an inbound customer reply before trigger resolution. ChoiceID is
// set when the transport delivered an interactive reply; Text carries free
// text; Location is set for shared locations.
type Input struct {
	Text     string
	ChoiceID string
	Location *SharedLocation
}

// Config tunes the orchestrator.
type Config struct {
	// ContextTTL is the coarse conversation expiry. A mid-checkout context
	// older than this is discarded and the customer restarts from idle.
	ContextTTL time.Duration
	// RetryBackoff is the pause before the single retry on downstream
	// failures.
	RetryBackoff time.Duration
	// PaymentLinkBase prefixes simulated external payment URLs.
	PaymentLinkBase string
}

func (c *Config) applyDefaults() {
	if c.ContextTTL <= 0 {
		c.ContextTTL = 24 * time.Hour
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.PaymentLinkBase == "" {
		c.PaymentLinkBase = "https://pay.example.com"
	}
}

// Deps are the external collaborators the orchestrator drives.
type Deps struct {
	Carts      CartStore
	Inventory  InventoryOracle
	Ledger     OrderLedger
	Contexts   ContextStore
	Locks      ConversationLocker
	Notifier   Notifier
	Directory  CustomerDirectory
	Businesses BusinessDirectory
}

// Engine sequences reconciliation, payment selection, shipping resolution
// and finalization as a resumable per-conversation state machine.
type Engine struct {
	deps    Deps
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a checkout engine.
func New(deps Deps, cfg Config, metricRegistry *metrics.Metrics, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		deps:    deps,
		cfg:     cfg,
		metrics: metricRegistry,
		logger:  logger.With("component", "checkout"),
	}
}

// StartCheckout begins (or re-prompts) the checkout flow for a conversation.
// Called by the router once it has classified the inbound message as a
// checkout intent.
func (e *Engine) StartCheckout(ctx context.Context, conv Conversation) error {
	_, err := e.run(ctx, conv, TriggerStartCheckout, func(cctx *ConversationContext) error {
		return e.startCheckout(ctx, conv, cctx)
	})
	return err
}

// Handle processes an inbound reply against the conversation's current
// state. It returns false when the conversation is idle and the input did
// not map to any checkout action, so the router can fall through.
func (e *Engine) Handle(ctx context.Context, conv Conversation, in Input) (bool, error) {
	return e.run(ctx, conv, "", func(cctx *ConversationContext) error {
		return e.dispatch(ctx, conv, cctx, in)
	})
}

// errNotCheckoutInput signals that an idle conversation received input the
// engine has no claim on.
var errNotCheckoutInput = errors.New("input not addressed to checkout")

// run acquires the conversation lock, loads the context, applies fn, and
// persists the context only when fn succeeds. Downstream failures leave the
// stored context untouched so the customer can safely retry the trigger.
func (e *Engine) run(ctx context.Context, conv Conversation, trigger Trigger, fn func(*ConversationContext) error) (bool, error) {
	release, err := e.deps.Locks.Acquire(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		if errors.Is(err, ErrConversationBusy) {
			e.logger.Warn("concurrent transition rejected", "business_id", conv.BusinessID, "customer_id", conv.CustomerID)
			e.count(trigger, "busy")
			return true, nil
		}
		return true, fmt.Errorf("acquire conversation lock: %w", err)
	}
	defer release()

	cctx, err := e.deps.Contexts.Get(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		return true, fmt.Errorf("load conversation context: %w", err)
	}
	if cctx == nil {
		cctx = newIdleContext(conv.BusinessID, conv.CustomerID)
	}
	if cctx.Expired(time.Now()) {
		e.logger.Info("discarding expired checkout context", "business_id", conv.BusinessID, "customer_id", conv.CustomerID, "state", cctx.State)
		cctx.reset()
	}

	switch err := fn(cctx); {
	case err == nil:
	case errors.Is(err, errNotCheckoutInput):
		return false, nil
	case errors.Is(err, errSessionExpired):
		e.count(trigger, "session_expired")
		e.notify(ctx, conv, Text("Your checkout session has expired. Please start checkout again - your cart is still saved."))
		cctx.reset()
	default:
		if trigger != "" {
			e.count(trigger, "error")
		}
		e.logger.Error("checkout transition failed", "business_id", conv.BusinessID, "customer_id", conv.CustomerID, "state", cctx.State, "error", err)
		e.notify(ctx, conv, Text("Sorry, something went wrong on our side. Please try that again in a moment."))
		return true, err
	}

	cctx.UpdatedAt = time.Now()
	cctx.ExpiresAt = time.Now().Add(e.cfg.ContextTTL)
	if err := e.withRetry(ctx, "persist conversation context", func() error {
		return e.deps.Contexts.Set(ctx, cctx)
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (e *Engine) dispatch(ctx context.Context, conv Conversation, cctx *ConversationContext, in Input) error {
	var order *Order
	if cctx.State.requiresOrder() {
		var err error
		order, err = e.loadOrder(ctx, conv, cctx)
		if err != nil {
			return err
		}
		if order.Status == OrderConfirmed {
			// A crash between finalization and the context write leaves a
			// confirmed order under a stale mid-checkout state. Repair from
			// the order before any trigger handling, so even noise input
			// cannot resurrect the stale prompt.
			e.notify(ctx, conv, Text(fmt.Sprintf("Order %s is already confirmed. Thank you for shopping with us!", order.ID)))
			cctx.reset()
			return nil
		}
	}

	trigger, arg := e.resolve(cctx, in)
	if trigger == "" {
		if cctx.State == StateIdle {
			return errNotCheckoutInput
		}
		// Mid-checkout input that resolves to nothing: nudge and repeat
		// the pending prompt without touching any state.
		e.notify(ctx, conv, Text("Sorry, I didn't catch that. Please pick one of the options below."))
		return e.reprompt(ctx, conv, cctx)
	}

	if !cctx.State.accepts(trigger) {
		// Duplicate delivery of a trigger whose step already completed, or
		// an out-of-order tap. Re-send the current prompt; mutate nothing.
		e.count(trigger, "replayed")
		return e.reprompt(ctx, conv, cctx)
	}

	outcome := "ok"
	err := e.apply(ctx, conv, cctx, trigger, arg, in, order)
	if err != nil {
		outcome = "error"
	}
	e.count(trigger, outcome)
	return err
}

func (e *Engine) apply(ctx context.Context, conv Conversation, cctx *ConversationContext, trigger Trigger, arg string, in Input, order *Order) error {
	switch trigger {
	case TriggerStartCheckout:
		return e.startCheckout(ctx, conv, cctx)
	case TriggerConfirm:
		return e.handleConfirm(ctx, conv, cctx)
	case TriggerEditCart:
		return e.handleEditCart(ctx, conv, cctx)
	case TriggerProceedWithAvailable:
		return e.handleProceedWithAvailable(ctx, conv, cctx)
	case TriggerCancelOrder:
		return e.handleCancelOrder(ctx, conv, cctx)
	case TriggerSelectSavedAccount:
		return e.handleSelectSavedAccount(ctx, conv, cctx, order, arg)
	case TriggerSelectCOD:
		return e.handleSelectCOD(ctx, conv, cctx, order)
	case TriggerSelectNewMomo:
		return e.handleSelectNewMomo(ctx, conv, cctx, order)
	case TriggerSelectCurrentNumber:
		return e.handleSelectCurrentNumber(ctx, conv, cctx, order, arg)
	case TriggerNetworkChosen:
		return e.handleNetworkChosen(ctx, conv, cctx, order, arg)
	case TriggerNumberSubmitted:
		return e.handleNumberSubmitted(ctx, conv, cctx, order, arg)
	case TriggerSelectSavedAddress:
		return e.handleSelectSavedAddress(ctx, conv, cctx, order, arg)
	case TriggerSelectPickup:
		return e.handleSelectPickup(ctx, conv, cctx, order)
	case TriggerSelectNewAddress:
		return e.handleSelectNewAddress(ctx, conv, cctx, order)
	case TriggerShareLocation:
		return e.handleShareLocation(ctx, conv, cctx, order)
	case TriggerAddressSubmitted:
		return e.handleAddressSubmitted(ctx, conv, cctx, order, arg)
	case TriggerLocationReceived:
		return e.handleLocationReceived(ctx, conv, cctx, order, in.Location)
	case TriggerSaveAddress:
		return e.handleSaveDecision(ctx, conv, cctx, order, true)
	case TriggerSkipSave:
		return e.handleSaveDecision(ctx, conv, cctx, order, false)
	default:
		return fmt.Errorf("unhandled trigger %q in state %q", trigger, cctx.State)
	}
}

// resolve maps raw input to a trigger and argument for the current state.
// Choice states resolve against the options last offered; free-text states
// pass the text through.
func (e *Engine) resolve(cctx *ConversationContext, in Input) (Trigger, string) {
	switch cctx.State {
	case StateAwaitingMomoNumber:
		if text := strings.TrimSpace(in.Text); text != "" {
			return TriggerNumberSubmitted, text
		}
		return "", ""
	case StateAwaitingManualAddress:
		if text := strings.TrimSpace(in.Text); text != "" {
			return TriggerAddressSubmitted, text
		}
		return "", ""
	case StateAwaitingLocationShare:
		if in.Location != nil {
			return TriggerLocationReceived, ""
		}
		return "", ""
	}

	id := matchChoice(cctx.Payload.Choices, in)
	if id == "" {
		id = strings.TrimSpace(in.ChoiceID)
	}
	if id == "" {
		return "", ""
	}
	return resolveChoiceID(id)
}

// matchChoice resolves an input against the offered options: an exact
// choice id, a 1-based numeric reply, or a case-insensitive title.
func matchChoice(choices []Choice, in Input) string {
	if len(choices) == 0 {
		return ""
	}
	if id := strings.TrimSpace(in.ChoiceID); id != "" {
		for _, c := range choices {
			if c.ID == id {
				return c.ID
			}
		}
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return ""
	}
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(choices) {
			return choices[n-1].ID
		}
		return ""
	}
	for _, c := range choices {
		if strings.EqualFold(c.Title, text) {
			return c.ID
		}
	}
	return ""
}

// resolveChoiceID maps an option id to its trigger. Parameterized options
// carry their argument as an id suffix.
func resolveChoiceID(id string) (Trigger, string) {
	switch {
	case id == "confirm_checkout":
		return TriggerConfirm, ""
	case id == "edit_cart":
		return TriggerEditCart, ""
	case id == "proceed_with_available":
		return TriggerProceedWithAvailable, ""
	case id == "cancel_order":
		return TriggerCancelOrder, ""
	case id == "payment_cod":
		return TriggerSelectCOD, ""
	case id == "payment_new_momo":
		return TriggerSelectNewMomo, ""
	case strings.HasPrefix(id, "payment_current_"):
		return TriggerSelectCurrentNumber, strings.TrimPrefix(id, "payment_current_")
	case strings.HasPrefix(id, "payment_saved_"):
		return TriggerSelectSavedAccount, strings.TrimPrefix(id, "payment_saved_")
	case strings.HasPrefix(id, "network_"):
		return TriggerNetworkChosen, strings.TrimPrefix(id, "network_")
	case strings.HasPrefix(id, "ship_saved_"):
		return TriggerSelectSavedAddress, strings.TrimPrefix(id, "ship_saved_")
	case id == "ship_pickup":
		return TriggerSelectPickup, ""
	case id == "ship_new_address":
		return TriggerSelectNewAddress, ""
	case id == "ship_location":
		return TriggerShareLocation, ""
	case id == "save_address_yes":
		return TriggerSaveAddress, ""
	case id == "save_address_no":
		return TriggerSkipSave, ""
	}
	return "", ""
}

// startCheckout shows the cart summary and asks for confirmation. With an
// empty cart the conversation stays idle.
func (e *Engine) startCheckout(ctx context.Context, conv Conversation, cctx *ConversationContext) error {
	if cctx.State != StateIdle {
		// Checkout is already under way; repeat the pending prompt.
		return e.reprompt(ctx, conv, cctx)
	}

	if _, err := e.deps.Directory.GetOrCreate(ctx, conv.BusinessID, conv.CustomerID, conv.DisplayName); err != nil {
		e.logger.Warn("could not ensure customer record", "customer_id", conv.CustomerID, "error", err)
	}

	cart, err := e.loadCart(ctx, conv)
	if err != nil {
		return err
	}
	if len(cart) == 0 {
		e.notify(ctx, conv, Text("Your cart is empty. Please add some products before checking out."))
		return nil
	}

	settings := e.settings(ctx, conv.BusinessID)
	body := formatCartSummary(cart, settings.Currency) + "\n\n" +
		"*Terms of Service:*\n" +
		"By proceeding with checkout, you agree to our terms of service and privacy policy. " +
		"Your order will be processed and delivered according to our shipping policies."

	msg := Choices("Confirm Order", body, []Choice{
		{ID: "confirm_checkout", Title: "Confirm Checkout"},
		{ID: "edit_cart", Title: "Edit Cart"},
	})
	return e.prompt(ctx, conv, cctx, StateAwaitingConfirmation, msg)
}

// handleConfirm runs a reconciliation pass. A clean pass creates the order
// straight away; issues park the verdicts for the customer's decision.
func (e *Engine) handleConfirm(ctx context.Context, conv Conversation, cctx *ConversationContext) error {
	cart, err := e.loadCart(ctx, conv)
	if err != nil {
		return err
	}
	if len(cart) == 0 {
		e.notify(ctx, conv, Text("Your cart is empty. Please add some products before checking out."))
		cctx.reset()
		return nil
	}

	result, err := Reconcile(cart, func(stockRef string) (int, error) {
		var qty int
		err := e.withRetry(ctx, "inventory lookup", func() error {
			var lookupErr error
			qty, lookupErr = e.deps.Inventory.AvailableQty(ctx, conv.BusinessID, stockRef)
			return lookupErr
		})
		return qty, err
	})
	if err != nil {
		return fmt.Errorf("reconcile cart: %w", err)
	}

	if !result.HasIssues {
		e.countReconcile("clean")
		return e.createOrderAndOfferPayment(ctx, conv, cctx, result.FeasibleCart)
	}

	settings := e.settings(ctx, conv.BusinessID)
	body := formatStockReport(result, settings.Currency)
	cctx.Payload.Inventory = &InventoryDecision{
		Verdicts:     result.Verdicts,
		FeasibleCart: result.FeasibleCart,
	}

	if result.Feasible() {
		e.countReconcile("issues")
		msg := Choices("Inventory Check", body, []Choice{
			{ID: "proceed_with_available", Title: "Proceed to Checkout", Description: "Continue with the items in stock"},
			{ID: "cancel_order", Title: "Cancel Order"},
		})
		return e.prompt(ctx, conv, cctx, StateAwaitingInventoryDecision, msg)
	}

	// Nothing can be fulfilled: cancellation is the only valid action, so
	// "proceed" must not be on offer.
	e.countReconcile("infeasible")
	msg := Choices("Order Cannot Proceed", body, []Choice{
		{ID: "cancel_order", Title: "Cancel Order"},
	})
	return e.prompt(ctx, conv, cctx, StateAwaitingInventoryDecision, msg)
}

func (e *Engine) handleEditCart(ctx context.Context, conv Conversation, cctx *ConversationContext) error {
	e.notify(ctx, conv, Text("No problem - your cart is untouched. Type 'cart' to review it, then 'checkout' when you're ready."))
	cctx.reset()
	return nil
}

// handleProceedWithAvailable reduces the cart to the feasible snapshot the
// customer agreed to, then creates the order from that reduction.
func (e *Engine) handleProceedWithAvailable(ctx context.Context, conv Conversation, cctx *ConversationContext) error {
	decision := cctx.Payload.Inventory
	if decision == nil {
		return errSessionExpired
	}
	if len(decision.FeasibleCart) == 0 {
		e.notify(ctx, conv, Text("All requested items are currently out of stock, so the order cannot proceed."))
		return e.reprompt(ctx, conv, cctx)
	}

	if err := e.withRetry(ctx, "reduce cart", func() error {
		return e.deps.Carts.Replace(ctx, conv.BusinessID, conv.CustomerID, decision.FeasibleCart)
	}); err != nil {
		return err
	}

	settings := e.settings(ctx, conv.BusinessID)
	e.notify(ctx, conv, Text("Cart updated to available stock.\n\n"+formatCartSummary(decision.FeasibleCart, settings.Currency)+"\n\nProceeding to payment..."))
	return e.createOrderAndOfferPayment(ctx, conv, cctx, decision.FeasibleCart)
}

func (e *Engine) handleCancelOrder(ctx context.Context, conv Conversation, cctx *ConversationContext) error {
	e.notify(ctx, conv, Text("Your order has been cancelled. Your cart items remain saved if you'd like to try again later."))
	cctx.reset()
	return nil
}

// createOrderAndOfferPayment snapshots the feasible cart into a new order
// and presents payment options. This is the only place an order is born. A
// pending order already holding the same snapshot is resumed instead, so a
// confirm retried after a failed context write never duplicates the order.
func (e *Engine) createOrderAndOfferPayment(ctx context.Context, conv Conversation, cctx *ConversationContext, lines []CartItem) error {
	order, err := e.resumePendingOrder(ctx, conv, lines)
	if err != nil {
		return err
	}
	if order == nil {
		if err := e.withRetry(ctx, "create order", func() error {
			var createErr error
			order, createErr = e.deps.Ledger.Create(ctx, conv.BusinessID, conv.CustomerID, lines)
			return createErr
		}); err != nil {
			return err
		}
	}

	cctx.Payload = Payload{OrderID: order.ID}

	accounts, err := e.deps.Directory.PaymentAccounts(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		e.logger.Warn("could not fetch payment accounts", "customer_id", conv.CustomerID, "error", err)
		accounts = nil
	}

	var choices []Choice
	for _, acc := range accounts {
		desc := ""
		if acc.IsDefault {
			desc = "(Default)"
		}
		choices = append(choices, Choice{
			ID:          "payment_saved_" + acc.ID,
			Title:       acc.Provider + " - " + acc.Number,
			Description: desc,
		})
	}
	if len(accounts) == 0 {
		if number := localNumberFromWAID(conv.CustomerID); number != "" {
			choices = append(choices, Choice{
				ID:          "payment_current_" + number,
				Title:       networkForNumber(number) + " - " + number,
				Description: "Pay with your current WhatsApp number",
			})
		}
	}
	choices = append(choices,
		Choice{ID: "payment_new_momo", Title: "Add Payment Account", Description: "Pay with a different mobile money account"},
		Choice{ID: "payment_cod", Title: "Cash on Delivery", Description: "Pay when you receive your order"},
	)

	body := fmt.Sprintf("Order %s - Total: %s", order.ID, money(order.Total, order.Currency))
	return e.prompt(ctx, conv, cctx, StateAwaitingPaymentMethod, Choices("Choose Payment Method", body, choices))
}

// resumePendingOrder returns an earlier pending order that already snapshots
// these lines. Such an order exists when a previous confirmation created it
// but the context write did not survive; the order itself is the durable
// record of how far the transition got.
func (e *Engine) resumePendingOrder(ctx context.Context, conv Conversation, lines []CartItem) (*Order, error) {
	var order *Order
	err := e.withRetry(ctx, "find pending order", func() error {
		var findErr error
		order, findErr = e.deps.Ledger.LatestPending(ctx, conv.BusinessID, conv.CustomerID)
		return findErr
	})
	if errors.Is(err, ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !sameLineSnapshot(order, lines) {
		return nil, nil
	}
	e.logger.Info("resuming pending order", "order_id", order.ID, "customer_id", conv.CustomerID)
	return order, nil
}

// sameLineSnapshot reports whether the order carries exactly the given cart
// lines, regardless of line order.
func sameLineSnapshot(order *Order, lines []CartItem) bool {
	if len(order.Lines) != len(lines) || !order.Total.Equal(CartTotal(lines)) {
		return false
	}
	quantities := make(map[string]int, len(lines))
	for _, line := range lines {
		quantities[line.ProductRef+"|"+line.VariantRef] += line.Quantity
	}
	for _, line := range order.Lines {
		quantities[line.ProductRef+"|"+line.VariantRef] -= line.Quantity
	}
	for _, qty := range quantities {
		if qty != 0 {
			return false
		}
	}
	return true
}

// loadOrder fetches the payload's order and validates tenant scoping. Any
// mismatch is a recoverable session-expired condition, not a failure.
func (e *Engine) loadOrder(ctx context.Context, conv Conversation, cctx *ConversationContext) (*Order, error) {
	if cctx.Payload.OrderID == "" {
		return nil, errSessionExpired
	}
	var order *Order
	err := e.withRetry(ctx, "load order", func() error {
		var getErr error
		order, getErr = e.deps.Ledger.Get(ctx, cctx.Payload.OrderID)
		return getErr
	})
	if errors.Is(err, ErrOrderNotFound) {
		return nil, errSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if order.BusinessID != conv.BusinessID {
		e.logger.Warn("order business mismatch", "order_id", order.ID, "expected", conv.BusinessID, "got", order.BusinessID)
		return nil, errSessionExpired
	}
	return order, nil
}

func (e *Engine) loadCart(ctx context.Context, conv Conversation) ([]CartItem, error) {
	var cart []CartItem
	err := e.withRetry(ctx, "load cart", func() error {
		var getErr error
		cart, getErr = e.deps.Carts.Get(ctx, conv.BusinessID, conv.CustomerID)
		return getErr
	})
	return cart, err
}

// settings fetches business settings, degrading to defaults when the
// directory is unreachable so checkout keeps flowing.
func (e *Engine) settings(ctx context.Context, businessID string) *BusinessSettings {
	settings, err := e.deps.Businesses.Settings(ctx, businessID)
	if err != nil || settings == nil {
		if err != nil {
			e.logger.Warn("could not load business settings", "business_id", businessID, "error", err)
		}
		return &BusinessSettings{
			BusinessID:       businessID,
			Currency:         "GHS",
			MomoNetworks:     defaultMomoNetworks,
			DeliveryEstimate: "3-5 business days",
		}
	}
	if settings.Currency == "" {
		settings.Currency = "GHS"
	}
	if len(settings.MomoNetworks) == 0 {
		settings.MomoNetworks = defaultMomoNetworks
	}
	if settings.DeliveryEstimate == "" {
		settings.DeliveryEstimate = "3-5 business days"
	}
	return settings
}

// prompt sends a message, advances the state, and records the offered
// choices and prompt for replay resolution.
func (e *Engine) prompt(ctx context.Context, conv Conversation, cctx *ConversationContext, state State, msg Message) error {
	if err := e.deps.Notifier.Notify(ctx, conv.BusinessID, conv.CustomerID, msg); err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}
	cctx.State = state
	cctx.Payload.Prompt = &msg
	cctx.Payload.Choices = msg.Choices
	return nil
}

// reprompt re-sends the pending prompt without changing anything.
func (e *Engine) reprompt(ctx context.Context, conv Conversation, cctx *ConversationContext) error {
	if cctx.Payload.Prompt == nil {
		return nil
	}
	return e.deps.Notifier.Notify(ctx, conv.BusinessID, conv.CustomerID, *cctx.Payload.Prompt)
}

// notify sends a best-effort informational message. Failures are logged but
// never fail the transition they decorate.
func (e *Engine) notify(ctx context.Context, conv Conversation, msg Message) {
	if err := e.deps.Notifier.Notify(ctx, conv.BusinessID, conv.CustomerID, msg); err != nil {
		e.logger.Warn("notify failed", "customer_id", conv.CustomerID, "error", err)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("notifier").Inc()
		}
	}
}

// withRetry applies the call-site policy for downstream failures: one retry
// after a short backoff, then give up.
func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderNotFound) {
		return err
	}
	e.logger.Warn("retrying after downstream failure", "op", op, "error", err)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, err)
	case <-time.After(e.cfg.RetryBackoff):
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (e *Engine) count(trigger Trigger, outcome string) {
	if e.metrics == nil {
		return
	}
	label := string(trigger)
	if label == "" {
		label = "unresolved"
	}
	e.metrics.CheckoutTransitions.WithLabelValues(label, outcome).Inc()
}

func (e *Engine) countReconcile(outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReconcilePasses.WithLabelValues(outcome).Inc()
}
