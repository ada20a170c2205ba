package checkout

import (
	"time"
)

// State is the position of a conversation inside the checkout flow.
// Stored as a string so serialized contexts survive rollouts.
type State string

const (
	StateIdle                      State = "idle"
	StateAwaitingConfirmation      State = "awaiting_checkout_confirmation"
	StateAwaitingInventoryDecision State = "awaiting_inventory_decision"
	StateAwaitingPaymentMethod     State = "awaiting_payment_method"
	StateAwaitingMomoNetwork       State = "awaiting_momo_network"
	StateAwaitingMomoNumber        State = "awaiting_momo_number"
	StateAwaitingShippingOption    State = "awaiting_shipping_option"
	StateAwaitingManualAddress     State = "awaiting_manual_address"
	StateAwaitingLocationShare     State = "awaiting_location_share"
	StateAwaitingSaveDecision      State = "awaiting_save_decision"
)

// Trigger is a resolved customer action applied to the current state.
type Trigger string

const (
	TriggerStartCheckout        Trigger = "start_checkout"
	TriggerConfirm              Trigger = "confirm"
	TriggerEditCart             Trigger = "edit_cart"
	TriggerProceedWithAvailable Trigger = "proceed_with_available"
	TriggerCancelOrder          Trigger = "cancel_order"
	TriggerSelectSavedAccount   Trigger = "select_saved_account"
	TriggerSelectCOD            Trigger = "select_cod"
	TriggerSelectNewMomo        Trigger = "select_new_momo"
	TriggerSelectCurrentNumber  Trigger = "select_current_number"
	TriggerNetworkChosen        Trigger = "network_chosen"
	TriggerNumberSubmitted      Trigger = "number_submitted"
	TriggerSelectSavedAddress   Trigger = "select_saved_address"
	TriggerSelectPickup         Trigger = "select_pickup"
	TriggerSelectNewAddress     Trigger = "select_new_address"
	TriggerShareLocation        Trigger = "share_location"
	TriggerAddressSubmitted     Trigger = "address_submitted"
	TriggerLocationReceived     Trigger = "location_received"
	TriggerSaveAddress          Trigger = "save_address"
	TriggerSkipSave             Trigger = "skip_save"
)

// validTriggers is the single source of truth for which triggers a state
// accepts. Anything else is either a replay of an earlier step or noise.
var validTriggers = map[State][]Trigger{
	StateIdle:                      {TriggerStartCheckout},
	StateAwaitingConfirmation:      {TriggerConfirm, TriggerEditCart},
	StateAwaitingInventoryDecision: {TriggerProceedWithAvailable, TriggerCancelOrder},
	StateAwaitingPaymentMethod:     {TriggerSelectSavedAccount, TriggerSelectCOD, TriggerSelectNewMomo, TriggerSelectCurrentNumber},
	StateAwaitingMomoNetwork:       {TriggerNetworkChosen},
	StateAwaitingMomoNumber:        {TriggerNumberSubmitted},
	StateAwaitingShippingOption:    {TriggerSelectSavedAddress, TriggerSelectPickup, TriggerSelectNewAddress, TriggerShareLocation},
	StateAwaitingManualAddress:     {TriggerAddressSubmitted},
	StateAwaitingLocationShare:     {TriggerLocationReceived},
	StateAwaitingSaveDecision:      {TriggerSaveAddress, TriggerSkipSave},
}

func (s State) accepts(t Trigger) bool {
	for _, valid := range validTriggers[s] {
		if valid == t {
			return true
		}
	}
	return false
}

// requiresOrder reports whether the state cannot be entered without an
// order id in the payload. Order creation happens once feasibility is
// settled, so everything from payment selection onward needs one.
func (s State) requiresOrder() bool {
	switch s {
	case StateAwaitingPaymentMethod, StateAwaitingMomoNetwork, StateAwaitingMomoNumber,
		StateAwaitingShippingOption, StateAwaitingManualAddress,
		StateAwaitingLocationShare, StateAwaitingSaveDecision:
		return true
	}
	return false
}

// InventoryDecision is the reconciliation outcome parked in the payload
// while the customer decides whether to proceed with what is in stock.
type InventoryDecision struct {
	Verdicts     []InventoryVerdict `json:"verdicts"`
	FeasibleCart []CartItem         `json:"feasible_cart"`
}

// MomoCapture tracks progress through new mobile-money account entry.
type MomoCapture struct {
	Network string `json:"network"`
}

// AddressCapture holds a validated manual address awaiting the customer's
// save-or-skip decision. The order's shipping address is already set by
// the time this exists; only directory persistence hangs on the answer.
type AddressCapture struct {
	Recipient string `json:"recipient"`
	Street    string `json:"street"`
	City      string `json:"city"`
	Formatted string `json:"formatted"`
}

// Payload carries only the step-scoped data the current state needs.
// Each sub-struct belongs to a specific state; the rest stay nil.
type Payload struct {
	OrderID   string             `json:"order_id,omitempty"`
	Inventory *InventoryDecision `json:"inventory,omitempty"`
	Momo      *MomoCapture       `json:"momo,omitempty"`
	Address   *AddressCapture    `json:"address,omitempty"`
	// Choices are the options last offered to the customer, kept so a
	// numeric reply resolves to the same option after a restart.
	Choices []Choice `json:"choices,omitempty"`
	// Prompt is the last prompt sent, re-sent verbatim when a duplicate
	// trigger arrives after its step already completed.
	Prompt *Message `json:"prompt,omitempty"`
}

// ConversationContext is the sole source of truth for where in checkout a
// (business, customer) conversation is. It is never deleted, only reset
// to idle with a cleared payload.
type ConversationContext struct {
	BusinessID string    `json:"business_id"`
	CustomerID string    `json:"customer_id"`
	State      State     `json:"state"`
	Payload    Payload   `json:"payload"`
	ExpiresAt  time.Time `json:"expires_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Expired reports whether the context's coarse expiry has passed.
func (c *ConversationContext) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

func newIdleContext(businessID, customerID string) *ConversationContext {
	return &ConversationContext{
		BusinessID: businessID,
		CustomerID: customerID,
		State:      StateIdle,
	}
}

// reset clears the payload and returns the context to idle, preserving its
// identity.
func (c *ConversationContext) reset() {
	c.State = StateIdle
	c.Payload = Payload{}
}
