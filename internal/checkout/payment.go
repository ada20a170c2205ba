package checkout

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// defaultMomoNetworks is used when a business has not configured its own
// list of mobile money providers.
var defaultMomoNetworks = []string{"MTN", "Telecel", "AirtelTigo"}

// momoNumberPattern matches a 10-digit Ghana mobile number.
var momoNumberPattern = regexp.MustCompile(`^0[2345]\d{8}$`)

// ValidMomoNumber reports whether text is a well-formed local mobile money
// number.
func ValidMomoNumber(text string) bool {
	return momoNumberPattern.MatchString(strings.TrimSpace(text))
}

// networkForNumber infers the provider from the local number prefix.
func networkForNumber(number string) string {
	if len(number) < 3 {
		return "Mobile Money"
	}
	switch number[:3] {
	case "024", "025", "053", "054", "055", "059":
		return "MTN"
	case "020", "050":
		return "Telecel"
	case "026", "027", "056", "057":
		return "AirtelTigo"
	}
	return "Mobile Money"
}

// localNumberFromWAID converts an international WhatsApp id (e.g.
// 233241234567) to the local 0-prefixed form. Returns "" when the id does
// not look like a Ghana MSISDN.
func localNumberFromWAID(waID string) string {
	digits := strings.TrimPrefix(waID, "+")
	if !strings.HasPrefix(digits, "233") || len(digits) != 12 {
		return ""
	}
	number := "0" + digits[3:]
	if !momoNumberPattern.MatchString(number) {
		return ""
	}
	return number
}

// paymentURL builds the simulated external payment link. Real capture is an
// off-band concern; the order only records that payment is pending there.
func (e *Engine) paymentURL(orderID, network, number string) string {
	return fmt.Sprintf("%s/pay/%s?network=%s&phone=%s",
		strings.TrimRight(e.cfg.PaymentLinkBase, "/"),
		url.PathEscape(orderID),
		url.QueryEscape(network),
		url.QueryEscape(number),
	)
}

func (e *Engine) handleSelectCOD(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	if err := e.setPayment(ctx, order, PaymentUpdate{Status: PaymentCashOnDelivery}, "payment method set to cash on delivery"); err != nil {
		return err
	}
	e.notify(ctx, conv, Text(fmt.Sprintf("You've selected Cash on Delivery for order %s. You'll pay when your order is delivered.", order.ID)))
	return e.offerShipping(ctx, conv, cctx, order)
}

func (e *Engine) handleSelectSavedAccount(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, accountID string) error {
	accounts, err := e.deps.Directory.PaymentAccounts(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		return fmt.Errorf("load payment accounts: %w", err)
	}
	var selected *PaymentAccount
	for i := range accounts {
		if accounts[i].ID == accountID {
			selected = &accounts[i]
			break
		}
	}
	if selected == nil {
		e.notify(ctx, conv, Text("Sorry, we couldn't find that payment account. Please choose another option."))
		return e.reprompt(ctx, conv, cctx)
	}

	return e.applyMomoPayment(ctx, conv, cctx, order, selected.Provider, selected.Number, selected.HolderName)
}

// handleSelectCurrentNumber uses the customer's own WhatsApp number as the
// momo instrument, inferring the network from its prefix.
func (e *Engine) handleSelectCurrentNumber(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, number string) error {
	if !ValidMomoNumber(number) {
		e.notify(ctx, conv, Text("Sorry, your WhatsApp number can't be used for mobile money here. Please choose another option."))
		return e.reprompt(ctx, conv, cctx)
	}
	return e.applyMomoPayment(ctx, conv, cctx, order, networkForNumber(number), number, conv.DisplayName)
}

func (e *Engine) handleSelectNewMomo(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	settings := e.settings(ctx, conv.BusinessID)

	choices := make([]Choice, 0, len(settings.MomoNetworks))
	for _, network := range settings.MomoNetworks {
		choices = append(choices, Choice{
			ID:          "network_" + network,
			Title:       network,
			Description: "Pay with " + network + " Mobile Money",
		})
	}

	cctx.Payload.Momo = &MomoCapture{}
	body := fmt.Sprintf("Order %s - Please select your payment provider:", order.ID)
	return e.prompt(ctx, conv, cctx, StateAwaitingMomoNetwork, Choices("Mobile Money Payment", body, choices))
}

func (e *Engine) handleNetworkChosen(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, network string) error {
	cctx.Payload.Momo = &MomoCapture{Network: network}
	body := fmt.Sprintf("Please provide your %s mobile money number (format: 0XXXXXXXXX).", network)
	return e.prompt(ctx, conv, cctx, StateAwaitingMomoNumber, Text(body))
}

// handleNumberSubmitted validates the submitted number. Malformed input is
// a user-input error: reject with the reason and stay in the same state.
func (e *Engine) handleNumberSubmitted(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, text string) error {
	number := strings.TrimSpace(text)
	if !ValidMomoNumber(number) {
		e.notify(ctx, conv, Text("Invalid mobile money number. Please provide a valid 10-digit number starting with 02, 03, 04, or 05 (e.g. 0241234567)."))
		return nil
	}

	momo := cctx.Payload.Momo
	if momo == nil || momo.Network == "" {
		return errSessionExpired
	}
	return e.applyMomoPayment(ctx, conv, cctx, order, momo.Network, number, conv.DisplayName)
}

// applyMomoPayment persists (or bumps) the payment account, writes the
// order's payment fields, and moves on to shipping. The order write happens
// before the state advance so a crash in between is repairable from the
// order itself.
func (e *Engine) applyMomoPayment(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, network, number, holder string) error {
	if _, err := e.deps.Directory.SavePaymentAccount(ctx, conv.BusinessID, conv.CustomerID, PaymentAccount{
		Provider:   network,
		Number:     number,
		HolderName: holder,
	}); err != nil {
		e.logger.Warn("could not save payment account", "customer_id", conv.CustomerID, "error", err)
	}

	link := e.paymentURL(order.ID, network, number)
	if err := e.setPayment(ctx, order, PaymentUpdate{
		Status:   PaymentPendingExternal,
		Provider: network,
		Number:   number,
		URL:      link,
	}, fmt.Sprintf("payment pending via %s mobile money", network)); err != nil {
		return err
	}

	body := fmt.Sprintf("Almost there! Complete your %s Mobile Money payment for order %s (%s) using the link below.", network, order.ID, number)
	e.notify(ctx, conv, PaymentLink(body, link))
	return e.offerShipping(ctx, conv, cctx, order)
}

func (e *Engine) setPayment(ctx context.Context, order *Order, upd PaymentUpdate, note string) error {
	if err := e.withRetry(ctx, "update payment", func() error {
		return e.deps.Ledger.UpdatePayment(ctx, order.ID, upd)
	}); err != nil {
		return err
	}
	order.PaymentStatus = upd.Status
	order.PaymentProvider = upd.Provider
	order.PaymentNumber = upd.Number
	order.PaymentURL = upd.URL
	if err := e.deps.Ledger.AppendHistory(ctx, order.ID, note); err != nil {
		e.logger.Warn("could not append order history", "order_id", order.ID, "error", err)
	}
	return nil
}
