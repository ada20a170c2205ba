package checkout

import (
	"context"
	"fmt"
	"strings"
)

// offerShipping presents the shipping menu for the order: saved addresses,
// manual entry, shared location, and pickup when the business supports it.
func (e *Engine) offerShipping(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	cctx.Payload.Momo = nil

	addresses, err := e.deps.Directory.Addresses(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		e.logger.Warn("could not fetch saved addresses", "customer_id", conv.CustomerID, "error", err)
		addresses = nil
	}

	var choices []Choice
	for _, addr := range addresses {
		title := addr.Label
		if title == "" {
			title = addr.Recipient
		}
		if addr.IsDefault {
			title += " (Default)"
		}
		choices = append(choices, Choice{
			ID:          "ship_saved_" + addr.ID,
			Title:       title,
			Description: addr.Street + ", " + addr.City,
		})
	}
	choices = append(choices,
		Choice{ID: "ship_new_address", Title: "Add Address", Description: "Type a different delivery address"},
		Choice{ID: "ship_location", Title: "Share Location", Description: "Share your location for delivery"},
	)
	if settings := e.settings(ctx, conv.BusinessID); settings.PickupAddress != "" {
		choices = append(choices, Choice{
			ID:          "ship_pickup",
			Title:       "Pickup",
			Description: "Collect your order at " + settings.PickupAddress,
		})
	}

	body := fmt.Sprintf("Order %s - How would you like to receive your order?", order.ID)
	return e.prompt(ctx, conv, cctx, StateAwaitingShippingOption, Choices("Choose Shipping Address", body, choices))
}

func (e *Engine) handleSelectSavedAddress(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, addressID string) error {
	addresses, err := e.deps.Directory.Addresses(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		return fmt.Errorf("load addresses: %w", err)
	}
	var selected *Address
	for i := range addresses {
		if addresses[i].ID == addressID {
			selected = &addresses[i]
			break
		}
	}
	if selected == nil {
		e.notify(ctx, conv, Text("Sorry, we couldn't find that address. Please choose another option."))
		return e.reprompt(ctx, conv, cctx)
	}

	if err := e.setShipping(ctx, order, ShipDelivery, selected.Formatted()); err != nil {
		return err
	}
	return e.finalize(ctx, conv, cctx, order)
}

func (e *Engine) handleSelectPickup(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	settings := e.settings(ctx, conv.BusinessID)
	if settings.PickupAddress == "" {
		e.notify(ctx, conv, Text("Pickup isn't available for this store. Please choose another option."))
		return e.reprompt(ctx, conv, cctx)
	}

	if err := e.setShipping(ctx, order, ShipPickup, settings.PickupAddress); err != nil {
		return err
	}
	e.notify(ctx, conv, Text("You'll collect your order at:\n\n"+settings.PickupAddress))
	return e.finalize(ctx, conv, cctx, order)
}

func (e *Engine) handleSelectNewAddress(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	body := "Please type your delivery address with at least the recipient name, street, and city - one per line. For example:\n\n" +
		"Ama Mensah\n12 Ring Road Central\nAccra"
	return e.prompt(ctx, conv, cctx, StateAwaitingManualAddress, Text(body))
}

func (e *Engine) handleShareLocation(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order) error {
	return e.prompt(ctx, conv, cctx, StateAwaitingLocationShare, LocationRequest("Please share your current location for delivery."))
}

// handleAddressSubmitted applies minimum structural validation: at least
// three non-empty lines (recipient, street, city). Anything less is
// rejected with the reason and the state stays put.
func (e *Engine) handleAddressSubmitted(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, text string) error {
	lines := addressLines(text)
	if len(lines) < 3 {
		e.notify(ctx, conv, Text("That address looks incomplete. Please include at least the recipient name, street, and city - one per line."))
		return nil
	}

	formatted := strings.Join(lines, "\n")
	if err := e.setShipping(ctx, order, ShipDelivery, formatted); err != nil {
		return err
	}
	cctx.Payload.Address = &AddressCapture{
		Recipient: lines[0],
		Street:    lines[1],
		City:      lines[2],
		Formatted: formatted,
	}

	e.notify(ctx, conv, Text("Your order will be delivered to:\n\n"+formatted))
	msg := Choices("Save Address", "Would you like to save this address for future orders?", []Choice{
		{ID: "save_address_yes", Title: "Save Address"},
		{ID: "save_address_no", Title: "Not Now"},
	})
	return e.prompt(ctx, conv, cctx, StateAwaitingSaveDecision, msg)
}

// handleLocationReceived accepts a shared location as the delivery target.
// The location is structured input already, so it is saved as a reusable
// address without a separate prompt.
func (e *Engine) handleLocationReceived(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, loc *SharedLocation) error {
	if loc == nil {
		return errSessionExpired
	}

	var parts []string
	if loc.Name != "" {
		parts = append(parts, loc.Name)
	}
	if loc.Address != "" {
		parts = append(parts, loc.Address)
	}
	parts = append(parts, fmt.Sprintf("Coordinates: %.6f, %.6f", loc.Latitude, loc.Longitude))
	formatted := strings.Join(parts, "\n")

	if err := e.setShipping(ctx, order, ShipDelivery, formatted); err != nil {
		return err
	}

	street := loc.Address
	if street == "" {
		street = fmt.Sprintf("%.6f, %.6f", loc.Latitude, loc.Longitude)
	}
	city := loc.Name
	if city == "" {
		city = "Shared location"
	}
	if _, err := e.deps.Directory.SaveAddress(ctx, conv.BusinessID, conv.CustomerID, Address{
		Label:     "Shared location",
		Recipient: conv.DisplayName,
		Street:    street,
		City:      city,
	}); err != nil {
		e.logger.Warn("could not save shared location as address", "customer_id", conv.CustomerID, "error", err)
	}

	e.notify(ctx, conv, Text("Thank you for sharing your location. Your order will be delivered to:\n\n"+formatted))
	return e.finalize(ctx, conv, cctx, order)
}

func (e *Engine) handleSaveDecision(ctx context.Context, conv Conversation, cctx *ConversationContext, order *Order, save bool) error {
	capture := cctx.Payload.Address
	if capture == nil {
		return errSessionExpired
	}
	if save {
		if _, err := e.deps.Directory.SaveAddress(ctx, conv.BusinessID, conv.CustomerID, Address{
			Label:     "Saved address",
			Recipient: capture.Recipient,
			Street:    capture.Street,
			City:      capture.City,
		}); err != nil {
			e.logger.Warn("could not save address", "customer_id", conv.CustomerID, "error", err)
			e.notify(ctx, conv, Text("We couldn't save the address right now, but your order is unaffected."))
		} else {
			e.notify(ctx, conv, Text("Address saved for future orders."))
		}
	}
	return e.finalize(ctx, conv, cctx, order)
}

func (e *Engine) setShipping(ctx context.Context, order *Order, method ShippingMethod, address string) error {
	if err := e.withRetry(ctx, "update shipping", func() error {
		return e.deps.Ledger.UpdateShipping(ctx, order.ID, method, address)
	}); err != nil {
		return err
	}
	order.ShippingMethod = method
	order.ShippingAddress = address
	if err := e.deps.Ledger.AppendHistory(ctx, order.ID, "shipping set to "+string(method)); err != nil {
		e.logger.Warn("could not append order history", "order_id", order.ID, "error", err)
	}
	return nil
}

// addressLines splits free text into trimmed non-empty logical lines.
// Comma-separated single-line addresses count line-per-segment so "name,
// street, city" on one line still passes.
func addressLines(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ','
	})
	var lines []string
	for _, part := range raw {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
