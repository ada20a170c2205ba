package convo

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"shopbot/internal/checkout"
	"shopbot/internal/wa"
)

// CheckoutEngine is the conversational checkout flow the router feeds.
type CheckoutEngine interface {
	StartCheckout(ctx context.Context, conv checkout.Conversation) error
	Handle(ctx context.Context, conv checkout.Conversation, in checkout.Input) (bool, error)
}

// CartAccess covers the cart commands available outside checkout.
type CartAccess interface {
	Cart(ctx context.Context, businessID, customerID string) ([]checkout.CartItem, error)
	ClearCart(ctx context.Context, businessID, customerID string) error
	RemoveCartItem(ctx context.Context, businessID, customerID, productRef, variantRef string) error
	SetCartQuantity(ctx context.Context, businessID, customerID, productRef, variantRef string, quantity int) error
}

// OrderReader serves order tracking queries.
type OrderReader interface {
	Order(ctx context.Context, orderID string) (*checkout.Order, error)
	RecentOrders(ctx context.Context, businessID, customerID string, limit int) ([]checkout.Order, error)
	OrderHistory(ctx context.Context, orderID string) ([]string, error)
}

// Router turns WhatsApp events into checkout input and handles the commands
// that live outside the checkout flow: cart management, order tracking, and
// the greeting menu. One router instance serves one business.
type Router struct {
	businessID string
	engine     CheckoutEngine
	carts      CartAccess
	orders     OrderReader
	notifier   checkout.Notifier
	logger     *slog.Logger
}

// New builds a Router for the given business.
func New(businessID string, engine CheckoutEngine, carts CartAccess, orders OrderReader, notifier checkout.Notifier, logger *slog.Logger) *Router {
	return &Router{
		businessID: businessID,
		engine:     engine,
		carts:      carts,
		orders:     orders,
		notifier:   notifier,
		logger:     logger.With("component", "convo"),
	}
}

// ProcessMessage implements wa.MessageProcessor.
func (r *Router) ProcessMessage(ctx context.Context, evt *events.Message) {
	conv := checkout.Conversation{
		BusinessID:  r.businessID,
		CustomerID:  evt.Info.Sender.User,
		DisplayName: evt.Info.PushName,
	}
	in := checkout.Input{
		Text:     wa.Text(evt.Message),
		ChoiceID: wa.ChoiceID(evt.Message),
		Location: wa.Location(evt.Message),
	}
	if in.Text == "" && in.ChoiceID == "" && in.Location == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	r.Route(ctx, conv, in)
}

var orderRefPattern = regexp.MustCompile(`(?i)\bORD-[0-9A-F]{4,}\b`)

// Route gives the checkout engine first claim on the input; anything it
// does not handle is interpreted as a standalone command.
func (r *Router) Route(ctx context.Context, conv checkout.Conversation, in checkout.Input) {
	handled, err := r.engine.Handle(ctx, conv, in)
	if err != nil {
		r.logger.Error("checkout transition failed", "customer_id", conv.CustomerID, "error", err)
		return
	}
	if handled {
		return
	}

	if in.ChoiceID != "" {
		r.handleChoice(ctx, conv, in.ChoiceID)
		return
	}

	text := strings.TrimSpace(in.Text)
	lower := strings.ToLower(text)
	switch {
	case lower == "checkout" || lower == "buy" || lower == "pay":
		if err := r.engine.StartCheckout(ctx, conv); err != nil {
			r.logger.Error("start checkout failed", "customer_id", conv.CustomerID, "error", err)
		}
	case lower == "cart":
		r.showCart(ctx, conv)
	case lower == "clear cart" || lower == "cart clear":
		r.clearCart(ctx, conv)
	case strings.HasPrefix(lower, "remove "):
		r.removeCartLine(ctx, conv, strings.TrimSpace(text[len("remove "):]))
	case strings.HasPrefix(lower, "qty "):
		r.setCartLineQuantity(ctx, conv, strings.Fields(text[len("qty "):]))
	case lower == "orders" || lower == "my orders":
		r.listOrders(ctx, conv)
	case orderRefPattern.MatchString(text):
		r.showOrder(ctx, conv, strings.ToUpper(orderRefPattern.FindString(text)))
	case isGreeting(lower):
		r.sendMenu(ctx, conv)
	default:
		r.sendMenu(ctx, conv)
	}
}

func (r *Router) handleChoice(ctx context.Context, conv checkout.Conversation, choiceID string) {
	switch {
	case strings.HasPrefix(choiceID, "track_"):
		r.showOrder(ctx, conv, strings.TrimPrefix(choiceID, "track_"))
	case choiceID == "browse":
		r.send(ctx, conv, checkout.Text("Send us the name of a product to add it to your cart, or type *cart* to review what's already there."))
	case choiceID == "support":
		r.send(ctx, conv, checkout.Text("Our team is happy to help. Reply here with your question and a human will get back to you."))
	default:
		r.sendMenu(ctx, conv)
	}
}

func (r *Router) showCart(ctx context.Context, conv checkout.Conversation) {
	items, err := r.carts.Cart(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		r.logger.Error("load cart failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't load your cart right now. Please try again."))
		return
	}
	if len(items) == 0 {
		r.send(ctx, conv, checkout.Text("Your cart is empty. Send us a product name to get started."))
		return
	}
	body := formatCart(items) + "\n\nType *checkout* when you're ready, *remove N* to drop a line, *qty N M* to change a quantity, or *clear cart* to start over."
	r.send(ctx, conv, checkout.Text(body))
}

func (r *Router) clearCart(ctx context.Context, conv checkout.Conversation) {
	if err := r.carts.ClearCart(ctx, conv.BusinessID, conv.CustomerID); err != nil {
		r.logger.Error("clear cart failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't clear your cart right now. Please try again."))
		return
	}
	r.send(ctx, conv, checkout.Text("Your cart has been cleared."))
}

// removeCartLine drops the numbered line shown by the cart command.
func (r *Router) removeCartLine(ctx context.Context, conv checkout.Conversation, arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		r.send(ctx, conv, checkout.Text("Tell us which line to remove, e.g. *remove 2*. Type *cart* to see the line numbers."))
		return
	}
	items, err := r.carts.Cart(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		r.logger.Error("load cart failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't load your cart right now. Please try again."))
		return
	}
	if n < 1 || n > len(items) {
		r.send(ctx, conv, checkout.Text(fmt.Sprintf("There's no line %d in your cart. Type *cart* to see the line numbers.", n)))
		return
	}
	item := items[n-1]
	if err := r.carts.RemoveCartItem(ctx, conv.BusinessID, conv.CustomerID, item.ProductRef, item.VariantRef); err != nil {
		r.logger.Error("remove cart item failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't update your cart right now. Please try again."))
		return
	}
	r.send(ctx, conv, checkout.Text(fmt.Sprintf("Removed %s from your cart.", item.Name)))
}

// setCartLineQuantity changes the quantity of a numbered cart line. A
// quantity of zero or less removes the line.
func (r *Router) setCartLineQuantity(ctx context.Context, conv checkout.Conversation, args []string) {
	if len(args) != 2 {
		r.send(ctx, conv, checkout.Text("Tell us the line and the new quantity, e.g. *qty 2 3*. Type *cart* to see the line numbers."))
		return
	}
	n, errLine := strconv.Atoi(args[0])
	qty, errQty := strconv.Atoi(args[1])
	if errLine != nil || errQty != nil {
		r.send(ctx, conv, checkout.Text("Tell us the line and the new quantity, e.g. *qty 2 3*. Type *cart* to see the line numbers."))
		return
	}
	items, err := r.carts.Cart(ctx, conv.BusinessID, conv.CustomerID)
	if err != nil {
		r.logger.Error("load cart failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't load your cart right now. Please try again."))
		return
	}
	if n < 1 || n > len(items) {
		r.send(ctx, conv, checkout.Text(fmt.Sprintf("There's no line %d in your cart. Type *cart* to see the line numbers.", n)))
		return
	}
	item := items[n-1]
	if err := r.carts.SetCartQuantity(ctx, conv.BusinessID, conv.CustomerID, item.ProductRef, item.VariantRef, qty); err != nil {
		r.logger.Error("set cart quantity failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't update your cart right now. Please try again."))
		return
	}
	if qty <= 0 {
		r.send(ctx, conv, checkout.Text(fmt.Sprintf("Removed %s from your cart.", item.Name)))
		return
	}
	r.send(ctx, conv, checkout.Text(fmt.Sprintf("Updated %s to x%d.", item.Name, qty)))
}

func (r *Router) listOrders(ctx context.Context, conv checkout.Conversation) {
	orders, err := r.orders.RecentOrders(ctx, conv.BusinessID, conv.CustomerID, 5)
	if err != nil {
		r.logger.Error("list orders failed", "customer_id", conv.CustomerID, "error", err)
		r.send(ctx, conv, checkout.Text("Sorry, we couldn't load your orders right now. Please try again."))
		return
	}
	if len(orders) == 0 {
		r.send(ctx, conv, checkout.Text("You don't have any orders with us yet."))
		return
	}

	var b strings.Builder
	b.WriteString("Your recent orders:\n")
	for _, order := range orders {
		b.WriteString(fmt.Sprintf("\n%s - %s %s - %s (%s)",
			order.ID,
			order.Currency,
			order.Total.StringFixed(2),
			order.Status,
			order.CreatedAt.Format("2 Jan 2006"),
		))
	}
	b.WriteString("\n\nSend an order number to see its details.")
	r.send(ctx, conv, checkout.Text(b.String()))
}

func (r *Router) showOrder(ctx context.Context, conv checkout.Conversation, orderID string) {
	order, err := r.orders.Order(ctx, orderID)
	if err != nil {
		r.logger.Warn("order lookup failed", "order_id", orderID, "error", err)
		r.send(ctx, conv, checkout.Text(fmt.Sprintf("We couldn't find order %s. Check the number and try again.", orderID)))
		return
	}
	if order.BusinessID != conv.BusinessID || order.CustomerID != conv.CustomerID {
		r.send(ctx, conv, checkout.Text(fmt.Sprintf("We couldn't find order %s. Check the number and try again.", orderID)))
		return
	}

	body := formatOrder(order)
	if notes, err := r.orders.OrderHistory(ctx, orderID); err == nil && len(notes) > 0 {
		body += "\n\nUpdates:"
		for _, note := range notes {
			body += "\n- " + note
		}
	}
	r.send(ctx, conv, checkout.Text(body))
}

func (r *Router) sendMenu(ctx context.Context, conv checkout.Conversation) {
	r.send(ctx, conv, checkout.Text("Hi! Here's what you can do:\n\n"+
		"- *cart* - review your cart\n"+
		"- *checkout* - place your order\n"+
		"- *orders* - see your recent orders\n"+
		"- send an order number (ORD-...) to track it"))
}

func (r *Router) send(ctx context.Context, conv checkout.Conversation, msg checkout.Message) {
	if err := r.notifier.Notify(ctx, conv.BusinessID, conv.CustomerID, msg); err != nil {
		r.logger.Warn("could not send message", "customer_id", conv.CustomerID, "error", err)
	}
}

func isGreeting(lower string) bool {
	switch lower {
	case "hi", "hello", "hey", "menu", "help", "start", "good morning", "good afternoon", "good evening":
		return true
	}
	return false
}

func formatCart(items []checkout.CartItem) string {
	var b strings.Builder
	b.WriteString("Your cart:\n")
	for i, item := range items {
		b.WriteString(fmt.Sprintf("\n%d. %s x%d - %s %s", i+1, item.Name, item.Quantity, item.Currency, item.LineTotal().StringFixed(2)))
	}
	total := checkout.CartTotal(items)
	currency := items[0].Currency
	b.WriteString(fmt.Sprintf("\n\nTotal: %s %s", currency, total.StringFixed(2)))
	return b.String()
}

func formatOrder(order *checkout.Order) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Order %s\nStatus: %s\nPayment: %s", order.ID, order.Status, order.PaymentStatus))
	if len(order.Lines) > 0 {
		b.WriteString("\n")
		for _, line := range order.Lines {
			b.WriteString(fmt.Sprintf("\n- %s x%d", line.Name, line.Quantity))
		}
	}
	b.WriteString(fmt.Sprintf("\n\nTotal: %s %s", order.Currency, order.Total.StringFixed(2)))
	if order.ShippingMethod == checkout.ShipPickup {
		b.WriteString("\nPickup at: " + order.ShippingAddress)
	} else if order.ShippingAddress != "" {
		b.WriteString("\nDeliver to: " + strings.ReplaceAll(order.ShippingAddress, "\n", ", "))
	}
	return b.String()
}
