package convo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shopbot/internal/checkout"
)

type fakeEngine struct {
	handled  bool
	handleIn []checkout.Input
	started  int
}

func (f *fakeEngine) StartCheckout(ctx context.Context, conv checkout.Conversation) error {
	f.started++
	return nil
}

func (f *fakeEngine) Handle(ctx context.Context, conv checkout.Conversation, in checkout.Input) (bool, error) {
	f.handleIn = append(f.handleIn, in)
	return f.handled, nil
}

type fakeCarts struct {
	items      []checkout.CartItem
	cleared    bool
	removed    []string
	quantities map[string]int
}

func (f *fakeCarts) Cart(ctx context.Context, b, c string) ([]checkout.CartItem, error) {
	return f.items, nil
}

func (f *fakeCarts) ClearCart(ctx context.Context, b, c string) error {
	f.cleared = true
	f.items = nil
	return nil
}

func (f *fakeCarts) RemoveCartItem(ctx context.Context, b, c, productRef, variantRef string) error {
	f.removed = append(f.removed, productRef)
	return nil
}

func (f *fakeCarts) SetCartQuantity(ctx context.Context, b, c, productRef, variantRef string, quantity int) error {
	if f.quantities == nil {
		f.quantities = make(map[string]int)
	}
	f.quantities[productRef] = quantity
	return nil
}

type fakeOrders struct {
	orders map[string]*checkout.Order
}

func (f *fakeOrders) Order(ctx context.Context, orderID string) (*checkout.Order, error) {
	if order, ok := f.orders[orderID]; ok {
		return order, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeOrders) RecentOrders(ctx context.Context, b, c string, limit int) ([]checkout.Order, error) {
	var out []checkout.Order
	for _, order := range f.orders {
		out = append(out, *order)
	}
	return out, nil
}

func (f *fakeOrders) OrderHistory(ctx context.Context, orderID string) ([]string, error) {
	return []string{"order created"}, nil
}

type fakeNotifier struct {
	sent []checkout.Message
}

func (f *fakeNotifier) Notify(ctx context.Context, b, c string, msg checkout.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNotifier) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Body
}

var conv = checkout.Conversation{BusinessID: "biz-1", CustomerID: "233241234567", DisplayName: "Ama"}

func newTestRouter(engine *fakeEngine, carts *fakeCarts, orders *fakeOrders, n *fakeNotifier) *Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("biz-1", engine, carts, orders, n, logger)
}

func cartLine(ref, name string, price int64, qty int) checkout.CartItem {
	return checkout.CartItem{
		ProductRef: ref,
		Name:       name,
		UnitPrice:  decimal.NewFromInt(price),
		Currency:   "GHS",
		Quantity:   qty,
	}
}

func TestEngineGetsFirstClaim(t *testing.T) {
	engine := &fakeEngine{handled: true}
	n := &fakeNotifier{}
	r := newTestRouter(engine, &fakeCarts{}, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "cart"})

	if len(engine.handleIn) != 1 {
		t.Fatalf("engine saw %d inputs, want 1", len(engine.handleIn))
	}
	if len(n.sent) != 0 {
		t.Errorf("router answered a message the engine already handled: %q", n.last())
	}
}

func TestCheckoutCommandStartsFlow(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRouter(engine, &fakeCarts{}, &fakeOrders{}, &fakeNotifier{})

	r.Route(context.Background(), conv, checkout.Input{Text: "Checkout"})

	if engine.started != 1 {
		t.Errorf("StartCheckout calls = %d, want 1", engine.started)
	}
}

func TestCartCommandShowsNumberedLines(t *testing.T) {
	carts := &fakeCarts{items: []checkout.CartItem{
		cartLine("A", "Blue Dress", 120, 1),
		cartLine("B", "Sandals", 45, 2),
	}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, carts, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "cart"})

	body := n.last()
	if !strings.Contains(body, "1. Blue Dress x1 - GHS 120.00") {
		t.Errorf("missing line 1: %q", body)
	}
	if !strings.Contains(body, "2. Sandals x2 - GHS 90.00") {
		t.Errorf("missing line 2: %q", body)
	}
	if !strings.Contains(body, "Total: GHS 210.00") {
		t.Errorf("missing total: %q", body)
	}
}

func TestEmptyCartMessage(t *testing.T) {
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, &fakeCarts{}, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "cart"})

	if !strings.Contains(n.last(), "empty") {
		t.Errorf("expected empty-cart message, got %q", n.last())
	}
}

func TestRemoveCommandDropsLine(t *testing.T) {
	carts := &fakeCarts{items: []checkout.CartItem{
		cartLine("A", "Blue Dress", 120, 1),
		cartLine("B", "Sandals", 45, 2),
	}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, carts, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "remove 2"})

	if len(carts.removed) != 1 || carts.removed[0] != "B" {
		t.Fatalf("removed = %v, want [B]", carts.removed)
	}
	if !strings.Contains(n.last(), "Sandals") {
		t.Errorf("confirmation should name the item: %q", n.last())
	}
}

func TestQtyCommandUpdatesLine(t *testing.T) {
	carts := &fakeCarts{items: []checkout.CartItem{
		cartLine("A", "Blue Dress", 120, 1),
		cartLine("B", "Sandals", 45, 2),
	}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, carts, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "qty 2 3"})

	if got := carts.quantities["B"]; got != 3 {
		t.Fatalf("quantity for B = %d, want 3", got)
	}
	if !strings.Contains(n.last(), "Sandals") || !strings.Contains(n.last(), "x3") {
		t.Errorf("confirmation should name the item and quantity: %q", n.last())
	}
}

func TestQtyCommandMalformedArgs(t *testing.T) {
	carts := &fakeCarts{items: []checkout.CartItem{cartLine("A", "Blue Dress", 120, 1)}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, carts, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "qty two 3"})

	if len(carts.quantities) != 0 {
		t.Fatalf("cart mutated by malformed command: %v", carts.quantities)
	}
	if !strings.Contains(n.last(), "qty 2 3") {
		t.Errorf("expected usage hint, got %q", n.last())
	}
}

func TestRemoveOutOfRangeRejected(t *testing.T) {
	carts := &fakeCarts{items: []checkout.CartItem{cartLine("A", "Blue Dress", 120, 1)}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, carts, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "remove 5"})

	if len(carts.removed) != 0 {
		t.Fatalf("nothing should be removed, got %v", carts.removed)
	}
	if !strings.Contains(n.last(), "no line 5") {
		t.Errorf("expected out-of-range message, got %q", n.last())
	}
}

func TestClearCartCommand(t *testing.T) {
	carts := &fakeCarts{items: []checkout.CartItem{cartLine("A", "Blue Dress", 120, 1)}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, carts, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "clear cart"})

	if !carts.cleared {
		t.Error("cart was not cleared")
	}
}

func TestOrderRefTracksOrder(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*checkout.Order{
		"ORD-5F3A9C21": {
			ID:            "ORD-5F3A9C21",
			BusinessID:    "biz-1",
			CustomerID:    "233241234567",
			Status:        checkout.OrderConfirmed,
			PaymentStatus: checkout.PaymentCashOnDelivery,
			Total:         decimal.NewFromInt(210),
			Currency:      "GHS",
			CreatedAt:     time.Now(),
		},
	}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, &fakeCarts{}, orders, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "please track ord-5f3a9c21"})

	body := n.last()
	if !strings.Contains(body, "ORD-5F3A9C21") || !strings.Contains(body, "confirmed") {
		t.Errorf("order summary missing: %q", body)
	}
	if !strings.Contains(body, "order created") {
		t.Errorf("history notes missing: %q", body)
	}
}

func TestForeignOrderNotRevealed(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*checkout.Order{
		"ORD-AAAA1111": {
			ID:         "ORD-AAAA1111",
			BusinessID: "biz-1",
			CustomerID: "233209999999",
			Total:      decimal.NewFromInt(50),
			Currency:   "GHS",
		},
	}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, &fakeCarts{}, orders, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "ORD-AAAA1111"})

	if !strings.Contains(n.last(), "couldn't find") {
		t.Errorf("foreign order leaked: %q", n.last())
	}
}

func TestTrackChoiceFromConfirmation(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*checkout.Order{
		"ORD-5F3A9C21": {
			ID:         "ORD-5F3A9C21",
			BusinessID: "biz-1",
			CustomerID: "233241234567",
			Status:     checkout.OrderConfirmed,
			Total:      decimal.NewFromInt(30),
			Currency:   "GHS",
		},
	}}
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, &fakeCarts{}, orders, n)

	r.Route(context.Background(), conv, checkout.Input{ChoiceID: "track_ORD-5F3A9C21"})

	if !strings.Contains(n.last(), "ORD-5F3A9C21") {
		t.Errorf("track choice did not show the order: %q", n.last())
	}
}

func TestGreetingShowsMenu(t *testing.T) {
	n := &fakeNotifier{}
	r := newTestRouter(&fakeEngine{}, &fakeCarts{}, &fakeOrders{}, n)

	r.Route(context.Background(), conv, checkout.Input{Text: "hello"})

	if !strings.Contains(n.last(), "*checkout*") {
		t.Errorf("expected the menu, got %q", n.last())
	}
}
