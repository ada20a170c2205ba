package checkout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// world is an in-memory implementation of every port the engine drives,
// with per-operation failure injection for retry and abort tests.
type world struct {
	carts     map[string][]CartItem
	stock     map[string]int
	orders    map[string]*Order
	contexts  map[string]*ConversationContext
	accounts  map[string][]PaymentAccount
	addresses map[string][]Address
	settings  map[string]*BusinessSettings
	history   map[string][]string

	sent     []Message
	locked   map[string]bool
	failures map[string]int
	orderSeq int
	idSeq    int
}

func newWorld() *world {
	return &world{
		carts:     map[string][]CartItem{},
		stock:     map[string]int{},
		orders:    map[string]*Order{},
		contexts:  map[string]*ConversationContext{},
		accounts:  map[string][]PaymentAccount{},
		addresses: map[string][]Address{},
		settings:  map[string]*BusinessSettings{},
		history:   map[string][]string{},
		locked:    map[string]bool{},
		failures:  map[string]int{},
	}
}

func key(businessID, customerID string) string { return businessID + "|" + customerID }

func (w *world) fail(op string) error {
	if w.failures[op] > 0 {
		w.failures[op]--
		return fmt.Errorf("%s: injected failure", op)
	}
	return nil
}

// CartStore

func (w *world) Get(ctx context.Context, b, c string) ([]CartItem, error) {
	if err := w.fail("cart.get"); err != nil {
		return nil, err
	}
	items := w.carts[key(b, c)]
	out := make([]CartItem, len(items))
	copy(out, items)
	return out, nil
}

func (w *world) Replace(ctx context.Context, b, c string, items []CartItem) error {
	if err := w.fail("cart.replace"); err != nil {
		return err
	}
	w.carts[key(b, c)] = append([]CartItem(nil), items...)
	return nil
}

func (w *world) Clear(ctx context.Context, b, c string) error {
	delete(w.carts, key(b, c))
	return nil
}

// InventoryOracle

func (w *world) AvailableQty(ctx context.Context, b, stockRef string) (int, error) {
	if err := w.fail("inventory"); err != nil {
		return 0, err
	}
	return w.stock[key(b, stockRef)], nil
}

// OrderLedger

func (w *world) Create(ctx context.Context, b, c string, lines []CartItem) (*Order, error) {
	if err := w.fail("order.create"); err != nil {
		return nil, err
	}
	w.orderSeq++
	currency := ""
	if len(lines) > 0 {
		currency = lines[0].Currency
	}
	total := CartTotal(lines)
	order := &Order{
		ID:            fmt.Sprintf("ORD-%04d", w.orderSeq),
		BusinessID:    b,
		CustomerID:    c,
		Lines:         append([]CartItem(nil), lines...),
		Subtotal:      total,
		Total:         total,
		Currency:      currency,
		Status:        OrderPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	w.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (w *world) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := w.fail("order.get"); err != nil {
		return nil, err
	}
	order, ok := w.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (w *world) LatestPending(ctx context.Context, b, c string) (*Order, error) {
	if err := w.fail("order.pending"); err != nil {
		return nil, err
	}
	var latest *Order
	for _, order := range w.orders {
		if order.BusinessID != b || order.CustomerID != c || order.Status != OrderPending {
			continue
		}
		if latest == nil || order.ID > latest.ID {
			latest = order
		}
	}
	if latest == nil {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(latest), nil
}

func (w *world) UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error {
	order, ok := w.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (w *world) UpdatePayment(ctx context.Context, orderID string, upd PaymentUpdate) error {
	if err := w.fail("order.payment"); err != nil {
		return err
	}
	order, ok := w.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.PaymentStatus = upd.Status
	order.PaymentProvider = upd.Provider
	order.PaymentNumber = upd.Number
	order.PaymentURL = upd.URL
	return nil
}

func (w *world) UpdateShipping(ctx context.Context, orderID string, method ShippingMethod, address string) error {
	if err := w.fail("order.shipping"); err != nil {
		return err
	}
	order, ok := w.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.ShippingMethod = method
	order.ShippingAddress = address
	return nil
}

func (w *world) AppendHistory(ctx context.Context, orderID, note string) error {
	w.history[orderID] = append(w.history[orderID], note)
	return nil
}

func (w *world) Finalize(ctx context.Context, orderID, b, c string) error {
	if err := w.fail("order.finalize"); err != nil {
		return err
	}
	order, ok := w.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = OrderConfirmed
	delete(w.carts, key(b, c))
	return nil
}

// ContextStore

func (w *world) GetContext(ctx context.Context, b, c string) (*ConversationContext, error) {
	if err := w.fail("context.get"); err != nil {
		return nil, err
	}
	cc, ok := w.contexts[key(b, c)]
	if !ok {
		return nil, nil
	}
	cloned := *cc
	return &cloned, nil
}

func (w *world) Set(ctx context.Context, cc *ConversationContext) error {
	if err := w.fail("context.set"); err != nil {
		return err
	}
	cloned := *cc
	w.contexts[key(cc.BusinessID, cc.CustomerID)] = &cloned
	return nil
}

// ConversationLocker

func (w *world) Acquire(ctx context.Context, b, c string) (func(), error) {
	k := key(b, c)
	if w.locked[k] {
		return nil, ErrConversationBusy
	}
	w.locked[k] = true
	return func() { delete(w.locked, k) }, nil
}

// Notifier

func (w *world) Notify(ctx context.Context, b, c string, msg Message) error {
	if err := w.fail("notify"); err != nil {
		return err
	}
	w.sent = append(w.sent, msg)
	return nil
}

func (w *world) lastMessage() Message {
	if len(w.sent) == 0 {
		return Message{}
	}
	return w.sent[len(w.sent)-1]
}

// CustomerDirectory

func (w *world) GetOrCreate(ctx context.Context, b, c, name string) (*Customer, error) {
	return &Customer{ID: c, BusinessID: b, WAID: c, DisplayName: name}, nil
}

func (w *world) PaymentAccounts(ctx context.Context, b, c string) ([]PaymentAccount, error) {
	if err := w.fail("accounts"); err != nil {
		return nil, err
	}
	return append([]PaymentAccount(nil), w.accounts[key(b, c)]...), nil
}

func (w *world) SavePaymentAccount(ctx context.Context, b, c string, acc PaymentAccount) (*PaymentAccount, error) {
	k := key(b, c)
	for i, existing := range w.accounts[k] {
		if existing.Provider == acc.Provider && existing.Number == acc.Number {
			w.accounts[k][i].LastUsedAt = time.Now()
			return &w.accounts[k][i], nil
		}
	}
	w.idSeq++
	acc.ID = fmt.Sprintf("acc-%d", w.idSeq)
	acc.IsDefault = len(w.accounts[k]) == 0
	acc.LastUsedAt = time.Now()
	w.accounts[k] = append(w.accounts[k], acc)
	return &acc, nil
}

func (w *world) Addresses(ctx context.Context, b, c string) ([]Address, error) {
	if err := w.fail("addresses"); err != nil {
		return nil, err
	}
	return append([]Address(nil), w.addresses[key(b, c)]...), nil
}

func (w *world) SaveAddress(ctx context.Context, b, c string, addr Address) (*Address, error) {
	k := key(b, c)
	for i, existing := range w.addresses[k] {
		if existing.Street == addr.Street && existing.City == addr.City {
			return &w.addresses[k][i], nil
		}
	}
	w.idSeq++
	addr.ID = fmt.Sprintf("addr-%d", w.idSeq)
	addr.IsDefault = len(w.addresses[k]) == 0
	w.addresses[k] = append(w.addresses[k], addr)
	return &addr, nil
}

// BusinessDirectory

func (w *world) Settings(ctx context.Context, businessID string) (*BusinessSettings, error) {
	if s, ok := w.settings[businessID]; ok {
		return s, nil
	}
	return &BusinessSettings{BusinessID: businessID, Currency: "GHS"}, nil
}

func cloneOrder(order *Order) *Order {
	cloned := *order
	cloned.Lines = append([]CartItem(nil), order.Lines...)
	return &cloned
}

// ledgerAdapter maps the world's order methods onto the OrderLedger port
// without colliding with CartStore's Get.
type ledgerAdapter struct{ *world }

func (l ledgerAdapter) Get(ctx context.Context, orderID string) (*Order, error) {
	return l.world.GetOrder(ctx, orderID)
}

type contextAdapter struct{ *world }

func (c contextAdapter) Get(ctx context.Context, b, cust string) (*ConversationContext, error) {
	return c.world.GetContext(ctx, b, cust)
}

func newTestEngine(w *world) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Deps{
		Carts:      w,
		Inventory:  w,
		Ledger:     ledgerAdapter{w},
		Contexts:   contextAdapter{w},
		Locks:      w,
		Notifier:   w,
		Directory:  w,
		Businesses: w,
	}, Config{RetryBackoff: time.Millisecond}, nil, logger)
}

func (w *world) contextState(b, c string) State {
	cc, ok := w.contexts[key(b, c)]
	if !ok {
		return StateIdle
	}
	return cc.State
}

func (w *world) confirmedOrders() []*Order {
	var out []*Order
	for _, order := range w.orders {
		if order.Status == OrderConfirmed {
			out = append(out, order)
		}
	}
	return out
}
