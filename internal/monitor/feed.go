// Package monitor backs the shell's communication-demo page: a live feed of
// recent bus traffic plus demo triggers that exercise the flow end to end.
// The bus itself retains nothing; whatever history the page shows is kept
// here, on the consumer side.
package monitor

import (
	"log/slog"
	"sync"

	"github.com/mfeshop/checkout-bus/internal/bus"
)

// DefaultHistorySize matches the demo page's event list length.
const DefaultHistorySize = 10

// Feed subscribes to every event on the bus and keeps the most recent ones,
// newest first. When a hub is attached, each event is also pushed to
// connected demo clients.
type Feed struct {
	b      *bus.Bus
	hub    *Hub
	logger *slog.Logger
	sub    *bus.Subscription

	mu     sync.Mutex
	events []bus.Event
	limit  int
}

// NewFeed attaches the feed to the bus. hub may be nil. limit <= 0 falls back
// to DefaultHistorySize.
func NewFeed(b *bus.Bus, hub *Hub, limit int, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	f := &Feed{
		b:      b,
		hub:    hub,
		logger: logger,
		limit:  limit,
	}
	f.sub = b.Subscribe(nil, f.onEvent)
	return f
}

func (f *Feed) onEvent(evt bus.Event) {
	f.mu.Lock()
	f.events = append([]bus.Event{evt}, f.events...)
	if len(f.events) > f.limit {
		f.events = f.events[:f.limit]
	}
	f.mu.Unlock()

	if f.hub != nil {
		f.hub.Broadcast(evt)
	}
}

// Recent returns the retained events, newest first.
func (f *Feed) Recent() []bus.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.Event(nil), f.events...)
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

// SimulateCartUpdate pushes a mock cart through the bus, same as the demo
// page's cart button.
func (f *Feed) SimulateCartUpdate() error {
	return f.b.UpdateCart([]bus.CartItem{
		{ID: 1, Name: "Test Product 1", Price: 29.99, Quantity: 2},
		{ID: 2, Name: "Test Product 2", Price: 49.99, Quantity: 1},
	})
}

// SimulatePaymentFlow emits a mock payment request; the mounted payment
// fragment picks it up and drives it to completion.
func (f *Feed) SimulatePaymentFlow() error {
	items := []bus.CartItem{
		{ID: 1, Name: "Test Product 1", Price: 29.99, Quantity: 2},
		{ID: 2, Name: "Test Product 2", Price: 49.99, Quantity: 1},
	}
	return f.b.InitiatePayment(bus.PaymentData{
		Amount:   bus.TotalAmount(items),
		Currency: "USD",
		Items:    items,
	})
}

// Close releases the bus subscription.
func (f *Feed) Close() {
	f.sub.Unsubscribe()
}
