// Package bus is the communication layer shared by the checkout, payment and
// shell fragments. It fans events out synchronously to filtered subscribers,
// replicates cart and payment state to late subscribers, and hands locally
// emitted events to an optional cross-instance forwarder.
package bus

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidEvent rejects events missing a type or source.
	ErrInvalidEvent = errors.New("bus: event requires a non-empty type and source")
	// ErrBusClosed is returned by emits after Destroy.
	ErrBusClosed = errors.New("bus: closed")
)

// EventFilter decides whether a subscriber receives an event. A nil filter
// matches everything.
type EventFilter func(Event) bool

// Handler consumes a delivered event. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

// Subscription is the handle returned by every subscribe operation. Done is
// closed when the subscription ends, either by Unsubscribe or because the bus
// was destroyed.
type Subscription struct {
	once   sync.Once
	cancel func()
	done   chan struct{}
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel, done: make(chan struct{})}
}

// Unsubscribe detaches the listener. Safe to call more than once and on every
// exit path; components must release every subscription they take out.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
	})
}

// Done reports subscription completion.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// complete ends the subscription without detaching (used on bus teardown,
// where the whole registry is dropped at once).
func (s *Subscription) complete() {
	s.once.Do(func() { close(s.done) })
}

type subscriber struct {
	filter EventFilter
	fn     Handler
	sub    *Subscription
}

type queuedEvent struct {
	evt   Event
	local bool
}

// Bus is one explicitly owned communication bus instance. It is created once
// per application session and destroyed on session teardown; controllers
// receive it by injection rather than through an ambient global.
type Bus struct {
	id     string
	logger *slog.Logger

	mu         sync.Mutex
	subs       []*subscriber
	queue      []queuedEvent
	delivering bool
	closed     bool
	forward    func(Event)

	cart    *cell[[]CartItem]
	payment *cell[*PaymentResult]
}

// New creates a bus with an empty cart cell and no payment result yet.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		id:      uuid.NewString(),
		logger:  logger,
		cart:    newCell([]CartItem{}),
		payment: newCell[*PaymentResult](nil),
	}
}

// ID is the origin identifier for this bus instance. The bridge stamps it on
// outbound envelopes to recognise and drop its own echoes.
func (b *Bus) ID() string {
	return b.id
}

// Emit validates and delivers evt to every matching subscriber, in emission
// order, before returning. A zero Timestamp is filled in at emission time.
// Re-entrant emits from inside a handler are queued and delivered after the
// current event has finished its fan-out, preserving order. After Destroy,
// Emit fails with ErrBusClosed.
func (b *Bus) Emit(evt Event) error {
	return b.publish(evt, true)
}

// EmitEvent builds and emits an event in one call. Target empty broadcasts.
func (b *Bus) EmitEvent(t Type, source string, payload Payload, target string) error {
	return b.publish(Event{
		Type:      t,
		Source:    source,
		Target:    target,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}, true)
}

// InjectRemote delivers an event received from another bus instance. It runs
// the normal local fan-out but is never handed back to the forwarder, so a
// pair of bridged buses cannot echo events between each other forever.
func (b *Bus) InjectRemote(evt Event) error {
	return b.publish(evt, false)
}

func (b *Bus) publish(evt Event, local bool) error {
	if evt.Type == "" || evt.Source == "" {
		return ErrInvalidEvent
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.queue = append(b.queue, queuedEvent{evt: evt, local: local})
	if b.delivering {
		// A handler emitted during fan-out; the outer delivery loop will
		// drain this event next.
		b.mu.Unlock()
		return nil
	}
	b.delivering = true

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]

		matched := make([]*subscriber, 0, len(b.subs))
		for _, s := range b.subs {
			if s.filter == nil || s.filter(next.evt) {
				matched = append(matched, s)
			}
		}
		forward := b.forward
		b.mu.Unlock()

		for _, s := range matched {
			s.fn(next.evt)
		}
		if next.local && forward != nil {
			forward(next.evt)
		}

		b.mu.Lock()
	}
	b.delivering = false
	b.mu.Unlock()
	return nil
}

// Subscribe registers a listener for every event matching filter. Listeners
// receive events in registration order and in exact emission order.
func (b *Bus) Subscribe(filter EventFilter, fn Handler) *Subscription {
	s := &subscriber{filter: filter, fn: fn}
	sub := newSubscription(func() { b.remove(s) })
	s.sub = sub

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.complete()
		return sub
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return sub
}

// OnEvent subscribes to one event type, optionally narrowed to one source.
// An empty source matches events from any fragment.
func (b *Bus) OnEvent(t Type, source string, fn Handler) *Subscription {
	return b.Subscribe(func(evt Event) bool {
		return evt.Type == t && (source == "" || evt.Source == source)
	}, fn)
}

// EventsForTarget subscribes to everything addressed to target, including
// broadcast events with no target at all.
func (b *Bus) EventsForTarget(target string, fn Handler) *Subscription {
	return b.Subscribe(func(evt Event) bool {
		return evt.Target == "" || evt.Target == target
	}, fn)
}

func (b *Bus) remove(target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// SetForwarder attaches the cross-instance forwarding hook. Locally emitted
// events are handed to fn after their local fan-out completes.
func (b *Bus) SetForwarder(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.forward = fn
}

// UpdateCart replaces the cart cell's value and emits the matching
// cart-updated event. The cell is written first, so any subscriber that
// receives the event and then reads CartItems sees the same contents.
func (b *Bus) UpdateCart(items []CartItem) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.mu.Unlock()

	snapshot := append([]CartItem(nil), items...)
	b.cart.set(snapshot)
	return b.EmitEvent(TypeCartUpdated, SourceCheckout, CartUpdated{Items: snapshot}, "")
}

// CartItems returns a snapshot of the current cart contents.
func (b *Bus) CartItems() []CartItem {
	return append([]CartItem(nil), b.cart.get()...)
}

// SubscribeCart attaches a cart observer; it is invoked immediately with the
// current cart and again on every update.
func (b *Bus) SubscribeCart(fn func([]CartItem)) *Subscription {
	return b.cart.subscribe(fn)
}

// InitiatePayment emits the payment request from checkout, addressed to the
// payment fragment.
func (b *Bus) InitiatePayment(data PaymentData) error {
	return b.EmitEvent(TypePaymentInitiated, SourceCheckout, PaymentInitiated{PaymentData: data}, SourcePayment)
}

// CompletePayment records the attempt outcome in the payment cell and emits
// payment-completed back at checkout. Cell write precedes the emit, same as
// UpdateCart.
func (b *Bus) CompletePayment(result PaymentResult) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.mu.Unlock()

	stored := result
	b.payment.set(&stored)
	return b.EmitEvent(TypePaymentCompleted, SourcePayment, PaymentCompleted{PaymentResult: result}, SourceCheckout)
}

// LatestPaymentResult returns the most recent payment outcome, or nil when no
// attempt has completed yet.
func (b *Bus) LatestPaymentResult() *PaymentResult {
	v := b.payment.get()
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// SubscribePayment attaches a payment-result observer with replay of the
// current value (nil until the first attempt completes).
func (b *Bus) SubscribePayment(fn func(*PaymentResult)) *Subscription {
	return b.payment.subscribe(fn)
}

// RequestNavigation emits a navigation-requested broadcast.
func (b *Bus) RequestNavigation(destination, source string) error {
	return b.EmitEvent(TypeNavigationRequested, source, NavigationRequested{Destination: destination}, "")
}

// ReportError emits on the diagnostic error channel.
func (b *Bus) ReportError(message, source string) error {
	return b.EmitEvent(TypeErrorOccurred, source, ErrorOccurred{Source: source, Message: message}, "")
}

// Destroy closes the bus. Every live subscription (events, cart, payment)
// receives its completion signal, queued but undelivered events are dropped,
// and later emits fail with ErrBusClosed.
func (b *Bus) Destroy() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.queue = nil
	b.forward = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.sub.complete()
	}
	b.cart.close()
	b.payment.close()
	b.logger.Info("bus destroyed", "bus_id", b.id)
}
