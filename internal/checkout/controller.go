// Package checkout is the checkout-side fragment controller. It validates the
// order form, hands the payment request to the payment fragment over the bus,
// and finalizes the order when the result comes back.
package checkout

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfeshop/checkout-bus/internal/bus"
	"github.com/mfeshop/checkout-bus/internal/idgen"
)

// State tracks the order through the checkout flow.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OrderSnapshot is the host-facing record of a completed checkout.
type OrderSnapshot struct {
	Timestamp     time.Time      `json:"timestamp"`
	CustomerInfo  CustomerInfo   `json:"customerInfo"`
	OrderItems    []bus.CartItem `json:"orderItems"`
	PaymentMethod string         `json:"paymentMethod"`
	TotalAmount   float64        `json:"totalAmount"`
	OrderNumber   string         `json:"orderNumber"`
	TransactionID string         `json:"transactionId"`
}

// Notifier is the host container's notification surface.
type Notifier interface {
	CheckoutCompleted(OrderSnapshot)
	BackRequested()
}

// Controller runs the checkout side of the payment flow.
type Controller struct {
	b        *bus.Bus
	notifier Notifier
	ids      idgen.Generator
	logger   *slog.Logger
	sub      *bus.Subscription

	mu          sync.Mutex
	form        Form
	state       State
	orderNumber string
	lastError   string
}

// New creates a controller subscribed to payment outcomes. Callers must
// Close it on teardown to release the subscription.
func New(b *bus.Bus, notifier Notifier, ids idgen.Generator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		b:        b,
		notifier: notifier,
		ids:      ids,
		logger:   logger,
	}
	c.sub = b.OnEvent(bus.TypePaymentCompleted, bus.SourcePayment, c.onPaymentCompleted)
	return c
}

// SetForm replaces the current order form.
func (c *Controller) SetForm(f Form) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = f
}

// Submit validates the form and, when valid, emits the payment request built
// from the current cart. An invalid form is a quiet no-op: the order stays
// idle and nothing reaches the bus. Returns whether the submission went out.
func (c *Controller) Submit() bool {
	c.mu.Lock()
	if c.state == StateProcessing || c.state == StateCompleted {
		c.mu.Unlock()
		return false
	}
	form := c.form
	if !form.Valid() {
		c.state = StateIdle
		c.mu.Unlock()
		return false
	}
	c.state = StateProcessing
	c.lastError = ""
	c.mu.Unlock()

	items := c.b.CartItems()
	data := bus.PaymentData{
		Amount:       bus.TotalAmount(items),
		Currency:     "USD",
		Items:        items,
		CustomerInfo: form.Customer,
	}

	c.logger.Info("checkout submitted",
		"amount", data.Amount,
		"item_count", bus.ItemCount(items),
		"payment_method", form.Method,
	)

	if err := c.b.InitiatePayment(data); err != nil {
		c.logger.Error("failed to initiate payment", "error", err)
		c.mu.Lock()
		c.state = StateFailed
		c.lastError = "Unable to start payment."
		c.mu.Unlock()
		return false
	}
	return true
}

// Retry re-enters validation after a failed attempt and resubmits.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return false
	}
	c.state = StateIdle
	c.lastError = ""
	c.mu.Unlock()
	return c.Submit()
}

func (c *Controller) onPaymentCompleted(evt bus.Event) {
	payload, ok := evt.Payload.(bus.PaymentCompleted)
	if !ok {
		c.logger.Warn("payment-completed event with unexpected payload", "payload_type", fmt.Sprintf("%T", evt.Payload))
		return
	}
	result := payload.PaymentResult

	c.mu.Lock()
	if c.state != StateProcessing {
		c.mu.Unlock()
		return
	}

	if !result.Success {
		c.state = StateFailed
		c.lastError = result.Error
		c.mu.Unlock()
		c.logger.Warn("payment failed", "error", result.Error)
		return
	}

	c.state = StateCompleted
	c.orderNumber = c.ids.OrderNumber()
	form := c.form
	orderNumber := c.orderNumber
	c.mu.Unlock()

	items := c.b.CartItems()
	snapshot := OrderSnapshot{
		Timestamp:     time.Now(),
		CustomerInfo:  form.Customer,
		OrderItems:    items,
		PaymentMethod: form.Method,
		TotalAmount:   bus.TotalAmount(items),
		OrderNumber:   orderNumber,
		TransactionID: result.TransactionID,
	}

	c.logger.Info("order completed",
		"order_number", snapshot.OrderNumber,
		"transaction_id", snapshot.TransactionID,
		"total", snapshot.TotalAmount,
	)

	if c.notifier != nil {
		c.notifier.CheckoutCompleted(snapshot)
	}
}

// Back raises the host-facing back notification.
func (c *Controller) Back() {
	if c.notifier != nil {
		c.notifier.BackRequested()
	}
}

// State returns the current order state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OrderNumber returns the generated order number once the order completed.
func (c *Controller) OrderNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderNumber
}

// LastError returns the user-facing message of the last failed attempt.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Close releases the bus subscription.
func (c *Controller) Close() {
	c.sub.Unsubscribe()
}
