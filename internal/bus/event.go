package bus

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of event travelling on the bus. The vocabulary
// is small but open-ended: unknown types are carried through with their raw
// payload intact.
type Type string

const (
	TypeCartUpdated         Type = "cart-updated"
	TypePaymentInitiated    Type = "payment-initiated"
	TypePaymentCompleted    Type = "payment-completed"
	TypeErrorOccurred       Type = "error-occurred"
	TypeNavigationRequested Type = "navigation-requested"
)

// Logical fragment identifiers used as event sources and targets.
const (
	SourceCheckout = "checkout"
	SourcePayment  = "payment"
	SourceShell    = "shell"
)

// Event is a single message broadcast through the bus. Events are created at
// emission time and never mutated afterwards; subscribers treat them as
// read-only snapshots. Target empty means broadcast to every fragment.
// Timestamp is milliseconds since the Unix epoch.
type Event struct {
	Type      Type
	Source    string
	Target    string
	Payload   Payload
	Timestamp int64
}

// Payload is the typed body of an event. Each event type carries its own
// statically shaped payload; the bus dispatches on Type, not on payload shape.
type Payload interface {
	isPayload()
}

// CartUpdated carries the full replacement cart contents.
type CartUpdated struct {
	Items []CartItem `json:"items"`
}

// PaymentInitiated carries the payment request handed from checkout to payment.
type PaymentInitiated struct {
	PaymentData
}

// PaymentCompleted carries the outcome of a payment attempt.
type PaymentCompleted struct {
	PaymentResult
}

// ErrorOccurred is the diagnostic channel for unexpected failures.
type ErrorOccurred struct {
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// NavigationRequested asks the shell to route to another view.
type NavigationRequested struct {
	Destination string `json:"destination"`
}

// RawPayload preserves the body of events whose type this build does not know.
type RawPayload json.RawMessage

func (CartUpdated) isPayload()         {}
func (PaymentInitiated) isPayload()    {}
func (PaymentCompleted) isPayload()    {}
func (ErrorOccurred) isPayload()       {}
func (NavigationRequested) isPayload() {}
func (RawPayload) isPayload()          {}

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return []byte(p), nil
}

func (p *RawPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// CartItem is a single cart line. Replicated read-only to subscribers through
// the cart state cell.
type CartItem struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// PaymentData is the payment request built by the checkout side. CustomerInfo
// is opaque to the payment side and travels untouched.
type PaymentData struct {
	Amount       float64    `json:"amount"`
	Currency     string     `json:"currency"`
	Items        []CartItem `json:"items"`
	CustomerInfo any        `json:"customerInfo,omitempty"`
}

// PaymentResult is the outcome of one payment attempt. TransactionID is set
// exactly when Success is true, Error exactly when it is false; use
// SuccessResult and FailureResult to keep that invariant.
type PaymentResult struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transactionId,omitempty"`
	Error         string  `json:"error,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
}

// SuccessResult builds the result of a successful payment attempt.
func SuccessResult(transactionID string, amount float64) PaymentResult {
	return PaymentResult{Success: true, TransactionID: transactionID, Amount: amount}
}

// FailureResult builds the result of a declined or failed payment attempt.
func FailureResult(message string) PaymentResult {
	return PaymentResult{Success: false, Error: message}
}

// ItemCount folds the cart into its total unit count.
func ItemCount(items []CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// TotalAmount folds the cart into its total price.
func TotalAmount(items []CartItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

const (
	taxRate               = 0.08
	shippingFlatRate      = 15.99
	freeShippingThreshold = 100.0
)

// OrderTotals is the derived price breakdown shown on the order summary.
type OrderTotals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

// ComputeTotals folds the cart into its price breakdown: 8% tax on the
// subtotal, flat-rate shipping waived once the subtotal passes the
// free-shipping threshold.
func ComputeTotals(items []CartItem) OrderTotals {
	subtotal := TotalAmount(items)
	shipping := shippingFlatRate
	if subtotal > freeShippingThreshold {
		shipping = 0
	}
	tax := subtotal * taxRate
	return OrderTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}
}

type wireEvent struct {
	Type      Type            `json:"type"`
	Source    string          `json:"source"`
	Target    string          `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:      e.Type,
		Source:    e.Source,
		Target:    e.Target,
		Timestamp: e.Timestamp,
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s payload: %w", e.Type, err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		Type:      w.Type,
		Source:    w.Source,
		Target:    w.Target,
		Payload:   payload,
		Timestamp: w.Timestamp,
	}
	return nil
}

// decodePayload resolves the raw payload into the typed shape for its tag.
// Unknown tags keep the raw bytes so foreign events survive a round trip.
func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var (
		payload Payload
		err     error
	)
	switch t {
	case TypeCartUpdated:
		var p CartUpdated
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypePaymentInitiated:
		var p PaymentInitiated
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypePaymentCompleted:
		var p PaymentCompleted
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeErrorOccurred:
		var p ErrorOccurred
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeNavigationRequested:
		var p NavigationRequested
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		payload = RawPayload(append(json.RawMessage(nil), raw...))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return payload, nil
}
