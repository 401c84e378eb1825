package payment

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mfeshop/checkout-bus/internal/bus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(testLogger())
	t.Cleanup(b.Destroy)
	return b
}

var testRequest = bus.PaymentData{
	Amount:   100,
	Currency: "USD",
	Items:    []bus.CartItem{{ID: 1, Name: "X", Price: 50, Quantity: 2}},
}

// sequenceGateway replays a scripted list of outcomes, one per charge.
type sequenceGateway struct {
	mu       sync.Mutex
	outcomes []error
	txnID    string
	calls    int
}

func (g *sequenceGateway) Charge(ctx context.Context, data bus.PaymentData) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	g.calls++
	if idx < len(g.outcomes) && g.outcomes[idx] != nil {
		return "", g.outcomes[idx]
	}
	return g.txnID, nil
}

func TestProcessor_SuccessfulPayment(t *testing.T) {
	b := testBus(t)

	var results []bus.PaymentResult
	var mu sync.Mutex
	sub := b.OnEvent(bus.TypePaymentCompleted, bus.SourcePayment, func(evt bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, evt.Payload.(bus.PaymentCompleted).PaymentResult)
	})
	defer sub.Unsubscribe()

	p := New(b, StaticGateway{TransactionID: "TXN-1"}, testLogger())
	defer p.Close()

	b.InitiatePayment(testRequest)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("expected exactly one payment-completed event, got %d", len(results))
	}
	got := results[0]
	if !got.Success || got.TransactionID != "TXN-1" || got.Amount != 100 || got.Error != "" {
		t.Errorf("unexpected result %+v", got)
	}
	if p.State() != StateCompleted {
		t.Errorf("processor state: got %s, want completed", p.State())
	}
	if latest := b.LatestPaymentResult(); latest == nil || latest.TransactionID != "TXN-1" {
		t.Errorf("payment cell not updated: %+v", latest)
	}
}

func TestProcessor_DeclineThenRetrySucceeds(t *testing.T) {
	b := testBus(t)

	var results []bus.PaymentResult
	var mu sync.Mutex
	sub := b.OnEvent(bus.TypePaymentCompleted, bus.SourcePayment, func(evt bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, evt.Payload.(bus.PaymentCompleted).PaymentResult)
	})
	defer sub.Unsubscribe()

	gw := &sequenceGateway{outcomes: []error{ErrDeclined, nil}, txnID: "TXN-2"}
	p := New(b, gw, testLogger())
	defer p.Close()

	b.InitiatePayment(testRequest)
	p.Wait()

	if p.State() != StateFailed {
		t.Fatalf("after decline: got state %s, want failed", p.State())
	}
	if p.LastError() == "" || p.TransactionID() != "" {
		t.Errorf("decline should leave an error and no transaction, got %q / %q", p.LastError(), p.TransactionID())
	}

	if !p.Retry() {
		t.Fatal("Retry should accept a failed attempt")
	}
	p.Wait()

	if p.State() != StateCompleted {
		t.Fatalf("after retry: got state %s, want completed", p.State())
	}
	if p.TransactionID() != "TXN-2" {
		t.Errorf("retry transaction: got %q, want TXN-2", p.TransactionID())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 {
		t.Fatalf("expected decline + success = 2 results, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" || results[0].TransactionID != "" {
		t.Errorf("first result should be a failure: %+v", results[0])
	}
	if !results[1].Success || results[1].TransactionID == "" || results[1].Error != "" {
		t.Errorf("second result should be a success: %+v", results[1])
	}
}

func TestProcessor_UnexpectedErrorFiresBothChannels(t *testing.T) {
	b := testBus(t)

	var mu sync.Mutex
	var diagnostics []bus.ErrorOccurred
	var results []bus.PaymentResult

	errSub := b.OnEvent(bus.TypeErrorOccurred, bus.SourcePayment, func(evt bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		diagnostics = append(diagnostics, evt.Payload.(bus.ErrorOccurred))
	})
	defer errSub.Unsubscribe()
	resSub := b.OnEvent(bus.TypePaymentCompleted, bus.SourcePayment, func(evt bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, evt.Payload.(bus.PaymentCompleted).PaymentResult)
	})
	defer resSub.Unsubscribe()

	p := New(b, StaticGateway{Err: errors.New("connection reset")}, testLogger())
	defer p.Close()

	b.InitiatePayment(testRequest)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(diagnostics) != 1 {
		t.Fatalf("expected one diagnostic event, got %d", len(diagnostics))
	}
	if diagnostics[0].Source != bus.SourcePayment || diagnostics[0].Message == "" {
		t.Errorf("diagnostic payload incomplete: %+v", diagnostics[0])
	}
	if len(results) != 1 {
		t.Fatalf("expected one user-facing result, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" {
		t.Errorf("user-facing result should be a generic failure: %+v", results[0])
	}
	// The raw cause stays on the diagnostic channel, not in the UI message.
	if results[0].Error == diagnostics[0].Message {
		t.Error("user-facing message should not leak the raw error")
	}
}

func TestProcessor_RetryRequiresFailedState(t *testing.T) {
	b := testBus(t)
	p := New(b, StaticGateway{TransactionID: "TXN-3"}, testLogger())
	defer p.Close()

	if p.Retry() {
		t.Error("Retry with no prior attempt should report false")
	}

	b.InitiatePayment(testRequest)
	p.Wait()

	if p.Retry() {
		t.Error("Retry after a completed attempt should report false")
	}
}

func TestProcessor_IgnoresOverlappingRequests(t *testing.T) {
	b := testBus(t)

	gw := StaticGateway{TransactionID: "TXN-4", Latency: 50 * time.Millisecond}
	p := New(b, gw, testLogger())
	defer p.Close()

	var mu sync.Mutex
	count := 0
	sub := b.OnEvent(bus.TypePaymentCompleted, bus.SourcePayment, func(bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})
	defer sub.Unsubscribe()

	b.InitiatePayment(testRequest)
	b.InitiatePayment(testRequest) // second request while the first is in flight
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("overlapping request should be dropped, got %d completions", count)
	}
}

func TestSimulatedGateway_AlwaysSucceedAndAlwaysFail(t *testing.T) {
	ids := fixedIDs{txn: "TXN-SIM"}

	always := NewSimulatedGateway(1.0, 0, ids)
	txn, err := always.Charge(context.Background(), testRequest)
	if err != nil || txn != "TXN-SIM" {
		t.Errorf("success-rate 1.0: got (%q, %v)", txn, err)
	}

	never := NewSimulatedGateway(0.0, 0, ids)
	if _, err := never.Charge(context.Background(), testRequest); !errors.Is(err, ErrDeclined) {
		t.Errorf("success-rate 0.0: got %v, want ErrDeclined", err)
	}
}

func TestSimulatedGateway_CancelledWhileWaiting(t *testing.T) {
	gw := NewSimulatedGateway(1.0, 10*time.Second, fixedIDs{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gw.Charge(ctx, testRequest); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type fixedIDs struct{ txn string }

func (f fixedIDs) OrderNumber() string   { return "ORD-FIXED" }
func (f fixedIDs) TransactionID() string { return f.txn }
