package bridge

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mfeshop/checkout-bus/internal/bus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupBridgedBus(t *testing.T, mr *miniredis.Miniredis) (*bus.Bus, *Bridge) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := bus.New(testLogger())
	t.Cleanup(b.Destroy)

	br, err := New(context.Background(), client, b, testLogger())
	if err != nil {
		t.Fatalf("failed to attach bridge: %v", err)
	}
	t.Cleanup(func() { br.Close() })

	return b, br
}

// collector gathers delivered events across goroutines.
type collector struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *collector) add(evt bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *collector) snapshot() []bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.Event(nil), c.events...)
}

// waitFor polls until cond passes or the deadline expires.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestBridge_LoopbackDeliversExactlyOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	b, _ := setupBridgedBus(t, mr)

	var got collector
	sub := b.OnEvent(bus.TypeCartUpdated, bus.SourceCheckout, got.add)
	defer sub.Unsubscribe()

	if err := b.UpdateCart([]bus.CartItem{{ID: 1, Name: "X", Price: 10, Quantity: 2}}); err != nil {
		t.Fatalf("UpdateCart failed: %v", err)
	}

	// The local delivery happens synchronously; any echo through redis would
	// land shortly after. Give it time to prove there is no second delivery.
	time.Sleep(200 * time.Millisecond)

	events := got.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly one delivery (no echo), got %d", len(events))
	}
}

func TestBridge_PropagatesBetweenBuses(t *testing.T) {
	mr := miniredis.RunT(t)
	busA, _ := setupBridgedBus(t, mr)
	busB, _ := setupBridgedBus(t, mr)

	var onB collector
	sub := busB.OnEvent(bus.TypePaymentInitiated, bus.SourceCheckout, onB.add)
	defer sub.Unsubscribe()

	sent := bus.Event{
		Type:   bus.TypePaymentInitiated,
		Source: bus.SourceCheckout,
		Target: bus.SourcePayment,
		Payload: bus.PaymentInitiated{PaymentData: bus.PaymentData{
			Amount:   100,
			Currency: "USD",
			Items:    []bus.CartItem{{ID: 1, Name: "X", Price: 50, Quantity: 2}},
		}},
		Timestamp: 1724800000000,
	}
	if err := busA.Emit(sent); err != nil {
		t.Fatalf("emit on bus A failed: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(onB.snapshot()) >= 1 }) {
		t.Fatal("bus B never received the bridged event")
	}

	// Exactly once, structurally equal.
	time.Sleep(100 * time.Millisecond)
	events := onB.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly one bridged delivery, got %d", len(events))
	}
	got := events[0]
	if got.Type != sent.Type || got.Source != sent.Source || got.Target != sent.Target || got.Timestamp != sent.Timestamp {
		t.Errorf("bridged envelope mismatch: got %+v, want %+v", got, sent)
	}
	payload, ok := got.Payload.(bus.PaymentInitiated)
	if !ok {
		t.Fatalf("bridged payload decoded as %T", got.Payload)
	}
	if payload.Amount != 100 || len(payload.Items) != 1 {
		t.Errorf("bridged payment data mangled: %+v", payload.PaymentData)
	}
}

func TestBridge_RemoteEventsAreNotRebroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	busA, _ := setupBridgedBus(t, mr)
	busB, _ := setupBridgedBus(t, mr)
	busC, _ := setupBridgedBus(t, mr)

	var onA, onC collector
	subA := busA.OnEvent(bus.TypeErrorOccurred, bus.SourcePayment, onA.add)
	defer subA.Unsubscribe()
	subC := busC.OnEvent(bus.TypeErrorOccurred, bus.SourcePayment, onC.add)
	defer subC.Unsubscribe()

	_ = busB // B only relays through redis; it must not amplify.
	busA.ReportError("gateway timeout", bus.SourcePayment)

	if !waitFor(t, 2*time.Second, func() bool { return len(onC.snapshot()) >= 1 }) {
		t.Fatal("bus C never received the event")
	}
	time.Sleep(200 * time.Millisecond)

	if n := len(onA.snapshot()); n != 1 {
		t.Errorf("origin bus should see its event once, got %d", n)
	}
	if n := len(onC.snapshot()); n != 1 {
		t.Errorf("bus C should see the event exactly once, got %d", n)
	}
}

func TestBridge_ToleratesMalformedFrames(t *testing.T) {
	mr := miniredis.RunT(t)
	b, _ := setupBridgedBus(t, mr)

	var got collector
	sub := b.Subscribe(nil, got.add)
	defer sub.Unsubscribe()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	if err := client.Publish(context.Background(), Channel, "not json at all").Err(); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// The bridge must survive and keep working.
	client.Publish(context.Background(), Channel,
		`{"origin":"other-host","event":{"type":"cart-updated","source":"checkout","payload":{"items":[]},"timestamp":5}}`)

	if !waitFor(t, 2*time.Second, func() bool { return len(got.snapshot()) >= 1 }) {
		t.Fatal("valid frame after a malformed one was never delivered")
	}
}

func TestConnect_BadURL(t *testing.T) {
	b := bus.New(testLogger())
	defer b.Destroy()

	if _, err := Connect(context.Background(), "not-a-url", b, testLogger()); err == nil {
		t.Fatal("expected an error for an invalid redis URL")
	}
}
