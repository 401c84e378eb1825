package payment

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/mfeshop/checkout-bus/internal/bus"
	"github.com/mfeshop/checkout-bus/internal/idgen"
)

// ErrDeclined marks a business decline: the gateway processed the request and
// said no. Anything else returned from Charge is an unexpected failure.
var ErrDeclined = errors.New("payment declined by gateway")

// Gateway charges a payment request and returns the transaction ID on
// success. Implementations own their latency; Charge must respect ctx
// cancellation while waiting.
type Gateway interface {
	Charge(ctx context.Context, data bus.PaymentData) (string, error)
}

// SimulatedGateway stands in for a real payment provider. It waits a fixed
// latency and approves a configurable fraction of requests.
type SimulatedGateway struct {
	successRate float64
	latency     time.Duration
	ids         idgen.Generator

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedGateway creates a gateway approving successRate (0..1) of
// charges after latency.
func NewSimulatedGateway(successRate float64, latency time.Duration, ids idgen.Generator) *SimulatedGateway {
	return &SimulatedGateway{
		successRate: successRate,
		latency:     latency,
		ids:         ids,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, data bus.PaymentData) (string, error) {
	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll >= g.successRate {
		return "", ErrDeclined
	}
	return g.ids.TransactionID(), nil
}

// StaticGateway returns a fixed outcome, optionally after a delay. It exists
// so every branch of the payment flow can be driven deterministically.
type StaticGateway struct {
	TransactionID string
	Err           error
	Latency       time.Duration
}

func (g StaticGateway) Charge(ctx context.Context, data bus.PaymentData) (string, error) {
	if g.Latency > 0 {
		timer := time.NewTimer(g.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if g.Err != nil {
		return "", g.Err
	}
	return g.TransactionID, nil
}
