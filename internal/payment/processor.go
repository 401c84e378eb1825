// Package payment is the payment-side fragment controller: it receives
// payment requests from checkout over the bus, runs them through the gateway,
// and reports the outcome back through the shared payment-result cell.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mfeshop/checkout-bus/internal/bus"
)

// User-facing failure messages. Diagnostic detail for unexpected errors goes
// out on the error channel instead.
const (
	declinedMessage = "Payment declined. Please try again or use a different payment method."
	failureMessage  = "Payment processing failed. Please try again."
)

// State tracks where the processor is in the current attempt.
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

// Processor drives payment attempts. One request is consumed per checkout
// attempt; a failed attempt can be retried with the same request.
type Processor struct {
	b      *bus.Bus
	gw     Gateway
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sub    *bus.Subscription
	wg     sync.WaitGroup

	mu            sync.Mutex
	state         State
	current       *bus.PaymentData
	transactionID string
	lastError     string
}

// New creates a processor subscribed to payment requests coming from the
// checkout fragment.
func New(b *bus.Bus, gw Gateway, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		b:      b,
		gw:     gw,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	p.sub = b.OnEvent(bus.TypePaymentInitiated, bus.SourceCheckout, p.onInitiated)
	return p
}

func (p *Processor) onInitiated(evt bus.Event) {
	payload, ok := evt.Payload.(bus.PaymentInitiated)
	if !ok {
		p.logger.Warn("payment-initiated event with unexpected payload", "payload_type", fmt.Sprintf("%T", evt.Payload))
		return
	}

	p.mu.Lock()
	if p.state == StateProcessing {
		p.mu.Unlock()
		p.logger.Warn("payment request ignored, attempt already in flight")
		return
	}
	data := payload.PaymentData
	p.current = &data
	p.state = StateProcessing
	p.transactionID = ""
	p.lastError = ""
	p.mu.Unlock()

	p.logger.Info("payment processing started", "amount", data.Amount, "currency", data.Currency)

	// The gateway call is the one real asynchronous boundary in the flow; it
	// must never run on the bus's delivery path.
	p.wg.Add(1)
	go p.process(data)
}

func (p *Processor) process(data bus.PaymentData) {
	defer p.wg.Done()

	txnID, err := p.gw.Charge(p.ctx, data)
	switch {
	case err == nil:
		p.mu.Lock()
		p.state = StateCompleted
		p.transactionID = txnID
		p.mu.Unlock()

		p.logger.Info("payment successful", "transaction_id", txnID, "amount", data.Amount)
		if err := p.b.CompletePayment(bus.SuccessResult(txnID, data.Amount)); err != nil {
			p.logger.Error("failed to publish payment result", "error", err)
		}

	case errors.Is(err, ErrDeclined):
		p.fail(declinedMessage)
		p.logger.Warn("payment declined", "amount", data.Amount)

	case errors.Is(err, context.Canceled):
		// Shutdown while waiting on the gateway; nothing to report.
		return

	default:
		// Unexpected failure: the diagnostic channel and the user-facing
		// result must both fire so the two views never diverge.
		p.logger.Error("payment processing error", "error", err)
		if rerr := p.b.ReportError(fmt.Sprintf("payment processing error: %v", err), bus.SourcePayment); rerr != nil {
			p.logger.Error("failed to report error", "error", rerr)
		}
		p.fail(failureMessage)
	}
}

func (p *Processor) fail(message string) {
	p.mu.Lock()
	p.state = StateFailed
	p.transactionID = ""
	p.lastError = message
	p.mu.Unlock()

	if err := p.b.CompletePayment(bus.FailureResult(message)); err != nil {
		p.logger.Error("failed to publish payment result", "error", err)
	}
}

// Retry clears the previous failure and resubmits the same payment request.
// It reports false when there is nothing to retry.
func (p *Processor) Retry() bool {
	p.mu.Lock()
	if p.state != StateFailed || p.current == nil {
		p.mu.Unlock()
		return false
	}
	data := *p.current
	p.state = StateProcessing
	p.transactionID = ""
	p.lastError = ""
	p.mu.Unlock()

	p.logger.Info("payment retry", "amount", data.Amount)
	p.wg.Add(1)
	go p.process(data)
	return true
}

// State returns the current attempt state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// TransactionID returns the identifier of the completed attempt, empty
// otherwise.
func (p *Processor) TransactionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transactionID
}

// LastError returns the user-facing message of the last failed attempt.
func (p *Processor) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Wait blocks until any in-flight attempt has finished publishing its
// outcome. Used by tests and by shutdown.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Close releases the bus subscription and cancels any in-flight gateway call.
func (p *Processor) Close() {
	p.cancel()
	p.sub.Unsubscribe()
	p.wg.Wait()
}
