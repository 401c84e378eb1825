// Package idgen produces the opaque order and transaction identifiers used
// across the checkout flow. Callers depend on the Generator interface so
// tests can pin IDs deterministically.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator hands out unique order numbers and transaction IDs.
type Generator interface {
	OrderNumber() string
	TransactionID() string
}

// Random is the production generator. IDs carry a time component and a
// random suffix so they sort roughly by creation and never collide in
// practice.
type Random struct{}

func (Random) OrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s", timePart(6), randomPart())
}

func (Random) TransactionID() string {
	return fmt.Sprintf("TXN-%s-%s", timePart(8), randomPart())
}

func timePart(n int) string {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	if len(ts) > n {
		ts = ts[len(ts)-n:]
	}
	return ts
}

func randomPart() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return id[:6]
}
