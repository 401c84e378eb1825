package checkout

import "strings"

// CustomerInfo is the shipping/contact block of the order form.
type CustomerInfo struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	ZipCode   string `json:"zipCode"`
}

// CardDetails holds normalized card input: Number as four space-separated
// groups (19 characters) and Expiry as MM/YY.
type CardDetails struct {
	Number     string `json:"number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	HolderName string `json:"holderName"`
}

// Form is the complete order form as submitted by the checkout surface.
type Form struct {
	Customer CustomerInfo `json:"customer"`
	Method   string       `json:"paymentMethod"`
	Card     CardDetails  `json:"card,omitempty"`
}

// cardMethods are the payment methods that require card details on the form.
// PayPal and wallet methods validate externally.
var cardMethods = map[string]bool{
	"credit": true,
	"debit":  true,
}

// Valid reports whether the form can be submitted. Every customer field and a
// payment method are required; card methods additionally need a fully
// normalized card number, expiry and CVV plus the holder name.
func (f Form) Valid() bool {
	c := f.Customer
	if c.Email == "" || c.FirstName == "" || c.LastName == "" ||
		c.Address == "" || c.City == "" || c.ZipCode == "" {
		return false
	}
	if f.Method == "" {
		return false
	}

	if cardMethods[f.Method] {
		if len(f.Card.Number) != 19 {
			return false
		}
		if len(f.Card.Expiry) != 5 {
			return false
		}
		if len(f.Card.CVV) < 3 {
			return false
		}
		if strings.TrimSpace(f.Card.HolderName) == "" {
			return false
		}
	}
	return true
}
