package payment

import "strings"

// Card input helpers shared by the payment form surfaces. They normalize
// free-typed input into the shapes the checkout validation expects: a card
// number as four space-separated groups (19 characters for 16 digits) and an
// MM/YY expiry (5 characters).

// FormatCardNumber strips non-digits and regroups the number into blocks of
// four, capped at 16 digits.
func FormatCardNumber(input string) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 16 {
				break
			}
		}
	}

	s := digits.String()
	var out strings.Builder
	for i, r := range s {
		if i > 0 && i%4 == 0 {
			out.WriteByte(' ')
		}
		out.WriteRune(r)
	}
	return out.String()
}

// FormatExpiry strips non-digits and inserts the MM/YY separator.
func FormatExpiry(input string) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 4 {
				break
			}
		}
	}

	s := digits.String()
	if len(s) < 2 {
		return s
	}
	return s[:2] + "/" + s[2:]
}

// CardType guesses the network from the leading digit.
func CardType(cardNumber string) string {
	number := strings.ReplaceAll(cardNumber, " ", "")
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case strings.HasPrefix(number, "5"), strings.HasPrefix(number, "2"):
		return "mastercard"
	case strings.HasPrefix(number, "3"):
		return "amex"
	case strings.HasPrefix(number, "6"):
		return "discover"
	default:
		return "unknown"
	}
}
