package payment

import "testing"

func TestFormatCardNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"4111111111111111", "4111 1111 1111 1111"},
		{"4111-1111-1111-1111", "4111 1111 1111 1111"},
		{"4111 1111 1111 1111 999", "4111 1111 1111 1111"}, // capped at 16 digits
		{"41x1", "411"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FormatCardNumber(tc.in); got != tc.want {
			t.Errorf("FormatCardNumber(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}

	if got := FormatCardNumber("4111111111111111"); len(got) != 19 {
		t.Errorf("normalized card number should be 19 characters, got %d", len(got))
	}
}

func TestFormatExpiry(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1226", "12/26"},
		{"12/26", "12/26"},
		{"1", "1"},
		{"122688", "12/26"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FormatExpiry(tc.in); got != tc.want {
			t.Errorf("FormatExpiry(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCardType(t *testing.T) {
	cases := []struct {
		number string
		want   string
	}{
		{"4111 1111 1111 1111", "visa"},
		{"5500 0000 0000 0004", "mastercard"},
		{"2221 0000 0000 0009", "mastercard"},
		{"3400 000000 00009", "amex"},
		{"6011 0000 0000 0004", "discover"},
		{"9999", "unknown"},
	}
	for _, tc := range cases {
		if got := CardType(tc.number); got != tc.want {
			t.Errorf("CardType(%q): got %q, want %q", tc.number, got, tc.want)
		}
	}
}
