package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateFeeAmountRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		amount, pct, want string
	}{
		{"100.00", "2.0", "2.00"},
		{"33.335", "1.5", "0.50"},
		{"25", "1.5", "0.38"},      // 0.375
		{"-25", "1.5", "-0.38"},    // -0.375
		{"0.5", "1.0", "0.01"},     // 0.005
		{"-0.5", "1.0", "-0.01"},   // -0.005
		{"1049.97", "0.7", "7.35"}, // 7.34979
		{"0", "2.0", "0.00"},
	}
	for _, c := range cases {
		got := CalculateFeeAmount(d(c.amount), d(c.pct))
		if !got.Equal(d(c.want)) {
			t.Errorf("fee(%s, %s%%) = %s, want %s", c.amount, c.pct, got, c.want)
		}
	}
}

func TestNormalizePaymentMethod(t *testing.T) {
	cases := map[string]string{
		"CreditCard":   MethodCreditCard,
		"creditcard":   MethodCreditCard,
		" SWISH ":      MethodSwish,
		"":             MethodUnknown,
		"Bitcoin":      MethodUnknown,
		"bankTRANSFER": MethodBankTransfer,
	}
	for in, want := range cases {
		if got := NormalizePaymentMethod(in); got != want {
			t.Errorf("NormalizePaymentMethod(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookupPaymentMethodIsStrict(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"applepay", MethodApplePay, true},
		{"unknown", MethodUnknown, true},
		{"Klarna", "", false},
		{"Credit-Card", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := LookupPaymentMethod(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("LookupPaymentMethod(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestDefaultFees(t *testing.T) {
	if got := DefaultFeePercentage("paypal"); !got.Equal(d("1.5")) {
		t.Fatalf("PayPal default = %s", got)
	}
	if got := DefaultFeePercentage("Crypto"); !got.Equal(d("1.5")) {
		t.Fatalf("unknown default = %s", got)
	}
	fees := DefaultFees()
	if len(fees) != 8 || fees[0].PaymentMethod != MethodCreditCard || !fees[0].FeePercentage.Equal(d("2")) {
		t.Fatalf("unexpected defaults %+v", fees)
	}
}
