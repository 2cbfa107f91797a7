package domain

import (
	"errors"
	"testing"
)

func TestParseAmountCanonicalizes(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"100", "100"},
		{" 100 ", "100"},
		{"0100.00", "100"},
		{"100.50", "100.5"},
		{"+7", "7"},
		{"-0.000", "0"},
		{"0", "0"},
		{"-12.340", "-12.34"},
		{"0.05", "0.05"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if !got.Valid() {
			t.Fatalf("expected %q to be canonical", got)
		}
	}
}

func TestParseAmountRejectsNonDecimals(t *testing.T) {
	for _, in := range []string{"", "abc", "1/3", "1e5", "1.", ".5", "USD 10", "--1"} {
		_, err := ParseAmount(in)
		var ae *AmountError
		if !errors.As(err, &ae) {
			t.Fatalf("ParseAmount(%q): expected AmountError, got %v", in, err)
		}
	}
}

func TestAmountEqualUsesCanonicalForm(t *testing.T) {
	if !Amount("100.00").Equal("100") {
		t.Fatalf("expected 100.00 == 100")
	}
	if Amount("100").Equal("120") {
		t.Fatalf("expected 100 != 120")
	}
	if Amount("").Equal("") {
		t.Fatalf("invalid amounts never compare equal")
	}
}

func TestRoleOpposite(t *testing.T) {
	if Buyer.Opposite() != Seller || Seller.Opposite() != Buyer {
		t.Fatalf("unexpected opposite roles")
	}
	r, err := ParseRole("seller")
	if err != nil || r != Seller {
		t.Fatalf("ParseRole(seller) = %q, %v", r, err)
	}
	if _, err := ParseRole("broker"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
