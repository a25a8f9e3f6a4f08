package precision

import (
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		radix Radix
		exp   uint
		want  string
	}{
		{"zero sentinel", "00", Hex, 6, "0"},
		{"empty", "", Dec, 9, "0"},
		{"hex half sol", "1dcd6500", Hex, 9, "0.5"},
		{"hex with prefix", "0x1dcd6500", Hex, 9, "0.5"},
		{"whole usdc", "5000000", Dec, 6, "5"},
		{"fraction padded", "1005", Dec, 6, "0.001005"},
		{"mixed", "123456789", Dec, 6, "123.456789"},
		{"trailing zeros stripped", "1500000", Dec, 6, "1.5"},
		{"no precision", "1200", Dec, 0, "1200"},
		{"negative", "-2500000", Dec, 6, "-2.5"},
		{"beyond uint64", "ffffffffffffffffffff", Hex, 9, "1208925819614629.174706175"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDecimal(tt.raw, tt.radix, tt.exp)
			if err != nil {
				t.Fatalf("ToDecimal error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ToDecimal(%q, %d, %d) = %q, want %q", tt.raw, tt.radix, tt.exp, got, tt.want)
			}
		})
	}
}

func TestToDecimalRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"xyz", "12.5", "0x", "-"} {
		if _, err := ToDecimal(raw, Dec, 6); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
	if _, err := ToDecimal("10", Radix(8), 2); err == nil {
		t.Error("expected error for unsupported radix")
	}
}

func TestZeroSentinelForAllPrecisions(t *testing.T) {
	for exp := uint(0); exp <= 18; exp++ {
		got, err := ToDecimal(ZeroSentinel, Hex, exp)
		if err != nil || got != "0" {
			t.Errorf("exp=%d: got %q, %v", exp, got, err)
		}
	}
}

// Formatting then re-encoding at the same precision recovers the raw value,
// and the rendered form has no trailing zeros or dangling point.
func TestRoundTripLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		exp := uint(rng.Intn(19))
		raw := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), uint(1+rng.Intn(120))))
		if rng.Intn(4) == 0 {
			raw.Neg(raw)
		}

		s := Format(raw, exp)
		if strings.Contains(s, ".") && (strings.HasSuffix(s, "0") || strings.HasSuffix(s, ".")) {
			t.Fatalf("Format(%s, %d) = %q has trailing zeros", raw, exp, s)
		}

		back, err := ParseFixed(s, exp)
		if err != nil {
			t.Fatalf("ParseFixed(%q): %v", s, err)
		}
		if back.Cmp(raw) != 0 {
			t.Fatalf("round trip %s @%d -> %q -> %s", raw, exp, s, back)
		}
	}
}

func TestToFixedTruncates(t *testing.T) {
	tests := []struct {
		in   string
		exp  uint
		want string
	}{
		{"0.1", 9, "100000000"},
		{"100", 6, "100000000"},
		{"1.23456789", 6, "1234567"},
		{"-1.9999999", 6, "-1999999"},
	}
	for _, tt := range tests {
		got := ToFixed(decimal.RequireFromString(tt.in), tt.exp)
		if got.String() != tt.want {
			t.Errorf("ToFixed(%s, %d) = %s, want %s", tt.in, tt.exp, got, tt.want)
		}
	}
}

func TestParseFixedRejectsGarbage(t *testing.T) {
	if _, err := ParseFixed("ten", 6); err == nil {
		t.Error("expected error")
	}
}
