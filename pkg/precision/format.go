// Package precision converts between the program's fixed-point integers and
// human-readable decimal strings. All arithmetic is on big.Int; no value ever
// passes through a float.
package precision

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Radix of a raw integer string
type Radix int

const (
	Dec Radix = 10
	Hex Radix = 16
)

// ZeroSentinel is how an empty fixed-point field is rendered by account
// serializers. It always formats as "0".
const ZeroSentinel = "00"

var bigTen = big.NewInt(10)

// ParseRaw parses a raw integer string in the given radix. Hex input may
// carry a 0x prefix. Empty input and the zero sentinel parse as 0.
func ParseRaw(raw string, radix Radix) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == ZeroSentinel {
		return new(big.Int), nil
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	if radix == Hex {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	if radix != Dec && radix != Hex {
		return nil, fmt.Errorf("unsupported radix %d", radix)
	}

	v, ok := new(big.Int).SetString(s, int(radix))
	if !ok || s == "" {
		return nil, fmt.Errorf("invalid base-%d integer %q", radix, raw)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// ToDecimal renders raw (an integer count of 10^-exp units) as a decimal
// string with no trailing zeros and no dangling point.
//
//	ToDecimal("1dcd6500", Hex, 9) == "0.5"
//	ToDecimal("00", Hex, 6)       == "0"
func ToDecimal(raw string, radix Radix, exp uint) (string, error) {
	v, err := ParseRaw(raw, radix)
	if err != nil {
		return "", err
	}
	return Format(v, exp), nil
}

// Format renders v scaled down by 10^exp. A nil v formats as "0".
func Format(v *big.Int, exp uint) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	if exp == 0 {
		return v.String()
	}

	abs := new(big.Int).Abs(v)
	whole, frac := new(big.Int).QuoRem(abs, Pow10(exp), new(big.Int))

	fracStr := frac.String()
	if pad := int(exp) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}

	out := strings.TrimSuffix(strings.TrimRight(whole.String()+"."+fracStr, "0"), ".")
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// ToFixed converts d to an integer count of 10^-exp units. Digits beyond exp
// are truncated toward zero, as the program's own conversion helpers do.
func ToFixed(d decimal.Decimal, exp uint) *big.Int {
	return d.Shift(int32(exp)).Truncate(0).BigInt()
}

// ParseFixed parses a decimal string and converts it with ToFixed
func ParseFixed(s string, exp uint) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return ToFixed(d, exp), nil
}

// Pow10 returns 10^exp as a new big.Int
func Pow10(exp uint) *big.Int {
	return new(big.Int).Exp(bigTen, new(big.Int).SetUint64(uint64(exp)), nil)
}
