package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
)

// Variant is the order form the user picked
type Variant uint8

const (
	VariantMarket Variant = iota + 1
	VariantLimit
	VariantTakeProfit
	VariantStopLimit
	VariantScale
)

func (v Variant) String() string {
	switch v {
	case VariantMarket:
		return "market"
	case VariantLimit:
		return "limit"
	case VariantTakeProfit:
		return "take-profit"
	case VariantStopLimit:
		return "stop-limit"
	case VariantScale:
		return "scale"
	default:
		return "unknown"
	}
}

func (v Variant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// ParseVariant accepts kebab and camel spellings ("stop-limit", "stopLimit")
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "market":
		return VariantMarket, nil
	case "limit":
		return VariantLimit, nil
	case "takeprofit":
		return VariantTakeProfit, nil
	case "stoplimit":
		return VariantStopLimit, nil
	case "scale":
		return VariantScale, nil
	default:
		return 0, apperr.New(apperr.Validation, "order.variant", fmt.Errorf("%w: %q", ErrUnknownVariant, s))
	}
}

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrMissingTriggerPrice is returned for take-profit and stop-limit
	// without a trigger price. Both are trigger-limit orders, so a missing
	// limit price fails them with ErrInvalidPrice as well.
	ErrMissingTriggerPrice = errors.New("trigger price is required")
	ErrInvalidScaleRange   = errors.New("scale needs at least 2 orders and distinct start and end prices")
	ErrInvalidPrice        = errors.New("price must be greater than zero")
	ErrUnknownVariant      = errors.New("unknown order variant")
)

// Intent is what the user asked for, in human units. Zero prices mean the
// field was left empty.
type Intent struct {
	Variant      Variant
	Direction    drift.PositionDirection
	MarketIndex  uint16
	BaseSize     decimal.Decimal
	Price        decimal.Decimal // limit, take-profit, stop-limit
	TriggerPrice decimal.Decimal // take-profit, stop-limit
	StartPrice   decimal.Decimal // scale
	EndPrice     decimal.Decimal // scale
	Count        int             // scale
	ReduceOnly   bool
	PostOnly     bool
}

// Form carries the raw text fields of an order form
type Form struct {
	Variant      string `json:"variant" validate:"required,oneof=market limit take-profit takeProfit stop-limit stopLimit scale"`
	Direction    string `json:"direction" validate:"required,oneof=long short buy sell"`
	MarketIndex  uint16 `json:"marketIndex"`
	Size         string `json:"size" validate:"required"`
	Price        string `json:"price,omitempty"`
	TriggerPrice string `json:"triggerPrice,omitempty"`
	StartPrice   string `json:"startPrice,omitempty"`
	EndPrice     string `json:"endPrice,omitempty"`
	Count        int    `json:"count,omitempty" validate:"omitempty,min=0,max=32"`
	ReduceOnly   bool   `json:"reduceOnly,omitempty"`
	PostOnly     bool   `json:"postOnly,omitempty"`
}

func invalid(op string, sentinel error, format string, args ...any) error {
	return apperr.New(apperr.Validation, op, fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}

// optionalDecimal parses s; empty input is zero
func optionalDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Intent parses the form. Unparseable numbers fail with ErrInvalidAmount or
// ErrInvalidPrice; range checks are left to Resolve.
func (f Form) Intent() (Intent, error) {
	const op = "order.parse"

	variant, err := ParseVariant(f.Variant)
	if err != nil {
		return Intent{}, err
	}
	dir, err := drift.ParseDirection(f.Direction)
	if err != nil {
		return Intent{}, apperr.New(apperr.Validation, op, err)
	}
	size, err := decimal.NewFromString(strings.TrimSpace(f.Size))
	if err != nil {
		return Intent{}, invalid(op, ErrInvalidAmount, "size %q", f.Size)
	}

	in := Intent{
		Variant:     variant,
		Direction:   dir,
		MarketIndex: f.MarketIndex,
		BaseSize:    size,
		Count:       f.Count,
		ReduceOnly:  f.ReduceOnly,
		PostOnly:    f.PostOnly,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"price", f.Price, &in.Price},
		{"trigger price", f.TriggerPrice, &in.TriggerPrice},
		{"start price", f.StartPrice, &in.StartPrice},
		{"end price", f.EndPrice, &in.EndPrice},
	}
	for _, fld := range fields {
		v, err := optionalDecimal(fld.raw)
		if err != nil {
			return Intent{}, invalid(op, ErrInvalidPrice, "%s %q", fld.name, fld.raw)
		}
		*fld.dst = v
	}
	return in, nil
}

// Market is the precision context an intent resolves against
type Market struct {
	Index    uint16
	Symbol   string
	BaseExp  uint
	PriceExp uint
}

// MarketFromConfig adapts a configured perp market
func MarketFromConfig(m params.PerpMarket) Market {
	return Market{Index: m.MarketIndex, Symbol: m.Symbol, BaseExp: m.BaseExp, PriceExp: m.PriceExp}
}
