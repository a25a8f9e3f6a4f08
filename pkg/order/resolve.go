package order

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/precision"
)

// triggerCondition maps a trigger variant and position direction to the
// price condition that arms it. Take-profit fires on a favorable move past
// the trigger, stop-limit on an adverse one.
func triggerCondition(v Variant, dir drift.PositionDirection) drift.TriggerCondition {
	favorable := v == VariantTakeProfit
	long := dir == drift.Long
	if favorable == long {
		return drift.TriggerAbove
	}
	return drift.TriggerBelow
}

// Resolve turns an intent into the order parameters to submit. Scale
// intents yield one LIMIT order per rung; everything else yields exactly
// one order. All validation happens here, before any network call.
func Resolve(in Intent, m Market) ([]drift.OrderParams, error) {
	const op = "order.resolve"

	if !in.BaseSize.IsPositive() {
		return nil, invalid(op, ErrInvalidAmount, "size %s", in.BaseSize)
	}
	base := precision.ToFixed(in.BaseSize, m.BaseExp)
	if base.Sign() <= 0 {
		return nil, invalid(op, ErrInvalidAmount, "size %s is below the market's base precision", in.BaseSize)
	}

	template := drift.OrderParams{
		MarketType:  drift.MarketTypePerp,
		MarketIndex: m.Index,
		Direction:   in.Direction,
		ReduceOnly:  in.ReduceOnly,
	}
	if in.PostOnly {
		template.PostOnly = drift.PostOnlyMust
	}

	switch in.Variant {
	case VariantMarket:
		p := template
		p.OrderType = drift.OrderTypeMarket
		p.BaseAssetAmount = base
		return []drift.OrderParams{p}, nil

	case VariantLimit:
		price, err := positivePrice(op, "price", in.Price, m.PriceExp)
		if err != nil {
			return nil, err
		}
		p := template
		p.OrderType = drift.OrderTypeLimit
		p.BaseAssetAmount = base
		p.Price = price
		return []drift.OrderParams{p}, nil

	case VariantTakeProfit, VariantStopLimit:
		if in.TriggerPrice.IsZero() {
			return nil, invalid(op, ErrMissingTriggerPrice, "%s order", in.Variant)
		}
		trigger, err := positivePrice(op, "trigger price", in.TriggerPrice, m.PriceExp)
		if err != nil {
			return nil, err
		}
		price, err := positivePrice(op, "price", in.Price, m.PriceExp)
		if err != nil {
			return nil, err
		}
		cond := triggerCondition(in.Variant, in.Direction)
		p := template
		p.OrderType = drift.OrderTypeTriggerLimit
		p.BaseAssetAmount = base
		p.Price = price
		p.TriggerPrice = trigger
		p.TriggerCondition = &cond
		return []drift.OrderParams{p}, nil

	case VariantScale:
		return resolveScale(op, in, m, template, base)

	default:
		return nil, invalid(op, ErrUnknownVariant, "variant %d", in.Variant)
	}
}

func resolveScale(op string, in Intent, m Market, template drift.OrderParams, base *big.Int) ([]drift.OrderParams, error) {
	// range shape first, so an empty degenerate range reads as a range error
	if in.Count < 2 || in.StartPrice.Equal(in.EndPrice) {
		return nil, invalid(op, ErrInvalidScaleRange, "count %d from %s to %s", in.Count, in.StartPrice, in.EndPrice)
	}
	if _, err := positivePrice(op, "start price", in.StartPrice, m.PriceExp); err != nil {
		return nil, err
	}
	if _, err := positivePrice(op, "end price", in.EndPrice, m.PriceExp); err != nil {
		return nil, err
	}
	rungs, err := GenerateLadder(in.StartPrice, in.EndPrice, in.Count)
	if err != nil {
		return nil, err
	}

	// equal split, remainder dropped
	size := new(big.Int).Quo(base, big.NewInt(int64(len(rungs))))
	if size.Sign() <= 0 {
		return nil, invalid(op, ErrInvalidAmount, "size %s split %d ways is below the market's base precision", in.BaseSize, len(rungs))
	}

	out := make([]drift.OrderParams, 0, len(rungs))
	for _, r := range rungs {
		p := template
		p.OrderType = drift.OrderTypeLimit
		p.BaseAssetAmount = new(big.Int).Set(size)
		p.Price = precision.ToFixed(r.Price, m.PriceExp)
		out = append(out, p)
	}
	return out, nil
}

func positivePrice(op, name string, d decimal.Decimal, exp uint) (*big.Int, error) {
	if !d.IsPositive() {
		return nil, invalid(op, ErrInvalidPrice, "%s %s", name, d)
	}
	v := precision.ToFixed(d, exp)
	if v.Sign() <= 0 {
		return nil, invalid(op, ErrInvalidPrice, "%s %s is below price precision", name, d)
	}
	return v, nil
}
