package order

import "github.com/shopspring/decimal"

// Rung is one price level of a scale order
type Rung struct {
	Price        decimal.Decimal `json:"price"`
	SizeFraction decimal.Decimal `json:"sizeFraction"`
}

// GenerateLadder spreads count rungs linearly over [start, end], both ends
// included. Every rung carries an equal share of the total size.
func GenerateLadder(start, end decimal.Decimal, count int) ([]Rung, error) {
	const op = "order.ladder"
	if count < 2 {
		return nil, invalid(op, ErrInvalidScaleRange, "count %d", count)
	}
	if start.Equal(end) {
		return nil, invalid(op, ErrInvalidScaleRange, "start and end are both %s", start)
	}

	span := end.Sub(start)
	steps := decimal.NewFromInt(int64(count - 1))
	fraction := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(count)))

	rungs := make([]Rung, count)
	for i := range rungs {
		// multiply before dividing so the last rung lands exactly on end
		price := start.Add(span.Mul(decimal.NewFromInt(int64(i))).Div(steps))
		rungs[i] = Rung{Price: price, SizeFraction: fraction}
	}
	return rungs, nil
}
