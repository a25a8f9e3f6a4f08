package order

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
)

var solPerp = Market{Index: 0, Symbol: "SOL-PERP", BaseExp: 9, PriceExp: 6}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGenerateLadder(t *testing.T) {
	tests := []struct {
		start, end string
		count      int
		want       []string
	}{
		{"100", "110", 3, []string{"100", "105", "110"}},
		{"1", "2", 5, []string{"1", "1.25", "1.5", "1.75", "2"}},
		{"110", "100", 2, []string{"110", "100"}},
		{"0.1", "0.4", 4, []string{"0.1", "0.2", "0.3", "0.4"}},
	}
	for _, tt := range tests {
		t.Run(tt.start+"-"+tt.end, func(t *testing.T) {
			rungs, err := GenerateLadder(d(tt.start), d(tt.end), tt.count)
			if err != nil {
				t.Fatal(err)
			}
			if len(rungs) != tt.count {
				t.Fatalf("rungs = %d, want %d", len(rungs), tt.count)
			}
			step := d(tt.end).Sub(d(tt.start)).Div(decimal.NewFromInt(int64(tt.count - 1)))
			for i, r := range rungs {
				if !r.Price.Equal(d(tt.want[i])) {
					t.Errorf("rung %d price = %s, want %s", i, r.Price, tt.want[i])
				}
				if i > 0 && !r.Price.Sub(rungs[i-1].Price).Equal(step) {
					t.Errorf("rung %d step = %s, want %s", i, r.Price.Sub(rungs[i-1].Price), step)
				}
				want := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(tt.count)))
				if !r.SizeFraction.Equal(want) {
					t.Errorf("rung %d fraction = %s", i, r.SizeFraction)
				}
			}
		})
	}
}

func TestGenerateLadderRejects(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		count      int
	}{
		{"count one", "100", "110", 1},
		{"count zero", "100", "110", 0},
		{"flat range", "100", "100.0", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateLadder(d(tt.start), d(tt.end), tt.count)
			if !errors.Is(err, ErrInvalidScaleRange) || !errors.Is(err, apperr.Validation) {
				t.Fatalf("err = %v, want InvalidScaleRange validation error", err)
			}
		})
	}
}

func TestResolveScale(t *testing.T) {
	orders, err := Resolve(Intent{
		Variant:    VariantScale,
		Direction:  drift.Long,
		BaseSize:   d("0.3"),
		StartPrice: d("100"),
		EndPrice:   d("110"),
		Count:      3,
	}, solPerp)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 3 {
		t.Fatalf("orders = %d, want 3", len(orders))
	}
	wantPrices := []int64{100_000_000, 105_000_000, 110_000_000}
	for i, o := range orders {
		if o.OrderType != drift.OrderTypeLimit {
			t.Errorf("order %d type = %s", i, o.OrderType)
		}
		if o.Price.Int64() != wantPrices[i] {
			t.Errorf("order %d price = %s, want %d", i, o.Price, wantPrices[i])
		}
		if o.BaseAssetAmount.Int64() != 100_000_000 {
			t.Errorf("order %d size = %s, want 0.1 at 1e9", i, o.BaseAssetAmount)
		}
		if o.Direction != drift.Long || o.MarketType != drift.MarketTypePerp {
			t.Errorf("order %d shared fields = %+v", i, o)
		}
	}
	// rungs must not share size pointers
	orders[0].BaseAssetAmount.SetInt64(1)
	if orders[1].BaseAssetAmount.Int64() != 100_000_000 {
		t.Error("rungs share a size value")
	}
}

func TestResolveScaleTruncatesDust(t *testing.T) {
	orders, err := Resolve(Intent{
		Variant: VariantScale, BaseSize: d("1"), StartPrice: d("10"), EndPrice: d("20"), Count: 3,
	}, solPerp)
	if err != nil {
		t.Fatal(err)
	}
	sum := new(big.Int)
	for _, o := range orders {
		if o.BaseAssetAmount.Int64() != 333_333_333 {
			t.Errorf("size = %s", o.BaseAssetAmount)
		}
		sum.Add(sum, o.BaseAssetAmount)
	}
	if sum.Int64() != 999_999_999 {
		t.Errorf("sum = %s", sum)
	}
}

func TestTriggerConditionTable(t *testing.T) {
	tests := []struct {
		variant Variant
		dir     drift.PositionDirection
		want    drift.TriggerCondition
	}{
		{VariantTakeProfit, drift.Long, drift.TriggerAbove},
		{VariantTakeProfit, drift.Short, drift.TriggerBelow},
		{VariantStopLimit, drift.Long, drift.TriggerBelow},
		{VariantStopLimit, drift.Short, drift.TriggerAbove},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String()+"/"+tt.dir.String(), func(t *testing.T) {
			orders, err := Resolve(Intent{
				Variant: tt.variant, Direction: tt.dir, BaseSize: d("1"),
				Price: d("49.5"), TriggerPrice: d("50"),
			}, solPerp)
			if err != nil {
				t.Fatal(err)
			}
			if len(orders) != 1 {
				t.Fatalf("orders = %d", len(orders))
			}
			o := orders[0]
			if o.OrderType != drift.OrderTypeTriggerLimit {
				t.Errorf("type = %s", o.OrderType)
			}
			if o.TriggerCondition == nil || *o.TriggerCondition != tt.want {
				t.Errorf("condition = %v, want %s", o.TriggerCondition, tt.want)
			}
			if o.TriggerPrice.Int64() != 50_000_000 || o.Price.Int64() != 49_500_000 {
				t.Errorf("prices = %s / %s", o.TriggerPrice, o.Price)
			}
		})
	}
}

func TestStopLimitShortTriggerOnly(t *testing.T) {
	in := Intent{Variant: VariantStopLimit, Direction: drift.Short, BaseSize: d("1"), TriggerPrice: d("50")}

	_, err := Resolve(in, solPerp)
	if !errors.Is(err, ErrInvalidPrice) || apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("err = %v, want ErrInvalidPrice validation error", err)
	}

	in.Price = d("50")
	orders, err := Resolve(in, solPerp)
	if err != nil {
		t.Fatal(err)
	}
	if c := orders[0].TriggerCondition; c == nil || *c != drift.TriggerAbove {
		t.Errorf("condition = %v, want above", c)
	}
}

func TestResolvePriceInclusion(t *testing.T) {
	base := Intent{Direction: drift.Short, BaseSize: d("2"), Price: d("101"), TriggerPrice: d("100")}
	tests := []struct {
		variant   Variant
		wantPrice bool
		wantType  drift.OrderType
	}{
		{VariantMarket, false, drift.OrderTypeMarket},
		{VariantLimit, true, drift.OrderTypeLimit},
		{VariantTakeProfit, true, drift.OrderTypeTriggerLimit},
		{VariantStopLimit, true, drift.OrderTypeTriggerLimit},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			in := base
			in.Variant = tt.variant
			orders, err := Resolve(in, solPerp)
			if err != nil {
				t.Fatal(err)
			}
			o := orders[0]
			if (o.Price != nil) != tt.wantPrice {
				t.Errorf("price present = %v, want %v", o.Price != nil, tt.wantPrice)
			}
			if o.OrderType != tt.wantType {
				t.Errorf("type = %s, want %s", o.OrderType, tt.wantType)
			}
			if tt.variant == VariantMarket && (o.TriggerPrice != nil || o.TriggerCondition != nil) {
				t.Error("market order carries trigger fields")
			}
			if o.BaseAssetAmount.Int64() != 2_000_000_000 {
				t.Errorf("size = %s", o.BaseAssetAmount)
			}
		})
	}
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name string
		in   Intent
		want error
	}{
		{"zero size", Intent{Variant: VariantMarket, BaseSize: d("0")}, ErrInvalidAmount},
		{"negative size", Intent{Variant: VariantLimit, BaseSize: d("-1"), Price: d("1")}, ErrInvalidAmount},
		{"dust size", Intent{Variant: VariantMarket, BaseSize: d("0.0000000001")}, ErrInvalidAmount},
		{"limit without price", Intent{Variant: VariantLimit, BaseSize: d("1")}, ErrInvalidPrice},
		{"take profit without trigger", Intent{Variant: VariantTakeProfit, BaseSize: d("1"), Price: d("1")}, ErrMissingTriggerPrice},
		{"stop limit without trigger", Intent{Variant: VariantStopLimit, BaseSize: d("1"), Price: d("1")}, ErrMissingTriggerPrice},
		{"scale count one", Intent{Variant: VariantScale, BaseSize: d("1"), StartPrice: d("1"), EndPrice: d("2"), Count: 1}, ErrInvalidScaleRange},
		{"scale flat", Intent{Variant: VariantScale, BaseSize: d("1"), StartPrice: d("5"), EndPrice: d("5"), Count: 3}, ErrInvalidScaleRange},
		{"scale missing start", Intent{Variant: VariantScale, BaseSize: d("1"), EndPrice: d("5"), Count: 3}, ErrInvalidPrice},
		{"scale empty flat range", Intent{Variant: VariantScale, BaseSize: d("1"), Count: 3}, ErrInvalidScaleRange},
		{"scale count one without start", Intent{Variant: VariantScale, BaseSize: d("1"), EndPrice: d("5"), Count: 1}, ErrInvalidScaleRange},
		{"scale negative start", Intent{Variant: VariantScale, BaseSize: d("1"), StartPrice: d("-5"), EndPrice: d("5"), Count: 3}, ErrInvalidPrice},
		{"unknown variant", Intent{Variant: Variant(42), BaseSize: d("1")}, ErrUnknownVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.in, solPerp)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if apperr.KindOf(err) != apperr.Validation {
				t.Errorf("kind = %s", apperr.KindOf(err))
			}
		})
	}
}

func TestFormIntent(t *testing.T) {
	in, err := Form{
		Variant: "stopLimit", Direction: "sell", Size: " 0.5 ", Price: "49", TriggerPrice: "50",
	}.Intent()
	if err != nil {
		t.Fatal(err)
	}
	if in.Variant != VariantStopLimit || in.Direction != drift.Short || !in.BaseSize.Equal(d("0.5")) {
		t.Errorf("intent = %+v", in)
	}
	if !in.StartPrice.IsZero() {
		t.Errorf("empty start price parsed as %s", in.StartPrice)
	}

	tests := []struct {
		name string
		form Form
		want error
	}{
		{"garbage size", Form{Variant: "market", Direction: "long", Size: "abc"}, ErrInvalidAmount},
		{"garbage price", Form{Variant: "limit", Direction: "long", Size: "1", Price: "1,5"}, ErrInvalidPrice},
		{"unknown variant", Form{Variant: "iceberg", Direction: "long", Size: "1"}, ErrUnknownVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.form.Intent()
			if !errors.Is(err, tt.want) || !errors.Is(err, apperr.Validation) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseVariantSpellings(t *testing.T) {
	for in, want := range map[string]Variant{
		"take-profit": VariantTakeProfit,
		"takeProfit":  VariantTakeProfit,
		"STOP-LIMIT":  VariantStopLimit,
		"scale":       VariantScale,
	} {
		got, err := ParseVariant(in)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %v, %v", in, got, err)
		}
	}
}
