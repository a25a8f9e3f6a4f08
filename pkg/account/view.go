package account

import (
	"strings"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/precision"
)

// BalanceRow is one spot market line of the account view
type BalanceRow struct {
	MarketIndex uint16 `json:"marketIndex"`
	Symbol      string `json:"symbol"`
	Balance     string `json:"balance"`     // cumulative deposits, token precision
	BalanceType string `json:"balanceType"` // "deposit" | "borrow" | "-"
	HasBalance  bool   `json:"hasBalance"`
}

// Balances lists every configured spot market for acc, markets with
// deposits first, each group in configuration order.
func Balances(acc *drift.UserAccount, markets []params.SpotMarket) []BalanceRow {
	var with, without []BalanceRow
	for _, m := range markets {
		row := BalanceRow{
			MarketIndex: m.MarketIndex,
			Symbol:      strings.ToLower(m.Symbol),
			Balance:     "0",
			BalanceType: "-",
		}
		if p, ok := acc.SpotPosition(m.MarketIndex); ok && p.HasDeposits() {
			row.HasBalance = true
			row.BalanceType = p.BalanceType.String()
			row.Balance = precision.Format(p.CumulativeDeposits, m.PrecisionExp)
		}
		if row.HasBalance {
			with = append(with, row)
		} else {
			without = append(without, row)
		}
	}
	return append(with, without...)
}

// OrderRow is a display form of an open order
type OrderRow struct {
	OrderID          uint32 `json:"orderId"`
	MarketIndex      uint16 `json:"marketIndex"`
	Symbol           string `json:"symbol"`
	OrderType        string `json:"orderType"`
	Direction        string `json:"direction"`
	Price            string `json:"price"`
	Size             string `json:"size"`
	Filled           string `json:"filled"`
	TriggerPrice     string `json:"triggerPrice,omitempty"`
	TriggerCondition string `json:"triggerCondition,omitempty"`
	ReduceOnly       bool   `json:"reduceOnly,omitempty"`
}

// OpenOrders formats the open perp orders of acc
func OpenOrders(acc *drift.UserAccount, network params.Network) []OrderRow {
	var rows []OrderRow
	for _, o := range acc.OpenOrders() {
		symbol := "unknown"
		baseExp, priceExp := uint(params.PerpBaseExp), uint(params.PriceExp)
		if o.MarketType == drift.MarketTypePerp {
			if m, ok := network.PerpMarket(o.MarketIndex); ok {
				symbol, baseExp, priceExp = m.Symbol, m.BaseExp, m.PriceExp
			}
		} else if m, ok := network.SpotMarket(o.MarketIndex); ok {
			symbol, baseExp = m.Symbol, m.PrecisionExp
		}

		row := OrderRow{
			OrderID:     o.OrderID,
			MarketIndex: o.MarketIndex,
			Symbol:      symbol,
			OrderType:   o.OrderType.String(),
			Direction:   o.Direction.String(),
			Price:       precision.Format(o.Price, priceExp),
			Size:        precision.Format(o.BaseAssetAmount, baseExp),
			Filled:      precision.Format(o.BaseAssetAmountFilled, baseExp),
			ReduceOnly:  o.ReduceOnly,
		}
		if o.OrderType == drift.OrderTypeTriggerLimit || o.OrderType == drift.OrderTypeTriggerMarket {
			row.TriggerPrice = precision.Format(o.TriggerPrice, priceExp)
			row.TriggerCondition = o.TriggerCondition.String()
		}
		rows = append(rows, row)
	}
	return rows
}
