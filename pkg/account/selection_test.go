package account

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/util"
)

type fakeSwitcher struct {
	known map[uint16]bool
	calls []uint16
}

func (f *fakeSwitcher) SwitchActiveUser(id uint16) error {
	f.calls = append(f.calls, id)
	if !f.known[id] {
		return fmt.Errorf("sub-account %d is not loaded", id)
	}
	return nil
}

func TestSwitchActive(t *testing.T) {
	sel := NewSelector(util.Nop())
	if err := sel.SwitchActive(1); !errors.Is(err, apperr.ClientNotReady) {
		t.Fatalf("err = %v, want ClientNotReady", err)
	}

	sw := &fakeSwitcher{known: map[uint16]bool{0: true, 1: true}}
	sel.Attach(sw)
	if err := sel.SwitchActive(1); err != nil {
		t.Fatal(err)
	}
	if id, ok := sel.Selected(); !ok || id != 1 {
		t.Fatalf("selected = %d, %v", id, ok)
	}

	// a failed switch leaves the selection where it was
	if err := sel.SwitchActive(5); err == nil {
		t.Fatal("expected error")
	}
	if id, _ := sel.Selected(); id != 1 {
		t.Errorf("selected = %d after failed switch, want 1", id)
	}
	if len(sw.calls) != 2 {
		t.Errorf("client calls = %v", sw.calls)
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		prefer   *uint16
		accounts []*drift.UserAccount
		want     uint16
		wantOK   bool
	}{
		{"empty", nil, nil, 0, false},
		{"default lowest", nil, accounts(3, 1, 2), 1, true},
		{"keep existing", ptr(2), accounts(0, 2), 2, true},
		{"vanished", ptr(4), accounts(2, 3), 2, true},
		{"cleared by empty list", ptr(1), nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := NewSelector(util.Nop())
			if tt.prefer != nil {
				sel.Prefer(*tt.prefer)
			}
			got, ok := sel.Reconcile(tt.accounts)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Reconcile = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
			if id, has := sel.Selected(); id != tt.want || has != tt.wantOK {
				t.Errorf("Selected = %d, %v", id, has)
			}
		})
	}
}

func ptr(v uint16) *uint16 { return &v }

func TestBalances(t *testing.T) {
	net := params.DevnetNetwork("http://localhost:8899")
	acc := &drift.UserAccount{
		SpotPositions: []drift.SpotPosition{
			{MarketIndex: 1, BalanceType: drift.BalanceDeposit, ScaledBalance: big.NewInt(1), CumulativeDeposits: big.NewInt(1_500_000_000)},
		},
	}
	rows := Balances(acc, net.SpotMarkets)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Symbol != "sol" || rows[0].Balance != "1.5" || rows[0].BalanceType != "deposit" || !rows[0].HasBalance {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Symbol != "usdc" || rows[1].Balance != "0" || rows[1].BalanceType != "-" {
		t.Errorf("second row = %+v", rows[1])
	}
}

func TestOpenOrdersView(t *testing.T) {
	net := params.DevnetNetwork("http://localhost:8899")
	cond := drift.TriggerAbove
	acc := &drift.UserAccount{Orders: []drift.Order{
		{OrderID: 1, Status: drift.OrderStatusOpen, MarketType: drift.MarketTypePerp, MarketIndex: 0,
			OrderType: drift.OrderTypeTriggerLimit, Direction: drift.Short,
			Price: big.NewInt(49_000_000), TriggerPrice: big.NewInt(50_000_000), TriggerCondition: cond,
			BaseAssetAmount: big.NewInt(250_000_000), BaseAssetAmountFilled: big.NewInt(0)},
		{OrderID: 2, Status: drift.OrderStatusCanceled},
	}}
	rows := OpenOrders(acc, net)
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	r := rows[0]
	if r.Symbol != "SOL-PERP" || r.Price != "49" || r.Size != "0.25" || r.TriggerPrice != "50" || r.TriggerCondition != "above" {
		t.Errorf("row = %+v", r)
	}
}
