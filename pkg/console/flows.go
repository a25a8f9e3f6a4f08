package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/order"
	"github.com/uhyunpark/driftdesk/pkg/storage"
	"github.com/uhyunpark/driftdesk/pkg/txn"
)

// Submission ops, as journaled and counted
const (
	OpPlaceOrder       = "place_order"
	OpDeposit          = "deposit"
	OpWithdraw         = "withdraw"
	OpCreateSubAccount = "create_sub_account"
)

// OrderResult is a submitted order and the parameters it carried
type OrderResult struct {
	txn.Result
	Orders []drift.OrderParams
}

// PreviewOrder resolves form against the active network without touching
// the chain
func (c *Console) PreviewOrder(form order.Form) ([]drift.OrderParams, error) {
	in, err := form.Intent()
	if err != nil {
		return nil, err
	}
	m, ok := c.Network().PerpMarket(in.MarketIndex)
	if !ok {
		return nil, apperr.New(apperr.Validation, "console.preview", fmt.Errorf("%w: perp %d", ErrUnknownMarket, in.MarketIndex))
	}
	return order.Resolve(in, order.MarketFromConfig(m))
}

// PlaceOrder resolves form and submits it from sub-account subAccountID.
// Scale orders go out as a single instruction so they land all or nothing.
func (c *Console) PlaceOrder(ctx context.Context, subAccountID uint16, form order.Form) (OrderResult, error) {
	const op = "console.place_order"

	orders, err := c.PreviewOrder(form)
	if err != nil {
		return OrderResult{}, err
	}
	s, err := c.requireWallet(op)
	if err != nil {
		return OrderResult{}, err
	}
	if err := c.requireAccount(op, subAccountID); err != nil {
		return OrderResult{}, err
	}

	var ix solana.Instruction
	if len(orders) == 1 {
		ix, err = s.client.GetPlacePerpOrderIx(ctx, orders[0], subAccountID)
	} else {
		ix, err = s.client.GetPlaceOrdersIx(ctx, orders, subAccountID)
	}
	if err != nil {
		return OrderResult{}, apperr.New(apperr.BuildFailed, op, err)
	}

	detail := fmt.Sprintf("%s %s %s x%d market %d", form.Variant, form.Direction, form.Size, len(orders), orders[0].MarketIndex)
	res, err := c.submit(ctx, s, OpPlaceOrder, subAccountID, detail, []solana.Instruction{ix})
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{Result: res, Orders: orders}, nil
}

// Deposit moves amount (in token units) of a spot market's token from the
// wallet's associated token account into the sub-account
func (c *Console) Deposit(ctx context.Context, subAccountID, marketIndex uint16, amount string) (txn.Result, error) {
	return c.transfer(ctx, OpDeposit, subAccountID, marketIndex, amount)
}

// Withdraw moves amount back to the wallet's associated token account
func (c *Console) Withdraw(ctx context.Context, subAccountID, marketIndex uint16, amount string) (txn.Result, error) {
	return c.transfer(ctx, OpWithdraw, subAccountID, marketIndex, amount)
}

func (c *Console) transfer(ctx context.Context, kind string, subAccountID, marketIndex uint16, raw string) (txn.Result, error) {
	op := "console." + kind

	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !amount.IsPositive() {
		return txn.Result{}, apperr.New(apperr.Validation, op, fmt.Errorf("%w: %q", order.ErrInvalidAmount, raw))
	}
	s, err := c.requireWallet(op)
	if err != nil {
		return txn.Result{}, err
	}
	market, ok := s.network.SpotMarket(marketIndex)
	if !ok {
		return txn.Result{}, apperr.New(apperr.Validation, op, fmt.Errorf("%w: spot %d", ErrUnknownMarket, marketIndex))
	}
	if err := c.requireAccount(op, subAccountID); err != nil {
		return txn.Result{}, err
	}

	fixed, err := s.client.ConvertToSpotPrecision(marketIndex, amount)
	if err != nil {
		return txn.Result{}, apperr.New(apperr.Validation, op, err)
	}
	if fixed.Sign() <= 0 {
		return txn.Result{}, apperr.New(apperr.Validation, op, fmt.Errorf("%w: %s is below %s precision", order.ErrInvalidAmount, raw, market.Symbol))
	}

	tokenAccount, err := s.client.GetAssociatedTokenAccount(marketIndex)
	if err != nil {
		return txn.Result{}, apperr.New(apperr.BuildFailed, op, err)
	}

	var ixs []solana.Instruction
	if kind == OpDeposit {
		ixs, err = s.client.GetDepositIxs(ctx, fixed, marketIndex, tokenAccount, subAccountID, false)
	} else {
		ixs, err = s.client.GetWithdrawalIxs(ctx, fixed, marketIndex, tokenAccount, subAccountID, false)
	}
	if err != nil {
		return txn.Result{}, apperr.New(apperr.BuildFailed, op, err)
	}

	detail := fmt.Sprintf("%s %s", amount, market.Symbol)
	return c.submit(ctx, s, kind, subAccountID, detail, ixs)
}

// CreateSubAccount initializes the next free sub-account under name
func (c *Console) CreateSubAccount(ctx context.Context, name string) (txn.Result, uint16, error) {
	const op = "console.create_sub_account"

	name = strings.TrimSpace(name)
	if name == "" || len(name) > drift.NameLength {
		return txn.Result{}, 0, apperr.New(apperr.Validation, op, ErrInvalidName)
	}
	s, err := c.requireWallet(op)
	if err != nil {
		return txn.Result{}, 0, err
	}

	existing := c.store.Snapshot().Accounts
	if len(existing) >= drift.MaxSubAccounts {
		return txn.Result{}, 0, apperr.New(apperr.Validation, op, ErrAccountLimit)
	}

	// the chain has the final say; the snapshot may be stale
	id, err := s.client.GetNextSubAccountID(ctx)
	switch {
	case errors.Is(err, drift.ErrSubAccountLimit):
		return txn.Result{}, 0, apperr.New(apperr.Validation, op, fmt.Errorf("%w: %v", ErrAccountLimit, err))
	case err != nil:
		return txn.Result{}, 0, apperr.New(apperr.BuildFailed, op, fmt.Errorf("next sub-account id: %w", err))
	}

	ixs, _, err := s.client.GetInitializeUserAccountIxs(ctx, id, name)
	if err != nil {
		return txn.Result{}, 0, apperr.New(apperr.BuildFailed, op, err)
	}

	res, err := c.submit(ctx, s, OpCreateSubAccount, id, name, ixs)
	if err != nil {
		return txn.Result{}, 0, err
	}
	if err := s.client.AddUser(ctx, id); err != nil {
		// the refresh below registers it once the account is visible
		c.logger.Warnw("add_user_failed", "sub_account", id, "error", err)
	}
	return res, id, nil
}

func (c *Console) requireAccount(op string, subAccountID uint16) error {
	if _, ok := c.store.Account(subAccountID); !ok {
		return apperr.New(apperr.Validation, op, fmt.Errorf("%w: %d", ErrNoSubAccount, subAccountID))
	}
	return nil
}

// submit runs the coordinator, journals the outcome and refreshes on
// success. A failed refresh does not fail the submission.
func (c *Console) submit(ctx context.Context, s session, kind string, subAccountID uint16, detail string, ixs []solana.Instruction) (txn.Result, error) {
	res, err := txn.NewCoordinator(s.client, c.logger).Submit(ctx, kind, ixs, s.wallet)

	entry := &storage.Entry{
		Network:    s.network.Name,
		Authority:  s.authority.String(),
		SubAccount: subAccountID,
		Op:         kind,
		Detail:     detail,
	}
	if err != nil {
		entry.ErrorKind = apperr.KindOf(err).String()
		entry.Error = err.Error()
	} else {
		entry.Signature = res.Signature.String()
	}
	if c.journal != nil {
		if jerr := c.journal.Record(entry); jerr != nil {
			c.logger.Warnw("journal_record_failed", "op", kind, "error", jerr)
		}
	}
	if err != nil {
		return txn.Result{}, err
	}

	if _, rerr := c.Refresh(ctx); rerr != nil {
		c.logger.Warnw("refresh_after_submit_failed", "op", kind, "signature", res.Signature.String(), "error", rerr)
	}
	return res, nil
}
