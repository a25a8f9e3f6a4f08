// Package console holds one user session: the protocol client for the
// selected network, the connected wallet and the account state, and runs
// the order, deposit, withdrawal and sub-account flows against them.
package console

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/account"
	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/storage"
	"github.com/uhyunpark/driftdesk/pkg/txn"
	"github.com/uhyunpark/driftdesk/pkg/wallet"
)

// ProtocolClient is the protocol surface the console drives
type ProtocolClient interface {
	account.Fetcher
	account.ActiveUserSwitcher
	txn.Client

	SetAuthority(authority solana.PublicKey)
	GetNextSubAccountID(ctx context.Context) (uint16, error)
	AddUser(ctx context.Context, subAccountID uint16) error
	ConvertToSpotPrecision(marketIndex uint16, amount decimal.Decimal) (*big.Int, error)
	GetAssociatedTokenAccount(marketIndex uint16) (solana.PublicKey, error)
	GetInitializeUserAccountIxs(ctx context.Context, subAccountID uint16, name string) ([]solana.Instruction, solana.PublicKey, error)
	GetDepositIxs(ctx context.Context, amount *big.Int, marketIndex uint16, tokenAccount solana.PublicKey, subAccountID uint16, reduceOnly bool) ([]solana.Instruction, error)
	GetWithdrawalIxs(ctx context.Context, amount *big.Int, marketIndex uint16, tokenAccount solana.PublicKey, subAccountID uint16, reduceOnly bool) ([]solana.Instruction, error)
	GetPlacePerpOrderIx(ctx context.Context, p drift.OrderParams, subAccountID uint16) (solana.Instruction, error)
	GetPlaceOrdersIx(ctx context.Context, orders []drift.OrderParams, subAccountID uint16) (solana.Instruction, error)
	Close() error
}

// ClientFactory builds the protocol client for a network
type ClientFactory func(network params.Network) (ProtocolClient, error)

// RPCClientFactory returns a factory building drift.RPCClient instances
func RPCClientFactory(commitment string, logger *zap.SugaredLogger) ClientFactory {
	return func(network params.Network) (ProtocolClient, error) {
		client, err := drift.NewRPCClient(network, commitment, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Journal records submissions and remembers selections
type Journal interface {
	Record(e *storage.Entry) error
	Recent(network, authority string, limit int) ([]*storage.Entry, error)
	SaveSelection(network, authority string, subAccountID uint16) error
	LoadSelection(network, authority string) (uint16, bool, error)
}

var (
	ErrAccountLimit   = fmt.Errorf("maximum number of sub-accounts (%d) reached", drift.MaxSubAccounts)
	ErrNoSubAccount   = errors.New("sub-account not found, create one first")
	ErrInvalidName    = errors.New("account name is required and must fit in 32 bytes")
	ErrUnknownMarket  = errors.New("unknown market")
	ErrUnknownNetwork = errors.New("unknown network")
	ErrInvalidAddress = errors.New("invalid wallet address")
)

type Options struct {
	Networks map[string]params.Network
	Network  string
	Factory  ClientFactory
	Journal  Journal // optional
	Logger   *zap.SugaredLogger
}

type Console struct {
	factory  ClientFactory
	networks map[string]params.Network
	journal  Journal
	logger   *zap.SugaredLogger

	store    *account.Store
	selector *account.Selector

	switchMu sync.Mutex // serializes SwitchNetwork

	mu      sync.RWMutex
	client  ProtocolClient // nil while switching networks
	network params.Network
	wallet  wallet.Wallet

	listenersMu sync.Mutex
	listeners   []func(Update)
}

// Update is published after every accepted account change
type Update struct {
	Network  string
	Accounts []*drift.UserAccount
	Selected *uint16
}

func New(opts Options) (*Console, error) {
	network, ok := opts.Networks[opts.Network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, opts.Network)
	}
	client, err := opts.Factory(network)
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol client: %w", err)
	}

	c := &Console{
		factory:  opts.Factory,
		networks: opts.Networks,
		journal:  opts.Journal,
		logger:   opts.Logger,
		store:    account.NewStore(opts.Logger),
		selector: account.NewSelector(opts.Logger),
		client:   client,
		network:  network,
	}
	c.store.Attach(client)
	c.selector.Attach(client)
	c.store.OnChange(c.onAccounts)
	return c, nil
}

// Close releases the protocol client
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// OnUpdate registers fn for account updates
func (c *Console) OnUpdate(fn func(Update)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Console) onAccounts(accounts []*drift.UserAccount) {
	u := Update{Network: c.Network().Name, Accounts: accounts}
	if id, ok := c.selector.Reconcile(accounts); ok {
		u.Selected = &id
	}

	c.listenersMu.Lock()
	listeners := append([]func(Update){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}

type session struct {
	client    ProtocolClient
	network   params.Network
	wallet    wallet.Wallet
	authority solana.PublicKey
}

// session returns the current client and wallet. A nil wallet is allowed;
// callers that sign check it through the coordinator.
func (c *Console) session(op string) (session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := session{client: c.client, network: c.network, wallet: c.wallet}
	if s.client == nil {
		return s, apperr.Errorf(apperr.ClientNotReady, op, "protocol client is not ready")
	}
	if s.wallet != nil {
		s.authority = s.wallet.PublicKey()
	}
	return s, nil
}

func (c *Console) requireWallet(op string) (session, error) {
	s, err := c.session(op)
	if err != nil {
		return s, err
	}
	if s.wallet == nil {
		return s, apperr.Errorf(apperr.WalletNotConnected, op, "connect a wallet first")
	}
	return s, nil
}

// Network returns the active network
func (c *Console) Network() params.Network {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.network
}

// Networks lists the configured network names
func (c *Console) Networks() []string {
	names := make([]string, 0, len(c.networks))
	for name := range c.networks {
		names = append(names, name)
	}
	return names
}

// Wallet returns the connected wallet, or nil
func (c *Console) Wallet() wallet.Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wallet
}

// Snapshot returns the account store state
func (c *Console) Snapshot() account.Snapshot {
	return c.store.Snapshot()
}

// Selected returns the selected sub-account id
func (c *Console) Selected() (uint16, bool) {
	return c.selector.Selected()
}

// Account returns a stored sub-account
func (c *Console) Account(subAccountID uint16) (*drift.UserAccount, bool) {
	return c.store.Account(subAccountID)
}

// ConnectWallet binds w to the session and loads its sub-accounts
func (c *Console) ConnectWallet(ctx context.Context, w wallet.Wallet) ([]*drift.UserAccount, error) {
	if w == nil || w.PublicKey().IsZero() {
		return nil, apperr.Errorf(apperr.WalletNotConnected, "console.connect", "wallet has no public key")
	}

	c.mu.Lock()
	c.wallet = w
	if c.client != nil {
		c.client.SetAuthority(w.PublicKey())
	}
	network := c.network.Name
	c.mu.Unlock()

	c.store.Reset()
	c.restoreSelection(network, w.PublicKey())
	c.logger.Infow("wallet_connected", "authority", w.PublicKey(), "network", network)
	return c.Refresh(ctx)
}

// DisconnectWallet drops the wallet and all account state
func (c *Console) DisconnectWallet() {
	c.mu.Lock()
	prev := c.wallet
	c.wallet = nil
	client := c.client
	if client != nil {
		client.SetAuthority(solana.PublicKey{})
	}
	c.mu.Unlock()

	c.store.Reset()
	c.selector.Reset()
	if client != nil {
		c.selector.Attach(client)
	}
	if prev != nil {
		c.logger.Infow("wallet_disconnected", "authority", prev.PublicKey())
	}
}

func (c *Console) restoreSelection(network string, authority solana.PublicKey) {
	if c.journal == nil {
		return
	}
	id, ok, err := c.journal.LoadSelection(network, authority.String())
	if err != nil {
		c.logger.Warnw("selection_restore_failed", "error", err)
		return
	}
	if ok {
		c.selector.Prefer(id)
	}
}

// Refresh reloads the connected wallet's sub-accounts and moves the
// client's active user to the selected one
func (c *Console) Refresh(ctx context.Context) ([]*drift.UserAccount, error) {
	const op = "console.refresh"
	s, err := c.requireWallet(op)
	if err != nil {
		return nil, err
	}
	accounts, err := c.store.Refresh(ctx, s.authority, true)
	if err != nil {
		return nil, err
	}
	if id, ok := c.selector.Selected(); ok {
		if err := s.client.SwitchActiveUser(id); err != nil {
			c.logger.Warnw("active_user_sync_failed", "sub_account", id, "error", err)
		}
	}
	return accounts, nil
}

// ViewWallet loads the sub-accounts of any address without touching the
// session's own account state
func (c *Console) ViewWallet(ctx context.Context, address string) ([]*drift.UserAccount, error) {
	const op = "console.view_wallet"
	authority, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, apperr.New(apperr.Validation, op, fmt.Errorf("%w: %v", ErrInvalidAddress, err))
	}
	if _, err := c.session(op); err != nil {
		return nil, err
	}
	return c.store.Refresh(ctx, authority, false)
}

// SwitchActive selects a sub-account and remembers the choice
func (c *Console) SwitchActive(subAccountID uint16) error {
	if err := c.selector.SwitchActive(subAccountID); err != nil {
		return err
	}
	s, _ := c.session("console.select")
	if c.journal != nil && s.wallet != nil {
		if err := c.journal.SaveSelection(s.network.Name, s.authority.String(), subAccountID); err != nil {
			c.logger.Warnw("selection_save_failed", "error", err)
		}
	}
	return nil
}

// SwitchNetwork tears down the current client and builds one for name.
// Operations started while the switch is in progress fail with
// ClientNotReady.
func (c *Console) SwitchNetwork(ctx context.Context, name string) error {
	const op = "console.switch_network"
	network, ok := c.networks[name]
	if !ok {
		return apperr.New(apperr.Validation, op, fmt.Errorf("%w: %q", ErrUnknownNetwork, name))
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	old := c.client
	c.client = nil
	c.mu.Unlock()

	c.store.Detach()
	c.store.Reset()
	c.selector.Reset()
	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Warnw("client_close_failed", "error", err)
		}
	}

	client, err := c.factory(network)
	if err != nil {
		c.logger.Errorw("client_create_failed", "network", name, "error", err)
		return apperr.New(apperr.ClientNotReady, op, err)
	}

	c.mu.Lock()
	c.client = client
	c.network = network
	w := c.wallet
	if w != nil {
		client.SetAuthority(w.PublicKey())
	}
	c.mu.Unlock()

	c.store.Attach(client)
	c.selector.Attach(client)
	c.logger.Infow("network_switched", "network", name, "rpc", network.RPCURL)

	if w == nil {
		return nil
	}
	c.restoreSelection(name, w.PublicKey())
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warnw("refresh_after_switch_failed", "network", name, "error", err)
	}
	return nil
}

// History returns the latest journal entries of the connected wallet
func (c *Console) History(limit int) ([]*storage.Entry, error) {
	const op = "console.history"
	if c.journal == nil {
		return nil, nil
	}
	s, err := c.requireWallet(op)
	if err != nil {
		return nil, err
	}
	return c.journal.Recent(s.network.Name, s.authority.String(), limit)
}
