package drift

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/precision"
)

// rpcAPI is the subset of *rpc.Client the protocol client uses
type rpcAPI interface {
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	Close() error
}

// RPCClient talks to the Drift program over Solana JSON-RPC.
// It is bound to one network and, once SetAuthority is called, one wallet.
type RPCClient struct {
	rpc        rpcAPI
	network    params.Network
	programID  solana.PublicKey
	commitment rpc.CommitmentType
	logger     *zap.SugaredLogger

	mu        sync.Mutex
	authority solana.PublicKey
	users     map[uint16]solana.PublicKey
	active    uint16
	hasActive bool
	remaining *remainingAccounts
}

// NewRPCClient dials nothing; the underlying HTTP client connects lazily.
func NewRPCClient(network params.Network, commitment string, logger *zap.SugaredLogger) (*RPCClient, error) {
	return newRPCClient(rpc.New(network.RPCURL), network, commitment, logger)
}

func newRPCClient(api rpcAPI, network params.Network, commitment string, logger *zap.SugaredLogger) (*RPCClient, error) {
	programID, err := solana.PublicKeyFromBase58(network.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id %q: %w", network.ProgramID, err)
	}
	if commitment == "" {
		commitment = string(rpc.CommitmentConfirmed)
	}
	return &RPCClient{
		rpc:        api,
		network:    network,
		programID:  programID,
		commitment: rpc.CommitmentType(commitment),
		logger:     logger,
		users:      make(map[uint16]solana.PublicKey),
	}, nil
}

func (c *RPCClient) Network() params.Network { return c.network }

// SetAuthority binds the client to a wallet and forgets known users
func (c *RPCClient) SetAuthority(authority solana.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authority = authority
	c.users = make(map[uint16]solana.PublicKey)
	c.hasActive = false
}

func (c *RPCClient) Authority() solana.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authority
}

func (c *RPCClient) requireAuthority() (solana.PublicKey, error) {
	auth := c.Authority()
	if auth.IsZero() {
		return auth, fmt.Errorf("no authority bound")
	}
	return auth, nil
}

// Close releases the RPC transport
func (c *RPCClient) Close() error {
	return c.rpc.Close()
}

// GetUserAccountsForAuthority returns every sub-account owned by authority,
// ordered by sub-account id. Accounts of the bound authority become known
// users for SwitchActiveUser.
func (c *RPCClient) GetUserAccountsForAuthority(ctx context.Context, authority solana.PublicKey) ([]*UserAccount, error) {
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.programID, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(userDiscriminator[:])}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: userAuthorityOffset, Bytes: solana.Base58(authority.Bytes())}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	accounts := make([]*UserAccount, 0, len(out))
	for _, keyed := range out {
		if keyed == nil || keyed.Account == nil || keyed.Account.Data == nil {
			continue
		}
		u, err := DecodeUserAccount(keyed.Pubkey, keyed.Account.Data.GetBinary())
		if err != nil {
			c.logger.Warnw("user_account_decode_failed", "address", keyed.Pubkey, "error", err)
			continue
		}
		accounts = append(accounts, u)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].SubAccountID < accounts[j].SubAccountID
	})

	c.mu.Lock()
	if authority.Equals(c.authority) {
		for _, u := range accounts {
			c.users[u.SubAccountID] = u.Address
		}
	}
	c.mu.Unlock()

	return accounts, nil
}

// GetNextSubAccountID returns one past the highest existing id
func (c *RPCClient) GetNextSubAccountID(ctx context.Context) (uint16, error) {
	auth, err := c.requireAuthority()
	if err != nil {
		return 0, err
	}
	accounts, err := c.GetUserAccountsForAuthority(ctx, auth)
	if err != nil {
		return 0, err
	}
	return NextSubAccountID(accounts)
}

// ErrSubAccountLimit is returned when all MaxSubAccounts ids are taken
var ErrSubAccountLimit = fmt.Errorf("sub-account limit of %d reached", MaxSubAccounts)

// NextSubAccountID computes the next free id from a sorted or unsorted list
func NextSubAccountID(accounts []*UserAccount) (uint16, error) {
	if len(accounts) == 0 {
		return 0, nil
	}
	var maxID uint16
	for _, a := range accounts {
		if a.SubAccountID > maxID {
			maxID = a.SubAccountID
		}
	}
	next := maxID + 1
	if next >= MaxSubAccounts {
		return 0, fmt.Errorf("%w: next id %d", ErrSubAccountLimit, next)
	}
	return next, nil
}

// AddUser confirms the sub-account exists on chain and makes it switchable
func (c *RPCClient) AddUser(ctx context.Context, subAccountID uint16) error {
	auth, err := c.requireAuthority()
	if err != nil {
		return err
	}
	addr, err := UserPDA(c.programID, auth, subAccountID)
	if err != nil {
		return err
	}
	info, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return fmt.Errorf("add user %d: %w", subAccountID, err)
	}
	if info == nil || info.Value == nil {
		return fmt.Errorf("add user %d: account %s not found", subAccountID, addr)
	}

	c.mu.Lock()
	c.users[subAccountID] = addr
	c.mu.Unlock()
	return nil
}

// SwitchActiveUser makes subAccountID the default for later instructions
func (c *RPCClient) SwitchActiveUser(subAccountID uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.users[subAccountID]; !ok {
		return fmt.Errorf("sub-account %d is not loaded", subAccountID)
	}
	c.active = subAccountID
	c.hasActive = true
	return nil
}

// ActiveUser returns the active sub-account id, if any
func (c *RPCClient) ActiveUser() (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.hasActive
}

func (c *RPCClient) ConvertToSpotPrecision(marketIndex uint16, amount decimal.Decimal) (*big.Int, error) {
	m, ok := c.network.SpotMarket(marketIndex)
	if !ok {
		return nil, fmt.Errorf("unknown spot market %d", marketIndex)
	}
	return precision.ToFixed(amount, m.PrecisionExp), nil
}

func (c *RPCClient) ConvertToPerpPrecision(amount decimal.Decimal) *big.Int {
	return precision.ToFixed(amount, params.PerpBaseExp)
}

func (c *RPCClient) ConvertToPricePrecision(amount decimal.Decimal) *big.Int {
	return precision.ToFixed(amount, params.PriceExp)
}

// GetAssociatedTokenAccount returns the authority's token account for the
// spot market's mint
func (c *RPCClient) GetAssociatedTokenAccount(marketIndex uint16) (solana.PublicKey, error) {
	auth, err := c.requireAuthority()
	if err != nil {
		return solana.PublicKey{}, err
	}
	m, ok := c.network.SpotMarket(marketIndex)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown spot market %d", marketIndex)
	}
	mint, err := solana.PublicKeyFromBase58(m.Mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("mint %q: %w", m.Mint, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(auth, mint)
	return ata, err
}

// marketContext loads and caches the market and oracle accounts for the
// configured markets.
func (c *RPCClient) marketContext(ctx context.Context) (remainingAccounts, error) {
	c.mu.Lock()
	cached := c.remaining
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	var rem remainingAccounts
	for _, m := range c.network.SpotMarkets {
		pda, err := SpotMarketPDA(c.programID, m.MarketIndex)
		if err != nil {
			return rem, err
		}
		rem.spotMarkets = append(rem.spotMarkets, pda)
	}
	for _, m := range c.network.PerpMarkets {
		pda, err := PerpMarketPDA(c.programID, m.MarketIndex)
		if err != nil {
			return rem, err
		}
		rem.perpMarkets = append(rem.perpMarkets, pda)
	}

	markets := append(append([]solana.PublicKey{}, rem.spotMarkets...), rem.perpMarkets...)
	out, err := c.rpc.GetMultipleAccountsWithOpts(ctx, markets, &rpc.GetMultipleAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return rem, fmt.Errorf("load markets: %w", err)
	}
	if out == nil || len(out.Value) != len(markets) {
		return rem, fmt.Errorf("load markets: unexpected response size")
	}

	seen := make(map[solana.PublicKey]bool)
	for i, acc := range out.Value {
		if acc == nil || acc.Data == nil {
			return rem, fmt.Errorf("market account %s not found", markets[i])
		}
		oracle, err := readOracle(acc.Data.GetBinary())
		if err != nil {
			return rem, fmt.Errorf("market %s: %w", markets[i], err)
		}
		if !seen[oracle] {
			seen[oracle] = true
			rem.oracles = append(rem.oracles, oracle)
		}
	}

	c.mu.Lock()
	c.remaining = &rem
	c.mu.Unlock()
	c.logger.Debugw("market_context_loaded", "spot", len(rem.spotMarkets), "perp", len(rem.perpMarkets), "oracles", len(rem.oracles))
	return rem, nil
}

type userContext struct {
	authority, user, userStats, state solana.PublicKey
}

func (c *RPCClient) userContext(subAccountID uint16) (userContext, error) {
	var uc userContext
	auth, err := c.requireAuthority()
	if err != nil {
		return uc, err
	}
	uc.authority = auth
	if uc.user, err = UserPDA(c.programID, auth, subAccountID); err != nil {
		return uc, err
	}
	if uc.userStats, err = UserStatsPDA(c.programID, auth); err != nil {
		return uc, err
	}
	if uc.state, err = StatePDA(c.programID); err != nil {
		return uc, err
	}
	return uc, nil
}

// GetInitializeUserAccountIxs returns the instructions creating sub-account
// subAccountID and its address. Sub-account 0 also creates the user stats
// account.
func (c *RPCClient) GetInitializeUserAccountIxs(ctx context.Context, subAccountID uint16, name string) ([]solana.Instruction, solana.PublicKey, error) {
	uc, err := c.userContext(subAccountID)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	encoded, err := EncodeName(name)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	var ixs []solana.Instruction
	if subAccountID == 0 {
		ix, err := newInitializeUserStatsIx(c.programID, uc.userStats, uc.state, uc.authority)
		if err != nil {
			return nil, solana.PublicKey{}, err
		}
		ixs = append(ixs, ix)
	}
	ix, err := newInitializeUserIx(c.programID, uc.user, uc.userStats, uc.state, uc.authority, subAccountID, encoded)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return append(ixs, ix), uc.user, nil
}

func (c *RPCClient) transfer(ctx context.Context, subAccountID, marketIndex uint16, tokenAccount solana.PublicKey) (transferAccounts, remainingAccounts, error) {
	var a transferAccounts
	uc, err := c.userContext(subAccountID)
	if err != nil {
		return a, remainingAccounts{}, err
	}
	vault, err := SpotMarketVaultPDA(c.programID, marketIndex)
	if err != nil {
		return a, remainingAccounts{}, err
	}
	signer, err := SignerPDA(c.programID)
	if err != nil {
		return a, remainingAccounts{}, err
	}
	rem, err := c.marketContext(ctx)
	if err != nil {
		return a, remainingAccounts{}, err
	}
	market, err := SpotMarketPDA(c.programID, marketIndex)
	if err != nil {
		return a, remainingAccounts{}, err
	}
	rem.writableSpot = map[solana.PublicKey]bool{market: true}

	a = transferAccounts{
		state:        uc.state,
		user:         uc.user,
		userStats:    uc.userStats,
		authority:    uc.authority,
		vault:        vault,
		tokenAccount: tokenAccount,
		signer:       signer,
	}
	return a, rem, nil
}

// GetDepositIxs builds a deposit of amount (spot precision) from tokenAccount
func (c *RPCClient) GetDepositIxs(ctx context.Context, amount *big.Int, marketIndex uint16, tokenAccount solana.PublicKey, subAccountID uint16, reduceOnly bool) ([]solana.Instruction, error) {
	a, rem, err := c.transfer(ctx, subAccountID, marketIndex, tokenAccount)
	if err != nil {
		return nil, err
	}
	ix, err := newDepositIx(c.programID, a, marketIndex, amount, reduceOnly, rem)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}

// GetWithdrawalIxs builds a withdrawal of amount (spot precision) to tokenAccount
func (c *RPCClient) GetWithdrawalIxs(ctx context.Context, amount *big.Int, marketIndex uint16, tokenAccount solana.PublicKey, subAccountID uint16, reduceOnly bool) ([]solana.Instruction, error) {
	a, rem, err := c.transfer(ctx, subAccountID, marketIndex, tokenAccount)
	if err != nil {
		return nil, err
	}
	ix, err := newWithdrawIx(c.programID, a, marketIndex, amount, reduceOnly, rem)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}

func (c *RPCClient) GetPlacePerpOrderIx(ctx context.Context, p OrderParams, subAccountID uint16) (solana.Instruction, error) {
	uc, err := c.userContext(subAccountID)
	if err != nil {
		return nil, err
	}
	rem, err := c.marketContext(ctx)
	if err != nil {
		return nil, err
	}
	return newPlacePerpOrderIx(c.programID, uc.state, uc.user, uc.authority, p, rem)
}

// GetPlaceOrdersIx places every order in one instruction; the program
// accepts all or none.
func (c *RPCClient) GetPlaceOrdersIx(ctx context.Context, orders []OrderParams, subAccountID uint16) (solana.Instruction, error) {
	uc, err := c.userContext(subAccountID)
	if err != nil {
		return nil, err
	}
	rem, err := c.marketContext(ctx)
	if err != nil {
		return nil, err
	}
	return newPlaceOrdersIx(c.programID, uc.state, uc.user, uc.authority, orders, rem)
}

// BuildTransaction wraps ixs in a transaction paid by the authority
func (c *RPCClient) BuildTransaction(ctx context.Context, ixs []solana.Instruction) (*solana.Transaction, error) {
	auth, err := c.requireAuthority()
	if err != nil {
		return nil, err
	}
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(auth))
	if err != nil {
		return nil, fmt.Errorf("new transaction: %w", err)
	}
	return tx, nil
}

// SendTransaction submits a signed transaction and returns its signature
func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	c.logger.Infow("transaction_sent", "signature", sig.String(), "network", c.network.Name)
	return sig, nil
}
