package drift

import (
	"bytes"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ixInitializeUserStats = instructionDiscriminator("initialize_user_stats")
	ixInitializeUser      = instructionDiscriminator("initialize_user")
	ixDeposit             = instructionDiscriminator("deposit")
	ixWithdraw            = instructionDiscriminator("withdraw")
	ixPlacePerpOrder      = instructionDiscriminator("place_perp_order")
	ixPlaceOrders         = instructionDiscriminator("place_orders")
)

// remainingAccounts is the market context the program reads after the
// fixed accounts: oracles, then spot markets, then perp markets.
type remainingAccounts struct {
	oracles      []solana.PublicKey
	spotMarkets  []solana.PublicKey
	perpMarkets  []solana.PublicKey
	writableSpot map[solana.PublicKey]bool
}

func (r remainingAccounts) metas() solana.AccountMetaSlice {
	var out solana.AccountMetaSlice
	for _, k := range r.oracles {
		out = append(out, solana.NewAccountMeta(k, false, false))
	}
	for _, k := range r.spotMarkets {
		out = append(out, solana.NewAccountMeta(k, r.writableSpot[k], false))
	}
	for _, k := range r.perpMarkets {
		out = append(out, solana.NewAccountMeta(k, false, false))
	}
	return out
}

type encoder struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newEncoder(disc [8]byte) *encoder {
	e := &encoder{}
	e.enc = bin.NewBorshEncoder(&e.buf)
	e.raw(disc[:])
	return e
}

func (e *encoder) do(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

func (e *encoder) raw(b []byte)           { e.do(e.enc.WriteBytes(b, false)) }
func (e *encoder) u8(v uint8)             { e.do(e.enc.WriteUint8(v)) }
func (e *encoder) bool(v bool)            { e.do(e.enc.WriteBool(v)) }
func (e *encoder) u16(v uint16)           { e.do(e.enc.WriteUint16(v, le)) }
func (e *encoder) u32(v uint32)           { e.do(e.enc.WriteUint32(v, le)) }
func (e *encoder) u64(v uint64)           { e.do(e.enc.WriteUint64(v, le)) }
func (e *encoder) none()                  { e.do(e.enc.WriteOption(false)) }
func (e *encoder) bytes() ([]byte, error) { return e.buf.Bytes(), e.err }

func (e *encoder) amount(field string, v *big.Int) {
	if v == nil {
		e.u64(0)
		return
	}
	if v.Sign() < 0 || !v.IsUint64() {
		e.do(fmt.Errorf("%s %s out of u64 range", field, v))
		return
	}
	e.u64(v.Uint64())
}

func (e *encoder) orderParams(p OrderParams) {
	e.u8(uint8(p.OrderType))
	e.u8(uint8(p.MarketType))
	e.u8(uint8(p.Direction))
	e.u8(p.UserOrderID)
	e.amount("base asset amount", p.BaseAssetAmount)
	e.amount("price", p.Price)
	e.u16(p.MarketIndex)
	e.bool(p.ReduceOnly)
	e.u8(uint8(p.PostOnly))
	e.u8(0)  // bit flags
	e.none() // max ts
	if p.TriggerPrice != nil {
		e.do(e.enc.WriteOption(true))
		e.amount("trigger price", p.TriggerPrice)
	} else {
		e.none()
	}
	if p.TriggerCondition != nil {
		e.u8(uint8(*p.TriggerCondition))
	} else {
		e.u8(uint8(TriggerAbove))
	}
	e.none() // oracle price offset
	e.none() // auction duration
	e.none() // auction start price
	e.none() // auction end price
}

// EncodeOrderParams returns the borsh encoding of p without a discriminator
func EncodeOrderParams(p OrderParams) ([]byte, error) {
	e := &encoder{}
	e.enc = bin.NewBorshEncoder(&e.buf)
	e.orderParams(p)
	return e.bytes()
}

func newInitializeUserStatsIx(programID, userStats, state, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := newEncoder(ixInitializeUserStats).bytes()
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(userStats, true, false),
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(authority, true, true), // payer
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func newInitializeUserIx(programID, user, userStats, state, authority solana.PublicKey, subAccountID uint16, name [NameLength]byte) (solana.Instruction, error) {
	e := newEncoder(ixInitializeUser)
	e.u16(subAccountID)
	e.raw(name[:])
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(user, true, false),
		solana.NewAccountMeta(userStats, true, false),
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

type transferAccounts struct {
	state, user, userStats, authority solana.PublicKey
	vault, tokenAccount               solana.PublicKey
	signer                            solana.PublicKey // withdraw only
}

func transferData(disc [8]byte, marketIndex uint16, amount *big.Int, reduceOnly bool) ([]byte, error) {
	e := newEncoder(disc)
	e.u16(marketIndex)
	e.amount("amount", amount)
	e.bool(reduceOnly)
	return e.bytes()
}

func newDepositIx(programID solana.PublicKey, a transferAccounts, marketIndex uint16, amount *big.Int, reduceOnly bool, rem remainingAccounts) (solana.Instruction, error) {
	data, err := transferData(ixDeposit, marketIndex, amount, reduceOnly)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.state, false, false),
		solana.NewAccountMeta(a.user, true, false),
		solana.NewAccountMeta(a.userStats, true, false),
		solana.NewAccountMeta(a.authority, false, true),
		solana.NewAccountMeta(a.vault, true, false),
		solana.NewAccountMeta(a.tokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	accounts = append(accounts, rem.metas()...)
	return solana.NewInstruction(programID, accounts, data), nil
}

func newWithdrawIx(programID solana.PublicKey, a transferAccounts, marketIndex uint16, amount *big.Int, reduceOnly bool, rem remainingAccounts) (solana.Instruction, error) {
	data, err := transferData(ixWithdraw, marketIndex, amount, reduceOnly)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.state, false, false),
		solana.NewAccountMeta(a.user, true, false),
		solana.NewAccountMeta(a.userStats, true, false),
		solana.NewAccountMeta(a.authority, false, true),
		solana.NewAccountMeta(a.vault, true, false),
		solana.NewAccountMeta(a.signer, false, false),
		solana.NewAccountMeta(a.tokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	accounts = append(accounts, rem.metas()...)
	return solana.NewInstruction(programID, accounts, data), nil
}

func orderAccounts(state, user, authority solana.PublicKey, rem remainingAccounts) solana.AccountMetaSlice {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(state, false, false),
		solana.NewAccountMeta(user, true, false),
		solana.NewAccountMeta(authority, false, true),
	}
	return append(accounts, rem.metas()...)
}

func newPlacePerpOrderIx(programID, state, user, authority solana.PublicKey, p OrderParams, rem remainingAccounts) (solana.Instruction, error) {
	e := newEncoder(ixPlacePerpOrder)
	e.orderParams(p)
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, orderAccounts(state, user, authority, rem), data), nil
}

func newPlaceOrdersIx(programID, state, user, authority solana.PublicKey, params []OrderParams, rem remainingAccounts) (solana.Instruction, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("place_orders: no orders")
	}
	e := newEncoder(ixPlaceOrders)
	e.u32(uint32(len(params)))
	for _, p := range params {
		e.orderParams(p)
	}
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, orderAccounts(state, user, authority, rem), data), nil
}
