package drift

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// User account layout
const (
	spotPositionCount = 8
	spotPositionSize  = 40
	perpPositionCount = 8
	perpPositionSize  = 96
	orderCount        = 32
	orderSize         = 96

	userAuthorityOffset = 8
	userHeaderSize      = 8 + 32 + 32 + NameLength
	userOrdersOffset    = userHeaderSize + spotPositionCount*spotPositionSize + perpPositionCount*perpPositionSize
	userTailOffset      = userOrdersOffset + orderCount*orderSize

	// lastAddPerpLpSharesTs .. lastActiveSlot, then nextOrderId, maxMarginRatio,
	// nextLiquidationId, subAccountId, status
	userMinSize = userTailOffset + 9*8 + 4 + 4 + 2 + 2 + 1
)

var (
	userDiscriminator = accountDiscriminator("User")
	le                = binary.LittleEndian
)

func accountDiscriminator(name string) [8]byte {
	h := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}

func instructionDiscriminator(name string) [8]byte {
	h := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}

// reader keeps the first decode error so field reads can be chained
type reader struct {
	dec *bin.Decoder
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.err = err
		return make([]byte, n)
	}
	return b
}

func (r *reader) pubkey() solana.PublicKey {
	return solana.PublicKeyFromBytes(r.bytes(32))
}

func (r *reader) u8() uint8 {
	return r.bytes(1)[0]
}

func (r *reader) bool() bool {
	return r.u8() != 0
}

func (r *reader) u16() uint16 {
	return le.Uint16(r.bytes(2))
}

func (r *reader) u32() uint32 {
	return le.Uint32(r.bytes(4))
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) u64() uint64 {
	return le.Uint64(r.bytes(8))
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) bigU64() *big.Int {
	return new(big.Int).SetUint64(r.u64())
}

func (r *reader) bigI64() *big.Int {
	return big.NewInt(r.i64())
}

// DecodeUserAccount parses a User account's data. address is the account's
// own key and is carried onto the result.
func DecodeUserAccount(address solana.PublicKey, data []byte) (*UserAccount, error) {
	if len(data) < userMinSize {
		return nil, fmt.Errorf("user account %s: %d bytes, need at least %d", address, len(data), userMinSize)
	}
	if !bytes.Equal(data[:8], userDiscriminator[:]) {
		return nil, fmt.Errorf("user account %s: discriminator mismatch", address)
	}

	r := &reader{dec: bin.NewBorshDecoder(data)}
	r.bytes(8)

	u := &UserAccount{Address: address}
	u.Authority = r.pubkey()
	u.Delegate = r.pubkey()
	copy(u.Name[:], r.bytes(NameLength))

	for i := 0; i < spotPositionCount; i++ {
		p := SpotPosition{
			ScaledBalance: r.bigU64(),
		}
		p.OpenBids = r.i64()
		p.OpenAsks = r.i64()
		p.CumulativeDeposits = r.bigI64()
		p.MarketIndex = r.u16()
		p.BalanceType = SpotBalanceType(r.u8())
		p.OpenOrders = r.u8()
		r.bytes(4)

		if p.ScaledBalance.Sign() == 0 && p.CumulativeDeposits.Sign() == 0 && p.OpenOrders == 0 {
			continue
		}
		u.SpotPositions = append(u.SpotPositions, p)
	}

	r.bytes(perpPositionCount * perpPositionSize)

	for i := 0; i < orderCount; i++ {
		o := decodeOrder(r)
		if o.Status == OrderStatusInit {
			continue
		}
		u.Orders = append(u.Orders, o)
	}

	r.bytes(8 * 8)
	u.LastActiveSlot = r.u64()
	u.NextOrderID = r.u32()
	r.u32() // max margin ratio
	r.u16() // next liquidation id
	u.SubAccountID = r.u16()
	u.Status = r.u8()

	if r.err != nil {
		return nil, fmt.Errorf("user account %s: %w", address, r.err)
	}
	return u, nil
}

func decodeOrder(r *reader) Order {
	var o Order
	o.Slot = r.u64()
	o.Price = r.bigU64()
	o.BaseAssetAmount = r.bigU64()
	o.BaseAssetAmountFilled = r.bigU64()
	r.u64() // quote filled
	o.TriggerPrice = r.bigU64()
	r.i64() // auction start price
	r.i64() // auction end price
	r.i64() // max ts
	r.i32() // oracle price offset
	o.OrderID = r.u32()
	o.MarketIndex = r.u16()
	o.Status = OrderStatus(r.u8())
	o.OrderType = OrderType(r.u8())
	o.MarketType = MarketType(r.u8())
	o.UserOrderID = r.u8()
	r.u8() // existing position direction
	o.Direction = PositionDirection(r.u8())
	o.ReduceOnly = r.bool()
	o.PostOnly = r.bool()
	r.bool() // immediate or cancel
	o.TriggerCondition = TriggerCondition(r.u8())
	r.u8() // auction duration
	r.bytes(3)
	return o
}

// readOracle extracts the oracle key from a SpotMarket or PerpMarket account;
// both layouts put it right after the discriminator and market pubkey.
func readOracle(data []byte) (solana.PublicKey, error) {
	const offset = 8 + 32
	if len(data) < offset+32 {
		return solana.PublicKey{}, fmt.Errorf("market account too short: %d bytes", len(data))
	}
	return solana.PublicKeyFromBytes(data[offset : offset+32]), nil
}
