package drift

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// MaxSubAccounts is the per-authority sub-account limit enforced by the program
const MaxSubAccounts = 8

// NameLength is the fixed size of the on-chain account name buffer
const NameLength = 32

// OrderType numbering follows the program's enum
type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
	OrderTypeOracle
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeTriggerMarket:
		return "trigger_market"
	case OrderTypeTriggerLimit:
		return "trigger_limit"
	case OrderTypeOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

type MarketType uint8

const (
	MarketTypeSpot MarketType = iota
	MarketTypePerp
)

func (m MarketType) String() string {
	switch m {
	case MarketTypeSpot:
		return "spot"
	case MarketTypePerp:
		return "perp"
	default:
		return "unknown"
	}
}

func (m MarketType) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

type PositionDirection uint8

const (
	Long PositionDirection = iota
	Short
)

func (d PositionDirection) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

func (d PositionDirection) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ParseDirection accepts "long"/"buy" and "short"/"sell"
func ParseDirection(s string) (PositionDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

type TriggerCondition uint8

const (
	TriggerAbove TriggerCondition = iota
	TriggerBelow
	TriggeredAbove
	TriggeredBelow
)

func (c TriggerCondition) String() string {
	switch c {
	case TriggerAbove:
		return "above"
	case TriggerBelow:
		return "below"
	case TriggeredAbove:
		return "triggered_above"
	case TriggeredBelow:
		return "triggered_below"
	default:
		return "unknown"
	}
}

func (c TriggerCondition) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// OrderStatus represents the lifecycle state of an order slot
type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota // empty slot
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInit:
		return "init"
	case OrderStatusOpen:
		return "open"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type SpotBalanceType uint8

const (
	BalanceDeposit SpotBalanceType = iota
	BalanceBorrow
)

func (b SpotBalanceType) String() string {
	switch b {
	case BalanceDeposit:
		return "deposit"
	case BalanceBorrow:
		return "borrow"
	default:
		return "unknown"
	}
}

func (b SpotBalanceType) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

type PostOnlyParam uint8

const (
	PostOnlyNone PostOnlyParam = iota
	PostOnlyMust
	PostOnlyTry
	PostOnlySlide
)

// SpotPosition is a per-market balance inside a sub-account.
// ScaledBalance is in SPOT_BALANCE_PRECISION units, CumulativeDeposits in
// the market's token precision.
type SpotPosition struct {
	MarketIndex        uint16
	BalanceType        SpotBalanceType
	ScaledBalance      *big.Int
	CumulativeDeposits *big.Int
	OpenBids           int64
	OpenAsks           int64
	OpenOrders         uint8
}

// HasDeposits reports whether the position has a positive deposit history
func (p SpotPosition) HasDeposits() bool {
	return p.CumulativeDeposits != nil && p.CumulativeDeposits.Sign() > 0
}

// Order is one order slot of a sub-account
type Order struct {
	OrderID               uint32
	UserOrderID           uint8
	Slot                  uint64
	MarketIndex           uint16
	MarketType            MarketType
	OrderType             OrderType
	Status                OrderStatus
	Direction             PositionDirection
	Price                 *big.Int // PRICE_PRECISION
	BaseAssetAmount       *big.Int // BASE_PRECISION
	BaseAssetAmountFilled *big.Int
	TriggerPrice          *big.Int
	TriggerCondition      TriggerCondition
	ReduceOnly            bool
	PostOnly              bool
}

// IsOpen reports whether the slot holds a live order
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// UserAccount is a decoded sub-account
type UserAccount struct {
	Address        solana.PublicKey // user PDA
	Authority      solana.PublicKey
	Delegate       solana.PublicKey
	Name           [NameLength]byte
	SubAccountID   uint16
	Status         uint8
	NextOrderID    uint32
	LastActiveSlot uint64
	SpotPositions  []SpotPosition
	Orders         []Order
}

// DisplayName decodes the name buffer; an empty name renders as "Account {id}"
func (u *UserAccount) DisplayName() string {
	if name := DecodeName(u.Name); name != "" {
		return name
	}
	return fmt.Sprintf("Account %d", u.SubAccountID)
}

// OpenOrders returns the live orders of the account
func (u *UserAccount) OpenOrders() []Order {
	var out []Order
	for _, o := range u.Orders {
		if o.IsOpen() {
			out = append(out, o)
		}
	}
	return out
}

// SpotPosition returns the position for marketIndex, if any
func (u *UserAccount) SpotPosition(marketIndex uint16) (SpotPosition, bool) {
	for _, p := range u.SpotPositions {
		if p.MarketIndex == marketIndex {
			return p, true
		}
	}
	return SpotPosition{}, false
}

// EncodeName packs name into the fixed buffer, space padded as the program
// expects. Names longer than NameLength bytes are rejected.
func EncodeName(name string) ([NameLength]byte, error) {
	var out [NameLength]byte
	if len(name) > NameLength {
		return out, fmt.Errorf("name is %d bytes, max %d", len(name), NameLength)
	}
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], name)
	return out, nil
}

// DecodeName reverses EncodeName. Invalid UTF-8 is replaced, never dropped.
func DecodeName(buf [NameLength]byte) string {
	s := strings.TrimRight(string(buf[:]), " \x00")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s
}

// OrderParams is the order request consumed by the place-order instructions.
// Nil Price, TriggerPrice and TriggerCondition mean "omitted".
type OrderParams struct {
	OrderType        OrderType         `json:"orderType"`
	MarketType       MarketType        `json:"marketType"`
	MarketIndex      uint16            `json:"marketIndex"`
	Direction        PositionDirection `json:"direction"`
	BaseAssetAmount  *big.Int          `json:"baseAssetAmount"`
	Price            *big.Int          `json:"price,omitempty"`
	TriggerPrice     *big.Int          `json:"triggerPrice,omitempty"`
	TriggerCondition *TriggerCondition `json:"triggerCondition,omitempty"`
	ReduceOnly       bool              `json:"reduceOnly,omitempty"`
	PostOnly         PostOnlyParam     `json:"postOnly,omitempty"`
	UserOrderID      uint8             `json:"userOrderId,omitempty"`
}
