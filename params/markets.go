package params

// DriftProgramID is the Drift v2 program, deployed at the same address on
// devnet and mainnet-beta.
const DriftProgramID = "dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH"

// Fixed-point exponents used by the program for perp markets
const (
	PerpBaseExp  = 9 // BASE_PRECISION = 1e9
	PriceExp     = 6 // PRICE_PRECISION = 1e6
	SpotScaleExp = 9 // SPOT_BALANCE_PRECISION = 1e9 (scaled balances)
)

// Network is one chain environment: its RPC endpoint and market tables.
// Tables are supplied by configuration; nothing here is derived from chain.
type Network struct {
	Name        string
	RPCURL      string
	ProgramID   string
	SpotMarkets []SpotMarket
	PerpMarkets []PerpMarket
}

// SpotMarket describes a collateral market
type SpotMarket struct {
	MarketIndex  uint16
	Symbol       string // e.g., "USDC"
	Mint         string // base58 token mint
	PrecisionExp uint   // token decimals
}

// PerpMarket describes a perpetual market
type PerpMarket struct {
	MarketIndex uint16
	Symbol      string // e.g., "SOL-PERP"
	BaseAsset   string // e.g., "SOL"
	BaseExp     uint
	PriceExp    uint
}

// SpotMarket looks up a spot market by index
func (n Network) SpotMarket(index uint16) (SpotMarket, bool) {
	for _, m := range n.SpotMarkets {
		if m.MarketIndex == index {
			return m, true
		}
	}
	return SpotMarket{}, false
}

// PerpMarket looks up a perp market by index
func (n Network) PerpMarket(index uint16) (PerpMarket, bool) {
	for _, m := range n.PerpMarkets {
		if m.MarketIndex == index {
			return m, true
		}
	}
	return PerpMarket{}, false
}

func perpMarkets() []PerpMarket {
	return []PerpMarket{
		{MarketIndex: 0, Symbol: "SOL-PERP", BaseAsset: "SOL", BaseExp: PerpBaseExp, PriceExp: PriceExp},
		{MarketIndex: 1, Symbol: "BTC-PERP", BaseAsset: "BTC", BaseExp: PerpBaseExp, PriceExp: PriceExp},
		{MarketIndex: 2, Symbol: "ETH-PERP", BaseAsset: "ETH", BaseExp: PerpBaseExp, PriceExp: PriceExp},
	}
}

// DevnetNetwork returns the devnet market table bound to rpcURL
func DevnetNetwork(rpcURL string) Network {
	return Network{
		Name:      Devnet,
		RPCURL:    rpcURL,
		ProgramID: DriftProgramID,
		SpotMarkets: []SpotMarket{
			{MarketIndex: 0, Symbol: "USDC", Mint: "8zGuJQqwhZafTah7Uc7Z4tXRnguqkn5KLFAP8oV6PHe2", PrecisionExp: 6},
			{MarketIndex: 1, Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", PrecisionExp: 9},
		},
		PerpMarkets: perpMarkets(),
	}
}

// MainnetNetwork returns the mainnet-beta market table bound to rpcURL
func MainnetNetwork(rpcURL string) Network {
	return Network{
		Name:      Mainnet,
		RPCURL:    rpcURL,
		ProgramID: DriftProgramID,
		SpotMarkets: []SpotMarket{
			{MarketIndex: 0, Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", PrecisionExp: 6},
			{MarketIndex: 1, Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", PrecisionExp: 9},
		},
		PerpMarkets: perpMarkets(),
	}
}
