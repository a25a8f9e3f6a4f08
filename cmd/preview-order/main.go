// preview-order resolves an order form into the parameters the console
// would submit, without touching the chain.
//
//	preview-order -variant scale -direction long -size 0.3 -start 100 -end 110 -count 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/order"
	"github.com/uhyunpark/driftdesk/pkg/precision"
)

func main() {
	var form order.Form
	network := flag.String("network", params.Devnet, "network whose market table to use")
	flag.StringVar(&form.Variant, "variant", "market", "market | limit | take-profit | stop-limit | scale")
	flag.StringVar(&form.Direction, "direction", "long", "long | short")
	market := flag.Uint("market", 0, "perp market index")
	flag.StringVar(&form.Size, "size", "", "base size, e.g. 0.5")
	flag.StringVar(&form.Price, "price", "", "limit price")
	flag.StringVar(&form.TriggerPrice, "trigger", "", "trigger price")
	flag.StringVar(&form.StartPrice, "start", "", "scale start price")
	flag.StringVar(&form.EndPrice, "end", "", "scale end price")
	flag.IntVar(&form.Count, "count", 0, "scale order count")
	flag.BoolVar(&form.ReduceOnly, "reduce-only", false, "reduce only")
	flag.BoolVar(&form.PostOnly, "post-only", false, "post only")
	flag.Parse()
	form.MarketIndex = uint16(*market)

	cfg := params.LoadFromEnv("")
	n, ok := cfg.Networks[*network]
	if !ok {
		fmt.Printf("Error: unknown network %q\n", *network)
		os.Exit(1)
	}
	m, ok := n.PerpMarket(form.MarketIndex)
	if !ok {
		fmt.Printf("Error: unknown perp market %d on %s\n", form.MarketIndex, n.Name)
		os.Exit(1)
	}

	in, err := form.Intent()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	orders, err := order.Resolve(in, order.MarketFromConfig(m))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Market: %s (%s)\n", m.Symbol, n.Name)
	fmt.Printf("Orders: %d\n\n", len(orders))
	for i, p := range orders {
		fmt.Printf("  #%d %s %s %s @ %s", i+1, p.OrderType, p.Direction,
			precision.Format(p.BaseAssetAmount, m.BaseExp), precision.Format(p.Price, m.PriceExp))
		if p.TriggerPrice != nil {
			fmt.Printf(" trigger %s %s", p.TriggerCondition, precision.Format(p.TriggerPrice, m.PriceExp))
		}
		fmt.Println()
	}

	// Encoded instruction args, as the place-order instruction carries them
	fmt.Println()
	for i, p := range orders {
		data, err := drift.EncodeOrderParams(p)
		if err != nil {
			fmt.Printf("Error encoding order %d: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("  #%d borsh: %x\n", i+1, data)
	}

	out, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Println("Order Params (JSON):")
	fmt.Println(string(out))
}
