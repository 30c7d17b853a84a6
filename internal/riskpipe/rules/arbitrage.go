package rules

import (
	"fmt"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// CrossChainArbitrageRule flags rapid bridge round-trips that extract profit
// across chains. The bridge-hop accounting comes from the upstream analyzer.
type CrossChainArbitrageRule struct {
	MinBridgeHops    int
	MaxWindowSeconds float64
}

func NewCrossChainArbitrageRule() *CrossChainArbitrageRule {
	return &CrossChainArbitrageRule{MinBridgeHops: 2, MaxWindowSeconds: 600}
}

func (r *CrossChainArbitrageRule) ID() string { return "cross_chain_arbitrage" }

func (r *CrossChainArbitrageRule) Evaluate(ev *Event) (*model.Alert, error) {
	hops, _ := ev.Int("bridge_hops")
	if hops < r.MinBridgeHops {
		return nil, nil
	}
	profit, _ := ev.Float("arb_profit_usd")
	window, ok := ev.Float("arb_window_seconds")
	if profit <= 0 || (ok && window > r.MaxWindowSeconds) {
		return nil, nil
	}

	a := model.NewAlert(model.AlertCrossChainArb, model.SeverityMedium,
		"Cross-chain arbitrage",
		fmt.Sprintf("%d bridge hops, profit $%.2f", hops, profit))
	a.Address = ev.Tx.FromAddress
	a.Meta("bridge_hops", hops)
	a.Meta("profit_usd", profit)
	if addr, okk := ev.Signals["bridge_address"].(string); okk {
		a.Meta("bridge_address", addr)
	}
	return a, nil
}
