package rules

import (
	"fmt"
	"strings"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// ContractExploitRule flags likely smart-contract exploits: an abnormal gas
// price combined with either a known-dangerous method selector or explicit
// exploit indicators from the upstream analyzer.
type ContractExploitRule struct {
	GasPriceGwei float64             // suspicion floor
	Selectors    map[string]struct{} // lowercased "0x" selectors
}

func NewContractExploitRule() *ContractExploitRule {
	return &ContractExploitRule{
		GasPriceGwei: 500,
		Selectors: map[string]struct{}{
			"0x095ea7b3": {}, // approve
			"0x42842e0e": {}, // safeTransferFrom
			"0x8c5be1e5": {}, // Approval-shaped callback
		},
	}
}

func (r *ContractExploitRule) ID() string { return "contract_exploit" }

func (r *ContractExploitRule) Evaluate(ev *Event) (*model.Alert, error) {
	if ev.Tx.GasPrice < r.GasPriceGwei {
		return nil, nil
	}
	indicators := ev.Strings("exploit_indicators")
	sel := ev.Tx.MethodSelector()
	_, badSelector := r.Selectors[sel]
	if !badSelector && len(indicators) == 0 {
		return nil, nil
	}

	a := model.NewAlert(model.AlertContractExploit, model.SeverityCritical,
		"Possible smart contract exploit",
		fmt.Sprintf("gas price %.0f gwei with %s", ev.Tx.GasPrice, describeExploit(badSelector, sel, indicators)))
	a.Address = ev.Tx.ToAddress
	a.Meta("gas_price_gwei", ev.Tx.GasPrice)
	if sel != "" {
		a.Meta("method_selector", sel)
	}
	if len(indicators) > 0 {
		a.Meta("indicators", indicators)
	}
	return a, nil
}

func describeExploit(badSelector bool, sel string, indicators []string) string {
	if badSelector {
		return "suspicious selector " + sel
	}
	return "indicators: " + strings.Join(indicators, ",")
}
