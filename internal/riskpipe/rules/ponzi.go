package rules

import (
	"fmt"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// PonziRule flags contracts with heavy fan-in and almost no payouts, or an
// explicit ponzi/hyip label.
type PonziRule struct {
	MinInflows  int
	MaxOutflows int
}

func NewPonziRule() *PonziRule { return &PonziRule{MinInflows: 20, MaxOutflows: 2} }

func (r *PonziRule) ID() string { return "ponzi_scheme" }

func (r *PonziRule) Evaluate(ev *Event) (*model.Alert, error) {
	if ev.HasLabel("ponzi", "hyip", "rugpull") {
		a := model.NewAlert(model.AlertPonziScheme, model.SeverityHigh,
			"Ponzi-labeled counterparty", "address carries a ponzi/rug-pull label")
		a.Address = ev.Tx.ToAddress
		return a, nil
	}

	in, okIn := ev.Int("inflow_count")
	out, _ := ev.Int("outflow_count")
	if !okIn || in < r.MinInflows || out > r.MaxOutflows {
		return nil, nil
	}
	a := model.NewAlert(model.AlertPonziScheme, model.SeverityHigh,
		"Ponzi funding pattern",
		fmt.Sprintf("%d inflows against %d outflows", in, out))
	a.Address = ev.Tx.ToAddress
	a.Meta("inflow_count", in)
	a.Meta("outflow_count", out)
	return a, nil
}
