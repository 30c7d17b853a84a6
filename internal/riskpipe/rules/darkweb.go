package rules

import (
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// DarkWebRule matches darknet-market labels attached by the label service.
type DarkWebRule struct{}

func NewDarkWebRule() *DarkWebRule { return &DarkWebRule{} }

func (r *DarkWebRule) ID() string { return "dark_web" }

func (r *DarkWebRule) Evaluate(ev *Event) (*model.Alert, error) {
	if !ev.HasLabel("darkweb", "darknet", "darknet_market") {
		return nil, nil
	}
	addr := ev.Tx.FromAddress
	if ev.Result != nil && !labelHit(ev.Result.FromLabels) {
		addr = ev.Tx.ToAddress
	}
	a := model.NewAlert(model.AlertDarkWeb, model.SeverityHigh,
		"Dark web counterparty",
		"address is labeled as a darknet market participant")
	a.Address = addr
	return a, nil
}

func labelHit(labels []string) bool {
	for _, l := range labels {
		switch l {
		case "darkweb", "darknet", "darknet_market":
			return true
		}
	}
	return false
}
