package rules

import (
	"fmt"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// InsiderTradingRule flags sizable accumulation shortly before a public
// listing/announcement timestamp supplied by the upstream analyzer.
type InsiderTradingRule struct {
	LeadWindowSeconds int64
	MinValueUSD       float64
}

func NewInsiderTradingRule() *InsiderTradingRule {
	return &InsiderTradingRule{LeadWindowSeconds: 86_400, MinValueUSD: 50_000}
}

func (r *InsiderTradingRule) ID() string { return "insider_trading" }

func (r *InsiderTradingRule) Evaluate(ev *Event) (*model.Alert, error) {
	announce, ok := ev.Float("listing_announce_ts")
	if !ok || ev.Tx.ValueUSD < r.MinValueUSD {
		return nil, nil
	}
	lead := int64(announce) - ev.Tx.Timestamp
	if lead <= 0 || lead > r.LeadWindowSeconds {
		return nil, nil
	}

	a := model.NewAlert(model.AlertInsiderTrading, model.SeverityHigh,
		"Pre-announcement accumulation",
		fmt.Sprintf("$%.2f bought %ds before announcement", ev.Tx.ValueUSD, lead))
	a.Address = ev.Tx.FromAddress
	a.Meta("lead_seconds", lead)
	return a, nil
}
