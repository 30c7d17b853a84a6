package rules

import (
	"fmt"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// MoneyLaunderingRule covers the two classic patterns: layering (value
// hopping through a chain of fresh addresses) and structuring (repeated
// transfers sized just under the reporting threshold).
type MoneyLaunderingRule struct {
	LayeringHops          int
	ReportingThresholdUSD float64
	StructuredCount       int
}

func NewMoneyLaunderingRule() *MoneyLaunderingRule {
	return &MoneyLaunderingRule{
		LayeringHops:          3,
		ReportingThresholdUSD: 10_000,
		StructuredCount:       3,
	}
}

func (r *MoneyLaunderingRule) ID() string { return "money_laundering" }

func (r *MoneyLaunderingRule) Evaluate(ev *Event) (*model.Alert, error) {
	hops, _ := ev.Int("hop_count")
	layering := hops >= r.LayeringHops

	under := ev.Tx.ValueUSD >= 0.9*r.ReportingThresholdUSD && ev.Tx.ValueUSD < r.ReportingThresholdUSD
	recent, _ := ev.Int("recent_under_threshold")
	structuring := under && recent >= r.StructuredCount

	if !layering && !structuring {
		return nil, nil
	}

	pattern := "layering"
	desc := fmt.Sprintf("value hopped through %d addresses", hops)
	if structuring {
		pattern = "structuring"
		desc = fmt.Sprintf("%d transfers just under $%.0f", recent, r.ReportingThresholdUSD)
	}
	a := model.NewAlert(model.AlertMoneyLaundering, model.SeverityHigh,
		"Money laundering pattern", desc)
	a.Address = ev.Tx.FromAddress
	a.Meta("pattern", pattern)
	return a, nil
}
