package rules

import (
	"fmt"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// FlashLoanRule fires when a loan was opened and closed inside one short
// window, extracted profit, and the analyzer named at least one indicator.
type FlashLoanRule struct {
	MaxLoanSeconds float64
}

func NewFlashLoanRule() *FlashLoanRule { return &FlashLoanRule{MaxLoanSeconds: 300} }

func (r *FlashLoanRule) ID() string { return "flash_loan_attack" }

func (r *FlashLoanRule) Evaluate(ev *Event) (*model.Alert, error) {
	dur, ok := ev.Float("loan_duration_seconds")
	if !ok || dur <= 0 || dur >= r.MaxLoanSeconds {
		return nil, nil
	}
	profit, _ := ev.Float("profit_usd")
	indicators := ev.Strings("flash_loan_indicators")
	if profit <= 0 || len(indicators) == 0 {
		return nil, nil
	}

	a := model.NewAlert(model.AlertFlashLoan, model.SeverityCritical,
		"Flash loan attack pattern",
		fmt.Sprintf("loan held %.0fs, profit $%.2f", dur, profit))
	a.Address = ev.Tx.FromAddress
	a.Meta("loan_duration_seconds", dur)
	a.Meta("profit_usd", profit)
	a.Meta("indicators", indicators)
	return a, nil
}
