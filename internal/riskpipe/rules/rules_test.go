package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func baseTx() model.Transaction {
	return model.Transaction{
		TxHash:      "0xtx",
		Chain:       "ethereum",
		FromAddress: "0xfrom",
		ToAddress:   "0xto",
		ValueUSD:    1000,
		Timestamp:   1_700_000_000,
	}
}

func eventWith(tx model.Transaction, signals map[string]any) *Event {
	return &Event{Tx: tx, Result: &model.KYTResult{RiskScore: 0.5}, Signals: signals}
}

type failingRule struct{}

func (failingRule) ID() string                           { return "failing" }
func (failingRule) Evaluate(*Event) (*model.Alert, error) { return nil, errors.New("boom") }

func TestRegistryRegisterAndUnregister(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(NewAnomalyScoreRule()))
	assert.Error(t, reg.Register(NewAnomalyScoreRule()), "duplicate id rejected")
	assert.Equal(t, 1, reg.Len())

	assert.True(t, reg.Unregister("anomaly_score"))
	assert.False(t, reg.Unregister("anomaly_score"))
	assert.Zero(t, reg.Len())
}

func TestEvaluateAllSkipsFailingRule(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(failingRule{}))
	require.NoError(t, reg.Register(NewAnomalyScoreRule()))

	alerts := reg.EvaluateAll(eventWith(baseTx(), map[string]any{"anomaly_score": 0.9}))
	require.Len(t, alerts, 1, "failing rule skipped, healthy rule still evaluated")
	assert.Equal(t, model.AlertAnomalyScore, alerts[0].AlertType)
}

func TestEvaluateAllStampsProvenance(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(NewAnomalyScoreRule()))

	alerts := reg.EvaluateAll(eventWith(baseTx(), map[string]any{"anomaly_score": 0.9}))
	require.Len(t, alerts, 1)
	assert.Equal(t, "anomaly_score", alerts[0].Metadata["rule_id"])
	assert.Equal(t, "0xtx", alerts[0].TxHash)
	assert.InDelta(t, 0.5, alerts[0].RiskScore, 1e-9, "kyt score backfilled")
}

func TestAnomalyScoreRule(t *testing.T) {
	r := NewAnomalyScoreRule()
	tests := []struct {
		name     string
		signals  map[string]any
		wantSev  model.Severity
		wantFire bool
	}{
		{"no signal", nil, "", false},
		{"below threshold", map[string]any{"anomaly_score": 0.5}, "", false},
		{"high", map[string]any{"anomaly_score": 0.88}, model.SeverityHigh, true},
		{"critical", map[string]any{"anomaly_score": 0.97}, model.SeverityCritical, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Evaluate(eventWith(baseTx(), tt.signals))
			require.NoError(t, err)
			if !tt.wantFire {
				assert.Nil(t, a)
				return
			}
			require.NotNil(t, a)
			assert.Equal(t, model.AlertAnomalyScore, a.AlertType)
			assert.Equal(t, tt.wantSev, a.Severity)
		})
	}
}

func TestContractExploitRule(t *testing.T) {
	r := NewContractExploitRule()

	normalGas := baseTx()
	normalGas.GasPrice = 50
	normalGas.InputData = "0x095ea7b3ffff"
	a, err := r.Evaluate(eventWith(normalGas, nil))
	require.NoError(t, err)
	assert.Nil(t, a, "normal gas never fires")

	hotGas := baseTx()
	hotGas.GasPrice = 900
	a, err = r.Evaluate(eventWith(hotGas, nil))
	require.NoError(t, err)
	assert.Nil(t, a, "gas alone is not enough")

	hotGas.InputData = "0x095ea7b3ffff"
	a, err = r.Evaluate(eventWith(hotGas, nil))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.SeverityCritical, a.Severity)
	assert.Equal(t, "0xto", a.Address)
	assert.Equal(t, "0x095ea7b3", a.Metadata["method_selector"])

	hotGas.InputData = ""
	a, err = r.Evaluate(eventWith(hotGas, map[string]any{"exploit_indicators": []string{"reentrancy"}}))
	require.NoError(t, err)
	require.NotNil(t, a, "analyzer indicators also qualify")
}

func TestWhaleMovementRule(t *testing.T) {
	r := NewWhaleMovementRule(1_000_000, []string{"0xWHALE"})
	assert.True(t, r.Watching("0xwhale"))

	tx := baseTx()
	tx.FromAddress = "0xwhale"
	tx.ValueUSD = 500_000
	a, err := r.Evaluate(eventWith(tx, nil))
	require.NoError(t, err)
	assert.Nil(t, a, "below threshold")

	tx.ValueUSD = 2_000_000
	a, err = r.Evaluate(eventWith(tx, nil))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "0xwhale", a.Address)

	r.Remove("0xwhale")
	a, err = r.Evaluate(eventWith(tx, nil))
	require.NoError(t, err)
	assert.Nil(t, a, "removed whale no longer watched")

	r.Add("0xTO")
	a, err = r.Evaluate(eventWith(tx, nil))
	require.NoError(t, err)
	require.NotNil(t, a, "recipient side also matches")
	assert.Equal(t, "0xto", a.Address)
}

func TestFlashLoanRule(t *testing.T) {
	r := NewFlashLoanRule()
	tests := []struct {
		name     string
		signals  map[string]any
		wantFire bool
	}{
		{"no signals", nil, false},
		{"held too long", map[string]any{
			"loan_duration_seconds": 400.0, "profit_usd": 100.0,
			"flash_loan_indicators": []string{"swap_loop"}}, false},
		{"no profit", map[string]any{
			"loan_duration_seconds": 30.0, "profit_usd": 0.0,
			"flash_loan_indicators": []string{"swap_loop"}}, false},
		{"no indicators", map[string]any{
			"loan_duration_seconds": 30.0, "profit_usd": 100.0}, false},
		{"attack", map[string]any{
			"loan_duration_seconds": 30.0, "profit_usd": 50_000.0,
			"flash_loan_indicators": []string{"swap_loop", "oracle_nudge"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Evaluate(eventWith(baseTx(), tt.signals))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFire, a != nil)
			if a != nil {
				assert.Equal(t, model.SeverityCritical, a.Severity)
			}
		})
	}
}

func TestMoneyLaunderingRule(t *testing.T) {
	r := NewMoneyLaunderingRule()

	a, err := r.Evaluate(eventWith(baseTx(), map[string]any{"hop_count": 5}))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "layering", a.Metadata["pattern"])

	structured := baseTx()
	structured.ValueUSD = 9_500
	a, err = r.Evaluate(eventWith(structured, map[string]any{"recent_under_threshold": 4}))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "structuring", a.Metadata["pattern"])

	over := baseTx()
	over.ValueUSD = 10_000
	a, err = r.Evaluate(eventWith(over, map[string]any{"recent_under_threshold": 4}))
	require.NoError(t, err)
	assert.Nil(t, a, "at the reporting threshold is not structuring")
}

func TestCrossChainArbitrageRule(t *testing.T) {
	r := NewCrossChainArbitrageRule()

	a, err := r.Evaluate(eventWith(baseTx(), map[string]any{
		"bridge_hops": 3, "arb_profit_usd": 1_200.0, "arb_window_seconds": 120.0,
		"bridge_address": "0xbridge",
	}))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.AlertCrossChainArb, a.AlertType)
	assert.Equal(t, "0xbridge", a.Metadata["bridge_address"])

	a, err = r.Evaluate(eventWith(baseTx(), map[string]any{
		"bridge_hops": 3, "arb_profit_usd": 1_200.0, "arb_window_seconds": 3_600.0,
	}))
	require.NoError(t, err)
	assert.Nil(t, a, "slow round-trip is not arbitrage")

	a, err = r.Evaluate(eventWith(baseTx(), map[string]any{"bridge_hops": 1, "arb_profit_usd": 1_200.0}))
	require.NoError(t, err)
	assert.Nil(t, a, "single hop is a plain bridge transfer")
}

func TestDarkWebRule(t *testing.T) {
	r := NewDarkWebRule()

	ev := eventWith(baseTx(), nil)
	ev.Result.ToLabels = []string{"Darknet_Market"}
	a, err := r.Evaluate(ev)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "0xto", a.Address, "labeled side attributed")

	clean := eventWith(baseTx(), nil)
	a, err = r.Evaluate(clean)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestInsiderTradingRule(t *testing.T) {
	r := NewInsiderTradingRule()
	tx := baseTx()
	tx.ValueUSD = 80_000

	a, err := r.Evaluate(eventWith(tx, map[string]any{
		"listing_announce_ts": float64(tx.Timestamp + 3_600),
	}))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, int64(3_600), a.Metadata["lead_seconds"])

	a, err = r.Evaluate(eventWith(tx, map[string]any{
		"listing_announce_ts": float64(tx.Timestamp - 60),
	}))
	require.NoError(t, err)
	assert.Nil(t, a, "buying after the announcement is not insider")

	small := baseTx()
	small.ValueUSD = 100
	a, err = r.Evaluate(eventWith(small, map[string]any{
		"listing_announce_ts": float64(small.Timestamp + 3_600),
	}))
	require.NoError(t, err)
	assert.Nil(t, a, "small position ignored")
}

func TestPonziRule(t *testing.T) {
	r := NewPonziRule()

	labeled := eventWith(baseTx(), nil)
	labeled.Result.ToLabels = []string{"ponzi"}
	a, err := r.Evaluate(labeled)
	require.NoError(t, err)
	require.NotNil(t, a)

	a, err = r.Evaluate(eventWith(baseTx(), map[string]any{"inflow_count": 50, "outflow_count": 1}))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 50, a.Metadata["inflow_count"])

	a, err = r.Evaluate(eventWith(baseTx(), map[string]any{"inflow_count": 50, "outflow_count": 30}))
	require.NoError(t, err)
	assert.Nil(t, a, "healthy payout ratio")
}

func TestDefaultRegistry(t *testing.T) {
	reg, whale := DefaultRegistry(nil, 1_000_000, []string{"0xw"})
	assert.Equal(t, 9, reg.Len())
	assert.True(t, whale.Watching("0xw"))
}
