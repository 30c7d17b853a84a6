package correlate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func alert(alertType, addr string, score float64) *model.Alert {
	a := model.NewAlert(alertType, model.SeverityHigh, "t", "d")
	a.Address = addr
	a.RiskScore = score
	return a
}

func TestCorrelatePairSameAddress(t *testing.T) {
	e := New(10*time.Minute, 100, nil, nil)

	require.Nil(t, e.Correlate(alert(model.AlertFlashLoan, "0xa", 0.6)))
	out := e.Correlate(alert(model.AlertContractExploit, "0xA", 0.9))
	require.NotNil(t, out, "pair matches case-insensitively")

	assert.Equal(t, model.AlertSuspiciousPattern, out.AlertType)
	assert.Equal(t, model.SeverityCritical, out.Severity)
	assert.Equal(t, "0xa", out.Address)
	assert.InDelta(t, 0.9, out.RiskScore, 1e-9, "max of the pair")
	assert.Equal(t, "flash_loan_exploit", out.Metadata["correlation_rule"])
	ids, ok := out.Metadata["source_alert_ids"].([]string)
	require.True(t, ok)
	assert.Len(t, ids, 2)
}

func TestCorrelateDifferentAddressesDoNotPair(t *testing.T) {
	e := New(10*time.Minute, 100, nil, nil)
	require.Nil(t, e.Correlate(alert(model.AlertFlashLoan, "0xa", 0.5)))
	assert.Nil(t, e.Correlate(alert(model.AlertContractExploit, "0xb", 0.5)))
}

func TestCorrelateUnrelatedTypesDoNotPair(t *testing.T) {
	e := New(10*time.Minute, 100, nil, nil)
	require.Nil(t, e.Correlate(alert(model.AlertMixer, "0xa", 0.5)))
	assert.Nil(t, e.Correlate(alert(model.AlertDarkWeb, "0xa", 0.5)))
}

func TestCorrelateWindowExpiry(t *testing.T) {
	e := New(10*time.Minute, 100, nil, nil)
	clock := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return clock }

	require.Nil(t, e.Correlate(alert(model.AlertMixer, "0xa", 0.5)))

	clock = clock.Add(11 * time.Minute)
	assert.Nil(t, e.Correlate(alert(model.AlertLargeTransfer, "0xa", 0.5)),
		"first alert aged out of the window")
	assert.Equal(t, 1, e.Window())
}

func TestCorrelateWithinWindowPairs(t *testing.T) {
	e := New(10*time.Minute, 100, nil, nil)
	clock := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return clock }

	require.Nil(t, e.Correlate(alert(model.AlertMixer, "0xa", 0.5)))
	clock = clock.Add(9 * time.Minute)
	out := e.Correlate(alert(model.AlertLargeTransfer, "0xa", 0.5))
	require.NotNil(t, out)
	assert.Equal(t, "mixer_large_transfer", out.Metadata["correlation_rule"])
}

func TestCorrelateMaxEntriesBound(t *testing.T) {
	e := New(time.Hour, 10, nil, nil)
	for i := 0; i < 50; i++ {
		e.Correlate(alert(model.AlertHighRisk, fmt.Sprintf("0x%d", i), 0.5))
	}
	assert.LessOrEqual(t, e.Window(), 10)
}

func TestCorrelateIgnoresAnonymousAlerts(t *testing.T) {
	e := New(10*time.Minute, 100, nil, nil)
	assert.Nil(t, e.Correlate(alert(model.AlertFlashLoan, "", 0.5)))
	assert.Zero(t, e.Window(), "address-less alerts stay out of the window")
}
