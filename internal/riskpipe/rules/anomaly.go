package rules

import (
	"fmt"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// AnomalyScoreRule fires on the upstream anomaly detector's score signal.
type AnomalyScoreRule struct {
	Threshold  float64 // HIGH at/above this
	CriticalAt float64 // CRITICAL at/above this
}

func NewAnomalyScoreRule() *AnomalyScoreRule {
	return &AnomalyScoreRule{Threshold: 0.85, CriticalAt: 0.95}
}

func (r *AnomalyScoreRule) ID() string { return "anomaly_score" }

func (r *AnomalyScoreRule) Evaluate(ev *Event) (*model.Alert, error) {
	score, ok := ev.Float("anomaly_score")
	if !ok || score < r.Threshold {
		return nil, nil
	}
	sev := model.SeverityHigh
	if score >= r.CriticalAt {
		sev = model.SeverityCritical
	}
	a := model.NewAlert(model.AlertAnomalyScore, sev,
		"Anomalous transaction",
		fmt.Sprintf("anomaly score %.3f at or above %.2f", score, r.Threshold))
	a.Address = ev.Tx.FromAddress
	a.Meta("anomaly_score", score)
	return a, nil
}
