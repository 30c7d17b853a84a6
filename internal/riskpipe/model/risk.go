package model

// RiskLevel classifies a transaction or address on the fixed 5-step scale.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders levels so escalation can be expressed as max().
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// AddressRisk is the external risk scorer's verdict for one address.
type AddressRisk struct {
	Address    string    `json:"address"`
	RiskScore  float64   `json:"risk_score"` // [0,1]
	RiskLevel  RiskLevel `json:"risk_level"`
	Factors    []string  `json:"factors,omitempty"`
	Confidence float64   `json:"confidence"`
}

// KYTResult is the enrichment outcome for a single transaction. Created once
// by the KYT engine and never mutated afterwards; alerts derived from it are
// what gets persisted.
type KYTResult struct {
	TxHash         string    `json:"tx_hash"`
	RiskLevel      RiskLevel `json:"risk_level"`
	RiskScore      float64   `json:"risk_score"`
	Alerts         []*Alert  `json:"alerts,omitempty"`
	FromLabels     []string  `json:"from_labels,omitempty"`
	ToLabels       []string  `json:"to_labels,omitempty"`
	FromRisk       float64   `json:"from_risk"`
	ToRisk         float64   `json:"to_risk"`
	SanctionsHit   bool      `json:"sanctions_hit"`
	MixerHit       bool      `json:"mixer_hit"`
	HighRiskHit    bool      `json:"high_risk_hit"`
	AnalysisTimeMs int64     `json:"analysis_time_ms"`
}
