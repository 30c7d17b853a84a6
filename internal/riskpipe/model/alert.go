package model

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/chenzhangda16/web3-riskpipe/pkg/hash"
)

// Severity of an alert. Independent scale from RiskLevel (no SAFE).
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Alert types. The set is open: rules may introduce new types without the
// engine or dispatcher caring, these are the ones emitted in-repo.
const (
	AlertSanctioned        = "SANCTIONED"
	AlertMixer             = "MIXER"
	AlertLargeTransfer     = "LARGE_TRANSFER"
	AlertHighRisk          = "HIGH_RISK"
	AlertAnomalyScore      = "ANOMALY_SCORE"
	AlertContractExploit   = "CONTRACT_EXPLOIT"
	AlertWhaleMovement     = "WHALE_MOVEMENT"
	AlertFlashLoan         = "FLASH_LOAN_ATTACK"
	AlertMoneyLaundering   = "MONEY_LAUNDERING"
	AlertCrossChainArb     = "CROSS_CHAIN_ARBITRAGE"
	AlertDarkWeb           = "DARK_WEB"
	AlertInsiderTrading    = "INSIDER_TRADING"
	AlertPonziScheme       = "PONZI_SCHEME"
	AlertVASPTransfer      = "VASP_TRANSFER"
	AlertSuspiciousPattern = "SUSPICIOUS_PATTERN"
)

// Alert is the append-only audit unit of the pipeline. Mutated only by
// acknowledgment after creation.
type Alert struct {
	AlertID      string         `json:"alert_id"`
	AlertType    string         `json:"alert_type"`
	Severity     Severity       `json:"severity"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Address      string         `json:"address,omitempty"`
	TxHash       string         `json:"tx_hash,omitempty"`
	RiskScore    float64        `json:"risk_score,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Acknowledged bool           `json:"acknowledged"`
}

// NewAlert builds an alert with generated identity.
func NewAlert(alertType string, sev Severity, title, desc string) *Alert {
	return &Alert{
		AlertID:     uuid.NewString(),
		AlertType:   alertType,
		Severity:    sev,
		Title:       title,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
}

// EnsureIdentity fills alert_id and created_at when the upstream payload
// omitted them. This is the only implicit mutation of an inbound alert.
func (a *Alert) EnsureIdentity() {
	if a.AlertID == "" {
		a.AlertID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

// Meta sets one metadata key, allocating the map on first use.
func (a *Alert) Meta(key string, v any) *Alert {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any, 4)
	}
	a.Metadata[key] = v
	return a
}

// RiskBucket maps the risk score to a 0.1-wide bucket (0..10) so that near
// identical re-detections share a dedup fingerprint.
func (a *Alert) RiskBucket() int {
	s := a.RiskScore
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return int(math.Floor(s * 10))
}

// Fingerprint is the dedup key: (type, address, risk bucket).
func (a *Alert) Fingerprint() hash.Hash32 {
	return hash.Fingerprint(a.AlertType, a.Address, a.RiskBucket())
}
