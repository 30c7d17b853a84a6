package dispatch

// Travel-rule compliance verdicts attached to VASP/large-transfer alerts.
const (
	ComplianceExempt             = "exempt"
	ComplianceCompliant          = "compliant"
	ComplianceMissingOriginator  = "missing_originator"
	ComplianceMissingBeneficiary = "missing_beneficiary"
)

// TravelRule evaluates whether a transfer carries the originator and
// beneficiary identity the travel rule requires at or above the threshold.
type TravelRule struct {
	ThresholdUSD float64
}

// Evaluate reads the transfer value and identity fields from alert metadata.
func (t TravelRule) Evaluate(meta map[string]any) string {
	value, _ := meta["value_usd"].(float64)
	if value < t.ThresholdUSD {
		return ComplianceExempt
	}
	if !presentString(meta, "originator") {
		return ComplianceMissingOriginator
	}
	if !presentString(meta, "beneficiary") {
		return ComplianceMissingBeneficiary
	}
	return ComplianceCompliant
}

func presentString(meta map[string]any, key string) bool {
	s, ok := meta[key].(string)
	return ok && s != ""
}
