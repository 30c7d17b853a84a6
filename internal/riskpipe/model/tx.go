package model

import (
	"errors"
	"strings"
)

// Transaction is the immutable input event produced by an upstream chain
// adapter. Consumed exactly once per pipeline invocation.
type Transaction struct {
	TxHash      string  `json:"tx_hash"`
	Chain       string  `json:"chain"`
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	ValueNative float64 `json:"value_native"`
	ValueUSD    float64 `json:"value_usd"`
	Timestamp   int64   `json:"timestamp"` // unix seconds
	BlockNumber int64   `json:"block_number"`
	GasPrice    float64 `json:"gas_price,omitempty"` // gwei
	InputData   string  `json:"input_data,omitempty"`
}

var ErrBadTransaction = errors.New("bad transaction")

func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.TxHash) == "" {
		return errors.Join(ErrBadTransaction, errors.New("tx_hash empty"))
	}
	if strings.TrimSpace(t.FromAddress) == "" || strings.TrimSpace(t.ToAddress) == "" {
		return errors.Join(ErrBadTransaction, errors.New("from/to address empty"))
	}
	if t.ValueUSD < 0 {
		return errors.Join(ErrBadTransaction, errors.New("negative value_usd"))
	}
	return nil
}

// MethodSelector returns the 4-byte method selector ("0x" + 8 hex chars)
// from input_data, or "" when the call data is too short.
func (t *Transaction) MethodSelector() string {
	s := strings.TrimSpace(strings.ToLower(t.InputData))
	s = strings.TrimPrefix(s, "0x")
	if len(s) < 8 {
		return ""
	}
	return "0x" + s[:8]
}
