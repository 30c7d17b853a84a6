package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/pipeline"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/queue"
)

// TxEvent is the transaction-topic payload: the transaction itself plus any
// upstream detector signals riding along for the rule engine.
type TxEvent struct {
	model.Transaction
	Signals map[string]any `json:"signals,omitempty"`
}

// NewTxHandler decodes transaction events and runs them through the pipeline.
// Malformed or invalid payloads are poison: rejected straight to the DLQ.
func NewTxHandler(p *pipeline.Pipeline, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "consumer"), slog.String("worker", "tx"))

	return func(ctx context.Context, m *queue.Message) error {
		var ev TxEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return Reject("decode_error", err)
		}
		if err := ev.Transaction.Validate(); err != nil {
			return Reject("invalid_transaction", err)
		}

		res, err := p.Process(ctx, ev.Transaction, ev.Signals)
		if err != nil {
			return err
		}
		log.Debug("transaction analyzed",
			slog.String("tx_hash", ev.TxHash),
			slog.String("risk_level", string(res.RiskLevel)),
			slog.Int64("analysis_ms", res.AnalysisTimeMs))
		return nil
	}
}
