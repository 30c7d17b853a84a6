// Package pipeline chains enrichment, rule evaluation, correlation, and
// dispatch into the single path every inbound transaction takes.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/correlate"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/dispatch"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/kyt"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/rules"
)

type Pipeline struct {
	kyt   *kyt.Engine
	rules *rules.Registry
	corr  *correlate.Engine
	disp  *dispatch.Dispatcher
	log   *slog.Logger

	processed    atomic.Uint64
	alertsRaised atomic.Uint64
}

func New(engine *kyt.Engine, reg *rules.Registry, corr *correlate.Engine,
	disp *dispatch.Dispatcher, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		kyt:   engine,
		rules: reg,
		corr:  corr,
		disp:  disp,
		log:   log.With(slog.String("component", "pipeline")),
	}
}

// Process runs one transaction through the full chain. The returned error is
// a dispatch persistence failure and means the message should be retried;
// alerts already dispatched before the failure are suppressed on redelivery
// by the fingerprint store, so the retry is safe.
func (p *Pipeline) Process(ctx context.Context, tx model.Transaction, signals map[string]any) (*model.KYTResult, error) {
	res := p.kyt.Analyze(ctx, tx)
	p.processed.Add(1)

	alerts := append([]*model.Alert(nil), res.Alerts...)
	if p.rules != nil {
		ev := &rules.Event{Tx: tx, Result: res, Signals: signals}
		alerts = append(alerts, p.rules.EvaluateAll(ev)...)
	}

	// Composites join the dispatch batch but do NOT feed back into the
	// window, or a composite could correlate with its own sources.
	if p.corr != nil {
		var composites []*model.Alert
		for _, a := range alerts {
			if c := p.corr.Correlate(a); c != nil {
				composites = append(composites, c)
			}
		}
		alerts = append(alerts, composites...)
	}

	for _, a := range alerts {
		if err := p.disp.Dispatch(ctx, a); err != nil {
			return res, err
		}
		p.alertsRaised.Add(1)
	}

	if len(alerts) > 0 {
		p.log.Info("transaction processed",
			slog.String("tx_hash", tx.TxHash),
			slog.String("risk_level", string(res.RiskLevel)),
			slog.Int("alerts", len(alerts)))
	}
	return res, nil
}

// Processed returns the number of transactions run through the pipeline.
func (p *Pipeline) Processed() uint64 { return p.processed.Load() }

// AlertsRaised returns the number of alerts dispatched.
func (p *Pipeline) AlertsRaised() uint64 { return p.alertsRaised.Load() }
