// Package dispatch routes every alert through dedup, persistence, and the
// best-effort side effects: broadcast, email, bridge enrichment, compliance.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/bridge"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Producer republishes enriched alerts to a queue topic (cross-chain feed).
// Satisfied by queue.Queue.
type Producer interface {
	Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// Config for the dispatcher. Nil collaborators disable their step.
type Config struct {
	DedupWindow     time.Duration
	EmailRecipients []string
	BroadcastTopic  string
	CrossChainTopic string
	TravelRule      TravelRule
}

// Stats are monotonic counters for operator visibility.
type Stats struct {
	Dispatched        uint64
	Suppressed        uint64
	BroadcastFailures uint64
	EmailFailures     uint64
	BridgeFailures    uint64
	ComplianceChecked uint64
}

// Dispatcher is safe for concurrent use by multiple workers.
type Dispatcher struct {
	cfg      Config
	dedup    FingerprintStore
	store    Store
	bcast    Broadcaster
	email    EmailSender
	bridges  *bridge.Registry
	producer Producer
	log      *slog.Logger

	dispatched        atomic.Uint64
	suppressed        atomic.Uint64
	broadcastFailures atomic.Uint64
	emailFailures     atomic.Uint64
	bridgeFailures    atomic.Uint64
	complianceChecked atomic.Uint64
}

func New(cfg Config, dedup FingerprintStore, store Store, bcast Broadcaster,
	email EmailSender, bridges *bridge.Registry, producer Producer, log *slog.Logger) *Dispatcher {

	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if cfg.TravelRule.ThresholdUSD <= 0 {
		cfg.TravelRule.ThresholdUSD = 3000
	}
	if dedup == nil {
		dedup = NewMemoryDeduper(10_000)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		cfg:      cfg,
		dedup:    dedup,
		store:    store,
		bcast:    bcast,
		email:    email,
		bridges:  bridges,
		producer: producer,
		log:      log.With(slog.String("component", "dispatch")),
	}
}

// Dispatch runs the full chain for one alert. A non-nil error means the
// alert was NOT durably recorded and the message should be retried; every
// failure past persistence is logged and absorbed.
func (d *Dispatcher) Dispatch(ctx context.Context, a *model.Alert) error {
	a.EnsureIdentity()
	now := time.Now()
	fp := a.Fingerprint()

	// 1. dedup
	seen, err := d.dedup.Seen(fp, now)
	if err != nil {
		d.log.Warn("dedup lookup failed, treating as unseen", slog.Any("err", err))
	}
	if seen {
		d.suppressed.Add(1)
		d.log.Debug("alert suppressed as duplicate",
			slog.String("alert_type", a.AlertType),
			slog.String("fingerprint", fp.Hex()))
		return nil
	}

	// 2. persist; this is the durable step, so failure propagates to the
	// worker's retry path and the fingerprint is not recorded.
	if d.store != nil {
		if _, err := d.store.Append(ctx, a); err != nil {
			return fmt.Errorf("dispatch: persist alert %s: %w", a.AlertID, err)
		}
	}
	if err := d.dedup.Add(fp, now, d.cfg.DedupWindow); err != nil {
		d.log.Warn("dedup record failed", slog.Any("err", err))
	}
	d.dispatched.Add(1)

	// 3-6 are independently best-effort.
	d.broadcast(ctx, a)
	d.notify(ctx, a)
	d.enrichBridge(ctx, a)
	d.enrichCompliance(a)
	return nil
}

func (d *Dispatcher) broadcast(ctx context.Context, a *model.Alert) {
	if d.bcast == nil || d.cfg.BroadcastTopic == "" {
		return
	}
	payload, err := json.Marshal(a)
	if err == nil {
		err = d.bcast.Publish(ctx, d.cfg.BroadcastTopic, payload)
	}
	if err != nil {
		d.broadcastFailures.Add(1)
		d.log.Warn("alert broadcast failed", slog.String("alert_id", a.AlertID), slog.Any("err", err))
	}
}

func (d *Dispatcher) notify(ctx context.Context, a *model.Alert) {
	if d.email == nil || len(d.cfg.EmailRecipients) == 0 {
		return
	}
	if a.Severity.Rank() < model.SeverityHigh.Rank() {
		return
	}
	subject := fmt.Sprintf("[%s] %s: %s", a.Severity, a.AlertType, a.Title)
	body := fmt.Sprintf("%s\n\nalert_id: %s\naddress: %s\ntx_hash: %s\ncreated_at: %s\n",
		a.Description, a.AlertID, a.Address, a.TxHash, a.CreatedAt.Format(time.RFC3339))
	if err := d.email.Send(ctx, d.cfg.EmailRecipients, subject, body); err != nil {
		d.emailFailures.Add(1)
		d.log.Warn("alert email failed", slog.String("alert_id", a.AlertID), slog.Any("err", err))
	}
}

// enrichBridge resolves the bridge contract for cross-chain alert types and
// attaches its identity, then republishes to the cross-chain topic.
func (d *Dispatcher) enrichBridge(ctx context.Context, a *model.Alert) {
	if d.bridges == nil || !isCrossChain(a) {
		return
	}
	addr, _ := a.Metadata["bridge_address"].(string)
	if addr == "" {
		addr, _ = a.Metadata["contract_address"].(string)
	}
	chain, _ := a.Metadata["chain"].(string)
	if addr == "" || chain == "" {
		return
	}
	c, ok := d.bridges.Get(addr, chain)
	if !ok {
		return
	}
	a.Meta("bridge_name", c.Name)
	a.Meta("bridge_type", c.BridgeType)
	a.Meta("counterpart_chains", c.CounterpartChains)
	if counterpart, okk := d.bridges.InferCounterpart(addr, chain); okk {
		a.Meta("counterpart_chain", counterpart)
	}

	if d.producer == nil || d.cfg.CrossChainTopic == "" {
		return
	}
	payload, err := json.Marshal(a)
	if err == nil {
		err = d.producer.Produce(ctx, d.cfg.CrossChainTopic, a.AlertID, payload, nil)
	}
	if err != nil {
		d.bridgeFailures.Add(1)
		d.log.Warn("cross-chain republish failed", slog.String("alert_id", a.AlertID), slog.Any("err", err))
	}
}

func (d *Dispatcher) enrichCompliance(a *model.Alert) {
	switch a.AlertType {
	case model.AlertVASPTransfer, model.AlertLargeTransfer:
	default:
		return
	}
	verdict := d.cfg.TravelRule.Evaluate(a.Metadata)
	a.Meta("compliance_status", verdict)
	d.complianceChecked.Add(1)
}

func isCrossChain(a *model.Alert) bool {
	if a.AlertType == model.AlertCrossChainArb {
		return true
	}
	_, hasBridge := a.Metadata["bridge_address"]
	return hasBridge
}

// Stats snapshots the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:        d.dispatched.Load(),
		Suppressed:        d.suppressed.Load(),
		BroadcastFailures: d.broadcastFailures.Load(),
		EmailFailures:     d.emailFailures.Load(),
		BridgeFailures:    d.bridgeFailures.Load(),
		ComplianceChecked: d.complianceChecked.Load(),
	}
}
