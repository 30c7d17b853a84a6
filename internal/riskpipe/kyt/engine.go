// Package kyt implements the Know-Your-Transaction enrichment step: label
// and risk lookups, combined scoring, escalation, and draft alerts.
package kyt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Weights for the combined transaction score. The values mirror the source
// heuristic and are configuration, not invariants.
type Weights struct {
	From      float64
	To        float64
	Value     float64
	ValueNorm float64 // usd amount that saturates the value term
}

// Thresholds map a combined score to a risk level.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
	Low      float64
}

func DefaultWeights() Weights {
	return Weights{From: 0.4, To: 0.4, Value: 0.2, ValueNorm: 100_000}
}

func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 0.9, High: 0.7, Medium: 0.4, Low: 0.2}
}

// EngineConfig wires the engine. Zero values fall back to defaults in New.
type EngineConfig struct {
	Labels      LabelService
	Scorer      RiskScorer
	Weights     Weights
	Thresholds  Thresholds
	CallTimeout time.Duration

	LargeTransferUSD float64 // draft LARGE_TRANSFER at/above this
	HighRiskAt       float64 // draft HIGH_RISK above this per-address score

	Sanctioned []string // seed sanctions list
	Mixers     []string // seed mixer list

	Hub *Hub // optional live-result broadcast
	Log *slog.Logger
}

// Engine performs per-transaction enrichment. Analyze is total: every
// sub-call failure degrades to zero signal instead of failing the tx.
type Engine struct {
	labels      LabelService
	scorer      RiskScorer
	w           Weights
	th          Thresholds
	callTimeout time.Duration

	largeUSD   float64
	highRiskAt float64

	mu         sync.RWMutex
	sanctioned map[string]struct{}
	mixers     map[string]struct{}

	hub *Hub
	log *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}
	if cfg.LargeTransferUSD <= 0 {
		cfg.LargeTransferUSD = 100_000
	}
	if cfg.HighRiskAt <= 0 {
		cfg.HighRiskAt = 0.7
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	e := &Engine{
		labels:      cfg.Labels,
		scorer:      cfg.Scorer,
		w:           cfg.Weights,
		th:          cfg.Thresholds,
		callTimeout: cfg.CallTimeout,
		largeUSD:    cfg.LargeTransferUSD,
		highRiskAt:  cfg.HighRiskAt,
		sanctioned:  make(map[string]struct{}, len(cfg.Sanctioned)),
		mixers:      make(map[string]struct{}, len(cfg.Mixers)),
		hub:         cfg.Hub,
		log:         cfg.Log.With(slog.String("component", "kyt")),
	}
	for _, a := range cfg.Sanctioned {
		e.sanctioned[normalize(a)] = struct{}{}
	}
	for _, a := range cfg.Mixers {
		e.mixers[normalize(a)] = struct{}{}
	}
	return e
}

func normalize(addr string) string { return strings.ToLower(strings.TrimSpace(addr)) }

// AddSanctioned adds an address to the sanctions list at runtime.
func (e *Engine) AddSanctioned(addr string) {
	e.mu.Lock()
	e.sanctioned[normalize(addr)] = struct{}{}
	e.mu.Unlock()
}

// AddMixer adds an address to the mixer list at runtime.
func (e *Engine) AddMixer(addr string) {
	e.mu.Lock()
	e.mixers[normalize(addr)] = struct{}{}
	e.mu.Unlock()
}

// Analyze enriches one transaction. It never returns an error: lookup
// failures are logged and contribute zero signal.
func (e *Engine) Analyze(ctx context.Context, tx model.Transaction) *model.KYTResult {
	start := time.Now()

	fromLabels := e.fetchLabels(ctx, tx.FromAddress)
	toLabels := e.fetchLabels(ctx, tx.ToAddress)
	fromRisk := e.fetchScore(ctx, tx.FromAddress)
	toRisk := e.fetchScore(ctx, tx.ToAddress)

	valueTerm := 0.0
	if e.w.ValueNorm > 0 {
		valueTerm = tx.ValueUSD / e.w.ValueNorm
		if valueTerm > 1 {
			valueTerm = 1
		}
	}
	score := e.w.From*fromRisk + e.w.To*toRisk + e.w.Value*valueTerm
	score = clamp01(score)
	level := e.levelFor(score)

	sanctionsHit := e.isSanctioned(tx.FromAddress, fromLabels) || e.isSanctioned(tx.ToAddress, toLabels)
	mixerHit := e.isMixer(tx.FromAddress, fromLabels) || e.isMixer(tx.ToAddress, toLabels)

	// Escalation: sanctions always dominate, mixers floor the level at HIGH.
	if sanctionsHit {
		level = model.RiskCritical
	} else if mixerHit && level.Rank() < model.RiskHigh.Rank() {
		level = model.RiskHigh
	}

	res := &model.KYTResult{
		TxHash:       tx.TxHash,
		RiskLevel:    level,
		RiskScore:    score,
		FromLabels:   fromLabels,
		ToLabels:     toLabels,
		FromRisk:     fromRisk,
		ToRisk:       toRisk,
		SanctionsHit: sanctionsHit,
		MixerHit:     mixerHit,
	}
	res.Alerts = e.draftAlerts(tx, res)
	res.HighRiskHit = !sanctionsHit && maxf(fromRisk, toRisk) > e.highRiskAt
	res.AnalysisTimeMs = time.Since(start).Milliseconds()

	if e.hub != nil {
		e.hub.Publish(res)
	}
	return res
}

// ScoreAddress enriches one address for the request/response worker.
// Like Analyze it is total: failures degrade to a zero-signal report.
func (e *Engine) ScoreAddress(ctx context.Context, address string) AddressReport {
	return e.buildReport(ctx, address, e.fetchLabels(ctx, address))
}

// ScoreAddresses enriches a batch, resolving labels with one bulk call.
func (e *Engine) ScoreAddresses(ctx context.Context, addresses []string) []AddressReport {
	labels := e.fetchBulkLabels(ctx, addresses)
	out := make([]AddressReport, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, e.buildReport(ctx, a, labels[a]))
	}
	return out
}

func (e *Engine) buildReport(ctx context.Context, address string, labels []string) AddressReport {
	risk := model.AddressRisk{Address: address, RiskLevel: model.RiskSafe}
	if e.scorer != nil {
		cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
		r, err := e.scorer.CalculateRiskScore(cctx, address)
		cancel()
		if err != nil {
			e.log.Warn("risk score lookup failed", slog.String("address", address), slog.Any("err", err))
		} else {
			risk = r
		}
	}
	risk.RiskScore = clamp01(risk.RiskScore)
	if risk.RiskLevel == "" {
		risk.RiskLevel = e.levelFor(risk.RiskScore)
	}

	report := AddressReport{
		AddressRisk:  risk,
		Labels:       labels,
		SanctionsHit: e.isSanctioned(address, labels),
		MixerHit:     e.isMixer(address, labels),
	}
	if report.SanctionsHit {
		report.RiskLevel = model.RiskCritical
	} else if report.MixerHit && report.RiskLevel.Rank() < model.RiskHigh.Rank() {
		report.RiskLevel = model.RiskHigh
	}
	return report
}

// AddressReport is the single-address enrichment result republished on the
// KYT results topic.
type AddressReport struct {
	model.AddressRisk
	Labels       []string `json:"labels,omitempty"`
	SanctionsHit bool     `json:"sanctions_hit"`
	MixerHit     bool     `json:"mixer_hit"`
}

func (e *Engine) fetchLabels(ctx context.Context, address string) []string {
	if e.labels == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	labels, err := e.labels.GetLabels(cctx, address)
	if err != nil {
		e.log.Warn("label lookup failed", slog.String("address", address), slog.Any("err", err))
		return nil
	}
	return labels
}

func (e *Engine) fetchBulkLabels(ctx context.Context, addresses []string) map[string][]string {
	if e.labels == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	m, err := e.labels.BulkGetLabels(cctx, addresses)
	if err != nil {
		e.log.Warn("bulk label lookup failed", slog.Int("addresses", len(addresses)), slog.Any("err", err))
		return nil
	}
	return m
}

func (e *Engine) fetchScore(ctx context.Context, address string) float64 {
	if e.scorer == nil {
		return 0
	}
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	r, err := e.scorer.CalculateRiskScore(cctx, address)
	if err != nil {
		e.log.Warn("risk score lookup failed", slog.String("address", address), slog.Any("err", err))
		return 0
	}
	return clamp01(r.RiskScore)
}

func (e *Engine) levelFor(score float64) model.RiskLevel {
	switch {
	case score >= e.th.Critical:
		return model.RiskCritical
	case score >= e.th.High:
		return model.RiskHigh
	case score >= e.th.Medium:
		return model.RiskMedium
	case score >= e.th.Low:
		return model.RiskLow
	default:
		return model.RiskSafe
	}
}

func (e *Engine) isSanctioned(address string, labels []string) bool {
	e.mu.RLock()
	_, hit := e.sanctioned[normalize(address)]
	e.mu.RUnlock()
	return hit || hasLabel(labels, "sanctioned", "ofac")
}

func (e *Engine) isMixer(address string, labels []string) bool {
	e.mu.RLock()
	_, hit := e.mixers[normalize(address)]
	e.mu.RUnlock()
	return hit || hasLabel(labels, "mixer", "tumbler")
}

func hasLabel(labels []string, wanted ...string) bool {
	for _, l := range labels {
		if slices.Contains(wanted, strings.ToLower(strings.TrimSpace(l))) {
			return true
		}
	}
	return false
}

func (e *Engine) draftAlerts(tx model.Transaction, res *model.KYTResult) []*model.Alert {
	var out []*model.Alert

	add := func(a *model.Alert, addr string) {
		a.Address = normalize(addr)
		a.TxHash = tx.TxHash
		a.RiskScore = res.RiskScore
		a.Meta("chain", tx.Chain)
		a.Meta("value_usd", tx.ValueUSD)
		out = append(out, a)
	}

	if res.SanctionsHit {
		addr := tx.FromAddress
		if !e.isSanctioned(tx.FromAddress, res.FromLabels) {
			addr = tx.ToAddress
		}
		add(model.NewAlert(model.AlertSanctioned, model.SeverityCritical,
			"Sanctioned counterparty",
			fmt.Sprintf("transaction %s touches a sanctioned address", tx.TxHash)), addr)
	}
	if res.MixerHit {
		addr := tx.FromAddress
		if !e.isMixer(tx.FromAddress, res.FromLabels) {
			addr = tx.ToAddress
		}
		add(model.NewAlert(model.AlertMixer, model.SeverityHigh,
			"Mixer interaction",
			fmt.Sprintf("transaction %s touches a known mixer", tx.TxHash)), addr)
	}
	if tx.ValueUSD >= e.largeUSD {
		add(model.NewAlert(model.AlertLargeTransfer, model.SeverityMedium,
			"Large transfer",
			fmt.Sprintf("transfer of $%.2f at or above reporting size", tx.ValueUSD)), tx.FromAddress)
	}
	if !res.SanctionsHit && maxf(res.FromRisk, res.ToRisk) > e.highRiskAt {
		addr := tx.FromAddress
		if res.ToRisk > res.FromRisk {
			addr = tx.ToAddress
		}
		add(model.NewAlert(model.AlertHighRisk, model.SeverityHigh,
			"High-risk counterparty",
			fmt.Sprintf("address risk %.2f above %.2f", maxf(res.FromRisk, res.ToRisk), e.highRiskAt)), addr)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
