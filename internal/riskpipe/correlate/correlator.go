// Package correlate synthesizes higher-severity composite alerts from
// co-occurring alerts on the same address inside a bounded recent window.
package correlate

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// PairRule fires when alerts of TypeA and TypeB (either order) hit the same
// address within the window.
type PairRule struct {
	TypeA    string
	TypeB    string
	Rule     string // correlation_rule metadata value
	Produces string
	Severity model.Severity
	Title    string
}

// DefaultPairs is the built-in co-occurrence table.
func DefaultPairs() []PairRule {
	return []PairRule{
		{
			TypeA: model.AlertFlashLoan, TypeB: model.AlertContractExploit,
			Rule: "flash_loan_exploit", Produces: model.AlertSuspiciousPattern,
			Severity: model.SeverityCritical, Title: "Flash loan with contract exploit",
		},
		{
			TypeA: model.AlertMixer, TypeB: model.AlertLargeTransfer,
			Rule: "mixer_large_transfer", Produces: model.AlertSuspiciousPattern,
			Severity: model.SeverityHigh, Title: "Large transfer through mixer",
		},
		{
			TypeA: model.AlertDarkWeb, TypeB: model.AlertWhaleMovement,
			Rule: "darkweb_whale", Produces: model.AlertSuspiciousPattern,
			Severity: model.SeverityHigh, Title: "Whale activity with darknet exposure",
		},
	}
}

type entry struct {
	alert *model.Alert
	at    time.Time
}

// Engine keeps the recent-alert window. Multiple workers dispatch alerts
// concurrently, so every access is under the mutex; eviction is by both age
// and count so the window cannot grow without bound.
type Engine struct {
	mu         sync.Mutex
	recent     []entry
	head       int
	window     time.Duration
	maxEntries int
	pairs      []PairRule

	now func() time.Time
	log *slog.Logger
}

func New(window time.Duration, maxEntries int, pairs []PairRule, log *slog.Logger) *Engine {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if pairs == nil {
		pairs = DefaultPairs()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		window:     window,
		maxEntries: maxEntries,
		pairs:      pairs,
		now:        time.Now,
		log:        log.With(slog.String("component", "correlate")),
	}
}

// Correlate records the alert in the window and returns a synthesized
// composite alert when a pair rule matches, else nil.
func (e *Engine) Correlate(a *model.Alert) *model.Alert {
	if a == nil || a.Address == "" {
		return nil
	}
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.evictLocked(now)

	var match *model.Alert
	var rule PairRule
	addr := strings.ToLower(a.Address)
	for i := e.head; i < len(e.recent) && match == nil; i++ {
		prev := e.recent[i].alert
		if strings.ToLower(prev.Address) != addr {
			continue
		}
		for _, p := range e.pairs {
			if (prev.AlertType == p.TypeA && a.AlertType == p.TypeB) ||
				(prev.AlertType == p.TypeB && a.AlertType == p.TypeA) {
				match, rule = prev, p
				break
			}
		}
	}

	e.recent = append(e.recent, entry{alert: a, at: now})
	if len(e.recent)-e.head > e.maxEntries {
		e.head++
		e.maybeCompactLocked()
	}

	if match == nil {
		return nil
	}

	out := model.NewAlert(rule.Produces, rule.Severity, rule.Title,
		fmt.Sprintf("correlated %s and %s on %s", match.AlertType, a.AlertType, addr))
	out.Address = addr
	out.TxHash = a.TxHash
	out.RiskScore = maxf(match.RiskScore, a.RiskScore)
	out.Meta("correlation_rule", rule.Rule)
	out.Meta("source_alert_ids", []string{match.AlertID, a.AlertID})
	e.log.Info("correlated alert",
		slog.String("rule", rule.Rule),
		slog.String("address", addr),
		slog.String("alert_id", out.AlertID))
	return out
}

// Window returns the number of alerts currently retained.
func (e *Engine) Window() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recent) - e.head
}

func (e *Engine) evictLocked(now time.Time) {
	cut := now.Add(-e.window)
	for e.head < len(e.recent) && e.recent[e.head].at.Before(cut) {
		e.head++
	}
	e.maybeCompactLocked()
}

func (e *Engine) maybeCompactLocked() {
	if e.head > 1024 && e.head*2 > len(e.recent) {
		rest := make([]entry, len(e.recent)-e.head)
		copy(rest, e.recent[e.head:])
		e.recent = rest
		e.head = 0
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
