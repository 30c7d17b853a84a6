package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// WhaleMovementRule watches a mutable set of known whale addresses and fires
// on large moves by any of them. The watch-set is the only state a rule is
// allowed to hold; Add/Remove are admin operations.
type WhaleMovementRule struct {
	ThresholdUSD float64

	mu    sync.RWMutex
	watch map[string]struct{}
}

func NewWhaleMovementRule(thresholdUSD float64, seed []string) *WhaleMovementRule {
	if thresholdUSD <= 0 {
		thresholdUSD = 1_000_000
	}
	r := &WhaleMovementRule{
		ThresholdUSD: thresholdUSD,
		watch:        make(map[string]struct{}, len(seed)),
	}
	for _, a := range seed {
		r.watch[norm(a)] = struct{}{}
	}
	return r
}

func norm(addr string) string { return strings.ToLower(strings.TrimSpace(addr)) }

func (r *WhaleMovementRule) ID() string { return "whale_movement" }

func (r *WhaleMovementRule) Add(addr string) {
	r.mu.Lock()
	r.watch[norm(addr)] = struct{}{}
	r.mu.Unlock()
}

func (r *WhaleMovementRule) Remove(addr string) {
	r.mu.Lock()
	delete(r.watch, norm(addr))
	r.mu.Unlock()
}

func (r *WhaleMovementRule) Watching(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watch[norm(addr)]
	return ok
}

func (r *WhaleMovementRule) Evaluate(ev *Event) (*model.Alert, error) {
	if ev.Tx.ValueUSD < r.ThresholdUSD {
		return nil, nil
	}
	whale := ""
	switch {
	case r.Watching(ev.Tx.FromAddress):
		whale = norm(ev.Tx.FromAddress)
	case r.Watching(ev.Tx.ToAddress):
		whale = norm(ev.Tx.ToAddress)
	default:
		return nil, nil
	}

	a := model.NewAlert(model.AlertWhaleMovement, model.SeverityHigh,
		"Whale movement",
		fmt.Sprintf("known whale moved $%.2f", ev.Tx.ValueUSD))
	a.Address = whale
	a.Meta("value_usd", ev.Tx.ValueUSD)
	return a, nil
}
