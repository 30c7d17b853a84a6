// Package rules holds the extensible detection-rule registry. Adding
// detection logic means appending a Rule implementation; the engine itself
// never changes.
package rules

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Rule is one independent detector. Evaluate must be side-effect-free with
// respect to the event; a nil alert means no finding.
type Rule interface {
	ID() string
	Evaluate(ev *Event) (*model.Alert, error)
}

// Registry is an ordered, id-keyed rule set. Evaluation is a linear fan-out:
// every rule sees the same event and decides independently.
type Registry struct {
	mu    sync.RWMutex
	order []Rule
	index map[string]int
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		index: make(map[string]int),
		log:   log.With(slog.String("component", "rules")),
	}
}

// Register appends a rule. Duplicate ids are rejected.
func (r *Registry) Register(rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := rule.ID()
	if _, dup := r.index[id]; dup {
		return fmt.Errorf("rules: duplicate rule id %q", id)
	}
	r.index[id] = len(r.order)
	r.order = append(r.order, rule)
	return nil
}

// Unregister removes a rule by id; reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.order = append(r.order[:i], r.order[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.order); j++ {
		r.index[r.order[j].ID()] = j
	}
	return true
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// EvaluateAll fans the event out to every rule in registration order. A rule
// error is logged and skipped; it never aborts the other rules.
func (r *Registry) EvaluateAll(ev *Event) []*model.Alert {
	r.mu.RLock()
	snapshot := make([]Rule, len(r.order))
	copy(snapshot, r.order)
	r.mu.RUnlock()

	var out []*model.Alert
	for _, rule := range snapshot {
		a, err := rule.Evaluate(ev)
		if err != nil {
			r.log.Warn("rule evaluation failed", slog.String("rule", rule.ID()), slog.Any("err", err))
			continue
		}
		if a == nil {
			continue
		}
		a.Meta("rule_id", rule.ID())
		if a.TxHash == "" {
			a.TxHash = ev.Tx.TxHash
		}
		if a.RiskScore == 0 && ev.Result != nil {
			a.RiskScore = ev.Result.RiskScore
		}
		out = append(out, a)
	}
	return out
}
