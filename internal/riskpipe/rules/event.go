package rules

import (
	"strings"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Event is what every rule sees: the raw transaction, the KYT result, and
// the upstream detector signals that rode in with the queue message.
type Event struct {
	Tx      model.Transaction
	Result  *model.KYTResult
	Signals map[string]any
}

// Float reads a numeric signal. JSON numbers decode as float64; ints are
// coerced for signals built in-process.
func (e *Event) Float(key string) (float64, bool) {
	v, ok := e.Signals[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Int reads a numeric signal truncated to int.
func (e *Event) Int(key string) (int, bool) {
	f, ok := e.Float(key)
	return int(f), ok
}

// Bool reads a boolean signal.
func (e *Event) Bool(key string) bool {
	b, _ := e.Signals[key].(bool)
	return b
}

// Strings reads a string-list signal, tolerating []any from JSON.
func (e *Event) Strings(key string) []string {
	switch v := e.Signals[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Labels returns the union of from/to labels, lowercased.
func (e *Event) Labels() []string {
	if e.Result == nil {
		return nil
	}
	out := make([]string, 0, len(e.Result.FromLabels)+len(e.Result.ToLabels))
	for _, l := range e.Result.FromLabels {
		out = append(out, strings.ToLower(l))
	}
	for _, l := range e.Result.ToLabels {
		out = append(out, strings.ToLower(l))
	}
	return out
}

// HasLabel reports whether any address label matches one of the wanted set.
func (e *Event) HasLabel(wanted ...string) bool {
	for _, l := range e.Labels() {
		for _, w := range wanted {
			if l == w {
				return true
			}
		}
	}
	return false
}
