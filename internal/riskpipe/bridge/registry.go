// Package bridge keeps the registry of known cross-chain bridge contracts
// used to enrich alerts that touch bridge addresses.
package bridge

import (
	"errors"
	"strings"
	"sync"
)

// Contract describes one bridge contract on one chain.
type Contract struct {
	Address           string   `json:"address"` // normalized lowercase
	Chain             string   `json:"chain"`
	Name              string   `json:"name"`
	BridgeType        string   `json:"bridge_type"`
	CounterpartChains []string `json:"counterpart_chains,omitempty"`
	MethodSelectors   []string `json:"method_selectors,omitempty"`
}

var ErrBadContract = errors.New("bridge: address and chain required")

type key struct {
	address string
	chain   string
}

// Registry is read-mostly: lookups happen on every bridge-flagged alert,
// writes are rare admin operations. A single RWMutex is enough.
type Registry struct {
	mu        sync.RWMutex
	contracts map[key]Contract
	byChain   map[string][]key
	selectors map[string]int // refcount across contracts
}

func NewRegistry() *Registry {
	return &Registry{
		contracts: make(map[key]Contract),
		byChain:   make(map[string][]key),
		selectors: make(map[string]int),
	}
}

func normAddr(s string) string  { return strings.ToLower(strings.TrimSpace(s)) }
func normChain(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normSelector(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// Register adds (or re-registers, replacing) a contract. Keys are
// case-normalized on write.
func (r *Registry) Register(c Contract) error {
	c.Address = normAddr(c.Address)
	c.Chain = normChain(c.Chain)
	if c.Address == "" || c.Chain == "" {
		return ErrBadContract
	}
	if len(c.MethodSelectors) > 0 {
		// copy before normalizing so the caller's slice stays untouched
		sels := make([]string, len(c.MethodSelectors))
		for i, sel := range c.MethodSelectors {
			sels[i] = normSelector(sel)
		}
		c.MethodSelectors = sels
	}
	k := key{address: c.Address, chain: c.Chain}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.contracts[k]; ok {
		r.dropLocked(k, old)
	}
	r.contracts[k] = c
	r.byChain[c.Chain] = append(r.byChain[c.Chain], k)
	for _, sel := range c.MethodSelectors {
		if sel != "" {
			r.selectors[sel]++
		}
	}
	return nil
}

// Remove deletes a contract; reports whether it existed.
func (r *Registry) Remove(address, chain string) bool {
	k := key{address: normAddr(address), chain: normChain(chain)}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contracts[k]
	if !ok {
		return false
	}
	r.dropLocked(k, c)
	return true
}

func (r *Registry) dropLocked(k key, c Contract) {
	delete(r.contracts, k)
	keys := r.byChain[k.chain]
	for i, kk := range keys {
		if kk == k {
			r.byChain[k.chain] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	for _, sel := range c.MethodSelectors {
		if sel == "" {
			continue
		}
		if r.selectors[sel] <= 1 {
			delete(r.selectors, sel)
		} else {
			r.selectors[sel]--
		}
	}
}

// Get looks up a contract by (address, chain), case-insensitive.
func (r *Registry) Get(address, chain string) (Contract, bool) {
	k := key{address: normAddr(address), chain: normChain(chain)}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[k]
	return c, ok
}

// GetByChain returns all contracts registered on a chain.
func (r *Registry) GetByChain(chain string) []Contract {
	ch := normChain(chain)

	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := r.byChain[ch]
	out := make([]Contract, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.contracts[k])
	}
	return out
}

// IsBridgeMethod reports whether any registered contract carries the selector.
func (r *Registry) IsBridgeMethod(selector string) bool {
	sel := normSelector(selector)
	if sel == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectors[sel] > 0
}

// InferCounterpart returns the counterpart chain when it is unambiguous:
// exactly one counterpart registered. Zero or several counterparts need an
// external hint, so ok is false.
func (r *Registry) InferCounterpart(address, chain string) (string, bool) {
	c, ok := r.Get(address, chain)
	if !ok || len(c.CounterpartChains) != 1 {
		return "", false
	}
	return c.CounterpartChains[0], true
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
