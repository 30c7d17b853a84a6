package dispatch

import (
	"sync"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/pkg/hash"
)

// FingerprintStore remembers dispatched alert fingerprints for the dedup
// window. Seen and Add are split so the dispatcher can record a fingerprint
// only after the alert was durably persisted.
type FingerprintStore interface {
	Seen(fp hash.Hash32, now time.Time) (bool, error)
	Add(fp hash.Hash32, now time.Time, ttl time.Duration) error
	Close() error
}

// MemoryDeduper is a map + insertion-order queue with head-compacted
// eviction. Safe for concurrent dispatchers.
type MemoryDeduper struct {
	mu   sync.Mutex
	m    map[hash.Hash32]int64 // fp -> expire unix
	q    []dedupItem
	head int
}

type dedupItem struct {
	fp     hash.Hash32
	expire int64
}

func NewMemoryDeduper(capHint int) *MemoryDeduper {
	if capHint < 0 {
		capHint = 0
	}
	return &MemoryDeduper{
		m: make(map[hash.Hash32]int64, capHint),
		q: make([]dedupItem, 0, capHint),
	}
}

func (d *MemoryDeduper) Seen(fp hash.Hash32, now time.Time) (bool, error) {
	ts := now.Unix()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictLocked(ts)

	exp, ok := d.m[fp]
	return ok && exp >= ts, nil
}

func (d *MemoryDeduper) Add(fp hash.Hash32, now time.Time, ttl time.Duration) error {
	ts := now.Unix()
	expire := now.Add(ttl).Unix()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictLocked(ts)

	d.m[fp] = expire
	d.q = append(d.q, dedupItem{fp: fp, expire: expire})
	return nil
}

func (d *MemoryDeduper) Close() error { return nil }

func (d *MemoryDeduper) evictLocked(nowTs int64) {
	for d.head < len(d.q) {
		it := d.q[d.head]
		if it.expire >= nowTs {
			break
		}
		// Only delete if the map still points at this expiry (the key may
		// have been re-added with a later one).
		if exp, ok := d.m[it.fp]; ok && exp == it.expire {
			delete(d.m, it.fp)
		}
		d.head++
	}
	if d.head > 4096 && d.head*2 > len(d.q) {
		rest := make([]dedupItem, len(d.q)-d.head)
		copy(rest, d.q[d.head:])
		d.q = rest
		d.head = 0
	}
}
