package kyt

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Hub fans enrichment results out to live subscribers over bounded queues.
// A slow subscriber never stalls the hot path: the send waits at most
// sendTimeout, then the message is dropped for that subscriber and counted.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64

	queueSize   int
	sendTimeout time.Duration

	dropped atomic.Uint64
	log     *slog.Logger
}

type subscriber struct {
	ch   chan *model.KYTResult
	done chan struct{}
}

func NewHub(queueSize int, sendTimeout time.Duration, log *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 64
	}
	if sendTimeout <= 0 {
		sendTimeout = 100 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:        make(map[uint64]*subscriber),
		queueSize:   queueSize,
		sendTimeout: sendTimeout,
		log:         log.With(slog.String("component", "kyt-hub")),
	}
}

// Subscribe registers a live listener and returns its id and receive channel.
// The channel is not closed on Unsubscribe; the caller stops reading once
// Unsubscribe returns.
func (h *Hub) Subscribe() (uint64, <-chan *model.KYTResult) {
	s := &subscriber{
		ch:   make(chan *model.KYTResult, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = s
	h.mu.Unlock()
	return id, s.ch
}

// Unsubscribe removes a listener; in-flight publishes to it are abandoned.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(s.done)
	}
}

// Publish delivers a result to every subscriber, dropping per-subscriber on
// a full queue after the timed send.
func (h *Hub) Publish(r *model.KYTResult) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- r:
			continue
		default:
		}
		t := time.NewTimer(h.sendTimeout)
		select {
		case s.ch <- r:
			t.Stop()
		case <-s.done:
			t.Stop()
		case <-t.C:
			h.dropped.Add(1)
			h.log.Warn("subscriber queue full, result dropped", slog.String("tx_hash", r.TxHash))
		}
	}
}

// Dropped returns the total number of per-subscriber drops.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
