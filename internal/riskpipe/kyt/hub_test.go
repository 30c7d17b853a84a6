package kyt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4, 10*time.Millisecond, nil)
	_, a := h.Subscribe()
	_, b := h.Subscribe()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(&model.KYTResult{TxHash: "0x1"})

	assert.Equal(t, "0x1", (<-a).TxHash)
	assert.Equal(t, "0x1", (<-b).TxHash)
	assert.Zero(t, h.Dropped())
}

func TestHubDropsOnFullQueue(t *testing.T) {
	h := NewHub(1, 5*time.Millisecond, nil)
	_, ch := h.Subscribe()

	h.Publish(&model.KYTResult{TxHash: "0x1"})
	h.Publish(&model.KYTResult{TxHash: "0x2"}) // queue full, nobody reading

	assert.Equal(t, uint64(1), h.Dropped())
	assert.Equal(t, "0x1", (<-ch).TxHash)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(1, time.Second, nil)
	id, _ := h.Subscribe()
	h.Unsubscribe(id)
	assert.Zero(t, h.Subscribers())

	// Publish to a full queue of a departed subscriber must not wait out the
	// full send timeout.
	id2, _ := h.Subscribe()
	h.Publish(&model.KYTResult{TxHash: "0x1"})
	h.Unsubscribe(id2)

	done := make(chan struct{})
	go func() {
		h.Publish(&model.KYTResult{TxHash: "0x2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("publish blocked on unsubscribed listener")
	}
}
