// Package queue abstracts the message broker behind a poll/commit/produce
// surface so workers and tests never touch the broker client directly.
package queue

import (
	"context"
	"strings"
)

// Message is one consumed record. Offsets commit through the Queue that
// produced the message, never directly.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string

	ack func() error
}

// NewMessage builds a message with an explicit commit hook. Used by queue
// implementations and by tests that need to observe commits.
func NewMessage(topic string, partition int32, offset int64, key, value []byte,
	headers map[string]string, ack func() error) *Message {
	return &Message{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Key:       key,
		Value:     value,
		Headers:   headers,
		ack:       ack,
	}
}

// Ack invokes the message's commit hook. Queue implementations call this
// from Commit; workers go through Queue.Commit so the queue stays in charge
// of offset bookkeeping.
func (m *Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// Queue is the broker surface the workers consume and produce through.
type Queue interface {
	// Poll blocks for the next message or ctx cancellation.
	Poll(ctx context.Context) (*Message, error)
	// Commit marks the message's offset as processed.
	Commit(m *Message) error
	Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
	Close() error
}

// SanitizeHeader strips control bytes from a value headed into a message
// header, so a hostile error string cannot smuggle delimiters or newlines
// into broker metadata. Truncates to 512 bytes.
func SanitizeHeader(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > 512 {
		out = out[:512]
	}
	return out
}
