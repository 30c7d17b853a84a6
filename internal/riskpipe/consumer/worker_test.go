package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/queue"
)

// fakeQueue feeds scripted messages and records commits and produces.
type fakeQueue struct {
	mu       sync.Mutex
	msgs     chan *queue.Message
	commits  []int64
	produced []producedRec
	failDLQ  error
}

type producedRec struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{msgs: make(chan *queue.Message, 16)}
}

func (f *fakeQueue) push(offset int64, value []byte) {
	m := queue.NewMessage("chain.transactions", 0, offset, nil, value, nil, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.commits = append(f.commits, offset)
		return nil
	})
	f.msgs <- m
}

func (f *fakeQueue) Poll(ctx context.Context) (*queue.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-f.msgs:
		return m, nil
	}
}

func (f *fakeQueue) Commit(m *queue.Message) error { return m.Ack() }

func (f *fakeQueue) Produce(_ context.Context, topic, key string, value []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDLQ != nil {
		return f.failDLQ
	}
	f.produced = append(f.produced, producedRec{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) committed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.commits...)
}

func (f *fakeQueue) dlq() []producedRec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]producedRec(nil), f.produced...)
}

func testWorkerCfg() Config {
	return Config{
		Name:        "test",
		DLQTopic:    "risk.dlq",
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}
}

// runWorker drives the worker until check passes or the deadline hits.
func runWorker(t *testing.T, w *Worker, check func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !check() {
		select {
		case <-deadline:
			cancel()
			t.Fatal("condition not reached before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestWorkerCommitsOnSuccess(t *testing.T) {
	q := newFakeQueue()
	var handled int
	var mu sync.Mutex
	w := NewWorker(testWorkerCfg(), q, func(context.Context, *queue.Message) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	}, nil)

	q.push(1, []byte("a"))
	q.push(2, []byte("b"))
	runWorker(t, w, func() bool { return len(q.committed()) == 2 })

	assert.Equal(t, []int64{1, 2}, q.committed())
	assert.Empty(t, q.dlq())
	assert.Equal(t, uint64(2), w.Stats().Processed)
}

func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	q := newFakeQueue()
	var attempts int
	var mu sync.Mutex
	w := NewWorker(testWorkerCfg(), q, func(context.Context, *queue.Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("pg down")
	}, nil)

	q.push(7, []byte(`{"tx_hash":"0x1"}`))
	runWorker(t, w, func() bool { return len(q.committed()) == 1 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	assert.Equal(t, 3, got, "every attempt used before dead-lettering")

	dlq := q.dlq()
	require.Len(t, dlq, 1)
	assert.Equal(t, "risk.dlq", dlq[0].topic)
	assert.Equal(t, []byte(`{"tx_hash":"0x1"}`), dlq[0].value, "original payload preserved")
	assert.Equal(t, "handler_error", dlq[0].headers["reason"])
	assert.Equal(t, "chain.transactions", dlq[0].headers["origin_topic"])
	assert.Equal(t, "7", dlq[0].headers["origin_offset"])

	assert.Equal(t, []int64{7}, q.committed(), "committed exactly once, after the DLQ produce")
	assert.Equal(t, uint64(1), w.Stats().DeadLettered)
}

func TestWorkerRejectSkipsRetries(t *testing.T) {
	q := newFakeQueue()
	var attempts int
	var mu sync.Mutex
	w := NewWorker(testWorkerCfg(), q, func(context.Context, *queue.Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return Reject("decode_error", errors.New("bad json"))
	}, nil)

	q.push(1, []byte("not-json"))
	runWorker(t, w, func() bool { return len(q.committed()) == 1 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	assert.Equal(t, 1, got, "poison input is not retried")

	dlq := q.dlq()
	require.Len(t, dlq, 1)
	assert.Equal(t, "decode_error", dlq[0].headers["reason"])
}

func TestWorkerHoldsCommitWhenDLQFails(t *testing.T) {
	q := newFakeQueue()
	q.failDLQ = errors.New("broker down")
	w := NewWorker(testWorkerCfg(), q, func(context.Context, *queue.Message) error {
		return Reject("decode_error", errors.New("bad json"))
	}, nil)

	q.push(1, []byte("x"))
	// The worker keeps polling; give it time to settle the message.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	assert.Empty(t, q.committed(), "no DLQ record means no commit, the broker redelivers")
	assert.Zero(t, w.Stats().DeadLettered)
}

func TestWorkerSanitizesDLQErrorHeader(t *testing.T) {
	q := newFakeQueue()
	w := NewWorker(testWorkerCfg(), q, func(context.Context, *queue.Message) error {
		return Reject("invalid_transaction", errors.New("field\ninjection\rattempt"))
	}, nil)

	q.push(1, []byte("x"))
	runWorker(t, w, func() bool { return len(q.dlq()) == 1 })

	assert.NotContains(t, q.dlq()[0].headers["error"], "\n")
	assert.NotContains(t, q.dlq()[0].headers["error"], "\r")
}

func TestWorkerIdlesWithoutQueue(t *testing.T) {
	w := NewWorker(testWorkerCfg(), nil, func(context.Context, *queue.Message) error { return nil }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Run(ctx))
}

func TestRejectErrorUnwraps(t *testing.T) {
	inner := errors.New("bad json")
	err := Reject("decode_error", inner)
	assert.ErrorIs(t, err, inner)

	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "decode_error", rej.Reason)
}
