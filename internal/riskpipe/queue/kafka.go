package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/IBM/sarama"
)

// ErrClosed is returned from Poll after Close.
var ErrClosed = errors.New("queue: closed")

// KafkaQueue bridges a sarama consumer group into the poll/commit surface.
// Auto-commit is disabled: an offset moves only when the worker calls Commit,
// which is what makes delivery at-least-once end to end.
type KafkaQueue struct {
	group    sarama.ConsumerGroup
	producer sarama.SyncProducer
	topics   []string
	msgs     chan *Message
	log      *slog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func NewKafkaQueue(brokersCSV, groupID string, topics []string, log *slog.Logger) (*KafkaQueue, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("queue: no kafka brokers configured")
	}
	if log == nil {
		log = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1 // required by idempotent producer

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("queue: consumer group: %w", err)
	}
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		_ = group.Close()
		return nil, fmt.Errorf("queue: producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &KafkaQueue{
		group:    group,
		producer: producer,
		topics:   topics,
		msgs:     make(chan *Message),
		log:      log.With(slog.String("component", "queue")),
		cancel:   cancel,
	}

	q.wg.Add(2)
	go q.consumeLoop(ctx)
	go q.errorLoop(ctx)
	return q, nil
}

func (q *KafkaQueue) consumeLoop(ctx context.Context) {
	defer q.wg.Done()
	defer close(q.msgs)
	handler := &groupHandler{out: q.msgs}
	for {
		// Consume returns on rebalance; loop until shutdown.
		if err := q.group.Consume(ctx, q.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return
			}
			q.log.Error("consume session failed", slog.Any("err", err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (q *KafkaQueue) errorLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-q.group.Errors():
			if !ok {
				return
			}
			q.log.Warn("consumer group error", slog.Any("err", err))
		}
	}
}

// Poll blocks for the next record.
func (q *KafkaQueue) Poll(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-q.msgs:
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	}
}

// Commit marks and flushes the message's offset.
func (q *KafkaQueue) Commit(m *Message) error {
	if m == nil {
		return nil
	}
	return m.Ack()
}

func (q *KafkaQueue) Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pm := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		pm.Key = sarama.StringEncoder(key)
	}
	for k, v := range headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(SanitizeHeader(v)),
		})
	}
	if _, _, err := q.producer.SendMessage(pm); err != nil {
		return fmt.Errorf("queue: produce to %s: %w", topic, err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	q.closeOnce.Do(func() {
		q.cancel()
		err := q.group.Close()
		q.wg.Wait()
		if perr := q.producer.Close(); err == nil {
			err = perr
		}
		q.closeErr = err
	})
	return q.closeErr
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// groupHandler forwards claimed records into the poll channel. Each message
// carries its own commit hook bound to the claiming session.
type groupHandler struct {
	out chan<- *Message
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for raw := range claim.Messages() {
		raw := raw
		var headers map[string]string
		if len(raw.Headers) > 0 {
			headers = make(map[string]string, len(raw.Headers))
			for _, hh := range raw.Headers {
				headers[string(hh.Key)] = string(hh.Value)
			}
		}
		m := NewMessage(raw.Topic, raw.Partition, raw.Offset, raw.Key, raw.Value, headers, func() error {
			session.MarkMessage(raw, "")
			session.Commit()
			return nil
		})
		select {
		case h.out <- m:
		case <-session.Context().Done():
			return nil
		}
	}
	return nil
}
