package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/kyt"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/queue"
)

// MaxKYTBatch caps the addresses one request may carry; larger batches are
// poison so one request cannot monopolize a worker.
const MaxKYTBatch = 100

// KYTRequest asks for enrichment of one address or a batch.
type KYTRequest struct {
	RequestID string   `json:"request_id"`
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// KYTResponse is the reply published on the results topic, keyed by the
// request id so callers can match it up.
type KYTResponse struct {
	RequestID string              `json:"request_id"`
	Results   []kyt.AddressReport `json:"results"`
	ElapsedMs int64               `json:"elapsed_ms"`
}

// NewKYTHandler serves address-scoring requests over the queue.
func NewKYTHandler(engine *kyt.Engine, producer queue.Queue, resultTopic string, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "consumer"), slog.String("worker", "kyt"))

	return func(ctx context.Context, m *queue.Message) error {
		var req KYTRequest
		if err := json.Unmarshal(m.Value, &req); err != nil {
			return Reject("decode_error", err)
		}

		addrs := req.Addresses
		if req.Address != "" {
			addrs = append([]string{req.Address}, addrs...)
		}
		if len(addrs) == 0 {
			return Reject("invalid_request", fmt.Errorf("no addresses in request %q", req.RequestID))
		}
		if len(addrs) > MaxKYTBatch {
			return Reject("batch_too_large", fmt.Errorf("%d addresses, limit %d", len(addrs), MaxKYTBatch))
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}

		start := time.Now()
		var results []kyt.AddressReport
		if len(addrs) == 1 {
			results = []kyt.AddressReport{engine.ScoreAddress(ctx, addrs[0])}
		} else {
			results = engine.ScoreAddresses(ctx, addrs)
		}

		resp := KYTResponse{
			RequestID: req.RequestID,
			Results:   results,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			return Reject("encode_error", err)
		}
		if err := producer.Produce(ctx, resultTopic, req.RequestID, payload, nil); err != nil {
			return err
		}
		log.Debug("kyt request served",
			slog.String("request_id", req.RequestID),
			slog.Int("addresses", len(addrs)))
		return nil
	}
}
