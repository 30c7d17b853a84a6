package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/correlate"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/dispatch"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/queue"
)

// NewAlertHandler consumes externally produced alert events: validate, fill
// missing identity, correlate against the recent window, dispatch.
func NewAlertHandler(disp *dispatch.Dispatcher, corr *correlate.Engine, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "consumer"), slog.String("worker", "alert"))

	return func(ctx context.Context, m *queue.Message) error {
		var a model.Alert
		if err := json.Unmarshal(m.Value, &a); err != nil {
			return Reject("decode_error", err)
		}
		if a.AlertType == "" {
			return Reject("invalid_alert", fmt.Errorf("alert_type is empty"))
		}
		if !a.Severity.Valid() {
			return Reject("invalid_alert", fmt.Errorf("missing or unknown severity %q", a.Severity))
		}
		a.EnsureIdentity()

		if err := disp.Dispatch(ctx, &a); err != nil {
			return err
		}
		if corr != nil {
			if composite := corr.Correlate(&a); composite != nil {
				if err := disp.Dispatch(ctx, composite); err != nil {
					return err
				}
			}
		}
		log.Debug("alert event dispatched",
			slog.String("alert_id", a.AlertID),
			slog.String("alert_type", a.AlertType))
		return nil
	}
}
