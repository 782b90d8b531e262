package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"daybook/internal/amqp"
	"daybook/internal/storage"
)

// EventWorker archives report events consumed from the broker. Each event is
// one row in the report_events table; a failed write requeues the delivery.
type EventWorker struct {
	storage *storage.SQLiteRepository
}

func NewEventWorker(st *storage.SQLiteRepository) *EventWorker {
	return &EventWorker{storage: st}
}

// HandleReportEvent records a single consumed event. Returning an error makes
// the consumer requeue the message.
func (w *EventWorker) HandleReportEvent(ctx context.Context, msg *amqp.ReportEventMessage) error {
	if msg.ReportID == "" {
		return fmt.Errorf("report event without report id")
	}

	ev := storage.ReportEvent{
		ReportID:   msg.ReportID,
		Action:     msg.Action,
		Username:   msg.Username,
		Timestamp:  msg.Timestamp,
		ReceivedAt: time.Now(),
	}
	if err := w.storage.RecordReportEvent(ctx, ev); err != nil {
		return fmt.Errorf("archive report event: %w", err)
	}

	slog.InfoContext(ctx, "Report event archived",
		"report_id", msg.ReportID,
		"action", msg.Action,
		"username", msg.Username)
	return nil
}
