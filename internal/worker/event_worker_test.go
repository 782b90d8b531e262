package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"daybook/internal/amqp"
	"daybook/internal/storage"
)

func newTestWorker(t *testing.T) (*EventWorker, *storage.SQLiteRepository) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewEventWorker(repo), repo
}

func TestHandleReportEvent(t *testing.T) {
	w, repo := newTestWorker(t)
	ctx := context.Background()

	msg := amqp.NewReportEventMessage("r1", "create", "operator1")
	if err := w.HandleReportEvent(ctx, msg); err != nil {
		t.Fatalf("HandleReportEvent() error = %v", err)
	}
	if err := w.HandleReportEvent(ctx, amqp.NewReportEventMessage("r1", "edit", "admin")); err != nil {
		t.Fatalf("HandleReportEvent() error = %v", err)
	}

	events, err := repo.ReportEventsFor(ctx, "r1")
	if err != nil {
		t.Fatalf("ReportEventsFor() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("archived %d events, want 2", len(events))
	}
	if events[0].Action != "create" || events[1].Action != "edit" {
		t.Errorf("actions = %q, %q; want create, edit", events[0].Action, events[1].Action)
	}
	if events[1].Username != "admin" {
		t.Errorf("username = %q, want admin", events[1].Username)
	}
	if events[0].ReceivedAt.IsZero() {
		t.Error("ReceivedAt not recorded")
	}
}

func TestHandleReportEvent_RejectsEmptyID(t *testing.T) {
	w, _ := newTestWorker(t)

	msg := &amqp.ReportEventMessage{Action: "create", Username: "operator1", Timestamp: time.Now()}
	if err := w.HandleReportEvent(context.Background(), msg); err == nil {
		t.Error("HandleReportEvent() with empty report id returned nil, want error")
	}
}
