package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"daybook/internal/amqp"
	"daybook/internal/core"
	"daybook/internal/log"
	"daybook/internal/storage"
)

// ReportService orchestrates the report ledger: admission, totals, audit,
// visibility, and best-effort event publishing.
type ReportService struct {
	storage     *storage.SQLiteRepository
	amqpClient  *amqp.Client
	overrideTTL time.Duration
}

func NewReportService(st *storage.SQLiteRepository, amqpClient *amqp.Client, overrideTTL time.Duration) *ReportService {
	return &ReportService{
		storage:     st,
		amqpClient:  amqpClient,
		overrideTTL: overrideTTL,
	}
}

// Create validates and persists a new day report. Totals are always
// recomputed; a caller-supplied totals map is ignored. Admission is decided
// atomically by the storage layer.
func (s *ReportService) Create(ctx context.Context, rep core.Report) (*core.Report, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	rep.ApplyDefaults(now)
	rep.ID = uuid.NewString()
	rep.LastModified = nil
	rep.AuditLog = nil
	rep.RecomputeTotals()

	entry := core.AuditEntry{
		Timestamp: now,
		Action:    core.ActionCreate,
		User:      rep.Username,
		Changes:   "report created",
	}

	if err := s.storage.CreateReport(ctx, &rep, entry); err != nil {
		return nil, err
	}
	rep.AppendAudit(entry)

	s.publishEvent(ctx, rep.ID, core.ActionCreate, rep.Username)
	return &rep, nil
}

// List returns the reports visible to the caller, newest first. The
// role-scoped filter runs here, before anything leaves the service.
func (s *ReportService) List(ctx context.Context, role core.Role, username string) ([]core.Report, error) {
	reports, err := s.storage.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return core.FilterVisible(reports, role, username), nil
}

// Get loads a single report by id.
func (s *ReportService) Get(ctx context.Context, id string) (*core.Report, error) {
	return s.storage.GetReport(ctx, id)
}

// Update applies a full-report edit: supplied sections, cash, and timestamp
// replace the stored values, totals are recomputed, and one audit entry
// describing the changed totals is appended.
func (s *ReportService) Update(ctx context.Context, id string, payload core.Report, editor string) (*core.Report, error) {
	existing, err := s.storage.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	for _, kind := range core.SectionKinds {
		if items := payload.Section(kind); items != nil {
			updated.SetSection(kind, items)
		}
	}
	updated.Cash = payload.Cash
	if !payload.Timestamp.IsZero() {
		updated.Timestamp = payload.Timestamp
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	updated.RecomputeTotals()
	now := time.Now()
	updated.LastModified = &now

	if editor == "" {
		editor = updated.Username
	}
	entry := core.AuditEntry{
		Timestamp: now,
		Action:    core.ActionEdit,
		User:      editor,
		Changes:   describeChanges(existing, &updated),
	}

	if err := s.storage.UpdateReport(ctx, &updated, entry); err != nil {
		return nil, err
	}
	updated.AppendAudit(entry)

	s.publishEvent(ctx, updated.ID, core.ActionEdit, editor)
	return &updated, nil
}

// Delete removes a report outright. The audit history is discarded with the
// record.
func (s *ReportService) Delete(ctx context.Context, id string) error {
	existing, err := s.storage.GetReport(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteReport(ctx, id); err != nil {
		return err
	}

	s.publishEvent(ctx, id, core.ActionDelete, existing.Username)
	return nil
}

// CheckDuplicate answers whether a report already exists for the calendar
// date: for one user when username is given, for anyone otherwise. A storage
// failure blocks the check; it is never treated as "no duplicate".
func (s *ReportService) CheckDuplicate(ctx context.Context, date, username string) (bool, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return false, &core.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	if username == "" {
		return s.storage.AnyReportOn(ctx, date)
	}
	return s.storage.HasReportOn(ctx, username, date)
}

// GrantOverride records a server-persisted permission for one extra report
// on the (username, date) pair. The grant expires after the configured TTL
// and is consumed by the next successful create.
func (s *ReportService) GrantOverride(ctx context.Context, username, date, grantedBy string) error {
	if strings.TrimSpace(username) == "" {
		return &core.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return &core.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	return s.storage.GrantOverride(ctx, storage.OverrideGrant{
		Username:  username,
		Date:      date,
		GrantedBy: grantedBy,
		ExpiresAt: time.Now().Add(s.overrideTTL),
	})
}

// Ready reports whether the service can reach its storage.
func (s *ReportService) Ready(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

func (s *ReportService) publishEvent(ctx context.Context, reportID, action, username string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishReportEvent(ctx, reportID, action, username); err != nil {
		// Events are best effort; the ledger write already succeeded.
		slog.ErrorContext(ctx, "Failed to publish report event",
			log.FieldReportID, reportID,
			"action", action,
			log.FieldError, err)
	}
}

// Close closes both storage and AMQP connections.
func (s *ReportService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close report service: %v", errs)
	}
	return nil
}

// describeChanges produces the human-readable audit line for an edit by
// naming every total that moved.
func describeChanges(before, after *core.Report) string {
	oldTotals := core.ComputeTotals(before)
	newTotals := core.ComputeTotals(after)

	keys := make([]string, 0, len(newTotals))
	for key := range newTotals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		if oldTotals[key] != newTotals[key] {
			parts = append(parts, fmt.Sprintf("%s %.2f -> %.2f", key, oldTotals[key], newTotals[key]))
		}
	}
	if !before.Timestamp.Equal(after.Timestamp) {
		parts = append(parts, fmt.Sprintf("timestamp %s -> %s",
			before.Timestamp.Format(time.RFC3339), after.Timestamp.Format(time.RFC3339)))
	}

	if len(parts) == 0 {
		return "edited, no amount changes"
	}
	return strings.Join(parts, "; ")
}
