package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"daybook/internal/core"
	"daybook/internal/log"

	_ "modernc.org/sqlite"
)

// timeFormat is how timestamps are persisted. Report timestamps keep their
// original UTC offset so the calendar day the operator submitted under never
// shifts across a load/store round trip; the admission date is derived from
// that zone. Metadata timestamps (audit, grants, events) are stored in UTC,
// which keeps their lexicographic comparisons consistent.
const timeFormat = time.RFC3339

// OverrideGrant is a server-persisted permission to submit a second report
// for a (username, date) pair. It is consumed by the next successful create.
type OverrideGrant struct {
	Username  string
	Date      string // YYYY-MM-DD
	GrantedBy string
	ExpiresAt time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping verifies the database connection is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateReport persists a new report together with its create audit entry.
//
// The admission decision is atomic: the first report for a (username, date)
// pair takes admission sequence 0, guarded by a uniqueness constraint. When
// that insert collides, an unexpired, unconsumed override grant for the pair
// is consumed inside the same transaction and the report takes the next
// sequence. Without a grant the create fails with core.ErrDuplicateReport.
func (r *SQLiteRepository) CreateReport(ctx context.Context, rep *core.Report, entry core.AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	date := rep.ReportDate()

	err = insertReportRow(ctx, tx, rep, date, 0)
	if isUniqueViolation(err) {
		consumed, cerr := consumeOverrideGrant(ctx, tx, rep.Username, date)
		if cerr != nil {
			return fmt.Errorf("consume override grant: %w", cerr)
		}
		if !consumed {
			return core.ErrDuplicateReport
		}

		var nextSeq int
		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(admission_seq), 0) + 1 FROM reports WHERE username = ? AND report_date = ?`,
			rep.Username, date)
		if err := row.Scan(&nextSeq); err != nil {
			return fmt.Errorf("next admission sequence: %w", err)
		}
		if err := insertReportRow(ctx, tx, rep, date, nextSeq); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	if err := insertLineItems(ctx, tx, rep); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, rep.ID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Report saved",
		log.FieldReportID, rep.ID,
		log.FieldUsername, rep.Username,
		log.FieldReportDate, date)

	return nil
}

// UpdateReport replaces the mutable fields of an existing report and appends
// one audit entry, all in a single transaction. Returns core.ErrNotFound if
// the report does not exist and core.ErrDuplicateReport if an edited
// timestamp would collide with another report's admission key.
func (r *SQLiteRepository) UpdateReport(ctx context.Context, rep *core.Report, entry core.AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	totals, err := json.Marshal(rep.Totals)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}

	var lastModified any
	if rep.LastModified != nil {
		lastModified = rep.LastModified.UTC().Format(timeFormat)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE reports SET ts = ?, report_date = ?, cash = ?, totals = ?, last_modified = ? WHERE id = ?`,
		rep.Timestamp.Format(timeFormat),
		rep.ReportDate(),
		rep.Cash,
		string(totals),
		lastModified,
		rep.ID)
	if isUniqueViolation(err) {
		return core.ErrDuplicateReport
	}
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE report_id = ?`, rep.ID); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}
	if err := insertLineItems(ctx, tx, rep); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, rep.ID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Report updated", log.FieldReportID, rep.ID, log.FieldUsername, rep.Username)
	return nil
}

// DeleteReport removes a report and everything attached to it. The audit
// history goes with the record; there is no tombstone.
func (r *SQLiteRepository) DeleteReport(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("delete line items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_entries WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("delete audit entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Report deleted", log.FieldReportID, id)
	return nil
}

// GetReport loads one report with its line items and audit log.
func (r *SQLiteRepository) GetReport(ctx context.Context, id string) (*core.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, ts, cash, totals, last_modified FROM reports WHERE id = ?`, id)

	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	if err := r.loadLineItems(ctx, map[string]*core.Report{rep.ID: rep}); err != nil {
		return nil, err
	}
	if err := r.loadAuditEntries(ctx, map[string]*core.Report{rep.ID: rep}); err != nil {
		return nil, err
	}

	return rep, nil
}

// ListReports returns every stored report ordered by timestamp descending.
// datetime() normalizes the stored offsets, so reports submitted from
// different zones still sort chronologically.
func (r *SQLiteRepository) ListReports(ctx context.Context) ([]core.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, ts, cash, totals, last_modified FROM reports ORDER BY datetime(ts) DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var ordered []*core.Report
	byID := make(map[string]*core.Report)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		ordered = append(ordered, rep)
		byID[rep.ID] = rep
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	if err := r.loadLineItems(ctx, byID); err != nil {
		return nil, err
	}
	if err := r.loadAuditEntries(ctx, byID); err != nil {
		return nil, err
	}

	reports := make([]core.Report, len(ordered))
	for i, rep := range ordered {
		reports[i] = *rep
	}
	return reports, nil
}

// HasReportOn reports whether the user already submitted on the given
// calendar date (YYYY-MM-DD).
func (r *SQLiteRepository) HasReportOn(ctx context.Context, username, date string) (bool, error) {
	var exists bool
	row := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reports WHERE username = ? AND report_date = ?)`, username, date)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

// AnyReportOn reports whether anything at all was submitted on the given
// calendar date. Used to gate the submission form.
func (r *SQLiteRepository) AnyReportOn(ctx context.Context, date string) (bool, error) {
	var exists bool
	row := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reports WHERE report_date = ?)`, date)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check any submitted: %w", err)
	}
	return exists, nil
}

// GrantOverride stores (or refreshes) an override grant. Re-granting a
// consumed or expired grant reopens admission for the pair.
func (r *SQLiteRepository) GrantOverride(ctx context.Context, g OverrideGrant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO override_grants (username, grant_date, granted_by, expires_at, consumed_at, created_at)
		 VALUES (?, ?, ?, ?, NULL, ?)
		 ON CONFLICT (username, grant_date) DO UPDATE SET
			granted_by = excluded.granted_by,
			expires_at = excluded.expires_at,
			consumed_at = NULL,
			created_at = excluded.created_at`,
		g.Username,
		g.Date,
		g.GrantedBy,
		g.ExpiresAt.UTC().Format(timeFormat),
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("grant override: %w", err)
	}

	slog.InfoContext(ctx, "Override granted",
		log.FieldUsername, g.Username,
		log.FieldReportDate, g.Date,
		"granted_by", g.GrantedBy,
		"expires_at", g.ExpiresAt)
	return nil
}

// Credential returns the credential row for a page, or core.ErrNotFound.
func (r *SQLiteRepository) Credential(ctx context.Context, page string) (core.Credential, error) {
	var cred core.Credential
	var role string
	row := r.db.QueryRowContext(ctx,
		`SELECT page, password_enc, role FROM credentials WHERE page = ?`, page)
	if err := row.Scan(&cred.Page, &cred.PasswordEnc, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Credential{}, core.ErrNotFound
		}
		return core.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	cred.Role = core.Role(role)
	return cred, nil
}

// UpdateCredential replaces the stored password and role for a page.
func (r *SQLiteRepository) UpdateCredential(ctx context.Context, cred core.Credential) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET password_enc = ?, role = ?, updated_at = ? WHERE page = ?`,
		cred.PasswordEnc,
		string(cred.Role),
		time.Now().UTC().Format(timeFormat),
		cred.Page)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ReportEvent is one archived ledger mutation event from the broker.
type ReportEvent struct {
	ReportID   string
	Action     string
	Username   string
	Timestamp  time.Time
	ReceivedAt time.Time
}

// RecordReportEvent appends a consumed event to the archive.
func (r *SQLiteRepository) RecordReportEvent(ctx context.Context, ev ReportEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_events (report_id, action, username, ts, received_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ReportID,
		ev.Action,
		ev.Username,
		ev.Timestamp.UTC().Format(timeFormat),
		ev.ReceivedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record report event: %w", err)
	}
	return nil
}

// ReportEventsFor returns the archived events for one report, oldest first.
func (r *SQLiteRepository) ReportEventsFor(ctx context.Context, reportID string) ([]ReportEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT report_id, action, username, ts, received_at FROM report_events WHERE report_id = ? ORDER BY id`,
		reportID)
	if err != nil {
		return nil, fmt.Errorf("list report events: %w", err)
	}
	defer rows.Close()

	var events []ReportEvent
	for rows.Next() {
		var (
			ev       ReportEvent
			ts       string
			received string
		)
		if err := rows.Scan(&ev.ReportID, &ev.Action, &ev.Username, &ts, &received); err != nil {
			return nil, fmt.Errorf("scan report event: %w", err)
		}
		if ev.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", ts, err)
		}
		if ev.ReceivedAt, err = time.Parse(timeFormat, received); err != nil {
			return nil, fmt.Errorf("parse event received_at %q: %w", received, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func insertReportRow(ctx context.Context, tx *sql.Tx, rep *core.Report, date string, seq int) error {
	totals, err := json.Marshal(rep.Totals)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}

	var lastModified any
	if rep.LastModified != nil {
		lastModified = rep.LastModified.UTC().Format(timeFormat)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, username, ts, report_date, admission_seq, cash, totals, last_modified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID,
		rep.Username,
		rep.Timestamp.Format(timeFormat),
		date,
		seq,
		rep.Cash,
		string(totals),
		lastModified,
		time.Now().UTC().Format(timeFormat))
	return err
}

// consumeOverrideGrant marks the pair's grant consumed if one is live.
// Returns false when there is nothing to consume.
func consumeOverrideGrant(ctx context.Context, tx *sql.Tx, username, date string) (bool, error) {
	now := time.Now().UTC().Format(timeFormat)
	res, err := tx.ExecContext(ctx,
		`UPDATE override_grants SET consumed_at = ?
		 WHERE username = ? AND grant_date = ? AND consumed_at IS NULL AND expires_at > ?`,
		now, username, date, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func insertLineItems(ctx context.Context, tx *sql.Tx, rep *core.Report) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO line_items (report_id, section, position, name, amount, remark) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare line item insert: %w", err)
	}
	defer stmt.Close()

	for _, kind := range core.SectionKinds {
		for pos, item := range rep.Section(kind) {
			if _, err := stmt.ExecContext(ctx, rep.ID, string(kind), pos, item.Name, item.Amount, item.Remark); err != nil {
				return fmt.Errorf("insert line item: %w", err)
			}
		}
	}
	return nil
}

func insertAuditEntry(ctx context.Context, tx *sql.Tx, reportID string, entry core.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_entries (report_id, ts, action, user, changes) VALUES (?, ?, ?, ?, ?)`,
		reportID,
		entry.Timestamp.UTC().Format(timeFormat),
		entry.Action,
		entry.User,
		entry.Changes)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*core.Report, error) {
	var (
		rep          core.Report
		ts           string
		totalsJSON   string
		lastModified sql.NullString
	)
	if err := row.Scan(&rep.ID, &rep.Username, &ts, &rep.Cash, &totalsJSON, &lastModified); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(timeFormat, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	rep.Timestamp = parsed

	if err := json.Unmarshal([]byte(totalsJSON), &rep.Totals); err != nil {
		return nil, fmt.Errorf("decode totals: %w", err)
	}

	if lastModified.Valid {
		lm, err := time.Parse(timeFormat, lastModified.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_modified %q: %w", lastModified.String, err)
		}
		rep.LastModified = &lm
	}

	// Sections start empty; line items are attached in a second pass.
	rep.ApplyDefaults(rep.Timestamp)
	return &rep, nil
}

// reportIDFilter builds the IN clause and arguments selecting only the
// reports being hydrated, so single-report reads stay independent of the
// ledger's size.
func reportIDFilter(byID map[string]*core.Report) (string, []any) {
	placeholders := make([]string, 0, len(byID))
	args := make([]any, 0, len(byID))
	for id := range byID {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	return strings.Join(placeholders, ", "), args
}

func (r *SQLiteRepository) loadLineItems(ctx context.Context, byID map[string]*core.Report) error {
	if len(byID) == 0 {
		return nil
	}

	in, args := reportIDFilter(byID)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT report_id, section, name, amount, remark FROM line_items
		 WHERE report_id IN (%s) ORDER BY report_id, section, position`, in), args...)
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reportID string
			section  string
			item     core.LineItem
		)
		if err := rows.Scan(&reportID, &section, &item.Name, &item.Amount, &item.Remark); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		rep, ok := byID[reportID]
		if !ok {
			continue
		}
		// Rows written by the legacy system may still carry the old
		// section name; fold them in on the way out.
		kind := core.NormalizeSectionKind(section)
		rep.SetSection(kind, append(rep.Section(kind), item))
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadAuditEntries(ctx context.Context, byID map[string]*core.Report) error {
	if len(byID) == 0 {
		return nil
	}

	in, args := reportIDFilter(byID)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT report_id, ts, action, user, changes FROM audit_entries
		 WHERE report_id IN (%s) ORDER BY report_id, id`, in), args...)
	if err != nil {
		return fmt.Errorf("load audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reportID string
			ts       string
			entry    core.AuditEntry
		)
		if err := rows.Scan(&reportID, &ts, &entry.Action, &entry.User, &entry.Changes); err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		rep, ok := byID[reportID]
		if !ok {
			continue
		}
		parsed, err := time.Parse(timeFormat, ts)
		if err != nil {
			return fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		entry.Timestamp = parsed
		rep.AppendAudit(entry)
	}
	return rows.Err()
}

// isUniqueViolation detects the admission-key collision without depending on
// driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
