package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SectionKind identifies one of the fixed report sections. The values are
// the wire names used by the JSON API and the storage layer.
type SectionKind string

const (
	SectionIncome        SectionKind = "income"
	SectionDeposit       SectionKind = "deposit"
	SectionStamp         SectionKind = "stamp"
	SectionBalance       SectionKind = "balance"
	SectionMGVCL         SectionKind = "mgvcl"
	SectionExpences      SectionKind = "expences"
	SectionOnlinePayment SectionKind = "onlinePayment"
)

// legacySectionOnline is the pre-rename wire name for the online payment
// section. It is folded into SectionOnlinePayment at every boundary.
const legacySectionOnline = "online"

// SectionKinds lists all sections in their canonical order.
var SectionKinds = []SectionKind{
	SectionIncome,
	SectionDeposit,
	SectionStamp,
	SectionBalance,
	SectionMGVCL,
	SectionExpences,
	SectionOnlinePayment,
}

// TotalCashKey is the totals map key for the scalar cash amount.
const TotalCashKey = "cash"

// Audit actions. ActionModified is a legacy alias for ActionEdit kept for
// records written by older clients.
const (
	ActionCreate   = "create"
	ActionEdit     = "edit"
	ActionDelete   = "delete"
	ActionModified = "modified"
)

var (
	ErrNotFound        = errors.New("report not found")
	ErrDuplicateReport = errors.New("report already submitted for this date")
	ErrNoOverride      = errors.New("no override granted")
)

// ValidationError describes a rejected field in a submitted report.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type (
	// LineItem is a single named amount within a section.
	LineItem struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
		Remark string  `json:"remark,omitempty"`
	}

	// AuditEntry is one immutable history record on a report.
	AuditEntry struct {
		Timestamp time.Time `json:"timestamp"`
		Action    string    `json:"action"`
		User      string    `json:"user"`
		Changes   string    `json:"changes"`
	}

	// Report is the aggregate root: one operator's day report.
	Report struct {
		ID            string             `json:"id"`
		Username      string             `json:"username"`
		Timestamp     time.Time          `json:"timestamp"`
		Income        []LineItem         `json:"income"`
		Deposit       []LineItem         `json:"deposit"`
		Stamp         []LineItem         `json:"stamp"`
		Balance       []LineItem         `json:"balance"`
		MGVCL         []LineItem         `json:"mgvcl"`
		Expences      []LineItem         `json:"expences"`
		OnlinePayment []LineItem         `json:"onlinePayment"`
		Cash          float64            `json:"cash"`
		Totals        map[string]float64 `json:"totals"`
		LastModified  *time.Time         `json:"lastModified,omitempty"`
		AuditLog      []AuditEntry       `json:"auditLog"`
	}
)

// Section returns the line items of the given section. Unknown kinds
// (including the legacy "online" name) resolve to the online payment section
// only when they match it; anything else returns nil.
func (r *Report) Section(kind SectionKind) []LineItem {
	switch kind {
	case SectionIncome:
		return r.Income
	case SectionDeposit:
		return r.Deposit
	case SectionStamp:
		return r.Stamp
	case SectionBalance:
		return r.Balance
	case SectionMGVCL:
		return r.MGVCL
	case SectionExpences:
		return r.Expences
	case SectionOnlinePayment, legacySectionOnline:
		return r.OnlinePayment
	}
	return nil
}

// SetSection replaces the line items of the given section.
func (r *Report) SetSection(kind SectionKind, items []LineItem) {
	switch kind {
	case SectionIncome:
		r.Income = items
	case SectionDeposit:
		r.Deposit = items
	case SectionStamp:
		r.Stamp = items
	case SectionBalance:
		r.Balance = items
	case SectionMGVCL:
		r.MGVCL = items
	case SectionExpences:
		r.Expences = items
	case SectionOnlinePayment, legacySectionOnline:
		r.OnlinePayment = items
	}
}

// NormalizeSectionKind maps legacy wire names onto their canonical section.
func NormalizeSectionKind(name string) SectionKind {
	if name == legacySectionOnline {
		return SectionOnlinePayment
	}
	return SectionKind(name)
}

// ReportDate returns the calendar date the report belongs to, formatted
// YYYY-MM-DD. This is the admission key together with the username.
func (r *Report) ReportDate() string {
	return r.Timestamp.Format("2006-01-02")
}

// Validate checks the submittable fields of a report. Totals are not
// validated here; they are always recomputed before persistence.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	for _, kind := range SectionKinds {
		for i, item := range r.Section(kind) {
			if strings.TrimSpace(item.Name) == "" {
				return &ValidationError{
					Field:  fmt.Sprintf("%s[%d].name", kind, i),
					Reason: "must not be empty",
				}
			}
			if item.Amount < 0 {
				return &ValidationError{
					Field:  fmt.Sprintf("%s[%d].amount", kind, i),
					Reason: "must not be negative",
				}
			}
		}
	}
	if r.Cash < 0 {
		return &ValidationError{Field: "cash", Reason: "must not be negative"}
	}
	return nil
}

// ApplyDefaults fills the fields a caller may omit: nil sections become
// empty slices and a zero timestamp becomes now.
func (r *Report) ApplyDefaults(now time.Time) {
	for _, kind := range SectionKinds {
		if r.Section(kind) == nil {
			r.SetSection(kind, []LineItem{})
		}
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
}

// AppendAudit appends one history entry. The audit log only grows; existing
// entries are never touched.
func (r *Report) AppendAudit(entry AuditEntry) {
	r.AuditLog = append(r.AuditLog, entry)
}

// reportJSON mirrors Report for decoding, with the two legacy payload shapes
// split out: cash may arrive as a bare number or as an object carrying an
// amount, and the online payment section may arrive under its old name.
type reportJSON struct {
	ID            string             `json:"id"`
	Username      string             `json:"username"`
	Timestamp     time.Time          `json:"timestamp"`
	Income        []LineItem         `json:"income"`
	Deposit       []LineItem         `json:"deposit"`
	Stamp         []LineItem         `json:"stamp"`
	Balance       []LineItem         `json:"balance"`
	MGVCL         []LineItem         `json:"mgvcl"`
	Expences      []LineItem         `json:"expences"`
	OnlinePayment []LineItem         `json:"onlinePayment"`
	Online        []LineItem         `json:"online"`
	Cash          json.RawMessage    `json:"cash"`
	Totals        map[string]float64 `json:"totals"`
	LastModified  *time.Time         `json:"lastModified"`
	AuditLog      []AuditEntry       `json:"auditLog"`
}

// UnmarshalJSON decodes a report, normalizing legacy field shapes so the
// in-memory model stays single-shaped.
func (r *Report) UnmarshalJSON(data []byte) error {
	var aux reportJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = Report{
		ID:            aux.ID,
		Username:      aux.Username,
		Timestamp:     aux.Timestamp,
		Income:        aux.Income,
		Deposit:       aux.Deposit,
		Stamp:         aux.Stamp,
		Balance:       aux.Balance,
		MGVCL:         aux.MGVCL,
		Expences:      aux.Expences,
		OnlinePayment: aux.OnlinePayment,
		Totals:        aux.Totals,
		LastModified:  aux.LastModified,
		AuditLog:      aux.AuditLog,
	}

	if r.OnlinePayment == nil && aux.Online != nil {
		r.OnlinePayment = aux.Online
	}

	cash, err := decodeCash(aux.Cash)
	if err != nil {
		return err
	}
	r.Cash = cash

	return nil
}

// decodeCash accepts the two historical shapes of the cash field: a plain
// number, or an object with an "amount" (or nested "cash") member.
func decodeCash(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var obj struct {
		Amount *float64 `json:"amount"`
		Cash   *float64 `json:"cash"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("decode cash: %w", err)
	}
	if obj.Amount != nil {
		return *obj.Amount, nil
	}
	if obj.Cash != nil {
		return *obj.Cash, nil
	}
	return 0, nil
}
