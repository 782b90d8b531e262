package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestReportValidate(t *testing.T) {
	tests := []struct {
		name      string
		report    Report
		wantErr   bool
		wantField string
	}{
		{
			name:    "valid minimal report",
			report:  Report{Username: "alice"},
			wantErr: false,
		},
		{
			name: "valid report with items",
			report: Report{
				Username: "alice",
				Income:   []LineItem{{Name: "Xerox", Amount: 40, Remark: "20 pages"}},
				Cash:     100,
			},
			wantErr: false,
		},
		{
			name:      "missing username",
			report:    Report{},
			wantErr:   true,
			wantField: "username",
		},
		{
			name:      "whitespace-only username",
			report:    Report{Username: "   "},
			wantErr:   true,
			wantField: "username",
		},
		{
			name: "empty item name",
			report: Report{
				Username: "alice",
				Deposit:  []LineItem{{Name: "", Amount: 10}},
			},
			wantErr:   true,
			wantField: "deposit[0].name",
		},
		{
			name: "negative item amount",
			report: Report{
				Username: "alice",
				Expences: []LineItem{{Name: "tea", Amount: -5}},
			},
			wantErr:   true,
			wantField: "expences[0].amount",
		},
		{
			name:      "negative cash",
			report:    Report{Username: "alice", Cash: -1},
			wantErr:   true,
			wantField: "cash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.report.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() returned nil, want error")
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Validate() returned %T, want *ValidationError", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() returned %v, want nil", err)
			}
		})
	}
}

func TestReportApplyDefaults(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	r := Report{Username: "alice"}
	r.ApplyDefaults(now)

	for _, kind := range SectionKinds {
		if r.Section(kind) == nil {
			t.Errorf("section %s is nil after ApplyDefaults", kind)
		}
	}
	if !r.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, now)
	}

	// A supplied timestamp is kept.
	supplied := time.Date(2023, 12, 24, 18, 0, 0, 0, time.UTC)
	r2 := Report{Username: "alice", Timestamp: supplied}
	r2.ApplyDefaults(now)
	if !r2.Timestamp.Equal(supplied) {
		t.Errorf("timestamp = %v, want supplied %v", r2.Timestamp, supplied)
	}
}

func TestReportDate(t *testing.T) {
	r := Report{Timestamp: time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)}
	if got := r.ReportDate(); got != "2024-01-01" {
		t.Errorf("ReportDate() = %q, want 2024-01-01", got)
	}
}

func TestAppendAuditOnlyGrows(t *testing.T) {
	r := Report{Username: "alice"}
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	r.AppendAudit(AuditEntry{Timestamp: base, Action: ActionCreate, User: "alice"})
	for i := 0; i < 3; i++ {
		r.AppendAudit(AuditEntry{
			Timestamp: base.Add(time.Duration(i+1) * time.Hour),
			Action:    ActionEdit,
			User:      "admin",
			Changes:   "income total changed",
		})
	}

	if len(r.AuditLog) != 4 {
		t.Fatalf("auditLog has %d entries, want 4", len(r.AuditLog))
	}
	if r.AuditLog[0].Action != ActionCreate {
		t.Errorf("auditLog[0].Action = %q, want %q", r.AuditLog[0].Action, ActionCreate)
	}
	for i := 1; i < 4; i++ {
		if r.AuditLog[i].Action != ActionEdit {
			t.Errorf("auditLog[%d].Action = %q, want %q", i, r.AuditLog[i].Action, ActionEdit)
		}
	}
}

func TestReportUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantCash   float64
		wantOnline []LineItem
	}{
		{
			name:     "cash as number",
			payload:  `{"username":"alice","cash":50}`,
			wantCash: 50,
		},
		{
			name:     "legacy cash as object with amount",
			payload:  `{"username":"alice","cash":{"amount":75.5}}`,
			wantCash: 75.5,
		},
		{
			name:     "legacy cash as object with nested cash",
			payload:  `{"username":"alice","cash":{"cash":30}}`,
			wantCash: 30,
		},
		{
			name:     "cash absent",
			payload:  `{"username":"alice"}`,
			wantCash: 0,
		},
		{
			name:     "cash null",
			payload:  `{"username":"alice","cash":null}`,
			wantCash: 0,
		},
		{
			name:       "legacy online field name",
			payload:    `{"username":"alice","online":[{"name":"recharge","amount":20}]}`,
			wantOnline: []LineItem{{Name: "recharge", Amount: 20}},
		},
		{
			name:       "canonical onlinePayment wins over legacy alias",
			payload:    `{"username":"alice","onlinePayment":[{"name":"bill","amount":5}],"online":[{"name":"recharge","amount":20}]}`,
			wantOnline: []LineItem{{Name: "bill", Amount: 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Report
			if err := json.Unmarshal([]byte(tt.payload), &r); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if r.Username != "alice" {
				t.Errorf("username = %q, want alice", r.Username)
			}
			if r.Cash != tt.wantCash {
				t.Errorf("cash = %v, want %v", r.Cash, tt.wantCash)
			}
			if len(r.OnlinePayment) != len(tt.wantOnline) {
				t.Fatalf("onlinePayment has %d items, want %d", len(r.OnlinePayment), len(tt.wantOnline))
			}
			for i, want := range tt.wantOnline {
				if r.OnlinePayment[i] != want {
					t.Errorf("onlinePayment[%d] = %+v, want %+v", i, r.OnlinePayment[i], want)
				}
			}
		})
	}
}

func TestNormalizeSectionKind(t *testing.T) {
	if got := NormalizeSectionKind("online"); got != SectionOnlinePayment {
		t.Errorf("NormalizeSectionKind(online) = %q, want %q", got, SectionOnlinePayment)
	}
	if got := NormalizeSectionKind("income"); got != SectionIncome {
		t.Errorf("NormalizeSectionKind(income) = %q, want %q", got, SectionIncome)
	}
}
