package core

import (
	"testing"
)

func TestFilterVisible(t *testing.T) {
	reports := []Report{
		{ID: "1", Username: "alice"},
		{ID: "2", Username: "bob"},
		{ID: "3", Username: "alice"},
	}

	tests := []struct {
		name     string
		role     Role
		username string
		wantIDs  []string
	}{
		{
			name:     "user sees only own reports",
			role:     RoleUser,
			username: "alice",
			wantIDs:  []string{"1", "3"},
		},
		{
			name:     "other user sees own reports",
			role:     RoleUser,
			username: "bob",
			wantIDs:  []string{"2"},
		},
		{
			name:     "admin sees everything regardless of username",
			role:     RoleAdmin,
			username: "anyone",
			wantIDs:  []string{"1", "2", "3"},
		},
		{
			name:     "unknown user sees nothing",
			role:     RoleUser,
			username: "mallory",
			wantIDs:  []string{},
		},
		{
			name:     "username admin without admin role gets no bypass",
			role:     RoleUser,
			username: "admin",
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterVisible(reports, tt.role, tt.username)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("FilterVisible returned %d reports, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("report[%d].ID = %q, want %q", i, got[i].ID, want)
				}
			}
		})
	}
}
