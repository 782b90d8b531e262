package auth

import (
	"context"
	"errors"
	"testing"

	"daybook/internal/core"
)

type fakeCredentialStore struct {
	creds map[string]core.Credential
	loads int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{creds: map[string]core.Credential{
		core.PageAdmin:  {Page: core.PageAdmin, PasswordEnc: EncodePassword("admin123"), Role: core.RoleAdmin},
		core.PageReport: {Page: core.PageReport, PasswordEnc: EncodePassword("report123"), Role: core.RoleUser},
	}}
}

func (f *fakeCredentialStore) Credential(_ context.Context, page string) (core.Credential, error) {
	f.loads++
	cred, ok := f.creds[page]
	if !ok {
		return core.Credential{}, core.ErrNotFound
	}
	return cred, nil
}

func (f *fakeCredentialStore) UpdateCredential(_ context.Context, cred core.Credential) error {
	if _, ok := f.creds[cred.Page]; !ok {
		return core.ErrNotFound
	}
	f.creds[cred.Page] = cred
	return nil
}

func TestServiceVerify(t *testing.T) {
	svc := NewService(newFakeCredentialStore())
	ctx := context.Background()

	tests := []struct {
		name     string
		page     string
		password string
		wantRole core.Role
		wantErr  error
	}{
		{name: "admin page correct password", page: "admin", password: "admin123", wantRole: core.RoleAdmin},
		{name: "report page correct password", page: "report", password: "report123", wantRole: core.RoleUser},
		{name: "wrong password", page: "admin", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown page", page: "ghost", password: "admin123", wantErr: ErrInvalidCredentials},
		{name: "empty password", page: "admin", password: "", wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := svc.Verify(ctx, tt.page, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if role != tt.wantRole {
				t.Errorf("Verify() role = %q, want %q", role, tt.wantRole)
			}
		})
	}
}

func TestServiceChangePassword(t *testing.T) {
	store := newFakeCredentialStore()
	svc := NewService(store)
	ctx := context.Background()

	cred, err := svc.ChangePassword(ctx, "report", "newsecret", core.RoleUser)
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if cred.PasswordEnc != EncodePassword("newsecret") {
		t.Errorf("stored password not re-encoded")
	}

	// Old password no longer verifies, new one does.
	if _, err := svc.Verify(ctx, "report", "report123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still verifies, err = %v", err)
	}
	role, err := svc.Verify(ctx, "report", "newsecret")
	if err != nil {
		t.Fatalf("Verify() with new password error = %v", err)
	}
	if role != core.RoleUser {
		t.Errorf("role = %q, want %q", role, core.RoleUser)
	}

	if _, err := svc.ChangePassword(ctx, "ghost", "x", core.RoleUser); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("ChangePassword(unknown page) error = %v, want ErrUnknownPage", err)
	}
}

func TestServiceCachesCredentials(t *testing.T) {
	store := newFakeCredentialStore()
	svc := NewService(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Verify(ctx, "admin", "admin123"); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
	}
	if store.loads != 1 {
		t.Errorf("store loaded %d times, want 1 (rest served from cache)", store.loads)
	}

	// Failed verifications still hit the cache, not the store.
	if _, err := svc.Verify(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Verify() error = %v, want ErrInvalidCredentials", err)
	}
	if store.loads != 1 {
		t.Errorf("store loaded %d times after failed verify, want 1", store.loads)
	}

	// Unknown pages are not negative-cached.
	for i := 0; i < 2; i++ {
		if _, err := svc.Verify(ctx, "ghost", "x"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Verify(ghost) error = %v", err)
		}
	}
	if store.loads != 3 {
		t.Errorf("store loaded %d times, want 3 (unknown page loads every time)", store.loads)
	}
}

func TestPasswordCodecRoundTrip(t *testing.T) {
	plain := "s3cret!"
	decoded, err := DecodePassword(EncodePassword(plain))
	if err != nil {
		t.Fatalf("DecodePassword() error = %v", err)
	}
	if decoded != plain {
		t.Errorf("round trip = %q, want %q", decoded, plain)
	}
}
