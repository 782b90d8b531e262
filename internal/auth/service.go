package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daybook/internal/cache"
	"daybook/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownPage        = errors.New("unknown page")
)

// credentialCacheTTL bounds how stale a cached credential can get. Password
// changes through this service update the cache immediately; the TTL only
// matters for writes made behind the service's back.
const credentialCacheTTL = 30 * time.Second

// CredentialStore is the persistence the gate needs. Implemented by
// storage.SQLiteRepository.
type CredentialStore interface {
	Credential(ctx context.Context, page string) (core.Credential, error)
	UpdateCredential(ctx context.Context, cred core.Credential) error
}

// Service is the credential gate: given a page and a password it answers
// pass/fail and the role associated with the page.
type Service struct {
	store CredentialStore
	cache *cache.LRUCache[core.Credential]
}

func NewService(store CredentialStore) *Service {
	return &Service{
		store: store,
		cache: cache.NewLRUCache[core.Credential](8, credentialCacheTTL),
	}
}

// Verify checks a password against the stored credential for a page and
// returns the page's role. Unknown pages and wrong passwords both come back
// as ErrInvalidCredentials so callers cannot probe for valid page names.
func (s *Service) Verify(ctx context.Context, page, password string) (core.Role, error) {
	cred, err := s.credential(ctx, page)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load credential: %w", err)
	}

	if EncodePassword(password) != cred.PasswordEnc {
		slog.WarnContext(ctx, "Password verification failed", "page", page)
		return "", ErrInvalidCredentials
	}

	return cred.Role, nil
}

// ChangePassword replaces the stored password (and role) for a page.
// Returns ErrUnknownPage when the page does not exist.
func (s *Service) ChangePassword(ctx context.Context, page, newPassword string, role core.Role) (core.Credential, error) {
	cred := core.Credential{
		Page:        page,
		PasswordEnc: EncodePassword(newPassword),
		Role:        role,
	}

	if err := s.store.UpdateCredential(ctx, cred); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Credential{}, ErrUnknownPage
		}
		return core.Credential{}, fmt.Errorf("update credential: %w", err)
	}
	s.cache.Set(page, cred)

	slog.InfoContext(ctx, "Password changed", "page", page, "role", role)
	return cred, nil
}

// credential loads a page's credential through the cache. Misses and errors
// are never negative-cached.
func (s *Service) credential(ctx context.Context, page string) (core.Credential, error) {
	if cred, ok := s.cache.Get(page); ok {
		return cred, nil
	}

	cred, err := s.store.Credential(ctx, page)
	if err != nil {
		return core.Credential{}, err
	}
	s.cache.Set(page, cred)
	return cred, nil
}
