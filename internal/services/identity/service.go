// Package identity holds the current user for one client session.
package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/biogames-go/internal/dependencies/clock"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/storage"
)

// Service reads and writes the identity bound to a single session key
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	roles   RoleResolver
	key     model.SessionKey

	mu sync.Mutex // serializes read-modify-write updates
}

// NewSessionKey creates a fresh session key
func NewSessionKey() model.SessionKey {
	return model.SessionKey(uuid.NewString())
}

// New creates an identity service scoped to key. A nil roles uses DefaultRoleResolver.
func New(storage storage.Storage, clock clock.Clock, key model.SessionKey, roles RoleResolver) *Service {
	if roles == nil {
		roles = DefaultRoleResolver()
	}
	return &Service{
		storage: storage,
		clock:   clock,
		roles:   roles,
		key:     key,
	}
}

// Key returns the session key this service is bound to
func (s *Service) Key() model.SessionKey {
	return s.key
}

// Set establishes an identity, resolving its role
func (s *Service) Set(ctx context.Context, identity model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity.Role = s.roles.ResolveRole(identity.UserID)
	return s.save(ctx, &identity)
}

// Get returns the current identity or model.ErrNotAuthenticated
func (s *Service) Get(ctx context.Context) (*model.Identity, error) {
	identity, err := s.storage.GetIdentity(ctx, s.key)
	if err != nil {
		if errors.Is(err, model.ErrIdentityNotFound) {
			return nil, model.ErrNotAuthenticated
		}
		return nil, err
	}
	if identity.UserID == "" {
		return nil, model.ErrNotAuthenticated
	}
	return identity, nil
}

// Clear forgets the identity
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.DeleteIdentity(ctx, s.key)
}

// IsAuthenticated returns true iff a user id is present
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	_, err := s.Get(ctx)
	return err == nil
}

// IsAdmin reads the role resolved when the identity was established
func (s *Service) IsAdmin(ctx context.Context) bool {
	identity, err := s.Get(ctx)
	return err == nil && identity.IsAdmin()
}

// SetUserID replaces the user id. A different id is a new identity, so the role is resolved again.
func (s *Service) SetUserID(ctx context.Context, userID model.UserID) error {
	return s.update(ctx, true, func(identity *model.Identity) {
		if identity.UserID != userID {
			identity.Role = s.roles.ResolveRole(userID)
		}
		identity.UserID = userID
	})
}

// SetPhase records the user's current phase
func (s *Service) SetPhase(ctx context.Context, phase model.Phase) error {
	return s.update(ctx, false, func(identity *model.Identity) {
		identity.Phase = phase
	})
}

// SetUsername records the display username
func (s *Service) SetUsername(ctx context.Context, username string) error {
	return s.update(ctx, false, func(identity *model.Identity) {
		identity.Username = username
	})
}

// SetEmail records the registration email
func (s *Service) SetEmail(ctx context.Context, email string) error {
	return s.update(ctx, false, func(identity *model.Identity) {
		identity.Email = email
	})
}

// update applies fn to the stored identity. Unless allowEmpty, a missing identity is an error.
func (s *Service) update(ctx context.Context, allowEmpty bool, fn func(*model.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.storage.GetIdentity(ctx, s.key)
	switch {
	case errors.Is(err, model.ErrIdentityNotFound) && allowEmpty:
		identity = &model.Identity{}
	case errors.Is(err, model.ErrIdentityNotFound):
		return model.ErrNotAuthenticated
	case err != nil:
		return err
	}

	fn(identity)
	return s.save(ctx, identity)
}

func (s *Service) save(ctx context.Context, identity *model.Identity) error {
	identity.UpdatedAt = s.clock.Now()
	return s.storage.SaveIdentity(ctx, s.key, identity)
}
