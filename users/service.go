// Package users manages account profiles: the current user, avatars and
// role assignment.
package users

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
	"github.com/user/contacts-api/auth"
	"github.com/user/contacts-api/avatar"
)

// Invalidator drops cached copies of a user after a change.
type Invalidator interface {
	InvalidateUser(ctx context.Context, id int64)
}

// Service changes stored users. Every mutation reloads the user from the
// store, since cached copies carry no password hash.
type Service struct {
	store   auth.CredentialStore
	cache   Invalidator
	avatars avatar.Storage
	log     *zap.Logger
}

// NewService builds a Service. avatars may be nil, which disables uploads.
func NewService(store auth.CredentialStore, cache Invalidator, avatars avatar.Storage, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cache: cache, avatars: avatars, log: log}
}

// SetRole assigns role to the user with userID.
func (s *Service) SetRole(ctx context.Context, userID int64, role auth.Role) (*auth.User, error) {
	const op = "users.Service.SetRole"

	if !role.Valid() {
		return nil, apperror.NewBadRequestError("invalid role", nil)
	}
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u.Role = role
	if err := s.store.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.cache.InvalidateUser(ctx, u.ID)

	s.log.Info("role changed", zap.Int64("user_id", u.ID), zap.Stringer("role", role))
	return u, nil
}

// UploadAvatar stores the image and points the user's avatar_url at it.
func (s *Service) UploadAvatar(ctx context.Context, userID int64, r io.Reader, size int64, contentType string) (*auth.User, error) {
	const op = "users.Service.UploadAvatar"

	if s.avatars == nil {
		return nil, apperror.NewServiceUnavailableError("avatar storage is not configured", nil)
	}

	url, err := s.avatars.Upload(ctx, userID, r, size, contentType)
	if err != nil {
		switch {
		case errors.Is(err, avatar.ErrUnsupportedType):
			return nil, apperror.NewBadRequestError("unsupported image type", err)
		case errors.Is(err, avatar.ErrEmpty):
			return nil, apperror.NewBadRequestError("empty file", err)
		case errors.Is(err, avatar.ErrTooLarge):
			return nil, apperror.NewPayloadTooLargeError("file too large", err)
		}
		return nil, apperror.NewExternalServiceError("failed to store avatar", fmt.Errorf("%s: %w", op, err))
	}

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u.AvatarURL = &url
	if err := s.store.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.cache.InvalidateUser(ctx, u.ID)
	return u, nil
}
