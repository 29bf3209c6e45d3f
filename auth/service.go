package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/contacts-api/config"
)

// ServiceConfig holds token lifetimes and the user cache TTL.
type ServiceConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	VerifyTTL  time.Duration
	ResetTTL   time.Duration
	CacheTTL   time.Duration
}

// ServiceConfigFrom builds a ServiceConfig from application configuration.
func ServiceConfigFrom(auth *config.AuthConfig, redis *config.RedisConfig) ServiceConfig {
	return ServiceConfig{
		AccessTTL:  auth.AccessTokenDuration,
		RefreshTTL: auth.RefreshTokenDuration,
		VerifyTTL:  auth.VerifyTokenDuration,
		ResetTTL:   auth.ResetTokenDuration,
		CacheTTL:   redis.UserCacheTTL,
	}
}

// Service implements login, refresh, current-user resolution and the
// account lifecycle (registration, email verification, password reset).
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	tokens   *TokenManager
	cache    UserCache
	notifier Notifier
	cfg      ServiceConfig
	log      *zap.Logger
	now      func() time.Time

	// dummyHash is compared against when the identity is unknown so that
	// both Login failure paths cost one bcrypt comparison.
	dummyHash func() string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithCache enables look-aside caching of users in ResolveCurrentUser.
func WithCache(c UserCache) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithNotifier sets where verification and reset emails are sent.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithServiceClock replaces time.Now for last-login bookkeeping.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store CredentialStore, hasher PasswordHasher, tokens *TokenManager, cfg ServiceConfig, log *zap.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		cache:    noCache{},
		notifier: noNotifier{},
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	s.dummyHash = sync.OnceValue(func() string {
		h, err := hasher.Hash("contacts-api-timing-equalizer")
		if err != nil {
			log.Warn("failed to compute dummy password hash", zap.Error(err))
		}
		return h
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) issuePair(u *User) (*TokenPair, error) {
	access, err := s.tokens.Issue(u.Subject(), TokenAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(u.Subject(), TokenRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTTL}, nil
}

// Login checks identity (username or email) and password and issues an
// access and a refresh token. Unknown identities, wrong passwords and
// deactivated accounts all fail with ErrAuthFailed.
func (s *Service) Login(ctx context.Context, identity, password string) (*TokenPair, error) {
	const op = "auth.Service.Login"

	user, err := s.store.FindByIdentity(ctx, strings.TrimSpace(identity))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.Verify(password, s.dummyHash())
			return nil, ErrAuthFailed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) || !user.IsActive {
		return nil, ErrAuthFailed
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.log.Warn("failed to record last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token. The user is
// reloaded from the store so deleted or deactivated accounts stop
// refreshing immediately. The refresh token itself is returned unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "auth.Service.Refresh"

	subject, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	id, err := parseSubject(subject)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account disabled", ErrUnauthenticated)
	}

	access, err := s.tokens.Issue(user.Subject(), TokenAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken, ExpiresIn: s.cfg.AccessTTL}, nil
}

// ResolveCurrentUser returns the user an access token belongs to. Token
// failures and missing or disabled users are ErrUnauthenticated; store
// failures are returned as is.
func (s *Service) ResolveCurrentUser(ctx context.Context, accessToken string) (*User, error) {
	const op = "auth.Service.ResolveCurrentUser"

	subject, err := s.tokens.Verify(accessToken, TokenAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	id, err := parseSubject(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account disabled", ErrUnauthenticated)
	}
	return user, nil
}

// lookupUser reads through the cache. Users returned from the cache have
// no PasswordHash.
func (s *Service) lookupUser(ctx context.Context, id int64) (*User, error) {
	if u, err := s.cache.Get(ctx, id); err == nil && u != nil {
		return u, nil
	}

	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, u, s.cfg.CacheTTL); err != nil {
		s.log.Debug("user cache set failed", zap.Int64("user_id", id), zap.Error(err))
	}
	return u, nil
}

// InvalidateUser drops id from the cache after a change to the user.
func (s *Service) InvalidateUser(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warn("user cache invalidation failed", zap.Int64("user_id", id), zap.Error(err))
	}
}

// Register creates a user with the default role and sends a verification
// email. Mail delivery problems are logged and do not fail registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	const op = "auth.Service.Register"

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrIdentityTaken) {
			return nil, ErrIdentityTaken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.sendVerification(ctx, user)
	return user, nil
}

func (s *Service) sendVerification(ctx context.Context, u *User) {
	token, err := s.tokens.Issue(u.Subject(), TokenVerifyEmail, s.cfg.VerifyTTL)
	if err != nil {
		s.log.Error("failed to issue verification token", zap.Int64("user_id", u.ID), zap.Error(err))
		return
	}
	if err := s.notifier.SendVerification(ctx, u.Email, u.Username, token); err != nil {
		s.log.Warn("failed to send verification email", zap.Int64("user_id", u.ID), zap.Error(err))
	}
}

// VerifyEmail redeems a verification token. The flag flips at most once;
// redeeming again returns the user unchanged.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	const op = "auth.Service.VerifyEmail"

	subject, err := s.tokens.Verify(token, TokenVerifyEmail)
	if err != nil {
		return nil, err
	}
	id, err := parseSubject(subject)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.EmailVerified {
		return user, nil
	}

	user.EmailVerified = true
	if err := s.store.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.InvalidateUser(ctx, user.ID)
	return user, nil
}

// RequestPasswordReset mails a reset link when email belongs to a user.
// It reports success either way so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "auth.Service.RequestPasswordReset"

	email = strings.TrimSpace(email)
	user, err := s.store.FindByIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !strings.EqualFold(user.Email, email) || !user.IsActive {
		return nil
	}

	token, err := s.tokens.Issue(user.Subject(), TokenResetPassword, s.cfg.ResetTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.notifier.SendPasswordReset(ctx, user.Email, user.Username, token); err != nil {
		s.log.Warn("failed to send password reset email", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword redeems a reset token and replaces the password hash. This
// is the only operation that changes a stored password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.Service.ResetPassword"

	subject, err := s.tokens.Verify(token, TokenResetPassword)
	if err != nil {
		return err
	}
	id, err := parseSubject(subject)
	if err != nil {
		return err
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user.PasswordHash = hash
	if err := s.store.Save(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.InvalidateUser(ctx, user.ID)
	return nil
}
