package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/contacts-api/auth"
)

const (
	DefaultLimit = 100
	MaxLimit     = 100
	DefaultDays  = 7
	MaxDays      = 366
)

// ErrInvalidQuery marks out-of-range paging or search parameters.
var ErrInvalidQuery = errors.New("contacts: invalid query")

// Service applies ownership to every contact operation. The owner is
// always the user of the RequestContext passed in.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

type ServiceOption func(*Service)

// WithClock replaces the clock used to determine "today".
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, log *zap.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func owner(rc *auth.RequestContext) (int64, error) {
	if !rc.Authenticated() {
		return 0, auth.ErrUnauthenticated
	}
	return rc.UserID(), nil
}

func (s *Service) Create(ctx context.Context, rc *auth.RequestContext, in Input) (*Contact, error) {
	const op = "contacts.Service.Create"

	uid, err := owner(rc)
	if err != nil {
		return nil, err
	}
	c := &Contact{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Birthday:  in.Birthday,
		Extra:     in.Extra,
		UserID:    uid,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("contact created", zap.Int64("user_id", uid), zap.Int64("contact_id", c.ID))
	return c, nil
}

func (s *Service) Get(ctx context.Context, rc *auth.RequestContext, id int64) (*Contact, error) {
	uid, err := owner(rc)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, uid, id)
}

// List pages through the owner's contacts by ID. skip must be >= 0 and
// limit within 1..MaxLimit.
func (s *Service) List(ctx context.Context, rc *auth.RequestContext, skip, limit int) ([]Contact, error) {
	uid, err := owner(rc)
	if err != nil {
		return nil, err
	}
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0", ErrInvalidQuery)
	}
	if limit < 1 || limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, MaxLimit)
	}
	return s.store.List(ctx, uid, skip, limit)
}

// Search matches q case-insensitively against names, email and phone.
func (s *Service) Search(ctx context.Context, rc *auth.RequestContext, q string) ([]Contact, error) {
	uid, err := owner(rc)
	if err != nil {
		return nil, err
	}
	if q == "" {
		return nil, fmt.Errorf("%w: q is required", ErrInvalidQuery)
	}
	return s.store.Search(ctx, uid, q)
}

// UpcomingBirthdays returns the owner's contacts with a birthday in the
// next days days, today included.
func (s *Service) UpcomingBirthdays(ctx context.Context, rc *auth.RequestContext, days int) ([]Contact, error) {
	const op = "contacts.Service.UpcomingBirthdays"

	uid, err := owner(rc)
	if err != nil {
		return nil, err
	}
	if days < 0 || days > MaxDays {
		return nil, fmt.Errorf("%w: days must be between 0 and %d", ErrInvalidQuery, MaxDays)
	}
	all, err := s.store.All(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return UpcomingBirthdays(all, DateOf(s.now().UTC()), days), nil
}

// Update replaces the contact's fields.
func (s *Service) Update(ctx context.Context, rc *auth.RequestContext, id int64, in Input) (*Contact, error) {
	const op = "contacts.Service.Update"

	uid, err := owner(rc)
	if err != nil {
		return nil, err
	}
	c := &Contact{
		ID:        id,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Birthday:  in.Birthday,
		Extra:     in.Extra,
		UserID:    uid,
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, rc *auth.RequestContext, id int64) error {
	const op = "contacts.Service.Delete"

	uid, err := owner(rc)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, uid, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("contact deleted", zap.Int64("user_id", uid), zap.Int64("contact_id", id))
	return nil
}
