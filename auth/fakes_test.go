package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]User
	touched map[int64]time.Time
	findErr error
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]User{}, touched: map[int64]time.Time{}}
}

func (s *memStore) FindByIdentity(_ context.Context, identity string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, identity) || strings.EqualFold(u.Email, identity) {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memStore) FindByID(_ context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *memStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return ErrIdentityTaken
		}
	}
	s.nextID++
	u.ID = s.nextID
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u
	return nil
}

func (s *memStore) Save(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s *memStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id] = at
	return nil
}

func (s *memStore) delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// memCache is an in-memory UserCache that can be switched into failure mode.
type memCache struct {
	mu      sync.Mutex
	entries map[int64]User
	fail    bool
	gets    int
	hits    int
}

func newMemCache() *memCache { return &memCache{entries: map[int64]User{}} }

func (c *memCache) Get(_ context.Context, id int64) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return nil, errors.New("cache unavailable")
	}
	u, ok := c.entries[id]
	if !ok {
		return nil, ErrCacheMiss
	}
	c.hits++
	return &u, nil
}

func (c *memCache) Set(_ context.Context, u *User, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache unavailable")
	}
	cp := *u
	cp.PasswordHash = ""
	c.entries[u.ID] = cp
	return nil
}

func (c *memCache) Delete(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// recordingNotifier captures the tokens it was asked to deliver.
type recordingNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{verification: map[string]string{}, reset: map[string]string{}}
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification[email] = token
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[email] = token
	return nil
}

func (n *recordingNotifier) verificationToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verification[email]
}

func (n *recordingNotifier) resetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}
