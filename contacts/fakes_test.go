package contacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same ownership rules as
// PostgresStore.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Contact
}

func newMemStore() *memStore { return &memStore{rows: map[int64]Contact{}} }

func (s *memStore) emailTaken(owner int64, email string, except int64) bool {
	for _, c := range s.rows {
		if c.UserID == owner && c.ID != except && strings.EqualFold(c.Email, email) {
			return true
		}
	}
	return false
}

func (s *memStore) sorted(owner int64, keep func(Contact) bool) []Contact {
	out := []Contact{}
	for _, c := range s.rows {
		if c.UserID == owner && keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) Create(_ context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(c.UserID, c.Email, 0) {
		return ErrDuplicateEmail
	}
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = time.Now().UTC()
	s.rows[c.ID] = *c
	return nil
}

func (s *memStore) Get(_ context.Context, owner, id int64) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok || c.UserID != owner {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *memStore) List(_ context.Context, owner int64, skip, limit int) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(owner, func(Contact) bool { return true })
	if skip >= len(all) {
		return []Contact{}, nil
	}
	all = all[skip:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) Search(_ context.Context, owner int64, q string) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q = strings.ToLower(q)
	return s.sorted(owner, func(c Contact) bool {
		for _, f := range []string{c.FirstName, c.LastName, c.Email, c.Phone} {
			if strings.Contains(strings.ToLower(f), q) {
				return true
			}
		}
		return false
	}), nil
}

func (s *memStore) All(_ context.Context, owner int64) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(owner, func(Contact) bool { return true }), nil
}

func (s *memStore) Update(_ context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rows[c.ID]
	if !ok || old.UserID != c.UserID {
		return ErrNotFound
	}
	if s.emailTaken(c.UserID, c.Email, c.ID) {
		return ErrDuplicateEmail
	}
	c.CreatedAt = old.CreatedAt
	s.rows[c.ID] = *c
	return nil
}

func (s *memStore) Delete(_ context.Context, owner, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok || c.UserID != owner {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}
