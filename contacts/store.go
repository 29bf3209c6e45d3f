package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("contacts: contact not found")
	ErrDuplicateEmail = errors.New("contacts: email already used by another contact")
)

// Store persists contacts. Every read and write is scoped to an owner;
// a contact owned by someone else is reported as ErrNotFound.
type Store interface {
	Create(ctx context.Context, c *Contact) error
	Get(ctx context.Context, owner, id int64) (*Contact, error)
	List(ctx context.Context, owner int64, skip, limit int) ([]Contact, error)
	Search(ctx context.Context, owner int64, q string) ([]Contact, error)
	All(ctx context.Context, owner int64) ([]Contact, error)
	Update(ctx context.Context, c *Contact) error
	Delete(ctx context.Context, owner, id int64) error
}

// PostgresStore implements Store with pgx.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const contactColumns = `id, first_name, last_name, email, phone, birthday, extra, user_id, created_at`

func scanContact(row pgx.Row) (*Contact, error) {
	var (
		c        Contact
		birthday time.Time
	)
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &birthday, &c.Extra, &c.UserID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Birthday = DateOf(birthday)
	return &c, nil
}

func collect(rows pgx.Rows) ([]Contact, error) {
	defer rows.Close()
	out := []Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *PostgresStore) Create(ctx context.Context, c *Contact) error {
	const op = "contacts.PostgresStore.Create"

	query := `INSERT INTO contacts (first_name, last_name, email, phone, birthday, extra, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Birthday.Time, c.Extra, c.UserID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, owner, id int64) (*Contact, error) {
	const op = "contacts.PostgresStore.Get"

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`

	c, err := scanContact(s.db.QueryRow(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, owner int64, skip, limit int) ([]Contact, error) {
	const op = "contacts.PostgresStore.List"

	query := `SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`

	rows, err := s.db.Query(ctx, query, owner, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// likeEscaper escapes LIKE wildcards so q matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) Search(ctx context.Context, owner int64, q string) ([]Contact, error) {
	const op = "contacts.PostgresStore.Search"

	query := `SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		  AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2 OR phone ILIKE $2)
		ORDER BY id`

	rows, err := s.db.Query(ctx, query, owner, "%"+likeEscaper.Replace(q)+"%")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) All(ctx context.Context, owner int64) ([]Contact, error) {
	const op = "contacts.PostgresStore.All"

	rows, err := s.db.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE user_id = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Update replaces the editable fields of the contact identified by c.ID
// and c.UserID. CreatedAt is filled from the stored row.
func (s *PostgresStore) Update(ctx context.Context, c *Contact) error {
	const op = "contacts.PostgresStore.Update"

	query := `UPDATE contacts
		SET first_name = $1, last_name = $2, email = $3, phone = $4, birthday = $5, extra = $6
		WHERE id = $7 AND user_id = $8
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Birthday.Time, c.Extra, c.ID, c.UserID,
	).Scan(&c.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrNotFound
		case isUniqueViolation(err):
			return fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, owner, id int64) error {
	const op = "contacts.PostgresStore.Delete"

	tag, err := s.db.Exec(ctx, `DELETE FROM contacts WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
