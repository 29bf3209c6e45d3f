package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialStore persists users. Uniqueness of username and email is
// enforced by the store, not by callers.
type CredentialStore interface {
	// FindByIdentity looks a user up by username or email, case-insensitively.
	FindByIdentity(ctx context.Context, identity string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	// Create inserts u and fills in ID and CreatedAt.
	Create(ctx context.Context, u *User) error
	// Save persists the mutable fields of u.
	Save(ctx context.Context, u *User) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// PostgresStore is the CredentialStore backed by the users table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, username, email, password_hash, role, is_active, email_verified, avatar_url, created_at, last_login_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.IsActive,
		&u.EmailVerified,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	if u.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, identity string) (*User, error) {
	const op = "auth.PostgresStore.FindByIdentity"

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		LIMIT 1`

	u, err := scanUser(s.db.QueryRow(ctx, query, identity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*User, error) {
	const op = "auth.PostgresStore.FindByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	const op = "auth.PostgresStore.Create"

	query := `INSERT INTO users (username, email, password_hash, role, is_active, email_verified, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.Role.String(),
		u.IsActive,
		u.EmailVerified,
		u.AvatarURL,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrIdentityTaken)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, u *User) error {
	const op = "auth.PostgresStore.Save"

	// Cached users carry no hash; saving one would wipe the password.
	if u.PasswordHash == "" {
		return fmt.Errorf("%s: user %d has no password hash", op, u.ID)
	}

	query := `UPDATE users
		SET password_hash = $2, role = $3, is_active = $4, email_verified = $5, avatar_url = $6
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		u.ID,
		u.PasswordHash,
		u.Role.String(),
		u.IsActive,
		u.EmailVerified,
		u.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	const op = "auth.PostgresStore.TouchLastLogin"

	if _, err := s.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
