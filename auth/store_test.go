package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Integration tests for PostgresStore against a real PostgreSQL started by
// testcontainers-go. Run with:
//
//	GO_TEST_INTEGRATION=1 go test ./auth -run Integration -count=1

func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "migrations")
}

func applyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(migrationsDir(), "*.up.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(b))
		require.NoError(t, err, "apply %s", f)
	}
}

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "contacts"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://user:pass@%s:%s/contacts?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applyMigrations(t, ctx, pool)
	return pool
}

func TestIntegration_PostgresStore_CreateAndFind(t *testing.T) {
	st := NewPostgresStore(startPostgres(t))
	ctx := context.Background()

	u := &User{Username: "Alice", Email: "alice@example.com", PasswordHash: "hash", Role: RoleUser, IsActive: true}
	require.NoError(t, st.Create(ctx, u))
	require.NotZero(t, u.ID)
	require.False(t, u.CreatedAt.IsZero())

	byName, err := st.FindByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.Equal(t, RoleUser, byName.Role)
	assert.Equal(t, "hash", byName.PasswordHash)

	byEmail, err := st.FindByIdentity(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := st.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Username)

	_, err = st.FindByIdentity(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = st.FindByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestIntegration_PostgresStore_Uniqueness(t *testing.T) {
	st := NewPostgresStore(startPostgres(t))
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, &User{Username: "bob", Email: "bob@example.com", PasswordHash: "h", Role: RoleUser, IsActive: true}))

	err := st.Create(ctx, &User{Username: "BOB", Email: "other@example.com", PasswordHash: "h", Role: RoleUser, IsActive: true})
	assert.ErrorIs(t, err, ErrIdentityTaken)

	err = st.Create(ctx, &User{Username: "bobby", Email: "Bob@Example.com", PasswordHash: "h", Role: RoleUser, IsActive: true})
	assert.ErrorIs(t, err, ErrIdentityTaken)
}

func TestIntegration_PostgresStore_SaveAndTouch(t *testing.T) {
	st := NewPostgresStore(startPostgres(t))
	ctx := context.Background()

	u := &User{Username: "carol", Email: "carol@example.com", PasswordHash: "h1", Role: RoleUser, IsActive: true}
	require.NoError(t, st.Create(ctx, u))

	avatar := "https://cdn.example.com/avatars/1.png"
	u.Role = RoleAdmin
	u.EmailVerified = true
	u.AvatarURL = &avatar
	u.PasswordHash = "h2"
	require.NoError(t, st.Save(ctx, u))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.TouchLastLogin(ctx, u.ID, at))

	got, err := st.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.True(t, got.EmailVerified)
	require.NotNil(t, got.AvatarURL)
	assert.Equal(t, avatar, *got.AvatarURL)
	assert.Equal(t, "h2", got.PasswordHash)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, at, *got.LastLoginAt, time.Second)

	assert.ErrorIs(t, st.Save(ctx, &User{ID: 424242, PasswordHash: "h", Role: RoleUser}), ErrUserNotFound)
	assert.Error(t, st.Save(ctx, &User{ID: u.ID, Role: RoleUser}), "saving without a hash must be refused")
}
