package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func userRow(mock pgxmock.PgxPoolIface, digest string, enabled bool, metadata string) *pgxmock.Rows {
	return mock.NewRows([]string{"username", "full_name", "email", "password_hash", "roles", "metadata", "enabled"}).
		AddRow("user2", "User Two", "user2@example.com", digest, []string{"directory-role"}, []byte(metadata), enabled)
}

func TestPostgresStoreLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("returns decoded user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnRows(userRow(mock, HashPassword("pw"), true, `{"department": "engineering"}`))

		store := NewPostgresStore(mock)
		user, err := store.Lookup(ctx, "user2")
		require.NoError(t, err)
		assert.Equal(t, "user2", user.Username)
		assert.Equal(t, []string{"directory-role"}, user.Roles)
		assert.Equal(t, "engineering", user.Metadata["department"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("nobody").
			WillReturnRows(mock.NewRows([]string{"username", "full_name", "email", "password_hash", "roles", "metadata", "enabled"}))

		store := NewPostgresStore(mock)
		_, err := store.Lookup(ctx, "nobody")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("disabled user behaves as absent", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnRows(userRow(mock, "", false, `{}`))

		store := NewPostgresStore(mock)
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("database failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnError(errors.New("connection refused"))

		store := NewPostgresStore(mock)
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeInternalDatabase, raerr.GetCode(err))
	})

	t.Run("deadline expiry maps to timeout", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnError(context.DeadlineExceeded)

		store := NewPostgresStore(mock)
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.True(t, raerr.IsTimeout(err))
	})

	t.Run("corrupt metadata", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnRows(userRow(mock, "", true, `{not-json`))

		store := NewPostgresStore(mock)
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeInternalDatabase, raerr.GetCode(err))
	})
}

func TestPostgresStoreVerifyPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnRows(userRow(mock, HashPassword("native-test-password"), true, `{}`))

		store := NewPostgresStore(mock)
		user, err := store.VerifyPassword(ctx, "user2", "native-test-password")
		require.NoError(t, err)
		assert.Equal(t, "user2", user.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnRows(userRow(mock, HashPassword("native-test-password"), true, `{}`))

		store := NewPostgresStore(mock)
		_, err := store.VerifyPassword(ctx, "user2", "wrong")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeAuthentication, raerr.GetCode(err))
	})

	t.Run("user without stored credential", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT username, full_name").
			WithArgs("user2").
			WillReturnRows(userRow(mock, "", true, `{}`))

		store := NewPostgresStore(mock)
		_, err := store.VerifyPassword(ctx, "user2", "")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeAuthentication, raerr.GetCode(err))
	})
}

func TestPostgresStorePut(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts user row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("INSERT INTO directory_users").
			WithArgs("user2", "User Two", "user2@example.com", HashPassword("pw"),
				[]string{"directory-role"}, []byte(`{"department":"engineering"}`), true).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		store := NewPostgresStore(mock)
		err := store.Put(ctx, User{
			Username: "user2",
			FullName: "User Two",
			Email:    "user2@example.com",
			Roles:    []string{"directory-role"},
			Metadata: map[string]any{"department": "engineering"},
			Enabled:  true,
		}, "pw")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing username", func(t *testing.T) {
		mock := newMockPool(t)
		store := NewPostgresStore(mock)
		err := store.Put(ctx, User{Enabled: true}, "pw")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeValidationRequired, raerr.GetCode(err))
	})

	t.Run("database failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("INSERT INTO directory_users").
			WillReturnError(errors.New("permission denied"))

		store := NewPostgresStore(mock)
		err := store.Put(ctx, User{Username: "user2", Enabled: true}, "pw")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeInternalDatabase, raerr.GetCode(err))
	})
}

func TestPostgresStoreEnsureSchema(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS directory_users").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store := NewPostgresStore(mock)
	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
