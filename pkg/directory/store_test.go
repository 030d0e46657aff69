package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

func TestHashPassword(t *testing.T) {
	digest := HashPassword("native-test-password")
	assert.Len(t, digest, 64, "hex-encoded SHA-256 digest")
	assert.Equal(t, digest, HashPassword("native-test-password"), "deterministic")
	assert.NotEqual(t, digest, HashPassword("other"))
}

func TestUserClone(t *testing.T) {
	original := &User{
		Username: "user2",
		Roles:    []string{"directory-role"},
		Metadata: map[string]any{"department": "engineering"},
		Enabled:  true,
	}

	clone := original.Clone()
	clone.Roles[0] = "mutated"
	clone.Metadata["department"] = "mutated"

	assert.Equal(t, []string{"directory-role"}, original.Roles)
	assert.Equal(t, "engineering", original.Metadata["department"])

	var nilUser *User
	assert.Nil(t, nilUser.Clone())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	user2 := User{
		Username: "user2",
		FullName: "User Two",
		Roles:    []string{"directory-role"},
		Metadata: map[string]any{"department": "engineering"},
		Enabled:  true,
	}

	t.Run("lookup returns a copy", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(user2, "native-test-password"))

		got, err := store.Lookup(ctx, "user2")
		require.NoError(t, err)
		assert.Equal(t, "user2", got.Username)
		assert.Equal(t, []string{"directory-role"}, got.Roles)

		got.Roles[0] = "mutated"
		again, err := store.Lookup(ctx, "user2")
		require.NoError(t, err)
		assert.Equal(t, []string{"directory-role"}, again.Roles)
	})

	t.Run("lookup unknown user", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Lookup(ctx, "nobody")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("disabled user behaves as absent", func(t *testing.T) {
		store := NewMemoryStore()
		disabled := user2
		disabled.Enabled = false
		require.NoError(t, store.Put(disabled, "native-test-password"))

		_, err := store.Lookup(ctx, "user2")
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))

		_, err = store.VerifyPassword(ctx, "user2", "native-test-password")
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("verify password", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(user2, "native-test-password"))

		got, err := store.VerifyPassword(ctx, "user2", "native-test-password")
		require.NoError(t, err)
		assert.Equal(t, "user2", got.Username)

		_, err = store.VerifyPassword(ctx, "user2", "wrong-password")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeAuthentication, raerr.GetCode(err))
	})

	t.Run("user without password never verifies", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(user2, ""))

		_, err := store.VerifyPassword(ctx, "user2", "")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeAuthentication, raerr.GetCode(err))
	})

	t.Run("put without username", func(t *testing.T) {
		store := NewMemoryStore()
		err := store.Put(User{Enabled: true}, "pw")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeValidationRequired, raerr.GetCode(err))
	})
}
