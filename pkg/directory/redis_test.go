package directory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// mockHashCmdable implements HashCmdable with testify/mock so the Redis
// store can be unit tested without a Redis instance.
type mockHashCmdable struct {
	mock.Mock
}

func (m *mockHashCmdable) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	args := m.Called(ctx, key, field)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockHashCmdable) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockHashCmdable) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	args := m.Called(ctx, key, fields)
	return args.Get(0).(*redis.IntCmd)
}

func stringCmd(val string, err error) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func intCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func userDoc(t *testing.T, password string, enabled bool) string {
	t.Helper()
	doc := redisUserDoc{
		User: User{
			Username: "user2",
			Roles:    []string{"directory-role"},
			Metadata: map[string]any{"department": "engineering"},
			Enabled:  enabled,
		},
	}
	if password != "" {
		doc.PasswordHash = HashPassword(password)
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func TestRedisStoreLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("returns decoded user", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "user2").
			Return(stringCmd(userDoc(t, "pw", true), nil))

		store := NewRedisStore(cmdable, "")
		user, err := store.Lookup(ctx, "user2")
		require.NoError(t, err)
		assert.Equal(t, "user2", user.Username)
		assert.Equal(t, []string{"directory-role"}, user.Roles)
		cmdable.AssertExpectations(t)
	})

	t.Run("unknown user maps redis.Nil to not found", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "nobody").
			Return(stringCmd("", redis.Nil))

		store := NewRedisStore(cmdable, "")
		_, err := store.Lookup(ctx, "nobody")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("disabled user behaves as absent", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "user2").
			Return(stringCmd(userDoc(t, "pw", false), nil))

		store := NewRedisStore(cmdable, "")
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("corrupt document", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "user2").
			Return(stringCmd("not-json", nil))

		store := NewRedisStore(cmdable, "")
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeInternalDatabase, raerr.GetCode(err))
	})

	t.Run("redis failure", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "user2").
			Return(stringCmd("", errors.New("connection refused")))

		store := NewRedisStore(cmdable, "")
		_, err := store.Lookup(ctx, "user2")
		require.Error(t, err)
		assert.True(t, raerr.IsUnavailable(err))
	})
}

func TestRedisStoreVerifyPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "user2").
			Return(stringCmd(userDoc(t, "native-test-password", true), nil))

		store := NewRedisStore(cmdable, "")
		user, err := store.VerifyPassword(ctx, "user2", "native-test-password")
		require.NoError(t, err)
		assert.Equal(t, "user2", user.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HGet", mock.Anything, DefaultRedisKey, "user2").
			Return(stringCmd(userDoc(t, "native-test-password", true), nil))

		store := NewRedisStore(cmdable, "")
		_, err := store.VerifyPassword(ctx, "user2", "wrong")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeAuthentication, raerr.GetCode(err))
	})
}

func TestRedisStorePutDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("stores document under username", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HSet", mock.Anything, "custom:users", mock.MatchedBy(func(values []interface{}) bool {
			if len(values) != 2 || values[0] != "user2" {
				return false
			}
			var doc redisUserDoc
			if err := json.Unmarshal([]byte(values[1].(string)), &doc); err != nil {
				return false
			}
			return doc.Username == "user2" && verifyDigest(doc.PasswordHash, "pw")
		})).Return(intCmd(1, nil))

		store := NewRedisStore(cmdable, "custom:users")
		err := store.Put(ctx, User{Username: "user2", Enabled: true}, "pw")
		require.NoError(t, err)
		cmdable.AssertExpectations(t)
	})

	t.Run("rejects unnamed user without touching redis", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		store := NewRedisStore(cmdable, "")

		err := store.Put(ctx, User{Enabled: true}, "pw")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeValidationRequired, raerr.GetCode(err))
		cmdable.AssertNotCalled(t, "HSet", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete missing user", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HDel", mock.Anything, DefaultRedisKey, []string{"absent"}).
			Return(intCmd(0, nil))

		store := NewRedisStore(cmdable, "")
		err := store.Delete(ctx, "absent")
		require.Error(t, err)
		assert.Equal(t, raerr.CodeNotFoundUser, raerr.GetCode(err))
	})

	t.Run("delete existing user", func(t *testing.T) {
		cmdable := &mockHashCmdable{}
		cmdable.On("HDel", mock.Anything, DefaultRedisKey, []string{"user2"}).
			Return(intCmd(1, nil))

		store := NewRedisStore(cmdable, "")
		require.NoError(t, store.Delete(ctx, "user2"))
	})
}
