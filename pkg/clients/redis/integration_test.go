//go:build integration

// Package redis_test contains integration tests for the Redis client that
// require a running Redis instance via testcontainers-go. These tests are
// gated behind the "integration" build tag and are executed in CI with Docker.
//
// Run locally with:
//
//	go test -v -race -tags=integration ./pkg/clients/redis/...
//
// # Architecture
//
// All tests run within a single [suite.Suite] that starts one Redis
// container in [SetupSuite] and terminates it in [TearDownSuite]. Test
// isolation is achieved via unique key prefixes per test method rather
// than per-test containers, which reduces total execution time.
package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/realmauth/internal/testutil/containers"
	"github.com/StricklySoft/realmauth/pkg/clients/redis"
	"github.com/StricklySoft/realmauth/pkg/directory"
	raerr "github.com/StricklySoft/realmauth/pkg/errors"
	"github.com/StricklySoft/realmauth/pkg/rolemapping"
)

// ===========================================================================
// Suite Definition
// ===========================================================================

// RedisIntegrationSuite runs all Redis integration tests against a single
// shared container. The container is started once in SetupSuite and
// terminated in TearDownSuite. All test methods share the same client,
// using unique key prefixes for isolation.
type RedisIntegrationSuite struct {
	suite.Suite

	ctx context.Context

	// redisResult holds the started Redis container and connection
	// string, set in SetupSuite.
	redisResult *containers.RedisResult

	// client is the Redis client connected to the test container.
	client *redis.Client
}

// SetupSuite starts a single Redis container and creates a client shared
// across all tests in the suite.
func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartRedis(s.ctx)
	require.NoError(s.T(), err, "failed to start Redis container")
	s.redisResult = result

	cfg := redis.Config{
		URI:      result.ConnString,
		PoolSize: 10,
	}
	require.NoError(s.T(), cfg.Validate(), "failed to validate config")

	client, err := redis.NewClient(s.ctx, cfg)
	require.NoError(s.T(), err, "failed to create Redis client")
	s.client = client
}

// TearDownSuite closes the client and terminates the container.
func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redisResult != nil {
		if err := s.redisResult.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate redis container: %v", err)
		}
	}
}

// TestRedisIntegration is the top-level entry point that runs all suite
// tests. It is skipped in short mode (-short flag) to allow fast unit
// test runs without Docker.
func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIntegrationSuite))
}

// ===========================================================================
// Connection Tests
// ===========================================================================

// TestNewClient_ConnectsSuccessfully verifies that NewClient can
// establish a connection to a real Redis instance.
func (s *RedisIntegrationSuite) TestNewClient_ConnectsSuccessfully() {
	require.NotNil(s.T(), s.client, "suite client should not be nil")
}

// TestHealth_ReturnsNil verifies that Health returns nil when Redis
// is reachable and responding to pings.
func (s *RedisIntegrationSuite) TestHealth_ReturnsNil() {
	require.NoError(s.T(), s.client.Health(s.ctx))
}

// ===========================================================================
// String Operation Tests
// ===========================================================================

// TestSet_And_Get verifies that Set stores a value and Get retrieves it.
func (s *RedisIntegrationSuite) TestSet_And_Get() {
	key := "test:set_get:key1"
	require.NoError(s.T(), s.client.Set(s.ctx, key, "hello", 10*time.Minute))

	val, err := s.client.Get(s.ctx, key)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "hello", val)
}

// TestGet_NonExistentKey verifies that Get returns an error for a key
// that does not exist and that the error is wrapped as a platform error.
func (s *RedisIntegrationSuite) TestGet_NonExistentKey() {
	_, err := s.client.Get(s.ctx, "test:get_nonexistent:missing")
	require.Error(s.T(), err)

	var raErr *raerr.Error
	require.True(s.T(), errors.As(err, &raErr))
	assert.True(s.T(), raerr.IsInternal(err))
}

// TestDel_RemovesKey verifies that Del removes a key and reports the
// number of keys removed.
func (s *RedisIntegrationSuite) TestDel_RemovesKey() {
	key := "test:del:key1"
	require.NoError(s.T(), s.client.Set(s.ctx, key, "temp", 10*time.Minute))

	deleted, err := s.client.Del(s.ctx, key)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), deleted)

	_, err = s.client.Get(s.ctx, key)
	require.Error(s.T(), err, "Get after Del should fail")
}

// TestExists_ReturnsCount verifies that Exists counts only keys that
// are present.
func (s *RedisIntegrationSuite) TestExists_ReturnsCount() {
	require.NoError(s.T(), s.client.Set(s.ctx, "test:exists:key1", "a", 10*time.Minute))
	require.NoError(s.T(), s.client.Set(s.ctx, "test:exists:key2", "b", 10*time.Minute))

	count, err := s.client.Exists(s.ctx, "test:exists:key1", "test:exists:key2", "test:exists:missing")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), count)
}

// TestExpire_And_TTL verifies that Expire sets a TTL and TTL reports a
// positive remaining duration.
func (s *RedisIntegrationSuite) TestExpire_And_TTL() {
	key := "test:expire:key1"
	require.NoError(s.T(), s.client.Set(s.ctx, key, "value", 0))

	ok, err := s.client.Expire(s.ctx, key, 30*time.Second)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)

	ttl, err := s.client.TTL(s.ctx, key)
	require.NoError(s.T(), err)
	assert.Greater(s.T(), ttl, time.Duration(0))
	assert.LessOrEqual(s.T(), ttl, 30*time.Second)
}

// ===========================================================================
// Hash Operation Tests
// ===========================================================================

// TestHash_RoundTrip verifies that HSet, HGet, HGetAll, and HDel work
// against a real Redis instance.
func (s *RedisIntegrationSuite) TestHash_RoundTrip() {
	key := "test:hash:users"

	added, err := s.client.HSet(s.ctx, key, "user2", `{"username":"user2"}`, "admin", `{"username":"admin"}`)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), added)

	val, err := s.client.HGet(s.ctx, key, "user2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), `{"username":"user2"}`, val)

	all, err := s.client.HGetAll(s.ctx, key)
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 2)

	removed, err := s.client.HDel(s.ctx, key, "admin")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), removed)

	all, err = s.client.HGetAll(s.ctx, key)
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 1)
}

// ===========================================================================
// Store Backend Tests
// ===========================================================================

// TestBacksDirectoryStore verifies that the client's raw command
// interface can serve as the backend of a directory.RedisStore: users
// round-trip and password verification works end to end.
func (s *RedisIntegrationSuite) TestBacksDirectoryStore() {
	store := directory.NewRedisStore(s.client.Client(), "test:directory:users")

	user := directory.User{
		Username: "user2",
		Roles:    []string{"directory-role"},
		Metadata: map[string]any{"department": "engineering"},
		Enabled:  true,
	}
	require.NoError(s.T(), store.Put(s.ctx, user, "native-test-password"))

	got, err := store.VerifyPassword(s.ctx, "user2", "native-test-password")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "user2", got.Username)
	assert.Equal(s.T(), []string{"directory-role"}, got.Roles)

	_, err = store.VerifyPassword(s.ctx, "user2", "wrong-password")
	require.Error(s.T(), err)
}

// TestBacksRoleMappingStore verifies that the client's raw command
// interface can serve as the backend of a rolemapping.RedisStore.
func (s *RedisIntegrationSuite) TestBacksRoleMappingStore() {
	store := rolemapping.NewRedisStore(s.client.Client(), "test:role-mappings")

	rules, err := rolemapping.ParseExpression([]byte(`{"field":{"realm.name":"jwt1"}}`))
	require.NoError(s.T(), err)

	mapping := rolemapping.Mapping{
		Name:    "jwt1-users",
		Enabled: true,
		Roles:   []string{"user"},
		Rules:   rules,
	}
	require.NoError(s.T(), store.Put(s.ctx, mapping))

	mappings, err := store.List(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), mappings, 1)
	assert.Equal(s.T(), "jwt1-users", mappings[0].Name)
	assert.Equal(s.T(), []string{"user"}, mappings[0].Roles)

	require.NoError(s.T(), store.Delete(s.ctx, "jwt1-users"))
	mappings, err = store.List(s.ctx)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), mappings)
}

// ===========================================================================
// Close Tests
// ===========================================================================

// TestClose_ReleasesResources verifies that after Close, operations on
// a separate client fail.
func (s *RedisIntegrationSuite) TestClose_ReleasesResources() {
	cfg := redis.Config{URI: s.redisResult.ConnString}
	require.NoError(s.T(), cfg.Validate())

	client, err := redis.NewClient(s.ctx, cfg)
	require.NoError(s.T(), err)
	require.NoError(s.T(), client.Health(s.ctx))

	require.NoError(s.T(), client.Close())

	err = client.Health(s.ctx)
	require.Error(s.T(), err, "Health() after Close() should fail")
}
