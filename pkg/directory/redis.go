package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// DefaultRedisKey is the Redis hash key under which [RedisStore] keeps
// user records when no key is configured.
const DefaultRedisKey = "realmauth:users"

// HashCmdable is the slice of Redis commands [RedisStore] needs. It is
// satisfied by [*redis.Client] and by mocks in unit tests.
type HashCmdable interface {
	// HGet returns the value of a field in a hash.
	HGet(ctx context.Context, key, field string) *redis.StringCmd

	// HSet sets field-value pairs in a hash stored at key.
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd

	// HDel deletes one or more fields from a hash.
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

var _ HashCmdable = (*redis.Client)(nil)

// redisUserDoc is the JSON document form of a user record, carrying the
// password digest alongside the public fields.
type redisUserDoc struct {
	User
	PasswordHash string `json:"password_hash,omitempty"`
}

// RedisStore is a [Store] backed by a single Redis hash: one field per
// user, field name = username, field value = the JSON user document.
// All operations carry OpenTelemetry spans.
//
// A RedisStore is safe for concurrent use; share one per Redis instance.
type RedisStore struct {
	cmdable HashCmdable
	key     string
	tracer  trace.Tracer
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store keeping its users in the hash at key.
// An empty key selects [DefaultRedisKey].
func NewRedisStore(cmdable HashCmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		cmdable: cmdable,
		key:     key,
		tracer:  otel.Tracer(tracerName),
	}
}

// Put creates or replaces a user. An empty password stores no
// credential; password verification then always fails for the user.
func (s *RedisStore) Put(ctx context.Context, user User, password string) error {
	if user.Username == "" {
		return raerr.New(raerr.CodeValidationRequired, "directory: username is required")
	}

	doc := redisUserDoc{User: user}
	if password != "" {
		doc.PasswordHash = HashPassword(password)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return raerr.Wrap(err, raerr.CodeValidation, "directory: user is not JSON-encodable")
	}

	ctx, span := s.redisSpan(ctx, "Put", fmt.Sprintf("HSET %s %s", s.key, user.Username))
	err = s.cmdable.HSet(ctx, s.key, user.Username, string(data)).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapRedisError(err, "directory: store user")
	}
	return nil
}

// Delete removes a user record. Deleting an unknown user returns NF_002.
func (s *RedisStore) Delete(ctx context.Context, username string) error {
	ctx, span := s.redisSpan(ctx, "Delete", fmt.Sprintf("HDEL %s %s", s.key, username))
	removed, err := s.cmdable.HDel(ctx, s.key, username).Result()
	finishSpan(span, err)
	if err != nil {
		return wrapRedisError(err, "directory: delete user")
	}
	if removed == 0 {
		return raerr.UserNotFound(username)
	}
	return nil
}

// Lookup implements [Store].
func (s *RedisStore) Lookup(ctx context.Context, username string) (*User, error) {
	doc, err := s.fetch(ctx, "Lookup", username)
	if err != nil {
		return nil, err
	}
	return doc.User.Clone(), nil
}

// VerifyPassword implements [Store].
func (s *RedisStore) VerifyPassword(ctx context.Context, username, password string) (*User, error) {
	doc, err := s.fetch(ctx, "VerifyPassword", username)
	if err != nil {
		return nil, err
	}
	if doc.PasswordHash == "" || !verifyDigest(doc.PasswordHash, password) {
		return nil, raerr.Newf(raerr.CodeAuthentication, "directory: invalid credentials for user %q", username)
	}
	return doc.User.Clone(), nil
}

func (s *RedisStore) fetch(ctx context.Context, operationName, username string) (*redisUserDoc, error) {
	ctx, span := s.redisSpan(ctx, operationName, fmt.Sprintf("HGET %s %s", s.key, username))
	data, err := s.cmdable.HGet(ctx, s.key, username).Result()
	finishSpan(span, err)

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, raerr.UserNotFound(username)
		}
		return nil, wrapRedisError(err, "directory: fetch user")
	}

	var doc redisUserDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, raerr.Wrapf(err, raerr.CodeInternalDatabase,
			"directory: corrupt record for user %q", username)
	}
	if !doc.Enabled {
		return nil, raerr.UserNotFound(username)
	}
	return &doc, nil
}

func (s *RedisStore) redisSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "directory."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.statement", statement),
	)
	return ctx, span
}

// wrapRedisError classifies a Redis failure. Deadline expiry maps to a
// retryable timeout code; everything else is a dependency failure.
func wrapRedisError(err error, message string) *raerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return raerr.Wrap(err, raerr.CodeTimeoutDependency, message)
	}
	return raerr.Wrap(err, raerr.CodeUnavailableDependency, message)
}
