package rolemapping

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/StricklySoft/realmauth/pkg/rolemapping"

// DefaultRedisKey is the Redis hash key under which [RedisStore] keeps
// mappings when no key is configured.
const DefaultRedisKey = "realmauth:role-mappings"

// HashCmdable is the slice of Redis commands [RedisStore] needs. It is
// satisfied by [*redis.Client] and by mocks in unit tests.
type HashCmdable interface {
	// HGetAll returns all fields and values in a hash.
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd

	// HSet sets field-value pairs in a hash stored at key.
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd

	// HDel deletes one or more fields from a hash.
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

var _ HashCmdable = (*redis.Client)(nil)

// RedisStore is a [Store] backed by a single Redis hash: one field per
// mapping, field name = mapping name, field value = the JSON mapping
// document. All operations carry OpenTelemetry spans.
//
// A RedisStore is safe for concurrent use; share one per Redis instance.
type RedisStore struct {
	cmdable HashCmdable
	key     string
	tracer  trace.Tracer
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store keeping its mappings in the hash at
// key. An empty key selects [DefaultRedisKey].
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

// List implements [Store]. Documents that no longer parse are reported
// as VAL_003 errors rather than silently skipped, so a corrupt mapping
// is noticed instead of quietly revoking roles.
func (s *RedisStore) List(ctx context.Context) ([]Mapping, error) {
	ctx, span := s.startSpan(ctx, "List", fmt.Sprintf("HGETALL %s", s.key))
	fields, err := s.cmdable.HGetAll(ctx, s.key).Result()
	finishSpan(span, err)
	if err != nil {
		return nil, wrapRedisError(err, "rolemapping: list mappings")
	}

	mappings := make([]Mapping, 0, len(fields))
	for name, doc := range fields {
		m, err := UnmarshalMapping(name, []byte(doc))
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].Name < mappings[j].Name })
	return mappings, nil
}

// Put implements [Store].
func (s *RedisStore) Put(ctx context.Context, mapping Mapping) error {
	if mapping.Name == "" {
		return raerr.New(raerr.CodeValidationRequired, "rolemapping: mapping name is required")
	}
	doc, err := MarshalMapping(mapping)
	if err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "Put", fmt.Sprintf("HSET %s %s", s.key, mapping.Name))
	err = s.cmdable.HSet(ctx, s.key, mapping.Name, string(doc)).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapRedisError(err, "rolemapping: store mapping")
	}
	return nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	ctx, span := s.startSpan(ctx, "Delete", fmt.Sprintf("HDEL %s %s", s.key, name))
	removed, err := s.cmdable.HDel(ctx, s.key, name).Result()
	finishSpan(span, err)
	if err != nil {
		return wrapRedisError(err, "rolemapping: delete mapping")
	}
	if removed == 0 {
		return raerr.Newf(raerr.CodeNotFoundResource, "rolemapping: mapping %q not found", name)
	}
	return nil
}

func (s *RedisStore) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "rolemapping."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.statement", statement),
	)
	return ctx, span
}

// finishSpan records an error on the span (if any) and ends it. If err
// is nil, the span status is set to OK.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
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
