package directory

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/StricklySoft/realmauth/pkg/directory"

// Pool is the slice of the pgx pool API [PostgresStore] needs. It is
// satisfied by [*pgxpool.Pool] and by pgxmock pools in unit tests.
type Pool interface {
	// QueryRow executes a SQL query that returns at most one row.
	// Errors are deferred until the returned pgx.Row is scanned.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// Exec executes a SQL statement that does not return rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Pool = (*pgxpool.Pool)(nil)

// Schema is the DDL for the users table. [PostgresStore.EnsureSchema]
// applies it; deployments with managed migrations can apply it
// themselves instead.
const Schema = `
CREATE TABLE IF NOT EXISTS directory_users (
    username      TEXT PRIMARY KEY,
    full_name     TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    roles         TEXT[] NOT NULL DEFAULT '{}',
    metadata      JSONB NOT NULL DEFAULT '{}',
    enabled       BOOLEAN NOT NULL DEFAULT TRUE
)`

const (
	selectUserSQL = `SELECT username, full_name, email, password_hash, roles, metadata, enabled
FROM directory_users WHERE username = $1`

	upsertUserSQL = `INSERT INTO directory_users (username, full_name, email, password_hash, roles, metadata, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (username) DO UPDATE SET
    full_name = EXCLUDED.full_name,
    email = EXCLUDED.email,
    password_hash = EXCLUDED.password_hash,
    roles = EXCLUDED.roles,
    metadata = EXCLUDED.metadata,
    enabled = EXCLUDED.enabled`
)

// PostgresStore is a [Store] backed by a PostgreSQL users table through
// a pgx connection pool. All operations carry OpenTelemetry spans.
//
// A PostgresStore is safe for concurrent use; share one per database.
type PostgresStore struct {
	pool   Pool
	tracer trace.Tracer
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store reading users through pool. The pool
// remains owned by the caller and is not closed by the store.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
	}
}

// EnsureSchema creates the users table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "EnsureSchema", "CREATE TABLE IF NOT EXISTS directory_users")
	_, err := s.pool.Exec(ctx, Schema)
	finishSpan(span, err)
	if err != nil {
		return wrapPostgresError(err, "directory: create users table")
	}
	return nil
}

// Put creates or replaces a user. An empty password stores no
// credential; password verification then always fails for the user.
func (s *PostgresStore) Put(ctx context.Context, user User, password string) error {
	if user.Username == "" {
		return raerr.New(raerr.CodeValidationRequired, "directory: username is required")
	}

	digest := ""
	if password != "" {
		digest = HashPassword(password)
	}
	metadata, err := json.Marshal(user.Metadata)
	if err != nil {
		return raerr.Wrap(err, raerr.CodeValidation, "directory: user metadata is not JSON-encodable")
	}
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	ctx, span := s.startSpan(ctx, "Put", "INSERT INTO directory_users")
	_, err = s.pool.Exec(ctx, upsertUserSQL,
		user.Username, user.FullName, user.Email, digest, roles, metadata, user.Enabled)
	finishSpan(span, err)
	if err != nil {
		return wrapPostgresError(err, "directory: store user")
	}
	return nil
}

// Lookup implements [Store].
func (s *PostgresStore) Lookup(ctx context.Context, username string) (*User, error) {
	user, _, err := s.fetch(ctx, "Lookup", username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyPassword implements [Store].
func (s *PostgresStore) VerifyPassword(ctx context.Context, username, password string) (*User, error) {
	user, digest, err := s.fetch(ctx, "VerifyPassword", username)
	if err != nil {
		return nil, err
	}
	if digest == "" || !verifyDigest(digest, password) {
		return nil, raerr.Newf(raerr.CodeAuthentication, "directory: invalid credentials for user %q", username)
	}
	return user, nil
}

// fetch reads one user row. Missing and disabled users both come back
// as NF_002.
func (s *PostgresStore) fetch(ctx context.Context, operationName, username string) (*User, string, error) {
	ctx, span := s.startSpan(ctx, operationName, "SELECT FROM directory_users")

	var (
		user     User
		digest   string
		metadata []byte
	)
	err := s.pool.QueryRow(ctx, selectUserSQL, username).Scan(
		&user.Username, &user.FullName, &user.Email, &digest, &user.Roles, &metadata, &user.Enabled)
	finishSpan(span, err)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", raerr.UserNotFound(username)
		}
		return nil, "", wrapPostgresError(err, "directory: fetch user")
	}
	if !user.Enabled {
		return nil, "", raerr.UserNotFound(username)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.Metadata); err != nil {
			return nil, "", raerr.Wrapf(err, raerr.CodeInternalDatabase,
				"directory: corrupt metadata for user %q", username)
		}
	}
	return &user, digest, nil
}

func (s *PostgresStore) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "directory."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", statement),
	)
	return ctx, span
}

// finishSpan records an error on the span (if any) and ends it. Row
// absence is a normal outcome, not a span error.
func finishSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapPostgresError classifies a database failure. Deadline expiry maps
// to a retryable timeout code; everything else is a database failure.
func wrapPostgresError(err error, message string) *raerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return raerr.Wrap(err, raerr.CodeTimeoutDependency, message)
	}
	return raerr.Wrap(err, raerr.CodeInternalDatabase, message)
}
