package realms

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/realmauth/pkg/directory"
	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// DirectoryRealm authenticates username/password credentials against a
// user directory. The directory record is authoritative: the principal
// carries its roles and metadata directly, with no role-mapping step.
//
// A failed password or an unknown user is not terminal — the chain
// continues, since another realm may hold the same username. Directory
// infrastructure failures (unreachable, timed out) are terminal; no
// later realm can make an authoritative decision when the directory
// cannot be consulted.
type DirectoryRealm struct {
	config DirectoryRealmConfig
	store  directory.Store
	tracer trace.Tracer
	logger *slog.Logger
}

var _ Realm = (*DirectoryRealm)(nil)

// NewDirectoryRealm builds a directory-backed realm.
func NewDirectoryRealm(cfg DirectoryRealmConfig, store directory.Store) (*DirectoryRealm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, raerr.Newf(raerr.CodeValidationRequired, "realms: realm %q requires a directory store", cfg.Name)
	}
	return &DirectoryRealm{
		config: cfg,
		store:  store,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}, nil
}

// Name implements [Realm].
func (r *DirectoryRealm) Name() string { return r.config.Name }

// Type implements [Realm].
func (r *DirectoryRealm) Type() string { return r.config.realmType() }

// Order implements [Realm].
func (r *DirectoryRealm) Order() int { return r.config.Order }

// Attempt implements [Realm].
func (r *DirectoryRealm) Attempt(ctx context.Context, credential Credential) Result {
	cred, ok := credential.(PasswordCredential)
	if !ok {
		return Skip(raerr.Newf(raerr.CodeAuthentication,
			"realms: realm %q accepts only username/password credentials", r.config.Name))
	}

	ctx, span := r.tracer.Start(ctx, "realms.DirectoryRealm.Attempt",
		trace.WithAttributes(attribute.String("realm.name", r.config.Name)))
	defer span.End()

	user, err := r.store.VerifyPassword(ctx, cred.Username, cred.Password.Value())
	if err != nil {
		if raerr.IsUnavailable(err) || raerr.IsTimeout(err) {
			span.RecordError(err)
			return Reject(raerr.Wrapf(err, raerr.CodeAuthentication,
				"realms: directory for realm %q is unavailable", r.config.Name))
		}
		r.logger.DebugContext(ctx, "directory authentication failed",
			"realm", r.config.Name,
			"username", cred.Username,
		)
		return Skip(err)
	}

	roles := append([]string(nil), user.Roles...)
	if roles == nil {
		roles = []string{}
	}
	metadata := user.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	span.SetAttributes(attribute.String("realm.outcome", StatusSuccess.String()))
	return Succeed(&Principal{
		Username: user.Username,
		Roles:    roles,
		Metadata: metadata,
		Realm:    RealmRef{Name: r.config.Name, Type: r.config.realmType()},
	})
}
