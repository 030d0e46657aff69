package realms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/realmauth/pkg/directory"
	raerr "github.com/StricklySoft/realmauth/pkg/errors"
	"github.com/StricklySoft/realmauth/pkg/jwk"
	"github.com/StricklySoft/realmauth/pkg/rolemapping"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/StricklySoft/realmauth/pkg/realms"

// RealmTypeJWT is the realm type reported by [JWTRealm].
const RealmTypeJWT = "jwt"

// maxTokenSize is the maximum accepted size for a compact JWT (8 KB).
// Larger tokens are rejected to prevent resource exhaustion.
const maxTokenSize = 8192

// JWTRealm authenticates bearer JWTs against one issuer/audience
// configuration and one key source.
//
// A token is this realm's to judge when its issuer and audience claims
// match the realm's configuration; that match is a firm claim of
// ownership, and every later failure (bad signature, expired claims,
// wrong client secret, failed delegated lookup) is terminal for the
// whole chain rather than a fall-through. Tokens addressed to a
// different issuer or audience are skipped without prejudice.
//
// A JWTRealm is immutable after construction and safe for unbounded
// concurrent use.
type JWTRealm struct {
	config    JWTRealmConfig
	keys      jwk.Source
	directory directory.Store
	mappings  rolemapping.Store
	allowed   map[string]struct{}
	tracer    trace.Tracer
	logger    *slog.Logger
	timeFunc  func() time.Time
}

var _ Realm = (*JWTRealm)(nil)

// JWTRealmOption customizes a [JWTRealm] beyond its serializable
// configuration.
type JWTRealmOption func(*JWTRealm)

// WithDelegatedDirectory supplies the user directory backing the
// realm's delegated authorization. Required when the configuration
// names a delegated realm.
func WithDelegatedDirectory(store directory.Store) JWTRealmOption {
	return func(r *JWTRealm) { r.directory = store }
}

// WithRoleMappings supplies the role-mapping store consulted when the
// realm does not delegate authorization. Without one, authenticated
// principals get empty role sets.
func WithRoleMappings(store rolemapping.Store) JWTRealmOption {
	return func(r *JWTRealm) { r.mappings = store }
}

// WithLogger overrides the realm's logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) JWTRealmOption {
	return func(r *JWTRealm) { r.logger = logger }
}

// WithTimeFunc overrides the clock used for expiry and not-before
// checks. Tests use this to pin time; production code should not.
func WithTimeFunc(now func() time.Time) JWTRealmOption {
	return func(r *JWTRealm) { r.timeFunc = now }
}

// NewJWTRealm builds a JWT realm from its configuration and key source.
func NewJWTRealm(cfg JWTRealmConfig, keys jwk.Source, opts ...JWTRealmOption) (*JWTRealm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, raerr.Newf(raerr.CodeValidationRequired, "realms: realm %q requires a key source", cfg.Name)
	}

	r := &JWTRealm{
		config: cfg,
		keys:   keys,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg.DelegatedRealm != "" && r.directory == nil {
		return nil, raerr.Newf(raerr.CodeValidationRequired,
			"realms: realm %q delegates authorization to %q but has no directory", cfg.Name, cfg.DelegatedRealm)
	}

	r.allowed = make(map[string]struct{}, len(cfg.AllowedAlgorithms))
	for _, alg := range cfg.AllowedAlgorithms {
		r.allowed[alg] = struct{}{}
	}
	return r, nil
}

// Name implements [Realm].
func (r *JWTRealm) Name() string { return r.config.Name }

// Type implements [Realm].
func (r *JWTRealm) Type() string { return RealmTypeJWT }

// Order implements [Realm].
func (r *JWTRealm) Order() int { return r.config.Order }

// Attempt implements [Realm].
func (r *JWTRealm) Attempt(ctx context.Context, credential Credential) Result {
	cred, ok := credential.(JWTCredential)
	if !ok {
		return Skip(raerr.Newf(raerr.CodeAuthentication,
			"realms: realm %q accepts only bearer tokens", r.config.Name))
	}

	ctx, span := r.tracer.Start(ctx, "realms.JWTRealm.Attempt",
		trace.WithAttributes(attribute.String("realm.name", r.config.Name)))
	defer span.End()

	result := r.attemptToken(ctx, cred)
	span.SetAttributes(attribute.String("realm.outcome", result.Status.String()))
	if result.Status == StatusTerminal {
		span.RecordError(result.Err)
	}
	return result
}

func (r *JWTRealm) attemptToken(ctx context.Context, cred JWTCredential) Result {
	if cred.Token == "" || len(cred.Token) > maxTokenSize {
		return Skip(raerr.New(raerr.CodeAuthenticationMalformed, "realms: token is empty or oversized"))
	}

	// Inspect issuer and audience without verifying the signature, to
	// decide whether this token is addressed to this realm at all.
	// Nothing read here is trusted until the signed parse below.
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(cred.Token, jwt.MapClaims{})
	if err != nil {
		return Skip(raerr.Wrap(err, raerr.CodeAuthenticationMalformed, "realms: token is malformed"))
	}
	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return Skip(raerr.New(raerr.CodeAuthenticationMalformed, "realms: token claims are not an object"))
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != r.config.Issuer {
		return Skip(raerr.Newf(raerr.CodeAuthenticationIssuer,
			"realms: token issuer does not match realm %q", r.config.Name))
	}
	audiences, err := claims.GetAudience()
	if err != nil || !audienceIntersects(audiences, r.config.Audiences) {
		return Skip(raerr.Newf(raerr.CodeAuthenticationAudience,
			"realms: token audience does not match realm %q", r.config.Name))
	}

	// Issuer and audience match: this realm owns the token. Every
	// failure from here on is terminal for the chain.

	alg, _ := unverified.Header["alg"].(string)
	if strings.EqualFold(alg, "none") {
		return Reject(raerr.New(raerr.CodeAuthenticationAlgorithm, "realms: algorithm 'none' is not permitted"))
	}
	if _, ok := r.allowed[alg]; !ok {
		return Reject(raerr.Newf(raerr.CodeAuthenticationAlgorithm,
			"realms: algorithm %q is not allowed by realm %q", alg, r.config.Name))
	}

	if r.config.ClientAuthentication == ClientAuthSharedSecret {
		if cred.ClientSecret.Value() == "" {
			return Reject(raerr.Newf(raerr.CodeAuthenticationClientSecret,
				"realms: realm %q requires client authentication", r.config.Name))
		}
		if !cred.ClientSecret.Equal(r.config.ClientSecret) {
			return Reject(raerr.Newf(raerr.CodeAuthenticationClientSecret,
				"realms: client secret does not match realm %q", r.config.Name))
		}
	}

	verified, err := r.verifySignature(ctx, cred.Token)
	if err != nil {
		r.logger.DebugContext(ctx, "token verification failed",
			"realm", r.config.Name,
			"error", err,
		)
		return Reject(err)
	}

	principal, groups, err := r.mapPrincipal(verified)
	if err != nil {
		return Reject(err)
	}

	if r.config.DelegatedRealm != "" {
		return r.delegate(ctx, principal)
	}
	return r.mapRoles(ctx, principal, groups)
}

// verifySignature performs the signed parse: algorithm pinning via the
// realm's allow-list, key resolution by key ID and algorithm family,
// signature verification, and the registered time claims. The realm's
// clock skew applies to nbf only; exp is checked strictly below.
func (r *JWTRealm) verifySignature(ctx context.Context, token string) (jwt.MapClaims, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		family, ok := AlgorithmFamily(t.Method.Alg())
		if !ok {
			return nil, raerr.Newf(raerr.CodeAuthenticationAlgorithm,
				"realms: unsupported algorithm %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		return r.keys.VerificationKey(ctx, kid, family)
	}

	// jwt.WithValidMethods pins accepted algorithms, preventing
	// algorithm confusion where an RSA public key is abused as an HMAC
	// secret.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(r.config.AllowedAlgorithms),
		jwt.WithLeeway(r.config.clockSkew()),
	}
	if r.timeFunc != nil {
		opts = append(opts, jwt.WithTimeFunc(r.timeFunc))
	}

	parsed, err := jwt.Parse(token, keyfunc, opts...)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, raerr.New(raerr.CodeAuthentication, "realms: token claims are invalid")
	}

	// exp is required and strict. The parser only checks exp when the
	// claim is present, and its leeway (kept for nbf) would stretch the
	// expiry; a token without an expiry, or expired by any margin, is
	// rejected here.
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, raerr.New(raerr.CodeAuthentication, "realms: token has no expiration time")
	}
	if r.now().After(exp.Time) {
		return nil, raerr.New(raerr.CodeAuthenticationExpired, "realms: token has expired")
	}
	return claims, nil
}

// now returns the realm's notion of the current time, honoring a
// test-pinned clock.
func (r *JWTRealm) now() time.Time {
	if r.timeFunc != nil {
		return r.timeFunc()
	}
	return time.Now()
}

// mapPrincipal derives the principal from verified claims: the
// principal claim (with optional domain stripping), the groups claim
// coerced to strings, and one jwt_claim_<name> metadata entry per claim
// with its value verbatim.
func (r *JWTRealm) mapPrincipal(claims jwt.MapClaims) (*Principal, []string, error) {
	claimName := r.config.principalClaim()
	username, _ := claims[claimName].(string)
	if username == "" {
		return nil, nil, raerr.Newf(raerr.CodeAuthentication,
			"realms: token has no usable %q claim", claimName)
	}
	if r.config.StripPrincipalDomain {
		if i := strings.IndexByte(username, '@'); i > 0 {
			username = username[:i]
		}
	}

	var groups []string
	if r.config.GroupsClaim != "" {
		groups = coerceGroups(claims[r.config.GroupsClaim])
	}

	metadata := make(map[string]any, len(claims))
	for name, value := range claims {
		metadata["jwt_claim_"+name] = value
	}

	return &Principal{
		Username: username,
		Metadata: metadata,
		Realm:    RealmRef{Name: r.config.Name, Type: RealmTypeJWT},
	}, groups, nil
}

// delegate hands the principal name to the delegated directory. The
// directory record's roles and metadata replace the token-derived ones
// entirely; a failed lookup fails the authentication rather than
// falling back to role mapping.
func (r *JWTRealm) delegate(ctx context.Context, principal *Principal) Result {
	user, err := r.directory.Lookup(ctx, principal.Username)
	if err != nil {
		return Reject(raerr.Wrapf(err, raerr.CodeAuthenticationDelegated,
			"realms: delegated lookup in realm %q failed for user %q", r.config.DelegatedRealm, principal.Username))
	}

	principal.Roles = append([]string(nil), user.Roles...)
	if principal.Roles == nil {
		principal.Roles = []string{}
	}
	principal.Metadata = user.Metadata
	if principal.Metadata == nil {
		principal.Metadata = map[string]any{}
	}
	return Succeed(principal)
}

// mapRoles resolves roles through the role-mapping store. No matching
// mapping is a valid outcome: an authenticated principal with zero
// roles.
func (r *JWTRealm) mapRoles(ctx context.Context, principal *Principal, groups []string) Result {
	if r.mappings == nil {
		principal.Roles = []string{}
		return Succeed(principal)
	}

	mappings, err := r.mappings.List(ctx)
	if err != nil {
		return Reject(raerr.Wrapf(err, raerr.CodeAuthentication,
			"realms: role mapping evaluation failed for realm %q", r.config.Name))
	}
	principal.Roles = rolemapping.Evaluate(principal.subject(groups), mappings)
	return Succeed(principal)
}

// audienceIntersects reports whether the token's audience list shares
// at least one value with the realm's accepted audiences.
func audienceIntersects(tokenAudiences []string, realmAudiences []string) bool {
	for _, ta := range tokenAudiences {
		for _, ra := range realmAudiences {
			if ta == ra {
				return true
			}
		}
	}
	return false
}

// coerceGroups converts a groups claim value to a list of strings. A
// scalar string becomes a one-element list; list elements that are not
// strings are dropped. Absent or unusable values degrade to nil.
func coerceGroups(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		groups := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				groups = append(groups, s)
			}
		}
		return groups
	default:
		return nil
	}
}

// classifyTokenError converts a golang-jwt verification error to a
// *[raerr.Error] with the matching authentication code. Errors that are
// already coded (key resolution failures surfaced through the keyfunc)
// pass through unchanged.
func classifyTokenError(err error) *raerr.Error {
	if err == nil {
		return nil
	}

	var coded *raerr.Error
	if errors.As(err, &coded) {
		return coded
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return raerr.Wrap(err, raerr.CodeAuthenticationExpired, "realms: token has expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return raerr.Wrap(err, raerr.CodeAuthenticationNotYetValid, "realms: token is not yet valid")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return raerr.Wrap(err, raerr.CodeAuthenticationSignature, "realms: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return raerr.Wrap(err, raerr.CodeAuthenticationMalformed, "realms: token is malformed")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return raerr.Wrap(err, raerr.CodeAuthenticationIssuer, "realms: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return raerr.Wrap(err, raerr.CodeAuthenticationAudience, "realms: token audience is invalid")
	default:
		return raerr.Wrap(err, raerr.CodeAuthentication, "realms: token verification failed")
	}
}
