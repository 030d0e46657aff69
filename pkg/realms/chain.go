package realms

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// Chain coordinates an ordered list of realms. For each credential it
// tries the realms in ascending order and returns the first success;
// a terminal rejection by an owning realm stops the chain immediately.
//
// A Chain is immutable after construction and safe for unbounded
// concurrent use.
type Chain struct {
	realms []Realm
	tracer trace.Tracer
	logger *slog.Logger
}

// ChainOption customizes a [Chain].
type ChainOption func(*Chain)

// WithChainLogger overrides the chain's logger. Defaults to
// [slog.Default].
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

// NewChain builds a chain from the given realms, sorted by ascending
// order. Realm names and orders must both be unique across the chain.
func NewChain(realms []Realm, opts ...ChainOption) (*Chain, error) {
	if len(realms) == 0 {
		return nil, raerr.New(raerr.CodeValidationRequired, "realms: a chain requires at least one realm")
	}

	names := make(map[string]struct{}, len(realms))
	orders := make(map[int]string, len(realms))
	for _, r := range realms {
		if _, dup := names[r.Name()]; dup {
			return nil, raerr.Newf(raerr.CodeValidation, "realms: duplicate realm name %q", r.Name())
		}
		names[r.Name()] = struct{}{}
		if other, dup := orders[r.Order()]; dup {
			return nil, raerr.Newf(raerr.CodeValidation,
				"realms: realms %q and %q share order %d", other, r.Name(), r.Order())
		}
		orders[r.Order()] = r.Name()
	}

	sorted := append([]Realm(nil), realms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })

	c := &Chain{
		realms: sorted,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Realms returns the chain's realms in attempt order.
func (c *Chain) Realms() []Realm {
	return append([]Realm(nil), c.realms...)
}

// Authenticate runs one credential through the chain.
//
// The returned error is always a *[raerr.Error] with an AUTH category
// code; callers at the transport boundary must collapse it to a bare
// unauthorized response without echoing which internal check failed.
func (c *Chain) Authenticate(ctx context.Context, credential Credential) (*Principal, error) {
	attemptID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "realms.Chain.Authenticate",
		trace.WithAttributes(attribute.String("auth.attempt_id", attemptID)))
	defer span.End()

	for _, realm := range c.realms {
		result := realm.Attempt(ctx, credential)
		switch result.Status {
		case StatusSuccess:
			span.SetAttributes(attribute.String("auth.realm", realm.Name()))
			c.logger.InfoContext(ctx, "authentication succeeded",
				"attempt_id", attemptID,
				"realm", realm.Name(),
				"username", result.Principal.Username,
			)
			return result.Principal, nil

		case StatusNotApplicable:
			c.logger.DebugContext(ctx, "realm skipped credential",
				"attempt_id", attemptID,
				"realm", realm.Name(),
				"reason", result.Err,
			)

		case StatusTerminal:
			span.RecordError(result.Err)
			c.logger.WarnContext(ctx, "authentication rejected",
				"attempt_id", attemptID,
				"realm", realm.Name(),
				"error", result.Err,
			)
			return nil, terminalError(result.Err)
		}
	}

	c.logger.InfoContext(ctx, "no realm accepted the credential",
		"attempt_id", attemptID,
	)
	return nil, raerr.New(raerr.CodeAuthentication, "realms: no realm accepted the credential")
}

// terminalError normalizes a realm's terminal failure to a coded
// authentication error.
func terminalError(err error) error {
	if err == nil {
		return raerr.New(raerr.CodeAuthentication, "realms: authentication rejected")
	}
	if raerr.IsAuthentication(err) {
		return err
	}
	return raerr.Wrap(err, raerr.CodeAuthentication, "realms: authentication rejected")
}
