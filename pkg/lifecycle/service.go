package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// tracerName is the instrumentation scope name used for all spans created
// by this package.
const tracerName = "github.com/StricklySoft/realmauth/pkg/lifecycle"

// Hook is a lifecycle callback executed during Start or Stop. Hooks
// receive the context passed to the lifecycle method and should honor its
// cancellation. A non-nil error aborts the lifecycle operation and
// transitions the service to [StateFailed].
type Hook func(ctx context.Context) error

// CheckFunc probes the health of a single backing dependency. It returns
// nil when the dependency is reachable and serving, or an error describing
// the failure. The store clients' Health methods satisfy this signature
// directly.
type CheckFunc func(ctx context.Context) error

// StateChangeHandler is called synchronously on every state transition
// with the old and new state values. Handlers execute under the state
// mutex; they must not call lifecycle methods on the same service or
// block for extended periods.
type StateChangeHandler func(old, new State)

// namedCheck pairs a registered health check with its dependency name.
type namedCheck struct {
	name  string
	check CheckFunc
}

// ServiceInfo is a point-in-time snapshot of a service's identity, state,
// registered health checks, and uptime. It is safe to serialize to JSON,
// e.g. as the body of a health or status endpoint.
type ServiceInfo struct {
	// Name is the service name (e.g., "realmauth").
	Name string `json:"name"`

	// Version is the semantic version of the service build.
	Version string `json:"version"`

	// State is the lifecycle state at the time of the snapshot.
	State State `json:"state"`

	// Checks lists the names of registered health checks in registration
	// order. Omitted from JSON when no checks are registered.
	Checks []string `json:"checks,omitempty"`

	// StartedAt is the UTC timestamp of the most recent successful start.
	// Nil unless the service is currently running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// Uptime is the duration since StartedAt. Zero unless the service is
	// currently running.
	Uptime time.Duration `json:"uptime,omitempty"`
}

// Service manages the run state of the realm authentication service. It
// enforces the lifecycle state machine, executes start and stop hooks,
// and aggregates named dependency health checks.
//
// A Service is safe for concurrent use by multiple goroutines. Create one
// using [NewService] and share it across the application.
//
// Lifecycle hooks execute outside the state mutex to prevent deadlocks.
// If a hook fails, the service transitions to [StateFailed] and the error
// is wrapped with a service error code.
type Service struct {
	// Immutable fields — set at construction, never modified. These do
	// not require mutex protection.
	name    string
	version string

	// Mutable fields — protected by mu.
	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	// Observability — set at construction, never modified.
	tracer trace.Tracer
	logger *slog.Logger

	// Lifecycle hooks and health checks — set at construction via
	// options, never modified.
	onStart Hook
	onStop  Hook
	checks  []namedCheck

	// State change observers — set at construction via options, never
	// modified.
	stateHandlers []StateChangeHandler
}

// Option configures a [Service] during construction.
type Option func(*Service)

// WithLogger sets a custom [*slog.Logger] for the service. If not set,
// [slog.Default] is used. The logger is used for lifecycle event logging
// and panic recovery messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOnStart sets the hook called during [Service.Start], after the
// service transitions to [StateStarting] and before it transitions to
// [StateRunning]. Use this to perform startup work such as verifying
// store connectivity or provisioning schemas.
func WithOnStart(hook Hook) Option {
	return func(s *Service) {
		s.onStart = hook
	}
}

// WithOnStop sets the hook called during [Service.Stop], after the
// service transitions to [StateStopping] and before it transitions to
// [StateStopped]. Use this to perform cleanup such as closing store
// connections or flushing buffers.
func WithOnStop(hook Hook) Option {
	return func(s *Service) {
		s.onStop = hook
	}
}

// WithCheck registers a named dependency health check. Checks run in
// registration order during [Service.Health]. The name identifies the
// dependency in error messages and in [ServiceInfo.Checks] (e.g.,
// "postgres", "redis"). NewService returns an error if the name is empty
// or the check is nil.
func WithCheck(name string, check CheckFunc) Option {
	return func(s *Service) {
		s.checks = append(s.checks, namedCheck{name: name, check: check})
	}
}

// OnStateChange registers a [StateChangeHandler] that is called on every
// state transition. Multiple handlers may be registered and are called in
// registration order, synchronously under the state mutex during
// [Service.SetState].
func OnStateChange(handler StateChangeHandler) Option {
	return func(s *Service) {
		s.stateHandlers = append(s.stateHandlers, handler)
	}
}

// NewService constructs a [*Service] with the given identity and options.
// Returns a [*raerr.Error] with code [raerr.CodeValidation] if name or
// version is empty, or if any registered check has an empty name or nil
// function. The initial state is [StateUnknown].
func NewService(name, version string, opts ...Option) (*Service, error) {
	if name == "" {
		return nil, raerr.New(raerr.CodeValidation,
			"lifecycle: service name must not be empty")
	}
	if version == "" {
		return nil, raerr.New(raerr.CodeValidation,
			"lifecycle: service version must not be empty")
	}

	s := &Service{
		name:    name,
		version: version,
		state:   StateUnknown,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, nc := range s.checks {
		if nc.name == "" {
			return nil, raerr.New(raerr.CodeValidation,
				"lifecycle: health check name must not be empty")
		}
		if nc.check == nil {
			return nil, raerr.Newf(raerr.CodeValidation,
				"lifecycle: health check %q must not be nil", nc.name)
		}
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Name returns the service name. This value is immutable after
// construction.
func (s *Service) Name() string {
	return s.name
}

// Version returns the semantic version of the service build. This value
// is immutable after construction.
func (s *Service) Version() string {
	return s.version
}

// State returns the current lifecycle state of the service. This method
// is safe for concurrent use.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a point-in-time snapshot of the service's identity,
// state, registered checks, and uptime. The returned [ServiceInfo] is
// safe to serialize to JSON. This method is safe for concurrent use.
func (s *Service) Info() ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := ServiceInfo{
		Name:    s.name,
		Version: s.version,
		State:   s.state,
	}

	if len(s.checks) > 0 {
		info.Checks = make([]string, len(s.checks))
		for i, nc := range s.checks {
			info.Checks[i] = nc.name
		}
	}

	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}

	return info
}

// SetState transitions the service to the given state after validating
// the transition against the lifecycle state machine. Returns a
// [*raerr.Error] with code [raerr.CodeConflict] if the transition is not
// allowed.
//
// On a successful transition, all registered [StateChangeHandler]
// functions are called synchronously with the old and new state values.
//
// SetState is exported for callers that need to set state
// programmatically, e.g. transitioning to [StateFailed] when an internal
// error is detected outside the lifecycle methods.
func (s *Service) SetState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return raerr.Newf(raerr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}

	s.state = new

	// Notify state change handlers under the lock to guarantee ordering.
	// Each handler is called in a deferred-recover wrapper to prevent a
	// panicking handler from corrupting service state.
	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(new),
					)
				}
			}()
			h(old, new)
		}()
	}

	return nil
}

// Start begins the service's operation. It transitions the service
// through [StateStarting] to [StateRunning], executing any registered
// OnStart hook between the two transitions.
//
// The context controls the deadline for startup. If the context is
// already canceled, Start returns immediately without modifying state.
//
// If the OnStart hook returns an error, the service transitions to
// [StateFailed] and the error is returned wrapped with
// [raerr.CodeInternal].
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Start",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
	defer span.End()

	// Check context before acquiring the lock.
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return raerr.Wrap(err, raerr.CodeTimeout,
			"lifecycle: start canceled before execution")
	}

	// Transition to Starting.
	if err := s.SetState(StateStarting); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service",
		"service", s.name,
		"version", s.version,
	)

	// Execute the OnStart hook outside the lock.
	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return raerr.Wrap(err, raerr.CodeInternal,
				"lifecycle: start hook failed")
		}
	}

	// Transition to Running and record the start timestamp.
	if err := s.SetState(StateRunning); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started",
		"service", s.name,
	)
	span.SetStatus(codes.Ok, "")

	return nil
}

// Stop gracefully shuts down the service. It transitions the service
// through [StateStopping] to [StateStopped], executing any registered
// OnStop hook between the two transitions.
//
// If the service is already in a terminal state ([StateStopped] or
// [StateFailed]), Stop is a no-op and returns nil. This makes it safe to
// call Stop multiple times or in a deferred cleanup.
//
// If the OnStop hook returns an error, the service transitions to
// [StateFailed] and the error is returned wrapped with
// [raerr.CodeInternal].
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Stop",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
		),
	)
	defer span.End()

	// Terminal states: Stop is a no-op.
	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	// Check context before proceeding.
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return raerr.Wrap(err, raerr.CodeTimeout,
			"lifecycle: stop canceled before execution")
	}

	// Transition to Stopping.
	if err := s.SetState(StateStopping); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service",
		"service", s.name,
	)

	// Execute the OnStop hook outside the lock.
	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return raerr.Wrap(err, raerr.CodeInternal,
				"lifecycle: stop hook failed")
		}
	}

	// Transition to Stopped and clear the start timestamp.
	if err := s.SetState(StateStopped); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped",
		"service", s.name,
	)
	span.SetStatus(codes.Ok, "")

	return nil
}

// Health reports whether the service and all of its backing dependencies
// are healthy. Returns a [*raerr.Error] with code [raerr.CodeUnavailable]
// if the service is not in [StateRunning]. Otherwise every registered
// check runs in registration order; the first failure is returned wrapped
// with [raerr.CodeUnavailableDependency] and the name of the failing
// dependency.
func (s *Service) Health(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Health",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.Int("check.count", len(s.checks)),
		),
	)
	defer span.End()

	if state := s.State(); state != StateRunning {
		err := raerr.Newf(raerr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, nc := range s.checks {
		if err := nc.check(ctx); err != nil {
			s.logger.WarnContext(ctx, "lifecycle: health check failed",
				"service", s.name,
				"check", nc.name,
				"error", err,
			)
			wrapped := raerr.Wrapf(err, raerr.CodeUnavailableDependency,
				"lifecycle: health check %q failed", nc.name)
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, wrapped.Error())
			return wrapped
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
