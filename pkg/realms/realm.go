// Package realms implements chained realm authentication: an ordered
// list of independently configured authentication realms that each
// accept a particular credential shape, tried in sequence until one
// succeeds.
//
// A [Realm] attempts one credential and reports one of three outcomes.
// Success carries the authenticated [Principal]. Not-applicable means
// the credential is not this realm's to judge (wrong shape, or a token
// issued for a different realm) and the chain moves on. Terminal means
// the realm recognized the credential as its own and rejected it; the
// chain stops and the caller gets an unauthorized result, because a
// token matching a realm's issuer and audience belongs to that realm
// and must not be offered to any other.
//
// [JWTRealm] authenticates bearer JWTs; [DirectoryRealm] authenticates
// username/password pairs against a user directory. [Chain] coordinates
// them in configuration order.
package realms

import "context"

// Status classifies the outcome of one realm's authentication attempt.
type Status int

const (
	// StatusSuccess means the realm authenticated the credential.
	StatusSuccess Status = iota

	// StatusNotApplicable means the credential is not addressed to this
	// realm; the chain continues with the next realm.
	StatusNotApplicable

	// StatusTerminal means the realm owns the credential and rejected
	// it; the chain stops without trying further realms.
	StatusTerminal
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotApplicable:
		return "not_applicable"
	case StatusTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Result is the outcome of one realm's attempt at one credential. Err
// is set for both not-applicable and terminal outcomes; for
// not-applicable it is diagnostic only and never reaches the caller.
type Result struct {
	Status    Status
	Principal *Principal
	Err       error
}

// Succeed builds a success result.
func Succeed(p *Principal) Result {
	return Result{Status: StatusSuccess, Principal: p}
}

// Skip builds a not-applicable result with a diagnostic reason.
func Skip(err error) Result {
	return Result{Status: StatusNotApplicable, Err: err}
}

// Reject builds a terminal failure result.
func Reject(err error) Result {
	return Result{Status: StatusTerminal, Err: err}
}

// Realm is one authentication authority in a chain.
//
// Attempt must be safe for unbounded concurrent use: realm
// configuration and key material are immutable after construction, and
// any blocking work (remote key fetch, directory lookup) must honor ctx.
type Realm interface {
	// Name is the realm's unique name within its chain.
	Name() string

	// Type is the realm kind, e.g. "jwt", "native", "file".
	Type() string

	// Order is the chain position; lower orders are tried first.
	Order() int

	// Attempt authenticates one credential.
	Attempt(ctx context.Context, credential Credential) Result
}
