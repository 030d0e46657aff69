// Package errors provides standardized error types and error handling
// utilities for the realmauth authentication service. It defines the error
// categories produced while authenticating a credential against a realm
// chain, machine-readable error codes, and helper functions for creating,
// wrapping, and inspecting errors.
//
// # Error Categories
//
// The package defines several error categories that map to common failure
// scenarios:
//
//   - Validation errors: Invalid configuration, malformed rule expressions
//   - Authentication errors: Expired tokens, bad signatures, issuer or
//     audience mismatches, failed delegated lookups
//   - Authorization errors: Authenticated but insufficient privilege
//   - NotFound errors: Unknown users, missing JWK key IDs
//   - Internal errors: Unexpected system failures
//   - Unavailable/Timeout errors: Unreachable or slow collaborators
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "AUTH_004") that can be
// used for error tracking, alerting, and test assertions. Error codes follow
// the pattern CATEGORY_XXX where CATEGORY is a short identifier and XXX is a
// numeric code.
//
// A deliberate property of the authentication codes: none of them cross the
// service boundary. The realm chain collapses every AUTH_xxx code to a bare
// HTTP 401 so that callers cannot distinguish which internal check rejected
// a credential. The codes exist for logs, traces, and tests only.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeAuthenticationExpired, "token has expired")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "user lookup failed")
//
// Check error category:
//
//	if errors.IsAuthentication(err) {
//	    // respond 401 without detail
//	}
package errors

import (
	"fmt"
	"net/http"
)

// Error represents a structured error with a code, message, and optional
// cause. It implements the standard error interface and provides additional
// context for error handling, logging, and API responses.
//
// Error is designed to be:
//   - Immutable: Fields are not modified after creation
//   - Chainable: Supports error wrapping via the Cause field
//   - Structured: Provides machine-readable code and HTTP status
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_004").
	Code Code

	// Message is the human-readable error message. Messages may appear in
	// logs and traces but must never leak to unauthenticated callers; the
	// HTTP and gRPC surfaces replace them with a generic phrase.
	Message string

	// Cause is the underlying error that caused this error, if any.
	// Use Unwrap() to access the cause for error chain inspection.
	Cause error

	// Details contains additional structured data about the error, such as
	// the realm name that rejected a credential or the key ID that was not
	// found. Used for debugging, never serialized to clients.
	Details map[string]any
}

// Error implements the error interface, returning the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of this error, supporting
// errors.Unwrap() and errors.Is() from the standard library.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error
// based on its error code category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "INT":
		return http.StatusInternalServerError
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a new Error with a single detail key-value pair added.
// The original error is not modified.
func (e *Error) WithDetail(key string, value any) *Error {
	newDetails := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		newDetails[k] = v
	}
	newDetails[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: newDetails,
	}
}
