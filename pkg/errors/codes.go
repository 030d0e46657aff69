package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Searchable: Codes can be used to find documentation and solutions
//   - Machine-readable: Suitable for automated error handling
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx  - Validation errors (400 Bad Request)
//	AUTH_xxx - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx - Authorization errors (403 Forbidden)
//	NF_xxx   - Not found errors (404 Not Found)
//	CONF_xxx - Conflict errors (409 Conflict)
//	INT_xxx  - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when input or configuration fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside acceptable range.
	CodeValidationRange Code = "VAL_004"

	// CodeValidationKeyType indicates a JWK exists but its key type is
	// incompatible with the requested use (e.g., an octet-sequence key
	// requested as RSA).
	CodeValidationKeyType Code = "VAL_005"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// Used when authentication fails or credentials are invalid.
	// The realm chain maps every one of these to a bare 401 at the
	// boundary; the distinct codes exist for logs, traces, and tests.

	// CodeAuthentication indicates a general authentication failure,
	// including the case where no realm in the chain could handle the
	// presented credential.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationMalformed indicates the token could not be parsed:
	// bad compact serialization, base64 or JSON structural errors.
	CodeAuthenticationMalformed Code = "AUTH_003"

	// CodeAuthenticationSignature indicates the token parsed but its
	// signature did not verify against the realm's key material.
	CodeAuthenticationSignature Code = "AUTH_004"

	// CodeAuthenticationAlgorithm indicates the token's signing algorithm
	// is not in the realm's allow-list or does not match the key family.
	CodeAuthenticationAlgorithm Code = "AUTH_005"

	// CodeAuthenticationClientSecret indicates the client-authentication
	// shared secret was missing or did not match the realm's configured value.
	CodeAuthenticationClientSecret Code = "AUTH_006"

	// CodeAuthenticationIssuer indicates the token's issuer claim does not
	// match the realm's expected issuer.
	CodeAuthenticationIssuer Code = "AUTH_007"

	// CodeAuthenticationAudience indicates the token's audience claim has
	// no overlap with the realm's allowed audiences.
	CodeAuthenticationAudience Code = "AUTH_008"

	// CodeAuthenticationNotYetValid indicates the token's not-before time
	// is in the future.
	CodeAuthenticationNotYetValid Code = "AUTH_009"

	// CodeAuthenticationDelegated indicates the delegated-authorization
	// lookup for an otherwise valid token failed.
	CodeAuthenticationDelegated Code = "AUTH_010"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// Used when the authenticated principal lacks required privileges.

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates access to a resource is denied.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404
	// Used when a requested resource does not exist.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user was not found in a
	// user directory.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundResource indicates the requested resource was not found.
	CodeNotFoundResource Code = "NF_003"

	// CodeNotFoundKey indicates no key with the requested key ID exists in
	// the realm's key set.
	CodeNotFoundKey Code = "NF_004"

	// Conflict errors (CONF_xxx) - HTTP 409
	// Used when an operation conflicts with current state.

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists indicates the resource already exists.
	CodeConflictAlreadyExists Code = "CONF_002"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503
	// Used when a collaborator is temporarily unavailable.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service (user
	// directory, role-mapping store, remote JWKS endpoint) is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504
	// Used when an operation exceeds its time limit.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDependency indicates a call to a dependent service timed out.
	CodeTimeoutDependency Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
