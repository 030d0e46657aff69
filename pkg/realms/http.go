package realms

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

const (
	// HeaderAuthorization carries the primary credential: a bearer JWT
	// or a basic username/password pair.
	HeaderAuthorization = "Authorization"

	// HeaderClientAuthentication carries the optional shared secret
	// proving the calling application may use a realm, distinct from
	// the token's own signature.
	HeaderClientAuthentication = "X-Client-Authentication"

	bearerPrefix       = "Bearer "
	sharedSecretPrefix = "SharedSecret "
)

// ExtractBearerToken extracts the token from an authorization header
// value. It handles the "Bearer " prefix case-insensitively. Returns an
// empty string if the header is empty or does not have a bearer prefix.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return authHeader[len(bearerPrefix):]
}

// ExtractSharedSecret extracts the shared secret from a
// client-authentication header value. The scheme word "SharedSecret" is
// matched case-insensitively; the secret itself is taken verbatim.
// Returns an empty secret for an empty or differently-schemed header.
func ExtractSharedSecret(header string) Secret {
	if len(header) <= len(sharedSecretPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(sharedSecretPrefix)], sharedSecretPrefix) {
		return ""
	}
	return Secret(header[len(sharedSecretPrefix):])
}

// CredentialFromRequest assembles the request's credential: a
// [JWTCredential] from a bearer Authorization header (with the
// client-authentication secret when present), or a
// [PasswordCredential] from a basic Authorization header. Requests
// with no usable Authorization header yield a coded error.
func CredentialFromRequest(r *http.Request) (Credential, error) {
	authHeader := r.Header.Get(HeaderAuthorization)
	if authHeader == "" {
		return nil, raerr.New(raerr.CodeAuthentication, "realms: missing authorization header")
	}

	if token := ExtractBearerToken(authHeader); token != "" {
		return JWTCredential{
			Token:        token,
			ClientSecret: ExtractSharedSecret(r.Header.Get(HeaderClientAuthentication)),
		}, nil
	}

	if username, password, ok := r.BasicAuth(); ok {
		return PasswordCredential{Username: username, Password: Secret(password)}, nil
	}

	return nil, raerr.New(raerr.CodeAuthentication, "realms: unsupported authorization scheme")
}

// writeUnauthorized sends the coarse unauthorized response. No internal
// failure detail crosses the boundary.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// AuthenticateHandler returns the authentication endpoint: it runs the
// request's credential through the chain and responds with the
// principal document on success or a bare 401 on any failure.
func AuthenticateHandler(chain *Chain) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, err := CredentialFromRequest(r)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		principal, err := chain.Authenticate(r.Context(), credential)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(principal.Response()); err != nil {
			slog.WarnContext(r.Context(), "failed to encode authentication response",
				"error", err,
			)
		}
	})
}

// HTTPMiddleware returns an HTTP middleware that authenticates every
// request through the chain and stores the resulting [Principal] in
// the request context for downstream handlers.
//
// Requests without a usable credential, or whose credential no realm
// accepts, receive a bare 401 response.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/data", handleData)
//	handler := realms.HTTPMiddleware(chain)(mux)
func HTTPMiddleware(chain *Chain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential, err := CredentialFromRequest(r)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			principal, err := chain.Authenticate(r.Context(), credential)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
