package realms

import (
	"context"
	"encoding/base64"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// metadataAuthorization is the incoming metadata key carrying the
	// credential, mirroring the HTTP Authorization header.
	metadataAuthorization = "authorization"

	// metadataClientAuthentication mirrors the HTTP
	// client-authentication header.
	metadataClientAuthentication = "x-client-authentication"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates every call through the chain and stores the resulting
// [Principal] in the handler context.
//
// Calls without a usable credential, or whose credential no realm
// accepts, fail with a bare Unauthenticated status.
func UnaryServerInterceptor(chain *Chain) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, chain)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor
// performing the same authentication as [UnaryServerInterceptor],
// wrapping the stream to carry the enriched context.
func StreamServerInterceptor(chain *Chain) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), chain)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticateGRPC assembles a credential from incoming metadata, runs
// it through the chain, and enriches the context with the principal.
// Every failure collapses to a bare Unauthenticated status.
func authenticateGRPC(ctx context.Context, chain *Chain) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "unauthorized")
	}

	credential, ok := credentialFromMetadata(md)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "unauthorized")
	}

	principal, err := chain.Authenticate(ctx, credential)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return ContextWithPrincipal(ctx, principal), nil
}

// credentialFromMetadata mirrors [CredentialFromRequest] for gRPC
// metadata: bearer values become [JWTCredential], basic values become
// [PasswordCredential].
func credentialFromMetadata(md metadata.MD) (Credential, bool) {
	values := md.Get(metadataAuthorization)
	if len(values) == 0 {
		return nil, false
	}
	authValue := values[0]

	if token := ExtractBearerToken(authValue); token != "" {
		var clientSecret Secret
		if secrets := md.Get(metadataClientAuthentication); len(secrets) > 0 {
			clientSecret = ExtractSharedSecret(secrets[0])
		}
		return JWTCredential{Token: token, ClientSecret: clientSecret}, true
	}

	if username, password, ok := parseBasicValue(authValue); ok {
		return PasswordCredential{Username: username, Password: Secret(password)}, true
	}
	return nil, false
}

// parseBasicValue decodes a "Basic <base64(user:pass)>" value.
func parseBasicValue(authValue string) (username, password string, ok bool) {
	const basicPrefix = "Basic "
	if len(authValue) <= len(basicPrefix) || !strings.EqualFold(authValue[:len(basicPrefix)], basicPrefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(authValue[len(basicPrefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	return username, password, ok
}

// wrappedServerStream carries the authenticated context through a
// server stream.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the enriched context instead of the stream's
// original one.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
