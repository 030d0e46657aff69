package realms

// Credential is an inbound authentication credential. The concrete type
// determines which realms the chain offers the credential to: bearer
// tokens go to JWT realms, username/password pairs to directory-backed
// realms.
type Credential interface {
	// credentialKind seals the interface to this package's types.
	credentialKind() string
}

// JWTCredential carries a compact-serialized bearer JWT and, when the
// caller supplied one, the client-authentication shared secret that
// accompanied it.
type JWTCredential struct {
	// Token is the compact JWT from the Authorization header.
	Token string

	// ClientSecret is the value from the client-authentication header,
	// empty when the header was absent. Realms that require client
	// authentication compare it against their configured secret.
	ClientSecret Secret
}

func (JWTCredential) credentialKind() string { return "jwt" }

// PasswordCredential carries a username/password pair, typically from
// HTTP basic authentication.
type PasswordCredential struct {
	Username string
	Password Secret
}

func (PasswordCredential) credentialKind() string { return "password" }
