package realms

import "github.com/StricklySoft/realmauth/pkg/rolemapping"

// RealmRef identifies the realm that produced an authentication.
type RealmRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Principal is an authenticated identity: the resolved username, the
// roles granted to it, the metadata the owning realm published for it,
// and a reference to that realm.
//
// For JWT realms the metadata carries one jwt_claim_<name> entry per
// claim present in the token, with the claim value verbatim — lists
// stay lists, numbers stay numbers. When delegated authorization is in
// effect, roles and metadata instead come entirely from the directory
// record.
type Principal struct {
	Username string
	Roles    []string
	Metadata map[string]any
	Realm    RealmRef
}

// Clone returns a deep copy of the principal. Role and metadata slices
// handed to callers never alias realm-internal state.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	out := *p
	out.Roles = append([]string(nil), p.Roles...)
	if p.Metadata != nil {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// subject converts the principal to the view role-mapping rules
// evaluate against. The caller supplies the groups it derived from the
// token, so rules can match on them uniformly.
func (p *Principal) subject(groups []string) rolemapping.Subject {
	return rolemapping.Subject{
		RealmName: p.Realm.Name,
		Username:  p.Username,
		Groups:    groups,
		Metadata:  p.Metadata,
	}
}

// AuthenticateResponse is the JSON document returned to callers on
// successful authentication.
type AuthenticateResponse struct {
	Username            string         `json:"username"`
	Roles               []string       `json:"roles"`
	Metadata            map[string]any `json:"metadata"`
	AuthenticationRealm RealmRef       `json:"authentication_realm"`
}

// Response renders the principal as the authentication response
// document. Roles are never null in the output.
func (p *Principal) Response() AuthenticateResponse {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return AuthenticateResponse{
		Username:            p.Username,
		Roles:               roles,
		Metadata:            metadata,
		AuthenticationRealm: p.Realm,
	}
}
