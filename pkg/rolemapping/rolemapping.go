// Package rolemapping grants roles to authenticated subjects by
// evaluating boolean rule expressions over the subject's realm,
// username, DN, groups, and metadata.
//
// A [Mapping] couples a rule [Expression] with the roles it grants.
// [Evaluate] runs a subject through a list of mappings and returns the
// union of roles from every enabled mapping whose rule matches.
// Evaluation is pure: it never errs and a subject matching no mapping
// simply receives no roles.
//
// Mappings live in a [Store]; [MemoryStore] backs tests and static
// configuration, [RedisStore] backs shared deployments.
package rolemapping

import (
	"sort"
	"strings"
)

// Subject is the view of an authenticated identity that rule
// expressions evaluate against. It is assembled by the authentication
// realm before role resolution; all fields are optional except
// Username.
type Subject struct {
	// RealmName is the name of the realm that authenticated the subject.
	RealmName string

	// Username is the resolved principal.
	Username string

	// DN is the distinguished name, when the authenticating realm
	// provides one. Empty otherwise.
	DN string

	// Groups are the group names extracted by the realm, for example
	// from a token's groups claim.
	Groups []string

	// Metadata holds the realm-specific metadata entries, keyed as the
	// realm published them.
	Metadata map[string]any
}

// field resolves a rule field name to the subject's value for it.
// Recognised names are "realm.name", "username", "dn", "groups", and
// "metadata.<key>". Unknown names resolve to (nil, false), which makes
// the enclosing predicate evaluate to false.
func (s Subject) field(name string) (any, bool) {
	switch name {
	case "realm.name":
		return s.RealmName, true
	case "username":
		return s.Username, true
	case "dn":
		return s.DN, true
	case "groups":
		return s.Groups, true
	}
	if key, ok := strings.CutPrefix(name, "metadata."); ok {
		v, present := s.Metadata[key]
		return v, present
	}
	return nil, false
}

// Mapping grants a fixed set of roles to every subject its rule
// matches. Disabled mappings are retained in the store but skipped
// during evaluation.
type Mapping struct {
	// Name identifies the mapping within its store.
	Name string `json:"-"`

	// Enabled gates the mapping; disabled mappings never grant roles.
	Enabled bool `json:"enabled"`

	// Roles are granted when Rules matches.
	Roles []string `json:"roles"`

	// Rules is the boolean expression deciding whether the mapping
	// applies to a subject.
	Rules Expression `json:"-"`
}

// Evaluate returns the union of roles granted to the subject by the
// enabled mappings whose rules match. The result is deduplicated and
// sorted; a subject matching nothing gets an empty, non-nil slice.
func Evaluate(subject Subject, mappings []Mapping) []string {
	granted := make(map[string]struct{})
	for _, m := range mappings {
		if !m.Enabled || m.Rules == nil {
			continue
		}
		if m.Rules.Match(subject) {
			for _, role := range m.Roles {
				granted[role] = struct{}{}
			}
		}
	}

	roles := make([]string, 0, len(granted))
	for role := range granted {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
