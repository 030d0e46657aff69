package rolemapping

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// Store persists role mappings. Implementations must be safe for
// concurrent use.
type Store interface {
	// List returns every mapping in the store, sorted by name.
	List(ctx context.Context) ([]Mapping, error)

	// Put creates or replaces the mapping under its name.
	Put(ctx context.Context, mapping Mapping) error

	// Delete removes the named mapping. Deleting a mapping that does
	// not exist returns a NF_003 error.
	Delete(ctx context.Context, name string) error
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

// mappingDoc is the JSON document form of a [Mapping]. The name is
// carried outside the document (map key, Redis hash field), matching
// how the mapping APIs address mappings by name.
type mappingDoc struct {
	Enabled bool            `json:"enabled"`
	Roles   []string        `json:"roles"`
	Rules   json.RawMessage `json:"rules"`
}

// MarshalMapping encodes a mapping as its JSON document form.
func MarshalMapping(m Mapping) ([]byte, error) {
	rules, err := marshalExpression(m.Rules)
	if err != nil {
		return nil, err
	}
	doc := mappingDoc{Enabled: m.Enabled, Roles: m.Roles, Rules: rules}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, raerr.Wrap(err, raerr.CodeInternal, "rolemapping: encode mapping")
	}
	return data, nil
}

// UnmarshalMapping decodes a JSON mapping document, attaching the
// externally carried name.
func UnmarshalMapping(name string, data []byte) (Mapping, error) {
	var doc mappingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Mapping{}, raerr.Wrapf(err, raerr.CodeValidationFormat,
			"rolemapping: mapping %q is not a valid document", name)
	}
	expr, err := ParseExpression(doc.Rules)
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{Name: name, Enabled: doc.Enabled, Roles: doc.Roles, Rules: expr}, nil
}

func marshalExpression(expr Expression) (json.RawMessage, error) {
	switch e := expr.(type) {
	case All:
		children, err := marshalChildren(e.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"all": children})
	case Any:
		children, err := marshalChildren(e.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"any": children})
	case Field:
		var value any = e.Values
		if len(e.Values) == 1 {
			value = e.Values[0]
		}
		return json.Marshal(map[string]any{"field": map[string]any{e.Name: value}})
	case nil:
		return nil, raerr.New(raerr.CodeValidationRequired, "rolemapping: mapping has no rules")
	default:
		return nil, raerr.Newf(raerr.CodeValidation, "rolemapping: cannot encode expression of type %T", expr)
	}
}

func marshalChildren(children []Expression) (json.RawMessage, error) {
	encoded := make([]json.RawMessage, 0, len(children))
	for _, c := range children {
		raw, err := marshalExpression(c)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, raw)
	}
	return json.Marshal(encoded)
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// MemoryStore is an in-memory [Store]. It backs statically configured
// deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mappings: make(map[string]Mapping)}
}

// List implements [Store].
func (s *MemoryStore) List(_ context.Context) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put implements [Store].
func (s *MemoryStore) Put(_ context.Context, mapping Mapping) error {
	if mapping.Name == "" {
		return raerr.New(raerr.CodeValidationRequired, "rolemapping: mapping name is required")
	}
	if mapping.Rules == nil {
		return raerr.New(raerr.CodeValidationRequired, "rolemapping: mapping has no rules")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mapping.Name] = mapping
	return nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[name]; !ok {
		return raerr.Newf(raerr.CodeNotFoundResource, "rolemapping: mapping %q not found", name)
	}
	delete(s.mappings, name)
	return nil
}
