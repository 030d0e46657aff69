package rolemapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// Expression is a boolean rule over a [Subject]. Expressions form a
// recursive tree of [All], [Any], and [Field] nodes, built either
// directly or by parsing the JSON rule format with [ParseExpression].
//
// Evaluation is pure and total: Match returns true or false for every
// subject shape and never fails. References to unknown fields evaluate
// to false.
type Expression interface {
	// Match reports whether the subject satisfies this expression.
	Match(subject Subject) bool
}

// All is a conjunction: it matches when every child matches. An empty
// All matches everything, consistent with the usual vacuous-truth
// reading of a conjunction.
type All struct {
	Children []Expression
}

// Match implements [Expression].
func (a All) Match(subject Subject) bool {
	for _, c := range a.Children {
		if !c.Match(subject) {
			return false
		}
	}
	return true
}

// Any is a disjunction: it matches when at least one child matches.
// An empty Any never matches.
type Any struct {
	Children []Expression
}

// Match implements [Expression].
func (a Any) Match(subject Subject) bool {
	for _, c := range a.Children {
		if c.Match(subject) {
			return true
		}
	}
	return false
}

// Field is a predicate over a single subject field. The field name is
// one of "realm.name", "username", "dn", "groups", or "metadata.<key>".
// Values holds the acceptable values; the predicate matches when the
// subject's field value equals (or, for string values containing "*"
// or "?", glob-matches) any of them. When the subject field is a list
// (groups, list-valued metadata), the predicate matches if any element
// matches.
type Field struct {
	Name   string
	Values []any
}

// Match implements [Expression].
func (f Field) Match(subject Subject) bool {
	fieldValue, ok := subject.field(f.Name)
	if !ok {
		return false
	}
	for _, want := range f.Values {
		if valueMatches(fieldValue, want) {
			return true
		}
	}
	return false
}

// valueMatches compares a subject field value against one rule value.
// List-valued fields match if any element matches.
func valueMatches(fieldValue any, want any) bool {
	if list, ok := fieldValue.([]any); ok {
		for _, elem := range list {
			if scalarMatches(elem, want) {
				return true
			}
		}
		return false
	}
	if list, ok := fieldValue.([]string); ok {
		for _, elem := range list {
			if scalarMatches(elem, want) {
				return true
			}
		}
		return false
	}
	return scalarMatches(fieldValue, want)
}

// scalarMatches compares one scalar subject value against one rule value.
// String rule values containing glob metacharacters are wildcard
// patterns; every other value requires equality on the canonical string
// form (JSON numbers compare as their decimal rendering, booleans as
// true/false). Nil matches only nil.
func scalarMatches(fieldValue any, want any) bool {
	if want == nil || fieldValue == nil {
		return want == nil && fieldValue == nil
	}

	fs, fok := canonicalString(fieldValue)
	ws, wok := canonicalString(want)
	if !fok || !wok {
		return false
	}

	if s, isStr := want.(string); isStr && strings.ContainsAny(s, "*?") {
		return globMatch(s, fs)
	}
	return fs == ws
}

// canonicalString renders a scalar claim or rule value as a string for
// comparison. Supported kinds: string, bool, and the numeric types JSON
// decoding produces.
func canonicalString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// globMatch reports whether s matches the pattern, where '*' matches
// any (possibly empty) sequence and '?' matches exactly one byte.
// Matching is case-sensitive and iterative (no backtracking blowup).
func globMatch(pattern, s string) bool {
	var pIdx, sIdx int
	starIdx, matchIdx := -1, 0

	for sIdx < len(s) {
		switch {
		case pIdx < len(pattern) && (pattern[pIdx] == '?' || pattern[pIdx] == s[sIdx]):
			pIdx++
			sIdx++
		case pIdx < len(pattern) && pattern[pIdx] == '*':
			starIdx = pIdx
			matchIdx = sIdx
			pIdx++
		case starIdx != -1:
			pIdx = starIdx + 1
			matchIdx++
			sIdx = matchIdx
		default:
			return false
		}
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}

// ---------------------------------------------------------------------------
// JSON rule format
// ---------------------------------------------------------------------------

// ParseExpression parses the JSON rule format into an [Expression] tree.
// The format has three node kinds:
//
//	{"all":   [ <expression>, ... ]}
//	{"any":   [ <expression>, ... ]}
//	{"field": {"<name>": <value> | [<value>, ...]}}
//
// Each node object must contain exactly one of the three keys. Field
// values may be strings (with optional "*"/"?" wildcards), numbers,
// booleans, or null, or a list of those.
func ParseExpression(data []byte) (Expression, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, raerr.Wrap(err, raerr.CodeValidationFormat, "rolemapping: rule is not a JSON object")
	}
	return parseNode(raw)
}

func parseNode(raw map[string]json.RawMessage) (Expression, error) {
	if len(raw) != 1 {
		return nil, raerr.Newf(raerr.CodeValidationFormat,
			"rolemapping: rule node must have exactly one key, found %d", len(raw))
	}

	for key, val := range raw {
		switch key {
		case "all":
			children, err := parseChildren(val)
			if err != nil {
				return nil, err
			}
			return All{Children: children}, nil
		case "any":
			children, err := parseChildren(val)
			if err != nil {
				return nil, err
			}
			return Any{Children: children}, nil
		case "field":
			return parseField(val)
		default:
			return nil, raerr.Newf(raerr.CodeValidationFormat,
				"rolemapping: unknown rule type %q", key)
		}
	}
	return nil, raerr.New(raerr.CodeValidationFormat, "rolemapping: empty rule node")
}

func parseChildren(val json.RawMessage) ([]Expression, error) {
	var rawChildren []map[string]json.RawMessage
	if err := json.Unmarshal(val, &rawChildren); err != nil {
		return nil, raerr.Wrap(err, raerr.CodeValidationFormat, "rolemapping: combinator value must be an array")
	}
	children := make([]Expression, 0, len(rawChildren))
	for _, rc := range rawChildren {
		child, err := parseNode(rc)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func parseField(val json.RawMessage) (Expression, error) {
	var fields map[string]any
	if err := json.Unmarshal(val, &fields); err != nil {
		return nil, raerr.Wrap(err, raerr.CodeValidationFormat, "rolemapping: field value must be an object")
	}
	if len(fields) != 1 {
		return nil, raerr.Newf(raerr.CodeValidationFormat,
			"rolemapping: field node must name exactly one field, found %d", len(fields))
	}

	for name, v := range fields {
		values, ok := v.([]any)
		if !ok {
			values = []any{v}
		}
		for _, fv := range values {
			if err := checkFieldValue(fv); err != nil {
				return nil, err
			}
		}
		return Field{Name: name, Values: values}, nil
	}
	return nil, raerr.New(raerr.CodeValidationFormat, "rolemapping: empty field node")
}

func checkFieldValue(v any) error {
	switch v.(type) {
	case string, bool, float64, nil:
		return nil
	default:
		return raerr.Newf(raerr.CodeValidationFormat,
			"rolemapping: unsupported field value of type %s", fmt.Sprintf("%T", v))
	}
}
