// Package policy models the access-control documents attached to stored
// columns: which capability tokens a caller must present, which it must
// not, and which table-level verifier gates the column as a whole.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/seera-networks/yakserv/pkg/canonicalize"
)

// Rule gates access to a single column.
type Rule struct {
	ColumnName    string   `json:"column_name"`
	Requires      []string `json:"requires"`
	Rejects       []string `json:"rejects"`
	TableVerifier string   `json:"table_verifier,omitempty"`
}

// FunctionPolicy constrains a named aggregate function by a predicate
// string such as ">100" or "=<100", parsed by ParsePredicate.
type FunctionPolicy struct {
	Func    string `json:"func"`
	Require string `json:"require,omitempty"`
	Reject  string `json:"reject,omitempty"`
}

// TableVerifier names a whole-table gate (e.g. "mean_minimum_100") and an
// optional argument string it's invoked with.
type TableVerifier struct {
	Verifier string `json:"verifier"`
	Arg      string `json:"arg,omitempty"`
}

// File is the full policy document stored alongside a table: rules keyed by
// rule id (several rules may name the same column), the function policies
// gating aggregate calls, and the table verifiers available by name.
type File struct {
	Rules                map[string]Rule           `json:"rules"`
	FuncPolicy            map[string]FunctionPolicy `json:"func_policy"`
	DefaultTableVerifier   string                    `json:"default_table_verifier"`
	TableVerifiers         map[string]TableVerifier  `json:"table_verifiers"`
}

// New returns an empty, ready-to-populate policy document.
func New() *File {
	return &File{
		Rules:          map[string]Rule{},
		FuncPolicy:     map[string]FunctionPolicy{},
		TableVerifiers: map[string]TableVerifier{},
	}
}

// RulesForColumn returns every rule in the document whose ColumnName
// matches; the map keys the rules were stored under are not returned. Order
// is unspecified, as in the source it was ported from.
func (f *File) RulesForColumn(columnName string) []Rule {
	var out []Rule
	for _, r := range f.Rules {
		if r.ColumnName == columnName {
			out = append(out, r)
		}
	}
	return out
}

// FunctionPoliciesFor returns every FunctionPolicy entry whose Func field
// equals funcName.
func (f *File) FunctionPoliciesFor(funcName string) map[string]FunctionPolicy {
	out := map[string]FunctionPolicy{}
	for k, v := range f.FuncPolicy {
		if v.Func == funcName {
			out[k] = v
		}
	}
	return out
}

// ToJSON serializes the document. Malformed documents never originate from
// this function; callers that hand-construct a File are responsible for
// the invariants described in Rule and FunctionPolicy.
func (f *File) ToJSON() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("policy: marshal: %w", err)
	}
	return string(b), nil
}

// FromJSON parses a policy document. A malformed document is a fatal
// configuration error in every caller of this function — there is no
// partial-policy fallback.
func FromJSON(s string) (*File, error) {
	f := New()
	if err := json.Unmarshal([]byte(s), f); err != nil {
		return nil, fmt.Errorf("policy: invalid document: %w", err)
	}
	if f.Rules == nil {
		f.Rules = map[string]Rule{}
	}
	if f.FuncPolicy == nil {
		f.FuncPolicy = map[string]FunctionPolicy{}
	}
	if f.TableVerifiers == nil {
		f.TableVerifiers = map[string]TableVerifier{}
	}
	return f, nil
}

// CanonicalDigest returns the RFC 8785 canonical-JSON SHA-256 digest used
// purely to correlate an audit log line with the policy document in play.
// It is never consulted for an access decision.
func (f *File) CanonicalDigest() (string, error) {
	return canonicalize.Digest(f)
}
