// Package permission defines the scopes a principal can hold.
package permission

import (
	"sort"
	"strings"

	"github.com/congo-pay/walletd/internal/apperr"
)

// Permission is one grantable scope.
type Permission string

const (
	Deposit  Permission = "deposit"
	Transfer Permission = "transfer"
	Read     Permission = "read"
)

var known = map[Permission]struct{}{Deposit: {}, Transfer: {}, Read: {}}

// Set is an immutable collection of permissions. The zero value grants
// nothing.
type Set struct {
	perms map[Permission]struct{}
}

// All is the set carried by session principals.
func All() Set {
	return NewSet(Deposit, Transfer, Read)
}

// NewSet builds a set from perms, ignoring duplicates.
func NewSet(perms ...Permission) Set {
	m := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return Set{perms: m}
}

// Parse builds a set from raw names. Unknown names and an empty list are
// validation errors.
func Parse(names []string) (Set, error) {
	if len(names) == 0 {
		return Set{}, apperr.Validation("at least one permission is required")
	}
	perms := make([]Permission, 0, len(names))
	for _, name := range names {
		p := Permission(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := known[p]; !ok {
			return Set{}, apperr.Validation("unknown permission %q", name)
		}
		perms = append(perms, p)
	}
	return NewSet(perms...), nil
}

// Has reports whether p is granted.
func (s Set) Has(p Permission) bool {
	_, ok := s.perms[p]
	return ok
}

// Len returns the number of distinct permissions.
func (s Set) Len() int { return len(s.perms) }

// Strings returns the permission names sorted.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s.perms))
	for p := range s.perms {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
