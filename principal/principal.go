// Package principal provides an immutable snapshot of a validated identity's claims.
// A Principal is constructed once from a verified access token and is safe to share
// between goroutines.
package principal

// RoleClaimType is the reserved claim type whose values form the principal's role set.
const RoleClaimType = "role"

// Claim is a typed key/value fact about a principal (role, department, etc.).
// The same claim type may appear multiple times with different values.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is an ordered multimap of claims belonging to one subject.
// The zero value is an anonymous principal with no claims.
type Principal struct {
	subjectID string
	claims    []Claim
}

// New creates a Principal from the given subject ID and claims. The claims
// slice is copied so later mutation by the caller cannot alter the principal.
func New(subjectID string, claims []Claim) Principal {
	copied := make([]Claim, len(claims))
	copy(copied, claims)
	return Principal{
		subjectID: subjectID,
		claims:    copied,
	}
}

// SubjectID returns the unique identifier of the authenticated subject.
func (p Principal) SubjectID() string {
	return p.subjectID
}

// Claims returns a copy of all claims in their original order.
func (p Principal) Claims() []Claim {
	copied := make([]Claim, len(p.claims))
	copy(copied, p.claims)
	return copied
}

// Values returns all values of the given claim type, in order.
func (p Principal) Values(claimType string) []string {
	values := make([]string, 0)
	for _, c := range p.claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// HasClaim reports whether the principal carries at least one claim of the given type.
func (p Principal) HasClaim(claimType string) bool {
	for _, c := range p.claims {
		if c.Type == claimType {
			return true
		}
	}
	return false
}

// HasClaimValue reports whether the principal carries the exact claim type/value pair.
func (p Principal) HasClaimValue(claimType, value string) bool {
	for _, c := range p.claims {
		if c.Type == claimType && c.Value == value {
			return true
		}
	}
	return false
}

// Roles returns the values of the reserved role claim type.
func (p Principal) Roles() []string {
	return p.Values(RoleClaimType)
}

// HasRole reports whether the principal's role set contains the given role.
func (p Principal) HasRole(role string) bool {
	return p.HasClaimValue(RoleClaimType, role)
}
