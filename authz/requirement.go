// Package authz evaluates named access policies against a claims principal.
// A policy is a conjunction (AND) of requirements; each requirement is
// satisfied by a disjunction (OR) of the handlers registered for its type.
// Every unhandled path denies: authorization is fail-closed.
package authz

// Requirement is a named, parameterized condition a policy demands be
// satisfied. Implementations are immutable value objects.
type Requirement interface {
	// RequirementType identifies which handlers can evaluate this requirement.
	RequirementType() string
}

// Built-in requirement types.
const (
	RequirementTypeRole  = "role"
	RequirementTypeClaim = "claim"
)

// RoleRequirement is satisfied when the principal's role set intersects Roles.
type RoleRequirement struct {
	Roles []string
}

func (RoleRequirement) RequirementType() string {
	return RequirementTypeRole
}

// ClaimRequirement is satisfied when the principal carries at least one claim
// of ClaimType; if AllowedValues is non-empty, at least one claim value must
// be in that set.
type ClaimRequirement struct {
	ClaimType     string
	AllowedValues []string
}

func (ClaimRequirement) RequirementType() string {
	return RequirementTypeClaim
}
