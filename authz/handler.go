package authz

import (
	"context"

	"github.com/jrsteele09/go-authz-engine/principal"
)

// Result is a handler's verdict on one requirement.
type Result int

const (
	// Abstain means the handler has no opinion (e.g. an unfamiliar
	// requirement shape); it neither satisfies nor blocks the requirement.
	Abstain Result = iota
	// NotSatisfied means the handler understood the requirement and the
	// principal does not meet it.
	NotSatisfied
	// Satisfied means the requirement is met; one satisfied handler is enough.
	Satisfied
)

// Handler evaluates requirements of the type(s) it is registered against.
// Handlers must be pure functions of the principal and requirement
// parameters, side-effect-free with respect to authorization state.
type Handler interface {
	Evaluate(ctx context.Context, p principal.Principal, requirement Requirement) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, p principal.Principal, requirement Requirement) Result

func (f HandlerFunc) Evaluate(ctx context.Context, p principal.Principal, requirement Requirement) Result {
	return f(ctx, p, requirement)
}

// RoleHandler evaluates RoleRequirement.
type RoleHandler struct{}

func (RoleHandler) Evaluate(_ context.Context, p principal.Principal, requirement Requirement) Result {
	roleReq, ok := requirement.(RoleRequirement)
	if !ok {
		return Abstain
	}
	for _, role := range roleReq.Roles {
		if p.HasRole(role) {
			return Satisfied
		}
	}
	return NotSatisfied
}

// ClaimHandler evaluates ClaimRequirement.
type ClaimHandler struct{}

func (ClaimHandler) Evaluate(_ context.Context, p principal.Principal, requirement Requirement) Result {
	claimReq, ok := requirement.(ClaimRequirement)
	if !ok {
		return Abstain
	}
	if len(claimReq.AllowedValues) == 0 {
		if p.HasClaim(claimReq.ClaimType) {
			return Satisfied
		}
		return NotSatisfied
	}
	for _, value := range claimReq.AllowedValues {
		if p.HasClaimValue(claimReq.ClaimType, value) {
			return Satisfied
		}
	}
	return NotSatisfied
}
