package authz_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-authz-engine/authz"
	"github.com/jrsteele09/go-authz-engine/principal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newPrincipal(roles []string, departments []string) principal.Principal {
	claims := make([]principal.Claim, 0)
	for _, role := range roles {
		claims = append(claims, principal.Claim{Type: principal.RoleClaimType, Value: role})
	}
	for _, department := range departments {
		claims = append(claims, principal.Claim{Type: "department", Value: department})
	}
	return principal.New("user-1", claims)
}

func setupEvaluator(t *testing.T) (*authz.Evaluator, *authz.PolicyRegistry, *authz.HandlerRegistry) {
	t.Helper()

	handlers := authz.NewHandlerRegistry()
	require.NoError(t, handlers.Register(authz.RequirementTypeRole, authz.RoleHandler{}))
	require.NoError(t, handlers.Register(authz.RequirementTypeClaim, authz.ClaimHandler{}))

	policies := authz.NewPolicyRegistry(handlers)
	evaluator := authz.NewEvaluator(policies, handlers)
	return evaluator, policies, handlers
}

func TestAdminOnlyPolicy(t *testing.T) {
	evaluator, policies, _ := setupEvaluator(t)
	require.NoError(t, policies.AddPolicy("AdminOnly",
		authz.RoleRequirement{Roles: []string{"Admin"}},
	))

	decision := evaluator.Evaluate(context.Background(), newPrincipal([]string{"Admin"}, nil), "AdminOnly")
	require.True(t, decision.Allowed)

	decision = evaluator.Evaluate(context.Background(), newPrincipal([]string{"Manager"}, nil), "AdminOnly")
	require.False(t, decision.Allowed)
	require.NotEmpty(t, decision.Reason)
}

func TestManagersOnlyPolicy(t *testing.T) {
	evaluator, policies, _ := setupEvaluator(t)
	require.NoError(t, policies.AddPolicy("ManagersOnly",
		authz.ClaimRequirement{ClaimType: "department", AllowedValues: []string{"HR", "IT"}},
		authz.RoleRequirement{Roles: []string{"Manager"}},
	))

	// Department matches but role does not: AND across requirements denies.
	decision := evaluator.Evaluate(context.Background(), newPrincipal([]string{"Employee"}, []string{"HR"}), "ManagersOnly")
	require.False(t, decision.Allowed)

	decision = evaluator.Evaluate(context.Background(), newPrincipal([]string{"Manager"}, []string{"IT"}), "ManagersOnly")
	require.True(t, decision.Allowed)
}

func TestClaimRequirementPresenceOnly(t *testing.T) {
	evaluator, policies, _ := setupEvaluator(t)
	require.NoError(t, policies.AddPolicy("HasDepartment",
		authz.ClaimRequirement{ClaimType: "department"},
	))

	decision := evaluator.Evaluate(context.Background(), newPrincipal(nil, []string{"Finance"}), "HasDepartment")
	require.True(t, decision.Allowed)

	decision = evaluator.Evaluate(context.Background(), newPrincipal([]string{"Admin"}, nil), "HasDepartment")
	require.False(t, decision.Allowed)
}

func TestPolicyNotFound(t *testing.T) {
	evaluator, _, _ := setupEvaluator(t)

	decision := evaluator.Evaluate(context.Background(), newPrincipal([]string{"Admin"}, nil), "NoSuchPolicy")
	require.False(t, decision.Allowed)
	require.ErrorIs(t, decision.Err, authz.ErrPolicyNotFound)
}

type experienceRequirement struct {
	MinimumYears int
}

func (experienceRequirement) RequirementType() string {
	return "experience"
}

func TestUnregisteredRequirementTypeAlwaysDenies(t *testing.T) {
	evaluator, policies, _ := setupEvaluator(t)
	require.NoError(t, policies.AddPolicy("Veterans", experienceRequirement{MinimumYears: 5}))

	// Even a principal holding every role is denied: this is a configuration
	// error, distinguishable from a business-rule denial.
	decision := evaluator.Evaluate(context.Background(), newPrincipal([]string{"Admin", "Manager"}, []string{"HR", "IT"}), "Veterans")
	require.False(t, decision.Allowed)
	require.ErrorIs(t, decision.Err, authz.ErrNoHandlerRegistered)
}

func TestAddPolicyWarnsOnMissingHandler(t *testing.T) {
	handlers := authz.NewHandlerRegistry()

	var logBuffer bytes.Buffer
	policies := authz.NewPolicyRegistry(handlers,
		authz.WithPolicyLogger(zerolog.New(&logBuffer)))

	require.NoError(t, policies.AddPolicy("Veterans", experienceRequirement{MinimumYears: 5}))
	require.Contains(t, logBuffer.String(), "no registered handler")
	require.Contains(t, logBuffer.String(), "experience")
}

func TestOrAcrossHandlers(t *testing.T) {
	handlers := authz.NewHandlerRegistry()
	require.NoError(t, handlers.Register("experience", authz.HandlerFunc(
		func(context.Context, principal.Principal, authz.Requirement) authz.Result {
			return authz.NotSatisfied
		})))
	require.NoError(t, handlers.Register("experience", authz.HandlerFunc(
		func(_ context.Context, p principal.Principal, r authz.Requirement) authz.Result {
			req, ok := r.(experienceRequirement)
			if !ok {
				return authz.Abstain
			}
			if req.MinimumYears <= 10 {
				return authz.Satisfied
			}
			return authz.NotSatisfied
		})))

	policies := authz.NewPolicyRegistry(handlers)
	require.NoError(t, policies.AddPolicy("Veterans", experienceRequirement{MinimumYears: 5}))
	evaluator := authz.NewEvaluator(policies, handlers)

	// The first handler says no; the second says yes. One is enough.
	decision := evaluator.Evaluate(context.Background(), newPrincipal(nil, nil), "Veterans")
	require.True(t, decision.Allowed)
}

func TestAbstainIsNotSatisfaction(t *testing.T) {
	handlers := authz.NewHandlerRegistry()
	require.NoError(t, handlers.Register("experience", authz.HandlerFunc(
		func(context.Context, principal.Principal, authz.Requirement) authz.Result {
			return authz.Abstain
		})))

	policies := authz.NewPolicyRegistry(handlers)
	require.NoError(t, policies.AddPolicy("Veterans", experienceRequirement{MinimumYears: 5}))
	evaluator := authz.NewEvaluator(policies, handlers)

	decision := evaluator.Evaluate(context.Background(), newPrincipal(nil, nil), "Veterans")
	require.False(t, decision.Allowed)
}

func TestShortCircuitOnFirstUnsatisfied(t *testing.T) {
	invoked := false
	handlers := authz.NewHandlerRegistry()
	require.NoError(t, handlers.Register(authz.RequirementTypeRole, authz.RoleHandler{}))
	require.NoError(t, handlers.Register("experience", authz.HandlerFunc(
		func(context.Context, principal.Principal, authz.Requirement) authz.Result {
			invoked = true
			return authz.Satisfied
		})))

	policies := authz.NewPolicyRegistry(handlers)
	require.NoError(t, policies.AddPolicy("Ordered",
		authz.RoleRequirement{Roles: []string{"Admin"}},
		experienceRequirement{MinimumYears: 5},
	))
	evaluator := authz.NewEvaluator(policies, handlers)

	decision := evaluator.Evaluate(context.Background(), newPrincipal([]string{"Employee"}, nil), "Ordered")
	require.False(t, decision.Allowed)
	require.False(t, invoked, "evaluation should stop at the first unsatisfied requirement")
}

func TestHandlerTimeoutFailsClosed(t *testing.T) {
	handlers := authz.NewHandlerRegistry()
	require.NoError(t, handlers.Register("experience", authz.HandlerFunc(
		func(ctx context.Context, _ principal.Principal, _ authz.Requirement) authz.Result {
			// Simulate a slow external lookup that outlives the bound.
			select {
			case <-ctx.Done():
				return authz.Satisfied // must still not count
			case <-time.After(time.Second):
				return authz.Satisfied
			}
		})))

	policies := authz.NewPolicyRegistry(handlers)
	require.NoError(t, policies.AddPolicy("Veterans", experienceRequirement{MinimumYears: 5}))
	evaluator := authz.NewEvaluator(policies, handlers, authz.WithHandlerTimeout(10*time.Millisecond))

	decision := evaluator.Evaluate(context.Background(), newPrincipal(nil, nil), "Veterans")
	require.False(t, decision.Allowed)
}

func TestAddPolicyReplacesExisting(t *testing.T) {
	evaluator, policies, _ := setupEvaluator(t)

	require.NoError(t, policies.AddPolicy("Gate", authz.RoleRequirement{Roles: []string{"Admin"}}))
	require.NoError(t, policies.AddPolicy("Gate", authz.RoleRequirement{Roles: []string{"Manager"}}))

	decision := evaluator.Evaluate(context.Background(), newPrincipal([]string{"Manager"}, nil), "Gate")
	require.True(t, decision.Allowed)

	decision = evaluator.Evaluate(context.Background(), newPrincipal([]string{"Admin"}, nil), "Gate")
	require.False(t, decision.Allowed)
}

func TestAddPolicyBlankName(t *testing.T) {
	_, policies, _ := setupEvaluator(t)
	require.Error(t, policies.AddPolicy("  ", authz.RoleRequirement{Roles: []string{"Admin"}}))
}

func TestRegisterBlankRequirementType(t *testing.T) {
	handlers := authz.NewHandlerRegistry()
	require.Error(t, handlers.Register("", authz.RoleHandler{}))
	require.Error(t, handlers.Register("role", nil))
}
