package authz

import (
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrPolicyNotFound      = errors.New("policy not found")
	ErrNoHandlerRegistered = errors.New("no handler registered for requirement type")
)

// Policy is a named ordered set of requirements, all of which must be
// satisfied for access to be allowed.
type Policy struct {
	Name         string
	Requirements []Requirement
}

// PolicyRegistry maps policy names to their requirements. Policies are
// registered once at process start and treated as read-only thereafter.
type PolicyRegistry struct {
	policies map[string]Policy
	handlers *HandlerRegistry
	logger   zerolog.Logger
}

type PolicyRegistryOption func(*PolicyRegistry)

func WithPolicyLogger(logger zerolog.Logger) PolicyRegistryOption {
	return func(r *PolicyRegistry) {
		r.logger = logger
	}
}

// NewPolicyRegistry creates a registry that validates new policies against the
// given handler registry.
func NewPolicyRegistry(handlers *HandlerRegistry, options ...PolicyRegistryOption) *PolicyRegistry {
	r := &PolicyRegistry{
		policies: make(map[string]Policy),
		handlers: handlers,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// AddPolicy registers a named policy. Re-registering an existing name
// replaces it. A requirement type with no registered handler is logged here
// as a configuration-integrity warning: such a policy can never allow and
// would otherwise deny silently.
func (r *PolicyRegistry) AddPolicy(name string, requirements ...Requirement) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.New("PolicyRegistry.AddPolicy policy name is required")
	}

	for _, requirement := range requirements {
		if len(r.handlers.HandlersFor(requirement.RequirementType())) == 0 {
			r.logger.Warn().
				Str("policy", name).
				Str("requirement_type", requirement.RequirementType()).
				Msg("policy references requirement type with no registered handler; it will always deny")
		}
	}

	r.policies[name] = Policy{
		Name:         name,
		Requirements: requirements,
	}
	return nil
}

// Get returns the policy registered under name.
func (r *PolicyRegistry) Get(name string) (Policy, error) {
	policy, ok := r.policies[name]
	if !ok {
		return Policy{}, pkgerrors.WithMessage(ErrPolicyNotFound, name)
	}
	return policy, nil
}
