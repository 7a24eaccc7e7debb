package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-authz-engine/principal"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string // Populated on deny
	Err     error  // Populated when the deny stems from a configuration error
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

func DenyError(reason string, err error) Decision {
	return Decision{Reason: reason, Err: err}
}

// Evaluator runs a policy's requirements against a principal and produces an
// allow/deny decision. Evaluation short-circuits on the first unsatisfied
// requirement; handlers must not rely on being invoked.
type Evaluator struct {
	policies       *PolicyRegistry
	handlers       *HandlerRegistry
	handlerTimeout time.Duration
	logger         zerolog.Logger
}

type EvaluatorOption func(*Evaluator)

// WithHandlerTimeout bounds each handler invocation. A handler that blocks
// past the bound counts as not satisfied, never as satisfied.
func WithHandlerTimeout(timeout time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		e.handlerTimeout = timeout
	}
}

func WithEvaluatorLogger(logger zerolog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func NewEvaluator(policies *PolicyRegistry, handlers *HandlerRegistry, options ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		policies: policies,
		handlers: handlers,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Evaluate decides whether the principal satisfies the named policy.
// AND across requirements, OR across a requirement's handlers; any unhandled
// path denies.
func (e *Evaluator) Evaluate(ctx context.Context, p principal.Principal, policyName string) Decision {
	policy, err := e.policies.Get(policyName)
	if err != nil {
		return DenyError(fmt.Sprintf("policy %q not found", policyName), err)
	}

	for _, requirement := range policy.Requirements {
		handlers := e.handlers.HandlersFor(requirement.RequirementType())
		if len(handlers) == 0 {
			// Configuration error, distinct from a business-rule denial.
			e.logger.Error().
				Str("policy", policyName).
				Str("requirement_type", requirement.RequirementType()).
				Msg("requirement type has no registered handler")
			return DenyError(
				fmt.Sprintf("requirement type %q has no registered handler", requirement.RequirementType()),
				pkgerrors.WithMessage(ErrNoHandlerRegistered, requirement.RequirementType()),
			)
		}

		if !e.requirementSatisfied(ctx, p, requirement, handlers) {
			return Deny(fmt.Sprintf("requirement %q not satisfied", requirement.RequirementType()))
		}
	}

	return Allow()
}

func (e *Evaluator) requirementSatisfied(ctx context.Context, p principal.Principal, requirement Requirement, handlers []Handler) bool {
	for _, handler := range handlers {
		if e.invoke(ctx, handler, p, requirement) == Satisfied {
			return true
		}
	}
	return false
}

// invoke runs one handler, bounded by the configured timeout. Timing out is
// treated as not satisfied.
func (e *Evaluator) invoke(ctx context.Context, handler Handler, p principal.Principal, requirement Requirement) Result {
	if e.handlerTimeout <= 0 {
		return handler.Evaluate(ctx, p, requirement)
	}

	handlerCtx, cancel := context.WithTimeout(ctx, e.handlerTimeout)
	defer cancel()

	results := make(chan Result, 1)
	go func() {
		results <- handler.Evaluate(handlerCtx, p, requirement)
	}()

	select {
	case result := <-results:
		if handlerCtx.Err() != nil {
			// The bound already expired; a late verdict never counts.
			return NotSatisfied
		}
		return result
	case <-handlerCtx.Done():
		e.logger.Warn().
			Str("requirement_type", requirement.RequirementType()).
			Msg("handler timed out; treating as not satisfied")
		return NotSatisfied
	}
}
