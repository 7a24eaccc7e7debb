package authz

import (
	"strings"

	"github.com/pkg/errors"
)

// HandlerRegistry maps requirement types to the handlers capable of
// evaluating them. Registration happens during process initialization, before
// request serving begins; steady-state lookups are read-only and therefore
// need no locking.
type HandlerRegistry struct {
	handlers map[string][]Handler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]Handler),
	}
}

// Register associates a handler with the requirement type it can evaluate.
// Multiple handlers may register for the same type; any single one satisfying
// a requirement is enough.
func (r *HandlerRegistry) Register(requirementType string, handler Handler) error {
	if strings.TrimSpace(requirementType) == "" {
		return errors.New("HandlerRegistry.Register requirement type is required")
	}
	if handler == nil {
		return errors.New("HandlerRegistry.Register handler is required")
	}
	r.handlers[requirementType] = append(r.handlers[requirementType], handler)
	return nil
}

// HandlersFor returns the handlers registered for the requirement type, in
// registration order. An empty result is a configuration error surfaced at
// policy-registration and evaluation time, never an allow.
func (r *HandlerRegistry) HandlersFor(requirementType string) []Handler {
	return r.handlers[requirementType]
}
