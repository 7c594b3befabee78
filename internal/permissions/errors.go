package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownObjectType is returned when a permission object type was
	// never registered.
	ErrUnknownObjectType = errors.New("unknown permission object type")

	// ErrNotFound is returned when an object URL cannot be resolved in
	// its upstream registry.
	ErrNotFound = errors.New("object not found")

	// ErrDuplicateGrant is returned when the user already holds an
	// actual grant for the same permission and object.
	ErrDuplicateGrant = errors.New("user already has access to this object")

	// ErrDuplicatePending is returned when the requester already has a
	// pending access request for the same object.
	ErrDuplicatePending = errors.New("user already has a pending access request for this object")

	// ErrAlreadyHandled is returned when an access request was handled
	// before.
	ErrAlreadyHandled = errors.New("access request has already been handled")

	// ErrHandlerRequired is returned when a result is set without a
	// handler.
	ErrHandlerRequired = errors.New("access request result requires a handler")
)

// PolicyValidationError reports why raw policy data does not satisfy the
// schema of its object type. Raised at write time; persisted policies are
// assumed valid.
type PolicyValidationError struct {
	ObjectType string
	Fields     map[string]string
}

func (e *PolicyValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for name, msg := range e.Fields {
		fields = append(fields, fmt.Sprintf("%s: %s", name, msg))
	}
	sort.Strings(fields)
	return fmt.Sprintf("invalid %s policy: %s", e.ObjectType, strings.Join(fields, "; "))
}
