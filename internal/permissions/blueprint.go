package permissions

import (
	"context"

	"case-access-service/internal/search"
)

// Role types and generic role descriptions as the case registry reports
// them, mapped to service-internal names by the registry client.
const (
	RoleTypeEmployee           = "employee"
	RoleTypeOrganizationalUnit = "organizational_unit"

	GenericRoleHandler = "handler"
)

// TypeRef identifies a case type or document type in its catalog.
type TypeRef struct {
	URL         string `json:"url"`
	Catalog     string `json:"catalog"`
	Description string `json:"description"`
}

// CaseRole is one involved party on a case, as resolved from the case
// registry.
type CaseRole struct {
	Type           string `json:"type"`
	GenericRole    string `json:"generic_role"`
	Identification string `json:"identification"`
}

// ObjectDescriptor carries the attributes blueprint policies match
// against. It is produced by the registry client, never by this
// package.
type ObjectDescriptor struct {
	URL             string     `json:"url"`
	Type            string     `json:"type"`
	Identification  string     `json:"identification"`
	ObjectType      TypeRef    `json:"object_type"`
	Confidentiality string     `json:"confidentiality"`
	Roles           []CaseRole `json:"roles,omitempty"`
}

// HandlerResolver answers whether a user is an assigned handler
// (behandelaar) on a case. Implemented by the case registry client.
type HandlerResolver interface {
	IsHandler(ctx context.Context, caseURL, username string) (bool, error)
}

// EvalContext is the ambient information a blueprint may need beyond
// the object itself.
type EvalContext struct {
	Username   string
	Permission string
	Handlers   HandlerResolver
}

// Blueprint is a validated attribute-matching policy for one object
// type. Matches and SearchFilter must stay in lock-step: an object
// accepted by Matches has to be accepted by the filter built from the
// same policy, and vice versa.
type Blueprint interface {
	Matches(ctx context.Context, obj *ObjectDescriptor, eval EvalContext) (bool, error)
	SearchFilter(nestedPath string) search.Query
	ShortDisplay() string
}

// PrefixField joins a nested mapping path with a field name.
func PrefixField(nestedPath, field string) string {
	if nestedPath == "" {
		return field
	}
	return nestedPath + "." + field
}
