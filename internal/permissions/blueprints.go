package permissions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"case-access-service/internal/search"
)

// CasePolicy spans all cases of one case type in one catalog, up to and
// including a maximum confidentiality level. When OrganizationalUnit is
// set the case must additionally involve that unit.
type CasePolicy struct {
	Catalog             string `json:"catalog"`
	CaseTypeDescription string `json:"case_type_description"`
	MaxConfidentiality  string `json:"max_confidentiality"`
	OrganizationalUnit  string `json:"organizational_unit,omitempty"`
}

type caseBlueprint struct {
	policy CasePolicy
	scale  *Scale
}

// CaseObjectType builds the "case" permission object type for the given
// confidentiality scale.
func CaseObjectType(scale *Scale) ObjectType {
	return ObjectType{
		Name: ObjectTypeCase,
		NewBlueprint: func(policy map[string]any) (Blueprint, error) {
			var parsed CasePolicy
			if err := decodePolicy(ObjectTypeCase, policy, &parsed); err != nil {
				return nil, err
			}

			fields := map[string]string{}
			requireURLField(fields, "catalog", parsed.Catalog)
			requireField(fields, "case_type_description", parsed.CaseTypeDescription)
			requireLevelField(fields, "max_confidentiality", parsed.MaxConfidentiality, scale)
			if len(fields) > 0 {
				return nil, &PolicyValidationError{ObjectType: ObjectTypeCase, Fields: fields}
			}

			return &caseBlueprint{policy: parsed, scale: scale}, nil
		},
	}
}

func (b *caseBlueprint) Matches(ctx context.Context, obj *ObjectDescriptor, eval EvalContext) (bool, error) {
	// Handling access requests is reserved for the assigned handlers of
	// the case, on top of the attribute checks below.
	if eval.Permission == KindCaseHandleAccess {
		if eval.Handlers == nil {
			return false, nil
		}
		isHandler, err := eval.Handlers.IsHandler(ctx, obj.URL, eval.Username)
		if err != nil {
			return false, fmt.Errorf("resolving case handlers: %w", err)
		}
		if !isHandler {
			return false, nil
		}
	}

	if obj.ObjectType.Catalog != b.policy.Catalog {
		return false, nil
	}
	if obj.ObjectType.Description != b.policy.CaseTypeDescription {
		return false, nil
	}

	withinLevel, err := b.scale.AtMost(obj.Confidentiality, b.policy.MaxConfidentiality)
	if err != nil {
		return false, err
	}
	if !withinLevel {
		return false, nil
	}

	if b.policy.OrganizationalUnit != "" && !hasOrganizationalUnit(obj.Roles, b.policy.OrganizationalUnit) {
		return false, nil
	}

	return true, nil
}

func (b *caseBlueprint) SearchFilter(nestedPath string) search.Query {
	maxOrder, _ := b.scale.Order(b.policy.MaxConfidentiality)

	parts := []search.Query{
		search.Term{Field: PrefixField(nestedPath, "case_type.catalog"), Value: b.policy.Catalog},
		search.Term{Field: PrefixField(nestedPath, "case_type.description"), Value: b.policy.CaseTypeDescription},
		search.Range{Field: PrefixField(nestedPath, "confidentiality_order"), LTE: maxOrder},
	}

	if b.policy.OrganizationalUnit != "" {
		rolesPath := PrefixField(nestedPath, "roles")
		parts = append(parts, search.Nested{
			Path: rolesPath,
			Query: search.Bool{Filter: []search.Query{
				search.Term{Field: rolesPath + ".type", Value: RoleTypeOrganizationalUnit},
				search.Term{Field: rolesPath + ".identification", Value: b.policy.OrganizationalUnit},
			}},
		})
	}

	return search.And(parts...)
}

func (b *caseBlueprint) ShortDisplay() string {
	return fmt.Sprintf("%s (%s)", b.policy.CaseTypeDescription, b.policy.MaxConfidentiality)
}

// DocumentPolicy spans all documents of one document type in one
// catalog, up to and including a maximum confidentiality level.
type DocumentPolicy struct {
	Catalog                 string `json:"catalog"`
	DocumentTypeDescription string `json:"document_type_description"`
	MaxConfidentiality      string `json:"max_confidentiality"`
}

type documentBlueprint struct {
	policy DocumentPolicy
	scale  *Scale
}

// DocumentObjectType builds the "document" permission object type for
// the given confidentiality scale.
func DocumentObjectType(scale *Scale) ObjectType {
	return ObjectType{
		Name: ObjectTypeDocument,
		NewBlueprint: func(policy map[string]any) (Blueprint, error) {
			var parsed DocumentPolicy
			if err := decodePolicy(ObjectTypeDocument, policy, &parsed); err != nil {
				return nil, err
			}

			fields := map[string]string{}
			requireURLField(fields, "catalog", parsed.Catalog)
			requireField(fields, "document_type_description", parsed.DocumentTypeDescription)
			requireLevelField(fields, "max_confidentiality", parsed.MaxConfidentiality, scale)
			if len(fields) > 0 {
				return nil, &PolicyValidationError{ObjectType: ObjectTypeDocument, Fields: fields}
			}

			return &documentBlueprint{policy: parsed, scale: scale}, nil
		},
	}
}

func (b *documentBlueprint) Matches(ctx context.Context, obj *ObjectDescriptor, eval EvalContext) (bool, error) {
	if obj.ObjectType.Catalog != b.policy.Catalog {
		return false, nil
	}
	if obj.ObjectType.Description != b.policy.DocumentTypeDescription {
		return false, nil
	}
	return b.scale.AtMost(obj.Confidentiality, b.policy.MaxConfidentiality)
}

func (b *documentBlueprint) SearchFilter(nestedPath string) search.Query {
	maxOrder, _ := b.scale.Order(b.policy.MaxConfidentiality)

	return search.And(
		search.Term{Field: PrefixField(nestedPath, "document_type.catalog"), Value: b.policy.Catalog},
		search.Term{Field: PrefixField(nestedPath, "document_type.description"), Value: b.policy.DocumentTypeDescription},
		search.Range{Field: PrefixField(nestedPath, "confidentiality_order"), LTE: maxOrder},
	)
}

func (b *documentBlueprint) ShortDisplay() string {
	return fmt.Sprintf("%s (%s)", b.policy.DocumentTypeDescription, b.policy.MaxConfidentiality)
}

func hasOrganizationalUnit(roles []CaseRole, identification string) bool {
	for _, role := range roles {
		if role.Type == RoleTypeOrganizationalUnit && role.Identification == identification {
			return true
		}
	}
	return false
}

func decodePolicy(objectType string, policy map[string]any, into any) error {
	raw, err := json.Marshal(policy)
	if err != nil {
		return &PolicyValidationError{
			ObjectType: objectType,
			Fields:     map[string]string{"policy": "not serializable"},
		}
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return &PolicyValidationError{
			ObjectType: objectType,
			Fields:     map[string]string{"policy": err.Error()},
		}
	}
	return nil
}

func requireField(fields map[string]string, name, value string) {
	if value == "" {
		fields[name] = "this field is required"
	}
}

func requireURLField(fields map[string]string, name, value string) {
	if value == "" {
		fields[name] = "this field is required"
		return
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		fields[name] = "must be an absolute URL"
	}
}

func requireLevelField(fields map[string]string, name, value string, scale *Scale) {
	if value == "" {
		fields[name] = "this field is required"
		return
	}
	if _, err := scale.Order(value); err != nil {
		fields[name] = err.Error()
	}
}
