package service

import (
	"context"
	"time"

	"case-access-service/internal/permissions"
	"case-access-service/internal/search"
)

// SearchService translates a user's current grants into a search
// engine filter fragment. A document passing the fragment is exactly a
// document HasPermission would allow, so list views never show rows
// the detail view would refuse.
type SearchService struct {
	registry *permissions.Registry
	perms    *PermissionService
	atomic   AtomicPermissionStore
	now      func() time.Time
}

func NewSearchService(registry *permissions.Registry, perms *PermissionService, atomic AtomicPermissionStore) *SearchService {
	return &SearchService{
		registry: registry,
		perms:    perms,
		atomic:   atomic,
		now:      time.Now,
	}
}

// BuildFilter returns the filter for one user, permission and object
// type. nestedPath prefixes the object's fields when its documents are
// indexed under a nested mapping; empty means top level. No grants at
// all yields a match_none filter.
func (s *SearchService) BuildFilter(ctx context.Context, username, permission, objectType, nestedPath string) (search.Query, error) {
	now := s.now().Unix()

	var clauses []search.Query

	atomics, err := s.atomic.FindActualForUser(ctx, username, permission, now)
	if err != nil {
		return nil, err
	}
	for _, grant := range atomics {
		if grant.ObjectType != objectType {
			continue
		}
		clauses = append(clauses, search.Term{
			Field: permissions.PrefixField(nestedPath, "url"),
			Value: grant.ObjectURL,
		})
	}

	blueprints, err := s.perms.ActualBlueprintPermissions(ctx, username, permission, objectType)
	if err != nil {
		return nil, err
	}

	registered, err := s.registry.Get(objectType)
	if err != nil {
		return nil, err
	}

	for _, bp := range blueprints {
		blueprint, err := registered.NewBlueprint(bp.Policy)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, blueprint.SearchFilter(nestedPath))
	}

	return search.Or(clauses...), nil
}
