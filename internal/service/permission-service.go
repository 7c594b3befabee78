package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"case-access-service/internal/models"
	"case-access-service/internal/permissions"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ObjectResolver turns an object URL into a descriptor the evaluator
// can match against. Implemented by the zgw client.
type ObjectResolver interface {
	ResolveObject(ctx context.Context, objectType, url string) (*permissions.ObjectDescriptor, error)
}

type AtomicPermissionStore interface {
	HasActualGrant(ctx context.Context, username, permission, objectURL string, now int64) (bool, error)
	FindActualForUser(ctx context.Context, username, permission string, now int64) ([]*models.AtomicPermission, error)
	ListActualPermissionNames(ctx context.Context, username string, now int64) ([]string, error)
}

type ProfileStore interface {
	FindActualProfileIDsForUser(ctx context.Context, username string, now int64) ([]bson.ObjectID, error)
	FindBlueprintIDsForProfiles(ctx context.Context, profileIDs []bson.ObjectID) ([]bson.ObjectID, error)
}

type BlueprintStore interface {
	FindByIDs(ctx context.Context, ids []bson.ObjectID) ([]*models.BlueprintPermission, error)
}

type RoleStore interface {
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Role, error)
}

// PermissionService answers "may this user do this to this object". A
// user passes when an atomic grant names the object URL directly, or
// when any blueprint permission from an active profile matches the
// object's attributes.
type PermissionService struct {
	registry *permissions.Registry
	atomic   AtomicPermissionStore
	profiles ProfileStore
	blues    BlueprintStore
	roles    RoleStore
	resolver ObjectResolver
	handlers permissions.HandlerResolver
	now      func() time.Time
}

func NewPermissionService(
	registry *permissions.Registry,
	atomic AtomicPermissionStore,
	profiles ProfileStore,
	blues BlueprintStore,
	roles RoleStore,
	resolver ObjectResolver,
	handlers permissions.HandlerResolver,
) *PermissionService {
	return &PermissionService{
		registry: registry,
		atomic:   atomic,
		profiles: profiles,
		blues:    blues,
		roles:    roles,
		resolver: resolver,
		handlers: handlers,
		now:      time.Now,
	}
}

// CheckAccess resolves the object URL and evaluates the permission. An
// object that no longer exists in the registries denies instead of
// erroring, so stale URLs cannot leak information.
func (s *PermissionService) CheckAccess(ctx context.Context, username, permission, objectType, objectURL string) (bool, error) {
	descriptor, err := s.resolver.ResolveObject(ctx, objectType, objectURL)
	if err != nil {
		if errors.Is(err, permissions.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return s.HasPermission(ctx, username, permission, descriptor)
}

// HasPermission evaluates a permission against a resolved descriptor.
// A nil descriptor asks whether the user holds the permission on any
// object at all.
func (s *PermissionService) HasPermission(ctx context.Context, username, permission string, obj *permissions.ObjectDescriptor) (bool, error) {
	now := s.now().Unix()

	if obj == nil {
		grants, err := s.atomic.FindActualForUser(ctx, username, permission, now)
		if err != nil {
			return false, err
		}
		if len(grants) > 0 {
			return true, nil
		}

		blueprints, err := s.ActualBlueprintPermissions(ctx, username, permission, "")
		if err != nil {
			return false, err
		}
		return len(blueprints) > 0, nil
	}

	ok, err := s.atomic.HasActualGrant(ctx, username, permission, obj.URL, now)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	blueprints, err := s.ActualBlueprintPermissions(ctx, username, permission, obj.Type)
	if err != nil {
		return false, err
	}

	evalCtx := permissions.EvalContext{
		Username:   username,
		Permission: permission,
		Handlers:   s.handlers,
	}

	for _, bp := range blueprints {
		blueprint, err := s.buildBlueprint(bp)
		if err != nil {
			return false, err
		}

		matches, err := blueprint.Matches(ctx, obj, evalCtx)
		if err != nil {
			return false, err
		}
		if matches {
			return true, nil
		}
	}

	return false, nil
}

// ActualBlueprintPermissions collects the blueprint permissions the
// user currently holds through active profile assignments, filtered by
// permission name and optionally by object type. Empty filter values
// match everything.
func (s *PermissionService) ActualBlueprintPermissions(ctx context.Context, username, permission, objectType string) ([]*models.BlueprintPermission, error) {
	now := s.now().Unix()

	profileIDs, err := s.profiles.FindActualProfileIDsForUser(ctx, username, now)
	if err != nil {
		return nil, err
	}
	if len(profileIDs) == 0 {
		return nil, nil
	}

	blueprintIDs, err := s.profiles.FindBlueprintIDsForProfiles(ctx, profileIDs)
	if err != nil {
		return nil, err
	}
	if len(blueprintIDs) == 0 {
		return nil, nil
	}

	candidates, err := s.blues.FindByIDs(ctx, blueprintIDs)
	if err != nil {
		return nil, err
	}

	var result []*models.BlueprintPermission
	for _, bp := range candidates {
		if objectType != "" && bp.ObjectType != objectType {
			continue
		}

		role, err := s.roles.FindByID(ctx, bp.RoleID)
		if err != nil {
			if errors.Is(err, permissions.ErrNotFound) {
				continue
			}
			return nil, err
		}

		if permission == "" || slices.Contains(role.Permissions, permission) {
			result = append(result, bp)
		}
	}

	return result, nil
}

// ListUserPermissions reports every permission name the user currently
// holds on at least one object, from grants and from profiles alike.
func (s *PermissionService) ListUserPermissions(ctx context.Context, username string) ([]string, error) {
	now := s.now().Unix()

	names, err := s.atomic.ListActualPermissionNames(ctx, username, now)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}

	blueprints, err := s.ActualBlueprintPermissions(ctx, username, "", "")
	if err != nil {
		return nil, err
	}

	for _, bp := range blueprints {
		role, err := s.roles.FindByID(ctx, bp.RoleID)
		if err != nil {
			if errors.Is(err, permissions.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, name := range role.Permissions {
			seen[name] = true
		}
	}

	result := make([]string, 0, len(seen))
	for name := range seen {
		result = append(result, name)
	}
	sort.Strings(result)

	return result, nil
}

func (s *PermissionService) buildBlueprint(bp *models.BlueprintPermission) (permissions.Blueprint, error) {
	objectType, err := s.registry.Get(bp.ObjectType)
	if err != nil {
		return nil, err
	}

	blueprint, err := objectType.NewBlueprint(bp.Policy)
	if err != nil {
		return nil, fmt.Errorf("stored policy %s is invalid: %w", bp.ID.Hex(), err)
	}

	return blueprint, nil
}
