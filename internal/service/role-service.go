package service

import (
	"context"
	"fmt"
	"strings"

	"case-access-service/internal/models"
	"case-access-service/internal/permissions"
	"case-access-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RoleService manages the named permission bundles that blueprint
// permissions reference.
type RoleService struct {
	roles *repository.RoleRepository
	blues *repository.BlueprintPermissionRepository
	kinds *permissions.KindRegistry
}

func NewRoleService(roles *repository.RoleRepository, blues *repository.BlueprintPermissionRepository, kinds *permissions.KindRegistry) *RoleService {
	return &RoleService{
		roles: roles,
		blues: blues,
		kinds: kinds,
	}
}

func (s *RoleService) CreateRole(ctx context.Context, name, description string, perms []string) (*models.Role, error) {
	if err := s.validate(name, perms); err != nil {
		return nil, err
	}

	return s.roles.Create(ctx, &models.Role{
		Name:        name,
		Description: description,
		Permissions: perms,
	})
}

func (s *RoleService) UpdateRole(ctx context.Context, id bson.ObjectID, name, description string, perms []string) (*models.Role, error) {
	if err := s.validate(name, perms); err != nil {
		return nil, err
	}

	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	role.Name = name
	role.Description = description
	role.Permissions = perms

	if err := s.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole refuses while any blueprint permission still references
// the role. Deleting it anyway would orphan those policies.
func (s *RoleService) DeleteRole(ctx context.Context, id bson.ObjectID) error {
	referenced, err := s.blues.ExistsForRole(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("role %s is still referenced by blueprint permissions", id.Hex())
	}

	return s.roles.Delete(ctx, id)
}

func (s *RoleService) GetRole(ctx context.Context, id bson.ObjectID) (*models.Role, error) {
	return s.roles.FindByID(ctx, id)
}

func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.roles.FindByName(ctx, name)
}

func (s *RoleService) ListRoles(ctx context.Context, page, limit int) ([]*models.Role, error) {
	return s.roles.FindAll(ctx, page, limit)
}

func (s *RoleService) ListPermissionKinds() []permissions.Kind {
	return s.kinds.All()
}

func (s *RoleService) validate(name string, perms []string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("role name is required")
	}

	var unknown []string
	for _, perm := range perms {
		if _, ok := s.kinds.Get(perm); !ok {
			unknown = append(unknown, perm)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown permission(s): %s", strings.Join(unknown, ", "))
	}

	return nil
}
