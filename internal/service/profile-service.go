package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"case-access-service/internal/models"
	"case-access-service/internal/permissions"
	"case-access-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type CaseTypeLister interface {
	ListCaseTypes(ctx context.Context, catalog string) ([]permissions.TypeRef, error)
}

// ProfileService assembles authorization profiles out of blueprint
// permissions and assigns them to users for a period.
type ProfileService struct {
	profiles *repository.AuthorizationProfileRepository
	blues    *repository.BlueprintPermissionRepository
	roles    *repository.RoleRepository
	registry *permissions.Registry
	scale    *permissions.Scale
	catalogi CaseTypeLister
}

func NewProfileService(
	profiles *repository.AuthorizationProfileRepository,
	blues *repository.BlueprintPermissionRepository,
	roles *repository.RoleRepository,
	registry *permissions.Registry,
	scale *permissions.Scale,
	catalogi CaseTypeLister,
) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		blues:    blues,
		roles:    roles,
		registry: registry,
		scale:    scale,
		catalogi: catalogi,
	}
}

type BlueprintInput struct {
	ObjectType string         `json:"objectType"`
	RoleID     bson.ObjectID  `json:"roleId"`
	Policy     map[string]any `json:"policy"`
}

type ProfileInput struct {
	Name       string           `json:"name"`
	Blueprints []BlueprintInput `json:"blueprints"`
}

func (s *ProfileService) CreateProfile(ctx context.Context, input ProfileInput) (*models.AuthorizationProfile, error) {
	blueprintIDs, err := s.resolveBlueprints(ctx, input.Blueprints)
	if err != nil {
		return nil, err
	}

	return s.profiles.Create(ctx, &models.AuthorizationProfile{
		Name:                   input.Name,
		BlueprintPermissionIDs: blueprintIDs,
	})
}

func (s *ProfileService) UpdateProfile(ctx context.Context, id bson.ObjectID, input ProfileInput) (*models.AuthorizationProfile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	blueprintIDs, err := s.resolveBlueprints(ctx, input.Blueprints)
	if err != nil {
		return nil, err
	}

	profile.Name = input.Name
	profile.BlueprintPermissionIDs = blueprintIDs

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) DeleteProfile(ctx context.Context, id bson.ObjectID) error {
	return s.profiles.Delete(ctx, id)
}

func (s *ProfileService) ListProfiles(ctx context.Context, page, limit int) ([]*models.AuthorizationProfile, error) {
	return s.profiles.FindAll(ctx, page, limit)
}

// PolicyDisplay is one blueprint permission rendered for humans.
type PolicyDisplay struct {
	ID      string `json:"id"`
	Display string `json:"display"`
}

// BlueprintGroup collects a profile's policies per role and object
// type, the way administrators reason about them.
type BlueprintGroup struct {
	RoleName   string          `json:"roleName"`
	ObjectType string          `json:"objectType"`
	Policies   []PolicyDisplay `json:"policies"`
}

type ProfileDetail struct {
	Profile *models.AuthorizationProfile `json:"profile"`
	Groups  []BlueprintGroup             `json:"groups"`
}

func (s *ProfileService) GetProfileDetail(ctx context.Context, id bson.ObjectID) (*ProfileDetail, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	blueprints, err := s.blues.FindByIDs(ctx, profile.BlueprintPermissionIDs)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]*BlueprintGroup)
	for _, bp := range blueprints {
		role, err := s.roles.FindByID(ctx, bp.RoleID)
		if err != nil {
			return nil, err
		}

		display := bp.ID.Hex()
		if objectType, err := s.registry.Get(bp.ObjectType); err == nil {
			if blueprint, err := objectType.NewBlueprint(bp.Policy); err == nil {
				display = blueprint.ShortDisplay()
			}
		}

		key := role.Name + "/" + bp.ObjectType
		group, ok := grouped[key]
		if !ok {
			group = &BlueprintGroup{RoleName: role.Name, ObjectType: bp.ObjectType}
			grouped[key] = group
		}
		group.Policies = append(group.Policies, PolicyDisplay{ID: bp.ID.Hex(), Display: display})
	}

	groups := make([]BlueprintGroup, 0, len(grouped))
	for _, group := range grouped {
		sort.Slice(group.Policies, func(i, j int) bool {
			return group.Policies[i].Display < group.Policies[j].Display
		})
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].RoleName != groups[j].RoleName {
			return groups[i].RoleName < groups[j].RoleName
		}
		return groups[i].ObjectType < groups[j].ObjectType
	})

	return &ProfileDetail{Profile: profile, Groups: groups}, nil
}

func (s *ProfileService) AssignToUser(ctx context.Context, username string, profileID bson.ObjectID, start, end int64) (*models.UserAuthorizationProfile, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if end != 0 && start != 0 && end <= start {
		return nil, fmt.Errorf("end date must be after start date")
	}

	// Assigning a missing profile should fail loudly, not at first use.
	if _, err := s.profiles.FindByID(ctx, profileID); err != nil {
		return nil, err
	}

	return s.profiles.AssignToUser(ctx, &models.UserAuthorizationProfile{
		Username:  username,
		ProfileID: profileID,
		Start:     start,
		End:       end,
	})
}

func (s *ProfileService) RemoveAssignment(ctx context.Context, id bson.ObjectID) error {
	return s.profiles.RemoveAssignment(ctx, id)
}

func (s *ProfileService) ListAssignments(ctx context.Context, username string) ([]*models.UserAuthorizationProfile, error) {
	return s.profiles.FindAssignmentsForUser(ctx, username)
}

// GenerateCaseTypePermissions creates one blueprint permission per
// case type in a catalog, at the highest confidentiality level, bound
// to the given role. Existing identical policies are reused. Returns
// the blueprints plus how many were newly created.
func (s *ProfileService) GenerateCaseTypePermissions(ctx context.Context, catalog string, roleID bson.ObjectID) ([]*models.BlueprintPermission, int, error) {
	if _, err := s.roles.FindByID(ctx, roleID); err != nil {
		return nil, 0, err
	}

	caseTypes, err := s.catalogi.ListCaseTypes(ctx, catalog)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool)
	var result []*models.BlueprintPermission
	createdCount := 0
	now := time.Now().Unix()

	for _, caseType := range caseTypes {
		if seen[caseType.Description] {
			continue
		}
		seen[caseType.Description] = true

		policy := map[string]any{
			"catalog":               caseType.Catalog,
			"case_type_description": caseType.Description,
			"max_confidentiality":   s.scale.Highest(),
		}

		// Reject malformed policies before they hit storage.
		objectType, err := s.registry.Get(permissions.ObjectTypeCase)
		if err != nil {
			return nil, 0, err
		}
		if _, err := objectType.NewBlueprint(policy); err != nil {
			return nil, 0, err
		}

		bp, created, err := s.blues.GetOrCreate(ctx, &models.BlueprintPermission{
			ObjectType: permissions.ObjectTypeCase,
			RoleID:     roleID,
			Policy:     policy,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, 0, err
		}
		if created {
			createdCount++
		}
		result = append(result, bp)
	}

	return result, createdCount, nil
}

func (s *ProfileService) resolveBlueprints(ctx context.Context, inputs []BlueprintInput) ([]bson.ObjectID, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("a profile needs at least one blueprint permission")
	}

	now := time.Now().Unix()
	ids := make([]bson.ObjectID, 0, len(inputs))

	for _, input := range inputs {
		objectType, err := s.registry.Get(input.ObjectType)
		if err != nil {
			return nil, err
		}
		if _, err := objectType.NewBlueprint(input.Policy); err != nil {
			return nil, err
		}

		if _, err := s.roles.FindByID(ctx, input.RoleID); err != nil {
			return nil, err
		}

		bp, _, err := s.blues.GetOrCreate(ctx, &models.BlueprintPermission{
			ObjectType: input.ObjectType,
			RoleID:     input.RoleID,
			Policy:     input.Policy,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, err
		}

		ids = append(ids, bp.ID)
	}

	return ids, nil
}
