package service

import (
	"context"
	"testing"
	"time"

	"case-access-service/internal/permissions"
)

const (
	testCatalog = "https://catalogi.example.com/catalogussen/1"
	testCaseURL = "https://zaken.example.com/zaken/42"
)

func testRegistry(t *testing.T) (*permissions.Registry, *permissions.Scale) {
	t.Helper()
	scale, err := permissions.NewScale(permissions.DefaultConfidentialityLevels)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	registry := permissions.NewRegistry()
	registry.MustRegister(permissions.CaseObjectType(scale))
	registry.MustRegister(permissions.DocumentObjectType(scale))
	return registry, scale
}

func meldingPolicy() map[string]any {
	return map[string]any{
		"catalog":               testCatalog,
		"case_type_description": "melding",
		"max_confidentiality":   "zaakvertrouwelijk",
	}
}

func meldingCase(confidentiality string) *permissions.ObjectDescriptor {
	return &permissions.ObjectDescriptor{
		URL:  testCaseURL,
		Type: permissions.ObjectTypeCase,
		ObjectType: permissions.TypeRef{
			Catalog:     testCatalog,
			Description: "melding",
		},
		Confidentiality: confidentiality,
	}
}

type permissionFixture struct {
	service  *PermissionService
	atomic   *fakeAtomicStore
	profiles *fakeProfileStore
	blues    *fakeBlueprintStore
	roles    *fakeRoleStore
	resolver *fakeResolver
}

func newPermissionFixture(t *testing.T) *permissionFixture {
	registry, _ := testRegistry(t)
	fixture := &permissionFixture{
		atomic:   newFakeAtomicStore(),
		profiles: newFakeProfileStore(),
		blues:    newFakeBlueprintStore(),
		roles:    newFakeRoleStore(),
		resolver: &fakeResolver{objects: make(map[string]*permissions.ObjectDescriptor)},
	}
	fixture.service = NewPermissionService(
		registry, fixture.atomic, fixture.profiles, fixture.blues, fixture.roles, fixture.resolver, nil)
	return fixture
}

// grantBlueprint wires role -> blueprint -> profile -> assignment for
// a user, active from an hour ago with no end.
func (f *permissionFixture) grantBlueprint(username string, policy map[string]any, perms ...string) {
	roleID := f.roles.add("behandelaar-rol", perms...)
	bpID := f.blues.add(permissions.ObjectTypeCase, roleID, policy)
	profileID := f.profiles.addProfile(bpID)
	f.profiles.assign(username, profileID, time.Now().Add(-time.Hour).Unix(), 0)
}

func TestHasPermissionThroughBlueprint(t *testing.T) {
	fixture := newPermissionFixture(t)
	fixture.grantBlueprint("b.janssen", meldingPolicy(), permissions.KindCaseView)

	testCases := []struct {
		name     string
		obj      *permissions.ObjectDescriptor
		perm     string
		expected bool
	}{
		{"within level", meldingCase("openbaar"), permissions.KindCaseView, true},
		{"at the level cap", meldingCase("zaakvertrouwelijk"), permissions.KindCaseView, true},
		{"above the level cap", meldingCase("geheim"), permissions.KindCaseView, false},
		{"permission not in role", meldingCase("openbaar"), permissions.KindCaseCreateDocument, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fixture.service.HasPermission(context.Background(), "b.janssen", tc.perm, tc.obj)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}

	t.Run("other case type", func(t *testing.T) {
		obj := meldingCase("openbaar")
		obj.ObjectType.Description = "aanvraag"
		got, err := fixture.service.HasPermission(context.Background(), "b.janssen", permissions.KindCaseView, obj)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got {
			t.Error("Expected no access to another case type")
		}
	})

	t.Run("other user", func(t *testing.T) {
		got, err := fixture.service.HasPermission(context.Background(), "p.devries", permissions.KindCaseView, meldingCase("openbaar"))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got {
			t.Error("Expected no access for a user without grants")
		}
	})
}

func TestHasPermissionThroughAtomicGrant(t *testing.T) {
	fixture := newPermissionFixture(t)

	// Direct grant on one secret case, no blueprints at all.
	perm, err := fixture.atomic.GetOrCreatePermission(
		context.Background(), permissions.ObjectTypeCase, permissions.KindCaseView, testCaseURL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := fixture.atomic.InsertUserPermission(context.Background(), userGrant("b.janssen", perm.ID)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := fixture.service.HasPermission(context.Background(), "b.janssen", permissions.KindCaseView, meldingCase("geheim"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !got {
		t.Error("Expected the atomic grant to allow the named case regardless of its attributes")
	}

	other := meldingCase("openbaar")
	other.URL = "https://zaken.example.com/zaken/43"
	got, err = fixture.service.HasPermission(context.Background(), "b.janssen", permissions.KindCaseView, other)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got {
		t.Error("Expected no access to a case the grant does not name")
	}
}

func TestAssignmentValidityWindows(t *testing.T) {
	now := time.Now().Unix()

	testCases := []struct {
		name     string
		start    int64
		end      int64
		expected bool
	}{
		{"active with open end", now - 3600, 0, true},
		{"active inside window", now - 3600, now + 3600, true},
		{"expired", now - 7200, now - 3600, false},
		{"not started yet", now + 3600, 0, false},
		{"ends exactly now", now - 3600, now, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newPermissionFixture(t)
			roleID := fixture.roles.add("behandelaar-rol", permissions.KindCaseView)
			bpID := fixture.blues.add(permissions.ObjectTypeCase, roleID, meldingPolicy())
			profileID := fixture.profiles.addProfile(bpID)
			fixture.profiles.assign("b.janssen", profileID, tc.start, tc.end)

			got, err := fixture.service.HasPermission(
				context.Background(), "b.janssen", permissions.KindCaseView, meldingCase("openbaar"))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestCheckAccessDeniesUnresolvableObject(t *testing.T) {
	fixture := newPermissionFixture(t)
	fixture.grantBlueprint("b.janssen", meldingPolicy(), permissions.KindCaseView)

	got, err := fixture.service.CheckAccess(
		context.Background(), "b.janssen", permissions.KindCaseView, permissions.ObjectTypeCase,
		"https://zaken.example.com/zaken/gone")
	if err != nil {
		t.Fatalf("Expected a plain denial, got error: %v", err)
	}
	if got {
		t.Error("Expected an unresolvable object to deny")
	}
}

func TestCheckAccessResolvesObject(t *testing.T) {
	fixture := newPermissionFixture(t)
	fixture.grantBlueprint("b.janssen", meldingPolicy(), permissions.KindCaseView)
	fixture.resolver.objects[testCaseURL] = meldingCase("openbaar")

	got, err := fixture.service.CheckAccess(
		context.Background(), "b.janssen", permissions.KindCaseView, permissions.ObjectTypeCase, testCaseURL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !got {
		t.Error("Expected access to the resolved case")
	}
}

func TestHasPermissionWithoutObject(t *testing.T) {
	fixture := newPermissionFixture(t)
	fixture.grantBlueprint("b.janssen", meldingPolicy(), permissions.KindCaseView)

	got, err := fixture.service.HasPermission(context.Background(), "b.janssen", permissions.KindCaseView, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !got {
		t.Error("Expected the permission to be held on at least one object")
	}

	got, err = fixture.service.HasPermission(context.Background(), "b.janssen", permissions.KindCaseHandleAccess, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got {
		t.Error("Expected a permission outside the role to be denied")
	}
}

func TestListUserPermissions(t *testing.T) {
	fixture := newPermissionFixture(t)
	fixture.grantBlueprint("b.janssen", meldingPolicy(), permissions.KindCaseView, permissions.KindCaseCreateDocument)

	perm, err := fixture.atomic.GetOrCreatePermission(
		context.Background(), permissions.ObjectTypeDocument, permissions.KindDocumentDownload,
		"https://documenten.example.com/documenten/7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := fixture.atomic.InsertUserPermission(context.Background(), userGrant("b.janssen", perm.ID)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	names, err := fixture.service.ListUserPermissions(context.Background(), "b.janssen")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []string{
		permissions.KindCaseCreateDocument,
		permissions.KindCaseView,
		permissions.KindDocumentDownload,
	}
	if len(names) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, names)
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Expected %s at position %d, got %s", name, i, names[i])
		}
	}
}
