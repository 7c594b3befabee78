package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"case-access-service/internal/event"
	"case-access-service/internal/models"
	"case-access-service/internal/permissions"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func actualAt(start, end, now int64) bool {
	return start <= now && (end == 0 || end > now)
}

type fakeAtomicStore struct {
	mu        sync.Mutex
	perms     map[bson.ObjectID]*models.AtomicPermission
	userPerms map[bson.ObjectID]*models.UserAtomicPermission
}

func newFakeAtomicStore() *fakeAtomicStore {
	return &fakeAtomicStore{
		perms:     make(map[bson.ObjectID]*models.AtomicPermission),
		userPerms: make(map[bson.ObjectID]*models.UserAtomicPermission),
	}
}

func (f *fakeAtomicStore) HasActualGrant(ctx context.Context, username, permission, objectURL string, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, up := range f.userPerms {
		if up.Username != username || !actualAt(up.StartDate, up.EndDate, now) {
			continue
		}
		perm := f.perms[up.AtomicPermissionID]
		if perm != nil && perm.Permission == permission && perm.ObjectURL == objectURL {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAtomicStore) FindActualForUser(ctx context.Context, username, permission string, now int64) ([]*models.AtomicPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.AtomicPermission
	for _, up := range f.userPerms {
		if up.Username != username || !actualAt(up.StartDate, up.EndDate, now) {
			continue
		}
		perm := f.perms[up.AtomicPermissionID]
		if perm != nil && perm.Permission == permission {
			result = append(result, perm)
		}
	}
	return result, nil
}

func (f *fakeAtomicStore) ListActualPermissionNames(ctx context.Context, username string, now int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var result []string
	for _, up := range f.userPerms {
		if up.Username != username || !actualAt(up.StartDate, up.EndDate, now) {
			continue
		}
		perm := f.perms[up.AtomicPermissionID]
		if perm != nil && !seen[perm.Permission] {
			seen[perm.Permission] = true
			result = append(result, perm.Permission)
		}
	}
	return result, nil
}

func (f *fakeAtomicStore) GetOrCreatePermission(ctx context.Context, objectType, permission, objectURL string) (*models.AtomicPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, perm := range f.perms {
		if perm.Permission == permission && perm.ObjectURL == objectURL {
			return perm, nil
		}
	}
	perm := &models.AtomicPermission{
		ID:         bson.NewObjectID(),
		ObjectType: objectType,
		Permission: permission,
		ObjectURL:  objectURL,
	}
	f.perms[perm.ID] = perm
	return perm, nil
}

func (f *fakeAtomicStore) InsertUserPermission(ctx context.Context, userPerm *models.UserAtomicPermission) (*models.UserAtomicPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.userPerms {
		if existing.Username == userPerm.Username &&
			existing.AtomicPermissionID == userPerm.AtomicPermissionID &&
			existing.EndDate == 0 && userPerm.EndDate == 0 {
			return nil, permissions.ErrDuplicateGrant
		}
	}
	stored := *userPerm
	stored.ID = bson.NewObjectID()
	f.userPerms[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeAtomicStore) FindUserPermissionByID(ctx context.Context, id bson.ObjectID) (*models.UserAtomicPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.userPerms[id]
	if !ok {
		return nil, fmt.Errorf("user permission %s: %w", id.Hex(), permissions.ErrNotFound)
	}
	return up, nil
}

func (f *fakeAtomicStore) FindPermissionByID(ctx context.Context, id bson.ObjectID) (*models.AtomicPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	perm, ok := f.perms[id]
	if !ok {
		return nil, fmt.Errorf("permission %s: %w", id.Hex(), permissions.ErrNotFound)
	}
	return perm, nil
}

func (f *fakeAtomicStore) FindUserPermissionsForObject(ctx context.Context, objectURL string) ([]*models.UserAtomicPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.UserAtomicPermission
	for _, up := range f.userPerms {
		perm := f.perms[up.AtomicPermissionID]
		if perm != nil && perm.ObjectURL == objectURL {
			result = append(result, up)
		}
	}
	return result, nil
}

func (f *fakeAtomicStore) DeleteUserPermission(ctx context.Context, id bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.userPerms, id)
	return nil
}

func (f *fakeAtomicStore) CountHolders(ctx context.Context, atomicPermissionID bson.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, up := range f.userPerms {
		if up.AtomicPermissionID == atomicPermissionID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAtomicStore) DeletePermission(ctx context.Context, id bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.perms, id)
	return nil
}

func (f *fakeAtomicStore) DeleteByObjectURL(ctx context.Context, objectURL string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, perm := range f.perms {
		if perm.ObjectURL != objectURL {
			continue
		}
		for upID, up := range f.userPerms {
			if up.AtomicPermissionID == id {
				delete(f.userPerms, upID)
				deleted++
			}
		}
		delete(f.perms, id)
	}
	return deleted, nil
}

func userGrant(username string, atomicPermissionID bson.ObjectID) *models.UserAtomicPermission {
	return &models.UserAtomicPermission{
		Username:           username,
		AtomicPermissionID: atomicPermissionID,
		Reason:             models.ReasonAccessGranted,
		StartDate:          time.Now().Add(-time.Hour).Unix(),
	}
}

type fakeProfileStore struct {
	profiles    map[bson.ObjectID]*models.AuthorizationProfile
	assignments []*models.UserAuthorizationProfile
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[bson.ObjectID]*models.AuthorizationProfile)}
}

func (f *fakeProfileStore) addProfile(blueprintIDs ...bson.ObjectID) bson.ObjectID {
	profile := &models.AuthorizationProfile{
		ID:                     bson.NewObjectID(),
		Name:                   fmt.Sprintf("profile-%d", len(f.profiles)+1),
		BlueprintPermissionIDs: blueprintIDs,
	}
	f.profiles[profile.ID] = profile
	return profile.ID
}

func (f *fakeProfileStore) assign(username string, profileID bson.ObjectID, start, end int64) {
	f.assignments = append(f.assignments, &models.UserAuthorizationProfile{
		ID:        bson.NewObjectID(),
		Username:  username,
		ProfileID: profileID,
		Start:     start,
		End:       end,
	})
}

func (f *fakeProfileStore) FindActualProfileIDsForUser(ctx context.Context, username string, now int64) ([]bson.ObjectID, error) {
	var result []bson.ObjectID
	for _, assignment := range f.assignments {
		if assignment.Username == username && actualAt(assignment.Start, assignment.End, now) {
			result = append(result, assignment.ProfileID)
		}
	}
	return result, nil
}

func (f *fakeProfileStore) FindBlueprintIDsForProfiles(ctx context.Context, profileIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	seen := make(map[bson.ObjectID]bool)
	var result []bson.ObjectID
	for _, id := range profileIDs {
		profile, ok := f.profiles[id]
		if !ok {
			continue
		}
		for _, bpID := range profile.BlueprintPermissionIDs {
			if !seen[bpID] {
				seen[bpID] = true
				result = append(result, bpID)
			}
		}
	}
	return result, nil
}

type fakeBlueprintStore struct {
	blueprints map[bson.ObjectID]*models.BlueprintPermission
}

func newFakeBlueprintStore() *fakeBlueprintStore {
	return &fakeBlueprintStore{blueprints: make(map[bson.ObjectID]*models.BlueprintPermission)}
}

func (f *fakeBlueprintStore) add(objectType string, roleID bson.ObjectID, policy map[string]any) bson.ObjectID {
	bp := &models.BlueprintPermission{
		ID:         bson.NewObjectID(),
		ObjectType: objectType,
		RoleID:     roleID,
		Policy:     policy,
	}
	f.blueprints[bp.ID] = bp
	return bp.ID
}

func (f *fakeBlueprintStore) FindByIDs(ctx context.Context, ids []bson.ObjectID) ([]*models.BlueprintPermission, error) {
	var result []*models.BlueprintPermission
	for _, id := range ids {
		if bp, ok := f.blueprints[id]; ok {
			result = append(result, bp)
		}
	}
	return result, nil
}

type fakeRoleStore struct {
	roles map[bson.ObjectID]*models.Role
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{roles: make(map[bson.ObjectID]*models.Role)}
}

func (f *fakeRoleStore) add(name string, perms ...string) bson.ObjectID {
	role := &models.Role{
		ID:          bson.NewObjectID(),
		Name:        name,
		Permissions: perms,
	}
	f.roles[role.ID] = role
	return role.ID
}

func (f *fakeRoleStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", id.Hex(), permissions.ErrNotFound)
	}
	return role, nil
}

type fakeResolver struct {
	objects map[string]*permissions.ObjectDescriptor
}

func (f *fakeResolver) ResolveObject(ctx context.Context, objectType, url string) (*permissions.ObjectDescriptor, error) {
	obj, ok := f.objects[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, permissions.ErrNotFound)
	}
	return obj, nil
}

type fakeRequestStore struct {
	requests map[bson.ObjectID]*models.AccessRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[bson.ObjectID]*models.AccessRequest)}
}

func (f *fakeRequestStore) Insert(ctx context.Context, request *models.AccessRequest) (*models.AccessRequest, error) {
	for _, existing := range f.requests {
		if existing.Requester == request.Requester && existing.ObjectURL == request.ObjectURL && existing.IsPending() {
			return nil, permissions.ErrDuplicatePending
		}
	}
	stored := *request
	stored.ID = bson.NewObjectID()
	f.requests[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeRequestStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessRequest, error) {
	request, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("access request %s: %w", id.Hex(), permissions.ErrNotFound)
	}
	return request, nil
}

func (f *fakeRequestStore) HasPending(ctx context.Context, requester, objectURL string) (bool, error) {
	for _, request := range f.requests {
		if request.Requester == requester && request.ObjectURL == objectURL && request.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRequestStore) MarkHandled(ctx context.Context, id bson.ObjectID, handler, result, handlerComment string, handledAt int64, userPermissionID bson.ObjectID) error {
	request, ok := f.requests[id]
	if !ok || !request.IsPending() {
		return permissions.ErrAlreadyHandled
	}
	request.Handler = handler
	request.Result = result
	request.HandlerComment = handlerComment
	request.HandledAt = handledAt
	request.UserAtomicPermissionID = userPermissionID
	return nil
}

func (f *fakeRequestStore) ClosePending(ctx context.Context, requester, objectURL string, userPermissionID bson.ObjectID, handledAt int64) (int64, error) {
	var closed int64
	for _, request := range f.requests {
		if request.Requester == requester && request.ObjectURL == objectURL && request.IsPending() {
			request.Result = models.AccessRequestApproved
			request.HandledAt = handledAt
			request.UserAtomicPermissionID = userPermissionID
			closed++
		}
	}
	return closed, nil
}

func (f *fakeRequestStore) FindForRequester(ctx context.Context, requester string, page, limit int) ([]*models.AccessRequest, error) {
	var result []*models.AccessRequest
	for _, request := range f.requests {
		if request.Requester == requester {
			result = append(result, request)
		}
	}
	return result, nil
}

func (f *fakeRequestStore) FindForObject(ctx context.Context, objectURL string, onlyPending bool, page, limit int) ([]*models.AccessRequest, error) {
	var result []*models.AccessRequest
	for _, request := range f.requests {
		if request.ObjectURL == objectURL && (!onlyPending || request.IsPending()) {
			result = append(result, request)
		}
	}
	return result, nil
}

type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePublisher struct {
	permissionEvents []*event.PermissionEvent
	requestEvents    []*event.AccessRequestEvent
}

func (f *fakePublisher) PublishPermissionEvent(e *event.PermissionEvent) error {
	f.permissionEvents = append(f.permissionEvents, e)
	return nil
}

func (f *fakePublisher) PublishAccessRequestEvent(e *event.AccessRequestEvent) error {
	f.requestEvents = append(f.requestEvents, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }
