package models

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Access request results. An empty result means the request is still
// pending.
const (
	AccessRequestPending  = ""
	AccessRequestApproved = "approved"
	AccessRequestRejected = "rejected"
)

// Reasons recorded on a user grant.
const (
	ReasonAccessGranted   = "access-granted"
	ReasonRequestApproved = "access-request-approved"
)

// Role is a named, reusable list of permission kind names.
type Role struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string        `bson:"name" json:"name"`
	Description string        `bson:"description,omitempty" json:"description"`
	Permissions []string      `bson:"permissions" json:"permissions"`
	CreatedAt   int64         `bson:"createdAt" json:"createdAt"`
	UpdatedAt   int64         `bson:"updatedAt" json:"updatedAt"`
}

// BlueprintPermission couples a role to a validated attribute policy
// for one object type. The policy shape is owned by the object type's
// schema; it is validated before it is ever written here.
type BlueprintPermission struct {
	ID         bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	ObjectType string         `bson:"objectType" json:"objectType"`
	RoleID     bson.ObjectID  `bson:"roleId" json:"roleId"`
	Policy     map[string]any `bson:"policy" json:"policy"`
	CreatedAt  int64          `bson:"createdAt" json:"createdAt"`
}

// AuthorizationProfile bundles blueprint permissions under a
// recognizable name so they can be assigned to users as one unit.
type AuthorizationProfile struct {
	ID                     bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name                   string          `bson:"name" json:"name"`
	BlueprintPermissionIDs []bson.ObjectID `bson:"blueprintPermissionIds" json:"blueprintPermissionIds"`
	CreatedAt              int64           `bson:"createdAt" json:"createdAt"`
	UpdatedAt              int64           `bson:"updatedAt" json:"updatedAt"`
}

// UserAuthorizationProfile assigns a profile to a user for a validity
// window. End 0 means open ended.
type UserAuthorizationProfile struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string        `bson:"username" json:"username"`
	ProfileID bson.ObjectID `bson:"profileId" json:"profileId"`
	Start     int64         `bson:"start" json:"start"`
	End       int64         `bson:"end" json:"end,omitempty"`
}

// IsActual reports whether the assignment is valid at the given time.
func (p *UserAuthorizationProfile) IsActual(now int64) bool {
	return actual(p.Start, p.End, now)
}

// AtomicPermission grants one permission kind on one specific object
// URL. There is at most one record per (permission, objectUrl) pair;
// users share it through UserAtomicPermission rows.
type AtomicPermission struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"id"`
	ObjectType string        `bson:"objectType" json:"objectType"`
	Permission string        `bson:"permission" json:"permission"`
	ObjectURL  string        `bson:"objectUrl" json:"objectUrl"`
}

// UserAtomicPermission links one user to one atomic permission with a
// validity window and the reason the grant exists. EndDate 0 means open
// ended.
type UserAtomicPermission struct {
	ID                 bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Username           string        `bson:"username" json:"username"`
	AtomicPermissionID bson.ObjectID `bson:"atomicPermissionId" json:"atomicPermissionId"`
	AccessRequestID    bson.ObjectID `bson:"accessRequestId,omitempty" json:"accessRequestId,omitempty"`
	Reason             string        `bson:"reason,omitempty" json:"reason"`
	Comment            string        `bson:"comment,omitempty" json:"comment"`
	StartDate          int64         `bson:"startDate" json:"startDate"`
	EndDate            int64         `bson:"endDate" json:"endDate,omitempty"`
}

// IsActual reports whether the grant is valid at the given time.
func (p *UserAtomicPermission) IsActual(now int64) bool {
	return actual(p.StartDate, p.EndDate, now)
}

// AccessRequest asks a handler to grant the requester access to one
// object.
type AccessRequest struct {
	ID                     bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Requester              string        `bson:"requester" json:"requester"`
	Handler                string        `bson:"handler,omitempty" json:"handler,omitempty"`
	ObjectURL              string        `bson:"objectUrl" json:"objectUrl"`
	Comment                string        `bson:"comment,omitempty" json:"comment"`
	HandlerComment         string        `bson:"handlerComment,omitempty" json:"handlerComment,omitempty"`
	Result                 string        `bson:"result" json:"result"`
	RequestedAt            int64         `bson:"requestedAt" json:"requestedAt"`
	HandledAt              int64         `bson:"handledAt,omitempty" json:"handledAt,omitempty"`
	UserAtomicPermissionID bson.ObjectID `bson:"userAtomicPermissionId,omitempty" json:"userAtomicPermissionId,omitempty"`
}

// IsPending reports whether the request still awaits handling.
func (r *AccessRequest) IsPending() bool {
	return r.Result == AccessRequestPending
}

func actual(start, end, now int64) bool {
	if start > now {
		return false
	}
	return end == 0 || end > now
}
