package event

const (
	EventTypeAccessRequested   = "access.requested"
	EventTypeAccessHandled     = "access.handled"
	EventTypePermissionGranted = "permission.granted"
	EventTypePermissionRevoked = "permission.revoked"

	EventTypeCaseDeleted = "case.deleted"
)

type AccessRequestEvent struct {
	EventType      string `json:"eventType"`
	RequestID      string `json:"requestId"`
	Requester      string `json:"requester"`
	Handler        string `json:"handler,omitempty"`
	ObjectURL      string `json:"objectUrl"`
	Result         string `json:"result,omitempty"`
	Comment        string `json:"comment,omitempty"`
	HandlerComment string `json:"handlerComment,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type PermissionEvent struct {
	EventType  string `json:"eventType"`
	Username   string `json:"username"`
	ObjectType string `json:"objectType"`
	Permission string `json:"permission"`
	ObjectURL  string `json:"objectUrl"`
	Reason     string `json:"reason,omitempty"`
	GrantedBy  string `json:"grantedBy,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type CaseEventData struct {
	Type      string `json:"type"`
	CaseURL   string `json:"caseUrl"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}
