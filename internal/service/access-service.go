package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"case-access-service/internal/event"
	"case-access-service/internal/models"
	"case-access-service/internal/permissions"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type AtomicGrantStore interface {
	AtomicPermissionStore
	GetOrCreatePermission(ctx context.Context, objectType, permission, objectURL string) (*models.AtomicPermission, error)
	InsertUserPermission(ctx context.Context, userPerm *models.UserAtomicPermission) (*models.UserAtomicPermission, error)
	FindUserPermissionByID(ctx context.Context, id bson.ObjectID) (*models.UserAtomicPermission, error)
	FindPermissionByID(ctx context.Context, id bson.ObjectID) (*models.AtomicPermission, error)
	FindUserPermissionsForObject(ctx context.Context, objectURL string) ([]*models.UserAtomicPermission, error)
	DeleteUserPermission(ctx context.Context, id bson.ObjectID) error
	CountHolders(ctx context.Context, atomicPermissionID bson.ObjectID) (int64, error)
	DeletePermission(ctx context.Context, id bson.ObjectID) error
	DeleteByObjectURL(ctx context.Context, objectURL string) (int64, error)
}

type AccessRequestStore interface {
	Insert(ctx context.Context, request *models.AccessRequest) (*models.AccessRequest, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessRequest, error)
	HasPending(ctx context.Context, requester, objectURL string) (bool, error)
	MarkHandled(ctx context.Context, id bson.ObjectID, handler, result, handlerComment string, handledAt int64, userPermissionID bson.ObjectID) error
	ClosePending(ctx context.Context, requester, objectURL string, userPermissionID bson.ObjectID, handledAt int64) (int64, error)
	FindForRequester(ctx context.Context, requester string, page, limit int) ([]*models.AccessRequest, error)
	FindForObject(ctx context.Context, objectURL string, onlyPending bool, page, limit int) ([]*models.AccessRequest, error)
}

type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccessService owns the grant lifecycle: direct grants, revocation
// and the request/handle workflow. Writes that touch more than one
// collection run in a transaction; events go out after the commit.
type AccessService struct {
	atomic    AtomicGrantStore
	requests  AccessRequestStore
	tx        TxRunner
	publisher event.Publisher
	now       func() time.Time
}

func NewAccessService(atomic AtomicGrantStore, requests AccessRequestStore, tx TxRunner, publisher event.Publisher) *AccessService {
	return &AccessService{
		atomic:    atomic,
		requests:  requests,
		tx:        tx,
		publisher: publisher,
		now:       time.Now,
	}
}

type GrantInput struct {
	Username   string
	ObjectType string
	Permission string
	ObjectURL  string
	Reason     string
	Comment    string
	StartDate  int64
	EndDate    int64
	GrantedBy  string
}

// Grant gives a user a permission on one specific object. Granting a
// permission the user already actually holds on that object fails with
// ErrDuplicateGrant. Pending access requests by the same user for the
// same object are approved and linked to the new grant.
func (s *AccessService) Grant(ctx context.Context, input GrantInput) (*models.UserAtomicPermission, error) {
	if input.Username == "" || input.Permission == "" || input.ObjectURL == "" || input.ObjectType == "" {
		return nil, fmt.Errorf("username, objectType, permission and objectUrl are required")
	}

	now := s.now().Unix()
	if input.StartDate == 0 {
		input.StartDate = now
	}
	if input.EndDate != 0 && input.EndDate <= input.StartDate {
		return nil, fmt.Errorf("end date must be after start date")
	}
	if input.Reason == "" {
		input.Reason = models.ReasonAccessGranted
	}

	exists, err := s.atomic.HasActualGrant(ctx, input.Username, input.Permission, input.ObjectURL, now)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s already has %s on %s: %w",
			input.Username, input.Permission, input.ObjectURL, permissions.ErrDuplicateGrant)
	}

	var created *models.UserAtomicPermission
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		perm, err := s.atomic.GetOrCreatePermission(ctx, input.ObjectType, input.Permission, input.ObjectURL)
		if err != nil {
			return err
		}

		created, err = s.atomic.InsertUserPermission(ctx, &models.UserAtomicPermission{
			Username:           input.Username,
			AtomicPermissionID: perm.ID,
			Reason:             input.Reason,
			Comment:            input.Comment,
			StartDate:          input.StartDate,
			EndDate:            input.EndDate,
		})
		if err != nil {
			return err
		}

		closed, err := s.requests.ClosePending(ctx, input.Username, input.ObjectURL, created.ID, now)
		if err != nil {
			return err
		}
		if closed > 0 {
			log.Printf("Closed %d pending access request(s) for %s on %s", closed, input.Username, input.ObjectURL)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(event.NewPermissionGrantedEvent(
		input.Username, input.ObjectType, input.Permission, input.ObjectURL, input.Reason, input.GrantedBy))

	return created, nil
}

// Revoke removes one user grant. The shared permission record goes
// with it when this was the last holder.
func (s *AccessService) Revoke(ctx context.Context, userPermissionID bson.ObjectID, revokedBy string) error {
	var revoked *models.UserAtomicPermission
	var perm *models.AtomicPermission

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = s.atomic.FindUserPermissionByID(ctx, userPermissionID)
		if err != nil {
			return err
		}

		perm, err = s.atomic.FindPermissionByID(ctx, revoked.AtomicPermissionID)
		if err != nil {
			return err
		}

		if err := s.atomic.DeleteUserPermission(ctx, userPermissionID); err != nil {
			return err
		}

		holders, err := s.atomic.CountHolders(ctx, perm.ID)
		if err != nil {
			return err
		}
		if holders == 0 {
			return s.atomic.DeletePermission(ctx, perm.ID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.publish(event.NewPermissionRevokedEvent(
		revoked.Username, perm.ObjectType, perm.Permission, perm.ObjectURL, revokedBy))

	return nil
}

// CreateAccessRequest opens a request for read access to a case. Users
// who can already see the case, or who already have a request waiting,
// are refused.
func (s *AccessService) CreateAccessRequest(ctx context.Context, requester, objectURL, comment string) (*models.AccessRequest, error) {
	if requester == "" || objectURL == "" {
		return nil, fmt.Errorf("requester and objectUrl are required")
	}

	now := s.now().Unix()

	exists, err := s.atomic.HasActualGrant(ctx, requester, permissions.KindCaseView, objectURL, now)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s already has access to %s: %w", requester, objectURL, permissions.ErrDuplicateGrant)
	}

	pending, err := s.requests.HasPending(ctx, requester, objectURL)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fmt.Errorf("%s already has a pending request for %s: %w",
			requester, objectURL, permissions.ErrDuplicatePending)
	}

	request, err := s.requests.Insert(ctx, &models.AccessRequest{
		Requester:   requester,
		ObjectURL:   objectURL,
		Comment:     comment,
		Result:      models.AccessRequestPending,
		RequestedAt: now,
	})
	if err != nil {
		return nil, err
	}

	s.publishRequest(event.NewAccessRequestedEvent(request.ID.Hex(), requester, objectURL, comment))

	return request, nil
}

type HandleInput struct {
	RequestID      bson.ObjectID
	Handler        string
	Result         string
	HandlerComment string
	EndDate        int64
}

// HandleAccessRequest approves or rejects a pending request. Approval
// creates the matching grant in the same transaction and links it to
// the request.
func (s *AccessService) HandleAccessRequest(ctx context.Context, input HandleInput) (*models.AccessRequest, error) {
	if input.Handler == "" {
		return nil, permissions.ErrHandlerRequired
	}
	if input.Result != models.AccessRequestApproved && input.Result != models.AccessRequestRejected {
		return nil, fmt.Errorf("result must be '%s' or '%s'", models.AccessRequestApproved, models.AccessRequestRejected)
	}

	now := s.now().Unix()

	var request *models.AccessRequest
	var granted *models.UserAtomicPermission

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		request, err = s.requests.FindByID(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if !request.IsPending() {
			return permissions.ErrAlreadyHandled
		}

		var userPermissionID bson.ObjectID
		if input.Result == models.AccessRequestApproved {
			perm, err := s.atomic.GetOrCreatePermission(
				ctx, permissions.ObjectTypeCase, permissions.KindCaseView, request.ObjectURL)
			if err != nil {
				return err
			}

			granted, err = s.atomic.InsertUserPermission(ctx, &models.UserAtomicPermission{
				Username:           request.Requester,
				AtomicPermissionID: perm.ID,
				AccessRequestID:    request.ID,
				Reason:             models.ReasonRequestApproved,
				StartDate:          now,
				EndDate:            input.EndDate,
			})
			if err != nil {
				return err
			}
			userPermissionID = granted.ID
		}

		return s.requests.MarkHandled(
			ctx, request.ID, input.Handler, input.Result, input.HandlerComment, now, userPermissionID)
	})
	if err != nil {
		return nil, err
	}

	request.Handler = input.Handler
	request.Result = input.Result
	request.HandlerComment = input.HandlerComment
	request.HandledAt = now
	if granted != nil {
		request.UserAtomicPermissionID = granted.ID
	}

	s.publishRequest(event.NewAccessHandledEvent(
		request.ID.Hex(), request.Requester, input.Handler, request.ObjectURL, input.Result, input.HandlerComment))
	if granted != nil {
		s.publish(event.NewPermissionGrantedEvent(
			request.Requester, permissions.ObjectTypeCase, permissions.KindCaseView, request.ObjectURL,
			models.ReasonRequestApproved, input.Handler))
	}

	return request, nil
}

func (s *AccessService) ListRequestsForUser(ctx context.Context, requester string, page, limit int) ([]*models.AccessRequest, error) {
	return s.requests.FindForRequester(ctx, requester, page, limit)
}

func (s *AccessService) ListRequestsForObject(ctx context.Context, objectURL string, onlyPending bool, page, limit int) ([]*models.AccessRequest, error) {
	return s.requests.FindForObject(ctx, objectURL, onlyPending, page, limit)
}

func (s *AccessService) ListGrantsForObject(ctx context.Context, objectURL string) ([]*models.UserAtomicPermission, error) {
	return s.atomic.FindUserPermissionsForObject(ctx, objectURL)
}

// HandleCaseDeleted drops every grant referencing a case the registry
// deleted. Wired to the case event consumer.
func (s *AccessService) HandleCaseDeleted(ctx context.Context, caseURL string) error {
	deleted, err := s.atomic.DeleteByObjectURL(ctx, caseURL)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("Removed %d grant(s) for deleted case %s", deleted, caseURL)
	}
	return nil
}

func (s *AccessService) publish(e *event.PermissionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPermissionEvent(e); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", e.EventType, err)
	}
}

func (s *AccessService) publishRequest(e *event.AccessRequestEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAccessRequestEvent(e); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", e.EventType, err)
	}
}
