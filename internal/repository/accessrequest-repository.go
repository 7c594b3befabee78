package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"case-access-service/internal/models"
	"case-access-service/internal/permissions"
)

type AccessRequestRepository struct {
	collection *mongo.Collection
}

func NewAccessRequestRepository(db *mongo.Database) *AccessRequestRepository {
	return &AccessRequestRepository{
		collection: db.Collection("AccessRequest"),
	}
}

func (r *AccessRequestRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// At most one pending request per (requester, object).
			Keys: bson.D{
				{Key: "requester", Value: 1},
				{Key: "objectUrl", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"result": bson.M{"$eq": ""}}),
		},
		{
			Keys: bson.D{{Key: "objectUrl", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "requestedAt", Value: -1}},
		},
	})
	return err
}

func (r *AccessRequestRepository) Insert(ctx context.Context, request *models.AccessRequest) (*models.AccessRequest, error) {
	if request.ID.IsZero() {
		request.ID = bson.NewObjectID()
	}
	if request.RequestedAt == 0 {
		request.RequestedAt = time.Now().Unix()
	}

	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("requester %s: %w", request.Requester, permissions.ErrDuplicatePending)
		}
		return nil, fmt.Errorf("failed to insert access request: %w", err)
	}

	return request, nil
}

func (r *AccessRequestRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.AccessRequest, error) {
	var request models.AccessRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("access request %s: %w", id.Hex(), permissions.ErrNotFound)
		}
		return nil, err
	}
	return &request, nil
}

// HasPending reports whether the requester already has a pending
// request for the object.
func (r *AccessRequestRepository) HasPending(ctx context.Context, requester, objectURL string) (bool, error) {
	filter := bson.M{
		"requester": requester,
		"objectUrl": objectURL,
		"result":    models.AccessRequestPending,
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkHandled records the handler's decision. The document update is
// guarded on the request still being pending.
func (r *AccessRequestRepository) MarkHandled(ctx context.Context, id bson.ObjectID, handler, result, handlerComment string, handledAt int64, userPermissionID bson.ObjectID) error {
	filter := bson.M{
		"_id":    id,
		"result": models.AccessRequestPending,
	}
	update := bson.M{"$set": bson.M{
		"handler":        handler,
		"result":         result,
		"handlerComment": handlerComment,
		"handledAt":      handledAt,
	}}
	if !userPermissionID.IsZero() {
		update["$set"].(bson.M)["userAtomicPermissionId"] = userPermissionID
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update access request: %w", err)
	}
	if res.MatchedCount == 0 {
		return permissions.ErrAlreadyHandled
	}
	return nil
}

// ClosePending approves every pending request of the requester for the
// object and links them to the grant that made them obsolete.
func (r *AccessRequestRepository) ClosePending(ctx context.Context, requester, objectURL string, userPermissionID bson.ObjectID, handledAt int64) (int64, error) {
	filter := bson.M{
		"requester": requester,
		"objectUrl": objectURL,
		"result":    models.AccessRequestPending,
	}
	update := bson.M{"$set": bson.M{
		"result":                 models.AccessRequestApproved,
		"handledAt":              handledAt,
		"userAtomicPermissionId": userPermissionID,
	}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to close pending access requests: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *AccessRequestRepository) FindForRequester(ctx context.Context, requester string, page, limit int) ([]*models.AccessRequest, error) {
	return r.find(ctx, bson.M{"requester": requester}, page, limit)
}

func (r *AccessRequestRepository) FindForObject(ctx context.Context, objectURL string, onlyPending bool, page, limit int) ([]*models.AccessRequest, error) {
	filter := bson.M{"objectUrl": objectURL}
	if onlyPending {
		filter["result"] = models.AccessRequestPending
	}
	return r.find(ctx, filter, page, limit)
}

func (r *AccessRequestRepository) find(ctx context.Context, filter bson.M, page, limit int) ([]*models.AccessRequest, error) {
	opts := options.Find()
	opts.SetSort(bson.M{"requestedAt": -1})
	if page > 0 && limit > 0 {
		opts.SetSkip(int64((page - 1) * limit))
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var requests []*models.AccessRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, err
	}

	return requests, nil
}
