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

type AtomicPermissionRepository struct {
	perms *mongo.Collection
	users *mongo.Collection
}

func NewAtomicPermissionRepository(db *mongo.Database) *AtomicPermissionRepository {
	return &AtomicPermissionRepository{
		perms: db.Collection("AtomicPermission"),
		users: db.Collection("UserAtomicPermission"),
	}
}

func (r *AtomicPermissionRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.perms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "permission", Value: 1},
				{Key: "objectUrl", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "objectUrl", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	// Open-ended grants are unique per (user, permission record); the
	// duplicate key error surfaces concurrent grant races. Grants with
	// an explicit end date fall back to the service-level check.
	_, err = r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "username", Value: 1},
				{Key: "atomicPermissionId", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"endDate": bson.M{"$eq": 0}}),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "accessRequestId", Value: 1}},
		},
	})
	return err
}

// GetOrCreatePermission returns the single AtomicPermission record for
// (permission, objectUrl), creating it when missing.
func (r *AtomicPermissionRepository) GetOrCreatePermission(ctx context.Context, objectType, permission, objectURL string) (*models.AtomicPermission, error) {
	filter := bson.M{
		"permission": permission,
		"objectUrl":  objectURL,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":        bson.NewObjectID(),
			"objectType": objectType,
			"permission": permission,
			"objectUrl":  objectURL,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var perm models.AtomicPermission
	if err := r.perms.FindOneAndUpdate(ctx, filter, update, opts).Decode(&perm); err != nil {
		return nil, fmt.Errorf("failed to get or create atomic permission: %w", err)
	}

	return &perm, nil
}

func (r *AtomicPermissionRepository) InsertUserPermission(ctx context.Context, userPerm *models.UserAtomicPermission) (*models.UserAtomicPermission, error) {
	if userPerm.ID.IsZero() {
		userPerm.ID = bson.NewObjectID()
	}
	if userPerm.StartDate == 0 {
		userPerm.StartDate = time.Now().Unix()
	}

	if _, err := r.users.InsertOne(ctx, userPerm); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user %s: %w", userPerm.Username, permissions.ErrDuplicateGrant)
		}
		return nil, fmt.Errorf("failed to insert user permission: %w", err)
	}

	return userPerm, nil
}

func (r *AtomicPermissionRepository) FindUserPermissionByID(ctx context.Context, id bson.ObjectID) (*models.UserAtomicPermission, error) {
	var userPerm models.UserAtomicPermission
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&userPerm)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user permission %s: %w", id.Hex(), permissions.ErrNotFound)
		}
		return nil, err
	}
	return &userPerm, nil
}

func (r *AtomicPermissionRepository) FindPermissionByID(ctx context.Context, id bson.ObjectID) (*models.AtomicPermission, error) {
	var perm models.AtomicPermission
	err := r.perms.FindOne(ctx, bson.M{"_id": id}).Decode(&perm)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("atomic permission %s: %w", id.Hex(), permissions.ErrNotFound)
		}
		return nil, err
	}
	return &perm, nil
}

// FindActualForUser returns the atomic permissions of the given kind
// the user actually holds at now.
func (r *AtomicPermissionRepository) FindActualForUser(ctx context.Context, username, permission string, now int64) ([]*models.AtomicPermission, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: actualUserPermissionFilter(username, now)}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "AtomicPermission",
			"localField":   "atomicPermissionId",
			"foreignField": "_id",
			"as":           "permission",
		}}},
		{{Key: "$unwind", Value: "$permission"}},
		{{Key: "$match", Value: bson.M{"permission.permission": permission}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$permission"}}},
	}

	cursor, err := r.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var perms []*models.AtomicPermission
	if err = cursor.All(ctx, &perms); err != nil {
		return nil, err
	}

	return perms, nil
}

// HasActualGrant reports whether the user holds an actual grant of the
// permission on the object.
func (r *AtomicPermissionRepository) HasActualGrant(ctx context.Context, username, permission, objectURL string, now int64) (bool, error) {
	perms, err := r.FindActualForUser(ctx, username, permission, now)
	if err != nil {
		return false, err
	}
	for _, perm := range perms {
		if perm.ObjectURL == objectURL {
			return true, nil
		}
	}
	return false, nil
}

// ListActualPermissionNames returns the distinct permission kinds the
// user holds through actual atomic grants.
func (r *AtomicPermissionRepository) ListActualPermissionNames(ctx context.Context, username string, now int64) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: actualUserPermissionFilter(username, now)}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "AtomicPermission",
			"localField":   "atomicPermissionId",
			"foreignField": "_id",
			"as":           "permission",
		}}},
		{{Key: "$unwind", Value: "$permission"}},
		{{Key: "$group", Value: bson.M{"_id": "$permission.permission"}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := r.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Name string `bson:"_id"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	names := make([]string, len(results))
	for i, result := range results {
		names[i] = result.Name
	}

	return names, nil
}

// FindUserPermissionsForObject lists who holds which grant on an
// object.
func (r *AtomicPermissionRepository) FindUserPermissionsForObject(ctx context.Context, objectURL string) ([]*models.UserAtomicPermission, error) {
	cursor, err := r.perms.Find(ctx, bson.M{"objectUrl": objectURL})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var perms []*models.AtomicPermission
	if err = cursor.All(ctx, &perms); err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, nil
	}

	ids := make([]bson.ObjectID, len(perms))
	for i, perm := range perms {
		ids[i] = perm.ID
	}

	userCursor, err := r.users.Find(ctx, bson.M{"atomicPermissionId": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer userCursor.Close(ctx)

	var userPerms []*models.UserAtomicPermission
	if err = userCursor.All(ctx, &userPerms); err != nil {
		return nil, err
	}

	return userPerms, nil
}

func (r *AtomicPermissionRepository) DeleteUserPermission(ctx context.Context, id bson.ObjectID) error {
	if _, err := r.users.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete user permission: %w", err)
	}
	return nil
}

// CountHolders returns how many users still hold the atomic permission.
func (r *AtomicPermissionRepository) CountHolders(ctx context.Context, atomicPermissionID bson.ObjectID) (int64, error) {
	return r.users.CountDocuments(ctx, bson.M{"atomicPermissionId": atomicPermissionID})
}

func (r *AtomicPermissionRepository) DeletePermission(ctx context.Context, id bson.ObjectID) error {
	if _, err := r.perms.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete atomic permission: %w", err)
	}
	return nil
}

// DeleteByObjectURL removes every grant on the object, join rows
// included. Used when the upstream registry reports the object gone.
func (r *AtomicPermissionRepository) DeleteByObjectURL(ctx context.Context, objectURL string) (int64, error) {
	cursor, err := r.perms.Find(ctx, bson.M{"objectUrl": objectURL})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var perms []*models.AtomicPermission
	if err = cursor.All(ctx, &perms); err != nil {
		return 0, err
	}
	if len(perms) == 0 {
		return 0, nil
	}

	ids := make([]bson.ObjectID, len(perms))
	for i, perm := range perms {
		ids[i] = perm.ID
	}

	result, err := r.users.DeleteMany(ctx, bson.M{"atomicPermissionId": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete user permissions: %w", err)
	}
	if _, err := r.perms.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return 0, fmt.Errorf("failed to delete atomic permissions: %w", err)
	}

	return result.DeletedCount, nil
}

func actualUserPermissionFilter(username string, now int64) bson.M {
	return bson.M{
		"username":  username,
		"startDate": bson.M{"$lte": now},
		"$or": []bson.M{
			{"endDate": 0},
			{"endDate": bson.M{"$gt": now}},
		},
	}
}
