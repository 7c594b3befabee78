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

type BlueprintPermissionRepository struct {
	collection *mongo.Collection
}

func NewBlueprintPermissionRepository(db *mongo.Database) *BlueprintPermissionRepository {
	return &BlueprintPermissionRepository{
		collection: db.Collection("BlueprintPermission"),
	}
}

func (r *BlueprintPermissionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "roleId", Value: 1},
				{Key: "policy", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "objectType", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// GetOrCreate returns the existing permission for (role, policy) or
// inserts a new one. Policy data must be validated by the object type
// schema before it gets here.
func (r *BlueprintPermissionRepository) GetOrCreate(ctx context.Context, perm *models.BlueprintPermission) (*models.BlueprintPermission, bool, error) {
	filter := bson.M{
		"roleId": perm.RoleID,
		"policy": perm.Policy,
	}

	var existing models.BlueprintPermission
	err := r.collection.FindOne(ctx, filter).Decode(&existing)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("error checking existing blueprint permission: %w", err)
	}

	if perm.ID.IsZero() {
		perm.ID = bson.NewObjectID()
	}
	if perm.CreatedAt == 0 {
		perm.CreatedAt = time.Now().Unix()
	}

	if _, err := r.collection.InsertOne(ctx, perm); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// lost the race, fetch the winner
			if ferr := r.collection.FindOne(ctx, filter).Decode(&existing); ferr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to insert blueprint permission: %w", err)
	}

	return perm, true, nil
}

func (r *BlueprintPermissionRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.BlueprintPermission, error) {
	var perm models.BlueprintPermission
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&perm)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("blueprint permission %s: %w", id.Hex(), permissions.ErrNotFound)
		}
		return nil, err
	}
	return &perm, nil
}

func (r *BlueprintPermissionRepository) FindByIDs(ctx context.Context, ids []bson.ObjectID) ([]*models.BlueprintPermission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var perms []*models.BlueprintPermission
	if err = cursor.All(ctx, &perms); err != nil {
		return nil, err
	}

	return perms, nil
}

func (r *BlueprintPermissionRepository) FindAll(ctx context.Context, objectType string, page, limit int) ([]*models.BlueprintPermission, error) {
	filter := bson.M{}
	if objectType != "" {
		filter["objectType"] = objectType
	}

	opts := options.Find()
	opts.SetSort(bson.D{{Key: "roleId", Value: 1}, {Key: "objectType", Value: 1}})
	if page > 0 && limit > 0 {
		opts.SetSkip(int64((page - 1) * limit))
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var perms []*models.BlueprintPermission
	if err = cursor.All(ctx, &perms); err != nil {
		return nil, err
	}

	return perms, nil
}

func (r *BlueprintPermissionRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete blueprint permission: %w", err)
	}
	return nil
}

// ExistsForRole reports whether any blueprint permission still
// references the role. Role deletion is blocked while this is true.
func (r *BlueprintPermissionRepository) ExistsForRole(ctx context.Context, roleID bson.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"roleId": roleID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
