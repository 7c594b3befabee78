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

type AuthorizationProfileRepository struct {
	profiles    *mongo.Collection
	assignments *mongo.Collection
}

func NewAuthorizationProfileRepository(db *mongo.Database) *AuthorizationProfileRepository {
	return &AuthorizationProfileRepository{
		profiles:    db.Collection("AuthorizationProfile"),
		assignments: db.Collection("UserAuthorizationProfile"),
	}
}

func (r *AuthorizationProfileRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = r.assignments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "username", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "profileId", Value: 1}},
		},
	})
	return err
}

func (r *AuthorizationProfileRepository) Create(ctx context.Context, profile *models.AuthorizationProfile) (*models.AuthorizationProfile, error) {
	if profile.ID.IsZero() {
		profile.ID = bson.NewObjectID()
	}

	currentTime := time.Now().Unix()
	if profile.CreatedAt == 0 {
		profile.CreatedAt = currentTime
	}
	if profile.UpdatedAt == 0 {
		profile.UpdatedAt = currentTime
	}

	if _, err := r.profiles.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("authorization profile with name '%s' already exists", profile.Name)
		}
		return nil, fmt.Errorf("failed to insert authorization profile: %w", err)
	}

	return profile, nil
}

func (r *AuthorizationProfileRepository) Update(ctx context.Context, profile *models.AuthorizationProfile) error {
	profile.UpdatedAt = time.Now().Unix()

	if _, err := r.profiles.UpdateOne(ctx, bson.M{"_id": profile.ID}, bson.M{"$set": profile}); err != nil {
		return fmt.Errorf("failed to update authorization profile: %w", err)
	}
	return nil
}

func (r *AuthorizationProfileRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	if _, err := r.profiles.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete authorization profile: %w", err)
	}
	if _, err := r.assignments.DeleteMany(ctx, bson.M{"profileId": id}); err != nil {
		return fmt.Errorf("failed to delete profile assignments: %w", err)
	}
	return nil
}

func (r *AuthorizationProfileRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.AuthorizationProfile, error) {
	var profile models.AuthorizationProfile
	err := r.profiles.FindOne(ctx, bson.M{"_id": id}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("authorization profile %s: %w", id.Hex(), permissions.ErrNotFound)
		}
		return nil, err
	}
	return &profile, nil
}

func (r *AuthorizationProfileRepository) FindAll(ctx context.Context, page, limit int) ([]*models.AuthorizationProfile, error) {
	opts := options.Find()
	opts.SetSort(bson.M{"name": 1})
	if page > 0 && limit > 0 {
		opts.SetSkip(int64((page - 1) * limit))
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.profiles.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []*models.AuthorizationProfile
	if err = cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}

// AssignToUser creates a profile assignment with a validity window.
func (r *AuthorizationProfileRepository) AssignToUser(ctx context.Context, assignment *models.UserAuthorizationProfile) (*models.UserAuthorizationProfile, error) {
	if assignment.ID.IsZero() {
		assignment.ID = bson.NewObjectID()
	}
	if assignment.Start == 0 {
		assignment.Start = time.Now().Unix()
	}

	if _, err := r.assignments.InsertOne(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to insert profile assignment: %w", err)
	}

	return assignment, nil
}

func (r *AuthorizationProfileRepository) RemoveAssignment(ctx context.Context, id bson.ObjectID) error {
	if _, err := r.assignments.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete profile assignment: %w", err)
	}
	return nil
}

// FindActualProfileIDsForUser returns the IDs of profiles whose
// assignment window contains now.
func (r *AuthorizationProfileRepository) FindActualProfileIDsForUser(ctx context.Context, username string, now int64) ([]bson.ObjectID, error) {
	filter := bson.M{
		"username": username,
		"start":    bson.M{"$lte": now},
		"$or": []bson.M{
			{"end": bson.M{"$exists": false}},
			{"end": 0},
			{"end": bson.M{"$gt": now}},
		},
	}

	opts := options.Find().SetProjection(bson.M{"profileId": 1, "_id": 0})
	cursor, err := r.assignments.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		ProfileID bson.ObjectID `bson:"profileId"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	profileIDs := make([]bson.ObjectID, len(results))
	for i, result := range results {
		profileIDs[i] = result.ProfileID
	}

	return profileIDs, nil
}

// FindBlueprintIDsForProfiles returns the union of blueprint permission
// IDs referenced by the given profiles.
func (r *AuthorizationProfileRepository) FindBlueprintIDsForProfiles(ctx context.Context, profileIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	if len(profileIDs) == 0 {
		return nil, nil
	}

	cursor, err := r.profiles.Find(ctx, bson.M{"_id": bson.M{"$in": profileIDs}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []*models.AuthorizationProfile
	if err = cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}

	seen := make(map[bson.ObjectID]bool)
	var blueprintIDs []bson.ObjectID
	for _, profile := range profiles {
		for _, id := range profile.BlueprintPermissionIDs {
			if !seen[id] {
				seen[id] = true
				blueprintIDs = append(blueprintIDs, id)
			}
		}
	}

	return blueprintIDs, nil
}

// FindAssignmentsForUser returns all assignments of a user, actual or
// not.
func (r *AuthorizationProfileRepository) FindAssignmentsForUser(ctx context.Context, username string) ([]*models.UserAuthorizationProfile, error) {
	cursor, err := r.assignments.Find(ctx, bson.M{"username": username})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var assignments []*models.UserAuthorizationProfile
	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, err
	}

	return assignments, nil
}
