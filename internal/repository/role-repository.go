package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"case-access-service/internal/models"
	"case-access-service/internal/permissions"
)

type RoleRepository struct {
	collection *mongo.Collection

	mu     sync.Mutex
	byID   map[bson.ObjectID]*models.Role
	byName map[string]*models.Role
}

func NewRoleRepository(db *mongo.Database) *RoleRepository {
	return &RoleRepository{
		collection: db.Collection("Role"),
		byID:       make(map[bson.ObjectID]*models.Role),
		byName:     make(map[string]*models.Role),
	}
}

func (r *RoleRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *RoleRepository) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	existing, err := r.FindByName(ctx, role.Name)
	if err != nil && !errors.Is(err, permissions.ErrNotFound) {
		return nil, fmt.Errorf("error checking existing role: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("role with name '%s' already exists", role.Name)
	}

	if role.ID.IsZero() {
		role.ID = bson.NewObjectID()
	}

	currentTime := time.Now().Unix()
	if role.CreatedAt == 0 {
		role.CreatedAt = currentTime
	}
	if role.UpdatedAt == 0 {
		role.UpdatedAt = currentTime
	}

	if _, err := r.collection.InsertOne(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to insert role: %w", err)
	}

	r.cache(role)
	return role, nil
}

func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now().Unix()

	filter := bson.M{"_id": role.ID}
	if _, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": role}); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	r.cache(role)
	return nil
}

func (r *RoleRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	role, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	r.mu.Lock()
	delete(r.byID, role.ID)
	delete(r.byName, role.Name)
	r.mu.Unlock()

	return nil
}

func (r *RoleRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Role, error) {
	r.mu.Lock()
	if role, ok := r.byID[id]; ok {
		r.mu.Unlock()
		return role, nil
	}
	r.mu.Unlock()

	var role models.Role
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&role)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("role %s: %w", id.Hex(), permissions.ErrNotFound)
		}
		return nil, err
	}

	r.cache(&role)
	return &role, nil
}

func (r *RoleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	r.mu.Lock()
	if role, ok := r.byName[name]; ok {
		r.mu.Unlock()
		return role, nil
	}
	r.mu.Unlock()

	var role models.Role
	err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&role)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("role '%s': %w", name, permissions.ErrNotFound)
		}
		return nil, err
	}

	r.cache(&role)
	return &role, nil
}

func (r *RoleRepository) FindAll(ctx context.Context, page, limit int) ([]*models.Role, error) {
	opts := options.Find()
	opts.SetSort(bson.M{"name": 1})
	if page > 0 && limit > 0 {
		opts.SetSkip(int64((page - 1) * limit))
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var roles []*models.Role
	if err = cursor.All(ctx, &roles); err != nil {
		return nil, err
	}

	return roles, nil
}

// CollectRoles warms the in-memory cache. Called once at startup.
func (r *RoleRepository) CollectRoles(ctx context.Context) error {
	roles, err := r.FindAll(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("error collecting roles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.byID)
	clear(r.byName)
	for _, role := range roles {
		r.byID[role.ID] = role
		r.byName[role.Name] = role
	}

	log.Printf("Loaded %d roles into cache", len(roles))
	return nil
}

func (r *RoleRepository) cache(role *models.Role) {
	r.mu.Lock()
	r.byID[role.ID] = role
	r.byName[role.Name] = role
	r.mu.Unlock()
}
