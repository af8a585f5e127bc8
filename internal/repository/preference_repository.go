package repository

import (
	"context"
	"errors"
	"fmt"

	"notification-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type PreferenceRepository struct {
	collection *mongo.Collection
}

func NewPreferenceRepository(database *mongo.Database, collection string) *PreferenceRepository {
	return &PreferenceRepository{
		collection: database.Collection(collection),
	}
}

func (r *PreferenceRepository) InitializeIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create preference indexes: %w", err)
	}
	return nil
}

func (r *PreferenceRepository) FindByUserID(ctx context.Context, userID bson.ObjectID) (*models.UserPreference, error) {
	var pref models.UserPreference
	err := r.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&pref)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get preferences for user %s: %w", userID.Hex(), err)
	}
	return &pref, nil
}

// EnsureDefaults upserts the default preferences with $setOnInsert so an
// existing document is never overwritten. It reports whether one was created.
func (r *PreferenceRepository) EnsureDefaults(ctx context.Context, userID bson.ObjectID) (bool, error) {
	defaults := models.DefaultUserPreference(userID)
	update := bson.M{"$setOnInsert": bson.M{
		"calendar":   defaults.Calendar,
		"expiration": defaults.Expiration,
		"judicial":   defaults.Judicial,
		"inactivity": defaults.Inactivity,
		"createdAt":  defaults.CreatedAt,
		"updatedAt":  defaults.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"userId": userID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to create default preferences for user %s: %w", userID.Hex(), err)
	}
	return result.UpsertedCount > 0, nil
}
