package repository

import (
	"context"
	"fmt"
	"time"

	"notification-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// NotificationLogRepository is the append-only delivery audit collection.
type NotificationLogRepository struct {
	collection *mongo.Collection
}

func NewNotificationLogRepository(database *mongo.Database, collection string) *NotificationLogRepository {
	return &NotificationLogRepository{
		collection: database.Collection(collection),
	}
}

func (r *NotificationLogRepository) InitializeIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "entityId", Value: 1}, {Key: "channel", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create notification log indexes: %w", err)
	}
	return nil
}

func (r *NotificationLogRepository) Insert(ctx context.Context, entry *models.NotificationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to insert notification log: %w", err)
	}
	entry.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// DeleteOlderThan is the retention path; it is the only delete this
// collection ever sees.
func (r *NotificationLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete notification logs: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *NotificationLogRepository) Stats(ctx context.Context, since time.Time) ([]models.LogStat, error) {
	cursor, err := r.collection.Aggregate(ctx, logStatsPipeline(since))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate notification logs: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []models.LogStat
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode notification log stats: %w", err)
	}
	return stats, nil
}
