package repository

import (
	"context"
	"fmt"
	"time"

	"notification-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type AlertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(database *mongo.Database, collection string) *AlertRepository {
	return &AlertRepository{
		collection: database.Collection(collection),
	}
}

func (r *AlertRepository) InitializeIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "delivered", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "notificationId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"notificationId": bson.M{"$exists": true}}),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create alert indexes: %w", err)
	}
	return nil
}

func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateAlert, alert.NotificationID)
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}
	alert.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

func (r *AlertRepository) FindPending(ctx context.Context, userID bson.ObjectID, limit int) ([]models.Alert, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, pendingAlertsFilter(userID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []models.Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode pending alerts: %w", err)
	}
	return alerts, nil
}

func (r *AlertRepository) MarkDelivered(ctx context.Context, ids []bson.ObjectID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter := idsFilter(ids)
	filter["delivered"] = false
	update := bson.M{"$set": bson.M{"delivered": true, "deliveredAt": at}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts delivered: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *AlertRepository) MarkPending(ctx context.Context, id bson.ObjectID) error {
	update := bson.M{
		"$set":   bson.M{"delivered": false},
		"$unset": bson.M{"deliveredAt": ""},
	}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to requeue alert: %w", err)
	}
	return nil
}
