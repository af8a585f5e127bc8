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

// EntityRepository stores one notifiable kind in its own collection.
type EntityRepository[T models.Notifiable] struct {
	collection *mongo.Collection
	kind       models.EntityKind
	extra      bson.M
}

// NewEntityRepository creates a repository for kind. extra is merged into
// every candidate query, e.g. {"status": "pending"} for tasks.
func NewEntityRepository[T models.Notifiable](database *mongo.Database, kind models.EntityKind, extra bson.M) *EntityRepository[T] {
	return &EntityRepository[T]{
		collection: database.Collection(kind.Collection()),
		kind:       kind,
		extra:      extra,
	}
}

func NewEventRepository(database *mongo.Database) *EntityRepository[models.Event] {
	return NewEntityRepository[models.Event](database, models.KindEvent, nil)
}

func NewTaskRepository(database *mongo.Database) *EntityRepository[models.Task] {
	return NewEntityRepository[models.Task](database, models.KindTask, bson.M{"status": models.TaskStatusPending})
}

func NewMovementRepository(database *mongo.Database) *EntityRepository[models.Movement] {
	return NewEntityRepository[models.Movement](database, models.KindMovement, nil)
}

func NewFolderRepository(database *mongo.Database) *EntityRepository[models.Folder] {
	return NewEntityRepository[models.Folder](database, models.KindFolder, bson.M{"status": models.FolderStatusActive})
}

func (r *EntityRepository[T]) Kind() models.EntityKind {
	return r.kind
}

// InitializeIndexes creates the owner/date index used by candidate queries.
func (r *EntityRepository[T]) InitializeIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: r.kind.DateField(), Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "notifications.type", Value: 1},
				{Key: "notifications.date", Value: -1},
			},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", r.kind, err)
	}
	return nil
}

func (r *EntityRepository[T]) FindForOwner(ctx context.Context, ownerID bson.ObjectID, from, to time.Time) ([]T, error) {
	filter := ownerWindowFilter(ownerID, r.kind.DateField(), from, to, r.extra)
	opts := options.Find().SetSort(bson.D{{Key: r.kind.DateField(), Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s candidates: %w", r.kind, err)
	}
	defer cursor.Close(ctx)

	var entities []T
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode %s candidates: %w", r.kind, err)
	}
	return entities, nil
}

// AppendIfAbsent backfills missing settings, initializes missing histories
// and then pushes the record with a single conditional UpdateMany. The first
// two steps are idempotent; only the last one decides who wins a race.
func (r *EntityRepository[T]) AppendIfAbsent(ctx context.Context, req AppendRequest) (int64, error) {
	if len(req.IDs) == 0 {
		return 0, nil
	}

	if req.Backfill != nil {
		update := bson.M{"$set": bson.M{"notificationSettings": req.Backfill}}
		if _, err := r.collection.UpdateMany(ctx, backfillSettingsFilter(req.IDs), update); err != nil {
			return 0, fmt.Errorf("failed to backfill %s settings: %w", r.kind, err)
		}
	}

	initHistory := bson.M{"$set": bson.M{"notifications": bson.A{}}}
	if _, err := r.collection.UpdateMany(ctx, initHistoryFilter(req.IDs), initHistory); err != nil {
		return 0, fmt.Errorf("failed to initialize %s history: %w", r.kind, err)
	}

	since := req.Record.Date.Add(-req.Window)
	filter := appendFilter(req.IDs, req.Record.Type, req.Record.AlertType, since)
	result, err := r.collection.UpdateMany(ctx, filter, appendUpdate(req.Record))
	if err != nil {
		return 0, fmt.Errorf("failed to append %s notification: %w", r.kind, err)
	}
	return result.ModifiedCount, nil
}

// JudicialRepository adds the ingestion and status transitions specific to
// judicial movements.
type JudicialRepository struct {
	*EntityRepository[models.JudicialMovement]
}

func NewJudicialRepository(database *mongo.Database) *JudicialRepository {
	return &JudicialRepository{
		EntityRepository: NewEntityRepository[models.JudicialMovement](database, models.KindJudicialMovement, bson.M{"status": models.JudicialStatusPending}),
	}
}

// InitializeIndexes adds the unique source key index on top of the candidate
// query indexes.
func (r *JudicialRepository) InitializeIndexes(ctx context.Context) error {
	if err := r.EntityRepository.InitializeIndexes(ctx); err != nil {
		return err
	}
	index := mongo.IndexModel{
		Keys: bson.D{{Key: "sourceKey", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"sourceKey": bson.M{"$exists": true}}),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create judicial source key index: %w", err)
	}
	return nil
}

func (r *JudicialRepository) Insert(ctx context.Context, movement *models.JudicialMovement) (bool, error) {
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	if movement.Status == "" {
		movement.Status = models.JudicialStatusPending
	}

	if movement.SourceKey == "" {
		result, err := r.collection.InsertOne(ctx, movement)
		if err != nil {
			return false, fmt.Errorf("failed to insert judicial movement: %w", err)
		}
		movement.ID = result.InsertedID.(bson.ObjectID)
		return true, nil
	}

	filter := bson.M{"sourceKey": movement.SourceKey}
	update := bson.M{"$setOnInsert": movement}
	result, err := r.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent upsert for the same key won.
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert judicial movement: %w", err)
	}
	if result.UpsertedCount == 0 {
		return false, nil
	}
	if id, ok := result.UpsertedID.(bson.ObjectID); ok {
		movement.ID = id
	}
	return true, nil
}

func (r *JudicialRepository) MarkNotified(ctx context.Context, ids []bson.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{"status": models.JudicialStatusNotified}}
	if _, err := r.collection.UpdateMany(ctx, idsFilter(ids), update); err != nil {
		return fmt.Errorf("failed to mark judicial movements notified: %w", err)
	}
	return nil
}

var (
	_ EntityStore[models.Task] = (*EntityRepository[models.Task])(nil)
	_ JudicialStore            = (*JudicialRepository)(nil)
	_ PreferenceStore          = (*PreferenceRepository)(nil)
	_ UserStore                = (*UserRepository)(nil)
	_ AlertStore               = (*AlertRepository)(nil)
	_ LogStore                 = (*NotificationLogRepository)(nil)
	_ Locker                   = (*RedisRepo)(nil)
	_ StatusStore              = (*RedisRepo)(nil)
)
