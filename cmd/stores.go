package main

import (
	"context"
	"fmt"

	"notification-service/internal/config"
	mongoDB "notification-service/internal/database/mongo"
	redisDB "notification-service/internal/database/redis"
	grpcServer "notification-service/internal/grpc"
	"notification-service/internal/models"
	"notification-service/internal/repository"
	"notification-service/internal/repository/memory"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type stores struct {
	events      repository.EntityStore[models.Event]
	tasks       repository.EntityStore[models.Task]
	movements   repository.EntityStore[models.Movement]
	folders     repository.EntityStore[models.Folder]
	judicial    repository.JudicialStore
	users       repository.UserStore
	preferences repository.PreferenceStore
	alerts      repository.AlertStore
	logs        repository.LogStore
	locker      repository.Locker
	status      repository.StatusStore

	checks []grpcServer.Check
	close  func()
}

type indexed interface {
	InitializeIndexes(ctx context.Context) error
}

func setupStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*stores, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			events:      memory.NewEventStore(),
			tasks:       memory.NewTaskStore(),
			movements:   memory.NewMovementStore(),
			folders:     memory.NewFolderStore(),
			judicial:    memory.NewJudicialStore(),
			users:       memory.NewUserStore(),
			preferences: memory.NewPreferenceStore(),
			alerts:      memory.NewAlertStore(),
			logs:        memory.NewLogStore(),
			locker:      memory.NewLocker(),
			status:      memory.NewStatusStore(),
			close:       func() {},
		}, nil
	}

	if err := mongoDB.InitMongoDB(&cfg.MongoDB, log); err != nil {
		return nil, err
	}
	if err := redisDB.InitRedis(&cfg.Redis); err != nil {
		mongoDB.CloseDB(log)
		return nil, err
	}

	db := mongoDB.Database
	events := repository.NewEventRepository(db)
	tasks := repository.NewTaskRepository(db)
	movements := repository.NewMovementRepository(db)
	folders := repository.NewFolderRepository(db)
	judicial := repository.NewJudicialRepository(db)
	preferences := repository.NewPreferenceRepository(db, cfg.MongoDB.PreferencesCollection)
	alerts := repository.NewAlertRepository(db, cfg.MongoDB.AlertsCollection)
	logs := repository.NewNotificationLogRepository(db, cfg.MongoDB.LogsCollection)
	redisRepo := repository.NewRedisRepo(redisDB.Redis_Client)

	for _, r := range []indexed{events, tasks, movements, folders, judicial, preferences, alerts, logs} {
		if err := r.InitializeIndexes(ctx); err != nil {
			mongoDB.CloseDB(log)
			_ = redisDB.CloseRedis()
			return nil, fmt.Errorf("failed to initialize indexes: %w", err)
		}
	}

	return &stores{
		events:      events,
		tasks:       tasks,
		movements:   movements,
		folders:     folders,
		judicial:    judicial,
		users:       repository.NewUserRepository(db, cfg.MongoDB.UsersCollection),
		preferences: preferences,
		alerts:      alerts,
		logs:        logs,
		locker:      redisRepo,
		status:      redisRepo,
		checks: []grpcServer.Check{
			{Name: "mongodb", Ping: func(ctx context.Context) error {
				return mongoDB.Client.Ping(ctx, readpref.Primary())
			}},
			{Name: "redis", Ping: func(ctx context.Context) error {
				return redisDB.Redis_Client.Ping(ctx).Err()
			}},
		},
		close: func() {
			if err := redisDB.CloseRedis(); err != nil {
				log.WithError(err).Error("error closing Redis")
			}
			mongoDB.CloseDB(log)
		},
	}, nil
}
