package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"notification-service/internal/auth"
	"notification-service/internal/config"
	"notification-service/internal/email"
	"notification-service/internal/events"
	grpcServer "notification-service/internal/grpc"
	"notification-service/internal/handlers"
	"notification-service/internal/jobs"
	"notification-service/internal/realtime"
	"notification-service/internal/service"
	"notification-service/internal/templates"
	"notification-service/pkg/discovery"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func setupLogging(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Dir == "" {
		logger.SetOutput(os.Stdout)
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(cfg.Dir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(file)
	return logger, file, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logFile, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := logger.WithField("service", cfg.Server.ServiceName)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := setupStores(initCtx, cfg, log)
	initCancel()
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}
	defer st.close()

	renderer := templates.NewBuiltinRenderer()
	mailer := email.NewChannel(renderer, email.NewSMTPTransport(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}), log)

	browser := realtime.NewBrowserChannel(
		realtime.NewRegistry(),
		realtime.NewLocalTransport(),
		st.alerts,
		auth.NewJWTService(cfg.JWT.Secret),
		log,
		realtime.Config{
			RevalidateInterval: cfg.Realtime.RevalidateInterval,
			PendingLimit:       cfg.Realtime.PendingLimit,
		},
	)

	publisher, err := events.NewEventPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create event publisher")
	}
	defer publisher.Close()

	consumer, err := events.NewEventConsumer(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, st.preferences, st.judicial, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create event consumer")
	}
	if err := consumer.Start(); err != nil {
		log.WithError(err).Fatal("failed to start event consumer")
	}

	logService := service.NewNotificationLogService(st.logs, log)
	recorder := service.NewRecorder(log, cfg.Notifications.DuplicateWindow)
	dispatcher := jobs.NewDispatcher(
		mailer,
		renderer,
		browser,
		st.alerts,
		recorder,
		logService,
		publisher,
		log,
		jobs.DispatcherConfig{BrowserConcurrency: cfg.Notifications.BrowserConcurrency},
	)
	deps := jobs.Deps{Users: st.users, Preferences: st.preferences, Dispatcher: dispatcher, Log: log}

	runner := jobs.NewRunner(st.locker, st.status, cfg.Jobs.LockTTL, log,
		jobs.NewCalendarJob(deps, st.events),
		jobs.NewTaskJob(deps, st.tasks),
		jobs.NewMovementJob(deps, st.movements),
		jobs.NewJudicialJob(deps, st.judicial),
		jobs.NewInactivityJob(deps, st.folders),
		jobs.NewLogCleanupJob(logService, cfg.Notifications.LogRetention),
	)

	scheduler := jobs.NewScheduler(runner, log)
	for name, expr := range map[string]string{
		jobs.JobCalendar:   cfg.Jobs.Calendar,
		jobs.JobTasks:      cfg.Jobs.Tasks,
		jobs.JobMovements:  cfg.Jobs.Movements,
		jobs.JobJudicial:   cfg.Jobs.Judicial,
		jobs.JobInactivity: cfg.Jobs.Inactivity,
		jobs.JobLogCleanup: cfg.Jobs.LogCleanup,
	} {
		if err := scheduler.Add(name, expr); err != nil {
			log.WithError(err).Fatal("invalid job schedule")
		}
	}
	if cfg.Jobs.Enabled {
		scheduler.Start(context.Background())
	} else {
		log.Info("job scheduling is disabled, jobs run on demand only")
	}

	health := grpcServer.NewHealthMonitor(cfg.Server.ServiceName, 15*time.Second, log, st.checks...)
	health.Start()
	grpcSrv := health.NewServer()

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	handlers.NewNotificationHandler(runner, browser, logService, cfg.Server.ServiceName, log).
		WithRecorder(recorder, st.events, st.tasks, st.movements, st.judicial, st.folders).
		RegisterRoutes(app)

	mux := http.NewServeMux()
	mux.Handle(cfg.Realtime.Path, realtime.NewServer(browser, log, cfg.Realtime.AllowedOrigins))
	wsSrv := &http.Server{
		Addr:              ":" + cfg.Realtime.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var registry *discovery.ServiceRegistry
	if cfg.Consul.Enabled {
		registry, err = discovery.NewServiceRegistry(cfg, log)
		if err != nil {
			log.WithError(err).Error("failed to create service registry")
		} else if err := registry.Register(); err != nil {
			log.WithError(err).Error("failed to register with Consul")
			registry = nil
		}
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		grpcListener, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
		if err != nil {
			log.WithError(err).Fatal("failed to listen for gRPC")
		}
		log.WithField("port", cfg.GRPC.Port).Info("starting gRPC server")
		if err := grpcSrv.Serve(grpcListener); err != nil {
			log.WithError(err).Error("gRPC server stopped")
		}
	}()

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Realtime.Port, "path": cfg.Realtime.Path}).Info("starting websocket server")
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("websocket server failed")
		}
	}()

	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting HTTP server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.WithError(err).Fatal("error starting server")
		}
	}()

	<-shutdownChan
	log.Info("shutting down server...")

	if registry != nil {
		if err := registry.Deregister(); err != nil {
			log.WithError(err).Warn("failed to deregister from Consul")
		}
	}
	health.Shutdown()
	scheduler.Stop()

	if err := consumer.Close(); err != nil {
		log.WithError(err).Error("error closing event consumer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := wsSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("error shutting down websocket server")
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.WithError(err).Error("error shutting down HTTP server")
	}
	grpcSrv.GracefulStop()

	log.Info("server exited, goodbye!")
}
