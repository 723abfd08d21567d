package main

import (
	"context"
	"time"

	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/internal/handlers"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/internal/store"
	"github.com/huangang/codecollab/backend/internal/utils"
	"github.com/huangang/codecollab/backend/pkg/logger"
	gormlogger "gorm.io/gorm/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	store       store.Store
	blacklist   services.TokenBlacklist
	taskQueue   services.TaskQueue
	worker      *services.Worker
	hub         *services.Hub
	interceptor *services.AIInterceptor

	authService    *services.AuthService
	projectService *services.ProjectService

	userHandler    *handlers.UserHandler
	projectHandler *handlers.ProjectHandler
	aiHandler      *handlers.AIHandler
	collabHandler  *handlers.CollabHandler
	healthHandler  *handlers.HealthHandler
}

func gormLogLevel(level string) gormlogger.LogLevel {
	if level == "debug" {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

// bootstrap initializes all application dependencies: store, token cache,
// message queue and the collaboration hub.
func bootstrap(ctx context.Context, cfg *config.Config) *appServices {
	// Initialize store
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	st, err := store.Open(connectCtx, &cfg.Database, gormLogLevel(cfg.Log.Level))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	logger.Info().Str("driver", st.Driver()).Msg("Database connected")

	// Token blacklist (Redis when enabled, memory otherwise)
	blacklist := services.NewTokenBlacklist(connectCtx, &cfg.Redis)

	signer := utils.NewTokenSigner(cfg.JWT.Secret, cfg.JWT.ExpireHour)
	ldapService := services.NewLDAPService(&cfg.LDAP)
	authService := services.NewAuthService(st, blacklist, signer, ldapService)
	projectService := services.NewProjectService(st)
	aiService := services.NewAIService(&cfg.AI)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	persist := services.PersistMessageProcessor(projectService)
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(persist)
	}

	// Start async worker if the queue is backed by Redis
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(persist)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start worker")
			}
		}
	}

	interceptor := services.NewAIInterceptor(cfg.Realtime.Trigger, aiService, aiService.Timeout())
	hubOpts := []services.HubOption{
		services.WithInterceptor(interceptor),
		services.WithSendBuffer(cfg.Realtime.SendBuffer),
	}
	if cfg.Realtime.PersistMessages {
		hubOpts = append(hubOpts, services.WithSink(services.NewQueueSink(taskQueue)))
	}
	hub := services.NewHub(hubOpts...)

	return &appServices{
		cfg:         cfg,
		store:       st,
		blacklist:   blacklist,
		taskQueue:   taskQueue,
		worker:      worker,
		hub:         hub,
		interceptor: interceptor,

		authService:    authService,
		projectService: projectService,

		userHandler:    handlers.NewUserHandler(authService),
		projectHandler: handlers.NewProjectHandler(projectService),
		aiHandler:      handlers.NewAIHandler(aiService),
		collabHandler:  handlers.NewCollabHandler(authService, projectService, hub, &cfg.Realtime),
		healthHandler:  handlers.NewHealthHandler(st, authService, taskQueue, hub),
	}
}

// shutdown gracefully stops all services. Live connections are dropped
// first so no new messages are queued while the queue drains.
func (s *appServices) shutdown(ctx context.Context) {
	s.hub.Close()
	s.interceptor.Close()
	logger.Info().Msg("Collaboration hub closed")

	if s.worker != nil {
		s.worker.Stop()
	}
	if err := s.taskQueue.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close task queue")
	}
	if err := s.blacklist.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close token blacklist")
	}
	if err := s.store.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database")
	}
}
