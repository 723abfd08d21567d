package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/rs/zerolog"
)

// Worker processes async tasks from the queue
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor TaskProcessor
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
	log       zerolog.Logger
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	log := logger.Component("worker")
	server := asynq.NewServer(
		redisConnOpt(cfg),
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Warn().Err(err).Str("type", task.Type()).Msg("Task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		log:    log,
	}
}

// SetProcessor sets the function to process persistence tasks
func (w *Worker) SetProcessor(processor TaskProcessor) {
	w.processor = processor
}

// Start begins processing tasks
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypePersistMessage, w.handlePersistTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.log.Info().Msg("Starting async worker")
		if err := w.server.Run(w.mux); err != nil {
			w.log.Error().Err(err).Msg("Worker stopped with error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	w.log.Info().Msg("Worker stopped")
}

func (w *Worker) handlePersistTask(ctx context.Context, t *asynq.Task) error {
	var task PersistMessageTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.log.Error().Err(err).Msg("Malformed task payload")
		// a malformed payload will never succeed
		return asynq.SkipRetry
	}

	if w.processor == nil {
		w.log.Warn().Str("project_id", task.ProjectID).Msg("No processor set, task dropped")
		return nil
	}

	return w.processor(ctx, &task)
}
