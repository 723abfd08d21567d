package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/pkg/logger"
)

const (
	TaskTypePersistMessage = "message:persist"
)

// PersistMessageTask is a relayed chat message waiting to be appended to its
// project's log.
type PersistMessageTask struct {
	ProjectID string         `json:"project_id"`
	Sender    models.UserRef `json:"sender"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// TaskProcessor handles one persistence task.
type TaskProcessor func(context.Context, *PersistMessageTask) error

// TaskQueue defines the interface for message persistence
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(ctx context.Context, task *PersistMessageTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// NewTaskQueue returns a Redis backed queue when Redis is enabled and
// reachable, and a synchronous queue otherwise. The synchronous queue needs
// its processor set by the caller.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	log := logger.Component("task-queue")
	if cfg.Enabled {
		queue, err := NewAsyncQueue(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to sync mode")
			return NewSyncQueue()
		}
		log.Info().Str("addr", cfg.Addr).Msg("Async queue initialized")
		return queue
	}
	log.Info().Msg("Sync queue initialized (Redis disabled)")
	return NewSyncQueue()
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func redisConnOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      cfg.Addr,
		Username:  cfg.Username,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLSConfig(),
	}
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisConnOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	// Try to get queue info to verify connection
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *PersistMessageTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypePersistMessage, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("project_id", task.ProjectID).Msg("[AsyncQueue] Message enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue with synchronous processing (no Redis)
type SyncQueue struct {
	processor TaskProcessor
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process tasks synchronously
func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

// Enqueue runs the processor in the caller's goroutine, so messages from one
// connection are stored in the order they were read.
func (q *SyncQueue) Enqueue(ctx context.Context, task *PersistMessageTask) error {
	if q.processor == nil {
		logger.Warn().Str("project_id", task.ProjectID).Msg("[SyncQueue] No processor set, task dropped")
		return nil
	}
	return q.processor(ctx, task)
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
