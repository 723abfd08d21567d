package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/rs/zerolog"
)

// AISender is the synthetic sender of assistant replies.
var AISender = models.UserRef{ID: "ai", Name: "AI"}

// AIInterceptor hands messages containing the trigger to the assistant. The
// trigger is removed from the relayed text and the reply is broadcast to the
// whole room, sender included.
type AIInterceptor struct {
	trigger string
	ai      Completer
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAIInterceptor(trigger string, ai Completer, timeout time.Duration) *AIInterceptor {
	if trigger == "" {
		trigger = "@ai"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AIInterceptor{
		trigger: trigger,
		ai:      ai,
		timeout: timeout,
		log:     logger.Component("ai-interceptor"),
	}
}

func (i *AIInterceptor) Intercept(ctx context.Context, projectID string, msg *ChatMessage, room Broadcaster) {
	if !strings.Contains(msg.Message, i.trigger) {
		return
	}
	prompt := strings.TrimSpace(strings.ReplaceAll(msg.Message, i.trigger, ""))
	msg.Message = prompt
	if prompt == "" {
		return
	}

	// Add must not race with Close waiting on the group
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		i.log.Debug().Str("project_id", projectID).Msg("assistant call skipped, shutting down")
		return
	}
	i.wg.Add(1)
	i.mu.Unlock()

	senderID := msg.Sender.ID
	go func() {
		defer i.wg.Done()

		// the reply outlives the request that carried the trigger
		callCtx, cancel := context.WithTimeout(context.Background(), i.timeout)
		defer cancel()

		start := time.Now()
		reply, err := i.ai.Generate(callCtx, prompt)
		if err != nil {
			i.log.Error().Err(err).Str("project_id", projectID).Str("sender", senderID).
				Dur("elapsed", time.Since(start)).Msg("assistant call failed")
			return
		}

		i.log.Info().Str("project_id", projectID).Int("reply_len", len(reply)).
			Dur("elapsed", time.Since(start)).Msg("assistant replied")
		room.Broadcast(projectID, ChatMessage{
			Message:   reply,
			Sender:    AISender,
			Timestamp: time.Now(),
		})
	}()
}

// Wait blocks until every pending assistant call has finished.
func (i *AIInterceptor) Wait() {
	i.wg.Wait()
}

// Close stops new assistant calls and waits for the pending ones. Messages
// intercepted afterwards still have the trigger removed.
func (i *AIInterceptor) Close() {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.wg.Wait()
}
