// Package notify raises out-of-band alerts when a dispatch records a failed
// or partial outcome.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"automation-service/internal/logging"
	"automation-service/internal/models"
	"automation-service/internal/utils"
	"automation-service/pkg/telegram"
)

// Notifier delivers a dispatch-failure notice.
type Notifier interface {
	DispatchFailed(ctx context.Context, event models.DispatchEvent)
}

// Telegram sends failure notices to a set of operator chats, rate limited so
// a flapping task cannot flood the bot API. Chats are registered at runtime
// from API handlers while dispatch goroutines send, so the list is
// mutex-guarded and senders work from a snapshot.
type Telegram struct {
	botToken string
	mu       sync.Mutex
	chatIDs  []int64
	limiter  *rate.Limiter
	logger   *logging.Logger
}

func NewTelegram(botToken string, chatIDs []int64, perSecond int, logger *logging.Logger) *Telegram {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Telegram{
		botToken: botToken,
		chatIDs:  chatIDs,
		limiter:  rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
		logger:   logger,
	}
}

// Enabled reports whether the notifier is configured at all.
func (t *Telegram) Enabled() bool {
	return t != nil && t.botToken != "" && len(t.chats()) > 0
}

// chats returns a snapshot of the registered chat list.
func (t *Telegram) chats() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int64, len(t.chatIDs))
	copy(out, t.chatIDs)
	return out
}

func (t *Telegram) DispatchFailed(ctx context.Context, event models.DispatchEvent) {
	if t == nil || t.botToken == "" {
		return
	}
	chats := t.chats()
	if len(chats) == 0 {
		return
	}
	if err := t.limiter.Wait(ctx); err != nil {
		t.logger.Warnf("Telegram notice dropped for task %s: %v", event.TaskID, err)
		return
	}
	text := fmt.Sprintf(
		"Dispatch %s\nSystem: %s\nTask: %s\nAction: %s\nTargets: %d (failed %d)",
		event.Outcome, event.SystemID, event.TaskID, event.Action, event.Targets, event.Failed,
	)
	err := utils.Retry(ctx, 3, time.Second, func() error {
		b, err := bot.New(t.botToken)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		for _, chatID := range chats {
			params := &bot.SendMessageParams{ChatID: chatID, Text: text}
			if _, err := b.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("send to chat %d: %w", chatID, err)
			}
		}
		return nil
	})
	if err != nil {
		t.logger.Errorf("Telegram notice failed for task %s: %v", event.TaskID, err)
	}
}

// Probe sends a greeting through the raw bot API to verify a chat is
// reachable before it is registered for notices.
func (t *Telegram) Probe(chatID int64) error {
	if t == nil || t.botToken == "" {
		return models.Invalid("telegram", "bot token not configured")
	}
	return telegram.Send(t.botToken, []int64{chatID}, "Park automation notices enabled for this chat.")
}

// Register adds a chat to the notice list if not already present.
func (t *Telegram) Register(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.chatIDs {
		if id == chatID {
			return false
		}
	}
	t.chatIDs = append(t.chatIDs, chatID)
	return true
}
