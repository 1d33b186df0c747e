// Package notify tells administrators about new registration requests over
// Telegram and lets them review from the chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"docreg/internal/config"
	apperrors "docreg/internal/errors"
	"docreg/internal/registration"
)

const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// botAPI is the subset of *tgbotapi.BotAPI the notifier uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Reviewer applies an administrator decision to a pending request
type Reviewer interface {
	UpdateStatus(ctx context.Context, id string, status registration.Status) (time.Time, error)
}

// Telegram posts new requests to the admin chat with approve/reject buttons
type Telegram struct {
	api      botAPI
	cfg      config.TelegramConfig
	reviewer Reviewer
	logger   *slog.Logger

	// Track in-flight sends and callback handling
	active sync.WaitGroup
}

var _ registration.Listener = (*Telegram)(nil)

// NewTelegram connects to the Bot API
func NewTelegram(cfg config.TelegramConfig, reviewer Reviewer, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	logger.Info("telegram notifier connected", "username", api.Self.UserName)
	return newTelegram(api, cfg, reviewer, logger), nil
}

func newTelegram(api botAPI, cfg config.TelegramConfig, reviewer Reviewer, logger *slog.Logger) *Telegram {
	return &Telegram{
		api:      api,
		cfg:      cfg,
		reviewer: reviewer,
		logger:   logger,
	}
}

// OnEvent posts newly created requests to the admin chat. Sending happens in
// the background; Wait blocks until outstanding sends finish.
func (t *Telegram) OnEvent(_ context.Context, ev registration.Event) {
	if ev.Kind != registration.EventCreated {
		return
	}

	msg := tgbotapi.NewMessage(t.cfg.AdminChatID, formatRequest(ev))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", actionApprove+":"+ev.RequestID),
			tgbotapi.NewInlineKeyboardButtonData("Reject", actionReject+":"+ev.RequestID),
		),
	)

	t.active.Add(1)
	go func() {
		defer t.active.Done()
		if _, err := t.api.Send(msg); err != nil {
			t.logger.Error("failed to notify admin", "error", err, "request_id", ev.RequestID)
		}
	}()
}

// Run handles review callbacks until ctx is cancelled
func (t *Telegram) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.cfg.PollingTimeout
	u.AllowedUpdates = []string{"callback_query"}

	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.Wait(25 * time.Second)
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery == nil {
				continue
			}

			t.active.Add(1)
			go func(q *tgbotapi.CallbackQuery) {
				defer t.active.Done()

				reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout())
				defer cancel()

				t.handleCallback(reqCtx, q)
			}(update.CallbackQuery)
		}
	}
}

// Wait blocks until in-flight work completes or timeout elapses
func (t *Telegram) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		t.logger.Warn("some telegram requests may not have completed")
		return false
	}
}

func (t *Telegram) requestTimeout() time.Duration {
	if t.cfg.RequestTimeout > 0 {
		return t.cfg.RequestTimeout
	}
	return 30 * time.Second
}

func (t *Telegram) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != t.cfg.AdminChatID {
		var userID int64
		if q.From != nil {
			userID = q.From.ID
		}
		t.logger.Warn("review callback outside admin chat", "user_id", userID)
		t.answer(q.ID, "Not allowed")
		return
	}

	action, id, _ := strings.Cut(q.Data, ":")
	var status registration.Status
	switch action {
	case actionApprove:
		status = registration.StatusApproved
	case actionReject:
		status = registration.StatusRejected
	default:
		t.answer(q.ID, "Unknown action")
		return
	}

	if _, err := t.reviewer.UpdateStatus(ctx, id, status); err != nil {
		t.logger.Error("review from telegram failed", "error", err, "request_id", id, "status", status.String())
		t.answer(q.ID, apperrors.GetUserMessage(err))
		return
	}

	outcome := "Approved"
	if status == registration.StatusRejected {
		outcome = "Rejected"
	}
	t.answer(q.ID, outcome)

	// Replace the buttons with the outcome
	edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID,
		q.Message.Text+"\n\n"+outcome)
	if _, err := t.api.Request(edit); err != nil {
		t.logger.Error("failed to update review message", "error", err, "request_id", id)
	}
}

func (t *Telegram) answer(callbackID, text string) {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		t.logger.Error("failed to answer callback", "error", err)
	}
}

func formatRequest(ev registration.Event) string {
	return fmt.Sprintf("New registration request\nUsername: %s\nEmail: %s\nSubmitted: %s",
		ev.Username, ev.Email, ev.At.UTC().Format(time.RFC3339))
}
