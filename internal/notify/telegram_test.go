package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"docreg/internal/config"
	apperrors "docreg/internal/errors"
	"docreg/internal/registration"
)

const adminChat int64 = 4242

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) snapshot() (sent, requests []tgbotapi.Chattable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...), append([]tgbotapi.Chattable(nil), f.requests...)
}

type call struct {
	id     string
	status registration.Status
}

type fakeReviewer struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *fakeReviewer) UpdateStatus(_ context.Context, id string, status registration.Status) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{id: id, status: status})
	return time.Now(), r.err
}

func (r *fakeReviewer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func setupTelegram(t *testing.T) (*Telegram, *fakeAPI, *fakeReviewer) {
	t.Helper()
	api := newFakeAPI()
	reviewer := &fakeReviewer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.TelegramConfig{AdminChatID: adminChat, RequestTimeout: time.Second}
	return newTelegram(api, cfg, reviewer, logger), api, reviewer
}

func createdEvent() registration.Event {
	return registration.Event{
		Kind:      registration.EventCreated,
		RequestID: "r1",
		Username:  "alice",
		Email:     "a@x.com",
		Status:    registration.StatusPending,
		At:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOnEvent_PostsNewRequestWithButtons(t *testing.T) {
	tg, api, _ := setupTelegram(t)

	tg.OnEvent(context.Background(), createdEvent())
	require.True(t, tg.Wait(time.Second))

	sent, _ := api.snapshot()
	require.Len(t, sent, 1)

	msg, ok := sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, adminChat, msg.ChatID)
	require.Contains(t, msg.Text, "Username: alice")
	require.Contains(t, msg.Text, "Email: a@x.com")
	require.Contains(t, msg.Text, "2024-05-01T12:00:00Z")

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 2)
	require.Equal(t, "approve:r1", *row[0].CallbackData)
	require.Equal(t, "reject:r1", *row[1].CallbackData)
}

func TestOnEvent_IgnoresUpdates(t *testing.T) {
	tg, api, _ := setupTelegram(t)

	ev := createdEvent()
	ev.Kind = registration.EventUpdated
	tg.OnEvent(context.Background(), ev)
	require.True(t, tg.Wait(time.Second))

	sent, _ := api.snapshot()
	require.Empty(t, sent)
}

func TestOnEvent_SendFailureIsLogged(t *testing.T) {
	tg, api, _ := setupTelegram(t)
	api.sendErr = errors.New("network down")

	tg.OnEvent(context.Background(), createdEvent())
	require.True(t, tg.Wait(time.Second))
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-" + data,
			From: &tgbotapi.User{ID: 7},
			Message: &tgbotapi.Message{
				MessageID: 11,
				Chat:      &tgbotapi.Chat{ID: chatID},
				Text:      "New registration request",
			},
			Data: data,
		},
	}
}

func runTelegram(t *testing.T, tg *Telegram) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})
	return cancel
}

func TestRun_ApproveCallback(t *testing.T) {
	tg, api, reviewer := setupTelegram(t)
	runTelegram(t, tg)

	api.updates <- callback(adminChat, "approve:r1")

	require.Eventually(t, func() bool {
		_, reqs := api.snapshot()
		return len(reqs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []call{{id: "r1", status: registration.StatusApproved}}, reviewer.calls)

	_, reqs := api.snapshot()
	answer, ok := reqs[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	require.Equal(t, "Approved", answer.Text)

	edit, ok := reqs[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	require.Equal(t, 11, edit.MessageID)
	require.Equal(t, "New registration request\n\nApproved", edit.Text)
}

func TestRun_RejectFailureAnswersWithUserMessage(t *testing.T) {
	tg, api, reviewer := setupTelegram(t)
	reviewer.err = apperrors.ErrNotFound
	runTelegram(t, tg)

	api.updates <- callback(adminChat, "reject:gone")

	require.Eventually(t, func() bool {
		_, reqs := api.snapshot()
		return len(reqs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, reqs := api.snapshot()
	answer := reqs[0].(tgbotapi.CallbackConfig)
	require.Equal(t, "no such user", answer.Text)
	require.Equal(t, registration.StatusRejected, reviewer.calls[0].status)
}

func TestRun_IgnoresOtherChats(t *testing.T) {
	tg, api, reviewer := setupTelegram(t)
	runTelegram(t, tg)

	api.updates <- callback(999, "approve:r1")
	api.updates <- callback(adminChat, "delete:r1")

	require.Eventually(t, func() bool {
		_, reqs := api.snapshot()
		return len(reqs) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, reviewer.count())
}

func TestRun_StopsOnCancel(t *testing.T) {
	tg, api, _ := setupTelegram(t)
	cancel := runTelegram(t, tg)
	cancel()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.stopped
	}, 2*time.Second, 10*time.Millisecond)
}
