package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/cache"
	"github.com/tbourn/go-astro-bot/internal/domain"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/slot"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

// fakeTG captures outbound traffic for one bot identity.
type fakeTG struct {
	nextID    int
	sentTexts []string
	edits     int
	deletes   int
	callbacks []string
}

func (f *fakeTG) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.nextID++
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sentTexts = append(f.sentTexts, m.Text)
	}
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeTG) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	switch v := c.(type) {
	case tgbotapi.EditMessageTextConfig:
		f.edits++
		_ = v
	case tgbotapi.DeleteMessageConfig:
		f.deletes++
	case tgbotapi.CallbackConfig:
		f.callbacks = append(f.callbacks, v.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTG) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{}, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db := newBotDB(t,
		&domain.TelegramUser{}, &domain.SentMessage{}, &domain.CacheEntry{},
		&domain.SpaceFact{}, &domain.DailySubscription{},
	)
	store := cache.New(db)
	return NewDispatcher(db, store, slot.NewReconciler(db), nil, time.UTC), db
}

func privateMsgUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		From:      &tgbotapi.User{ID: chatID, FirstName: "Ada", UserName: "ada"},
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		Data: data,
		From: &tgbotapi.User{ID: chatID, FirstName: "Ada", UserName: "ada"},
		Message: &tgbotapi.Message{
			MessageID: 5,
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		},
	}}
}

func TestHandleUpdate_StartCommandRendersMenu(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "bot")
	ctx := context.Background()

	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "/start"))

	if len(api.sentTexts) != 1 || !strings.Contains(api.sentTexts[0], "explore") {
		t.Fatalf("sent = %v, want the menu", api.sentTexts)
	}

	user, err := repo.GetUserByChatID(ctx, db, 42)
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	ids, _ := repo.ListSentMessageIDs(ctx, db, user.ID)
	if len(ids) != 1 {
		t.Fatalf("tracked = %v, want one slot row", ids)
	}
}

func TestHandleUpdate_SecondStartReplacesTheMenu(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "bot")
	ctx := context.Background()

	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "/start"))
	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "/start"))

	// The first menu is deleted and only the fresh one stays tracked.
	if api.deletes != 1 {
		t.Fatalf("deletes = %d, want the first menu removed", api.deletes)
	}
	user, _ := repo.GetUserByChatID(ctx, db, 42)
	ids, _ := repo.ListSentMessageIDs(ctx, db, user.ID)
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("tracked = %v, want only the second message", ids)
	}
}

func TestHandleUpdate_CallbackEditsTrackedMessage(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "bot")
	ctx := context.Background()

	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "/start"))
	d.HandleUpdate(ctx, c, HookMain, callbackUpdate(42, cbMoon))

	if api.edits != 1 {
		t.Fatalf("edits = %d, want the moon screen to edit in place", api.edits)
	}
	user, _ := repo.GetUserByChatID(ctx, db, 42)
	ids, _ := repo.ListSentMessageIDs(ctx, db, user.ID)
	if len(ids) != 1 {
		t.Fatalf("tracked = %v, want still exactly one slot row", ids)
	}
	if len(api.callbacks) != 1 {
		t.Fatalf("callback answers = %v, want 1", api.callbacks)
	}
}

func TestHandleUpdate_GroupChatsIgnored(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "bot")

	upd := privateMsgUpdate(42, "/start")
	upd.Message.Chat.Type = "group"
	d.HandleUpdate(context.Background(), c, HookMain, upd)

	if len(api.sentTexts) != 0 {
		t.Fatalf("group chat produced output: %v", api.sentTexts)
	}
	if _, err := repo.GetUserByChatID(context.Background(), db, 42); err == nil {
		t.Fatalf("group chat must not create users")
	}
}

func TestHandleUpdate_TestHookRepliesFixedNotice(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "testbot")
	ctx := context.Background()

	d.HandleUpdate(ctx, c, HookTest, privateMsgUpdate(42, "hello"))
	if len(api.sentTexts) != 1 || api.sentTexts[0] != testModeReply {
		t.Fatalf("sent = %v, want the maintenance notice", api.sentTexts)
	}

	d.HandleUpdate(ctx, c, HookTest, callbackUpdate(42, cbMenu))
	if len(api.callbacks) != 1 || api.callbacks[0] != testModeReply {
		t.Fatalf("callbacks = %v, want the maintenance notice toast", api.callbacks)
	}

	// The secondary identity never touches user state.
	if _, err := repo.GetUserByChatID(ctx, db, 42); err == nil {
		t.Fatalf("test hook must not create users")
	}
}

func TestHandleUpdate_OperatorBlockedUserIgnored(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "bot")
	ctx := context.Background()

	u, _ := repo.UpsertUser(ctx, db, 42, "Ada", "", "ada")
	db.Model(u).Update("blocked", true)

	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "/start"))
	if len(api.sentTexts) != 0 {
		t.Fatalf("blocked user got a reply: %v", api.sentTexts)
	}
}

func TestHandleUpdate_AwaitedMoonDateRendersPhase(t *testing.T) {
	d, db := newTestDispatcher(t)
	api := &fakeTG{}
	c := telegram.NewClientWithAPI(api, "bot")
	ctx := context.Background()

	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "/start"))
	d.HandleUpdate(ctx, c, HookMain, callbackUpdate(42, cbMoonEnterDate))

	d.HandleUpdate(ctx, c, HookMain, privateMsgUpdate(42, "25.01.2024"))

	last := api.sentTexts[len(api.sentTexts)-1]
	if !strings.Contains(last, "25.01.2024") || !strings.Contains(last, "Full Moon") {
		t.Fatalf("moon reply = %q, want the 2024-01-25 full moon", last)
	}

	// The pending-input marker is consumed.
	if v, ok, _ := d.Cache.Get(ctx, awaitKey(42)); ok {
		t.Fatalf("await state %q survived", v)
	}
	user, _ := repo.GetUserByChatID(ctx, db, 42)
	ids, _ := repo.ListSentMessageIDs(ctx, db, user.ID)
	if len(ids) != 1 {
		t.Fatalf("tracked = %v, want one slot row", ids)
	}
}
