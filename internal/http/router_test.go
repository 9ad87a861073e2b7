package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-astro-bot/internal/bot"
	"github.com/tbourn/go-astro-bot/internal/cache"
	"github.com/tbourn/go-astro-bot/internal/config"
	"github.com/tbourn/go-astro-bot/internal/domain"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/slot"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

// fakeTG satisfies telegram.API and accepts everything.
type fakeTG struct{ sends int32 }

func (f *fakeTG) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	n := atomic.AddInt32(&f.sends, 1)
	return tgbotapi.Message{MessageID: int(n)}, nil
}

func (f *fakeTG) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTG) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{}, nil
}

// fakeNotifier counts config-change publications.
type fakeNotifier struct{ calls int32 }

func (n *fakeNotifier) MarkConfigChanged(context.Context) error {
	atomic.AddInt32(&n.calls, 1)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		GinMode:     "test",
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
		OTEL:        config.OTELConfig{ServiceName: "test"},
	}
}

func newRouter(t *testing.T) (*gin.Engine, *gorm.DB, *fakeNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if _, err := repo.CreateBotToken(context.Background(), db, "m-tok", "Main", false); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	reg := bot.NewRegistry(db)
	reg.NewClient = func(string) (*telegram.Client, error) {
		return telegram.NewClientWithAPI(&fakeTG{}, "bot"), nil
	}
	store := cache.New(db)
	dispatcher := bot.NewDispatcher(db, store, slot.NewReconciler(db), nil, time.UTC)
	notifier := &fakeNotifier{}

	engine := gin.New()
	RegisterRoutes(engine, Deps{
		DB:         db,
		Registry:   reg,
		Dispatcher: dispatcher,
		Notifier:   notifier,
	}, testConfig())
	return engine, db, notifier
}

func doJSON(t *testing.T, e *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	e, _, _ := newRouter(t)
	w := doJSON(t, e, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestUnknownRoute_ReturnsStructured404(t *testing.T) {
	e, _, _ := newRouter(t)
	w := doJSON(t, e, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["code"] != "not_found" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestWebhook_UnknownHookRejected(t *testing.T) {
	e, _, _ := newRouter(t)
	w := doJSON(t, e, http.MethodPost, "/tg/staging", map[string]any{"update_id": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_MalformedUpdateRejected(t *testing.T) {
	e, _, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/tg/main", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_ValidUpdateAccepted(t *testing.T) {
	e, db, _ := newRouter(t)
	upd := map[string]any{
		"update_id": 7,
		"message": map[string]any{
			"message_id": 1,
			"text":       "hello",
			"chat":       map[string]any{"id": 42, "type": "private"},
			"from":       map[string]any{"id": 42, "first_name": "Ada"},
		},
	}
	w := doJSON(t, e, http.MethodPost, "/tg/main", upd)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	if _, err := repo.GetUserByChatID(context.Background(), db, 42); err != nil {
		t.Fatalf("update was not dispatched: %v", err)
	}
}

func TestFacts_CreateAndList(t *testing.T) {
	e, _, _ := newRouter(t)

	w := doJSON(t, e, http.MethodPost, "/api/v1/facts", map[string]any{
		"title": "Sun", "body": "It is a star.", "mailing_date": "2024-06-01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body=%s", w.Code, w.Body.String())
	}

	if w := doJSON(t, e, http.MethodPost, "/api/v1/facts", map[string]any{"title": "no body"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing body status = %d, want 400", w.Code)
	}
	if w := doJSON(t, e, http.MethodPost, "/api/v1/facts", map[string]any{
		"body": "x", "mailing_date": "01.06.2024",
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", w.Code)
	}

	w = doJSON(t, e, http.MethodGet, "/api/v1/facts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var facts []domain.SpaceFact
	if err := json.Unmarshal(w.Body.Bytes(), &facts); err != nil || len(facts) != 1 || facts[0].Title != "Sun" {
		t.Fatalf("list body = %s (err=%v)", w.Body.String(), err)
	}
}

func TestConfig_TestModeTogglePublishesChange(t *testing.T) {
	e, db, notifier := newRouter(t)

	w := doJSON(t, e, http.MethodGet, "/api/v1/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get config status = %d", w.Code)
	}

	w = doJSON(t, e, http.MethodPut, "/api/v1/config/test-mode", map[string]any{"test_mode": true})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d; body=%s", w.Code, w.Body.String())
	}
	cfg, err := repo.GetConfiguration(context.Background(), db)
	if err != nil || !cfg.TestMode {
		t.Fatalf("test mode not persisted (cfg=%+v err=%v)", cfg, err)
	}
	if atomic.LoadInt32(&notifier.calls) != 1 {
		t.Fatalf("config-change publications = %d, want 1", notifier.calls)
	}

	if w := doJSON(t, e, http.MethodPut, "/api/v1/config/test-mode", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing test_mode status = %d, want 400", w.Code)
	}
}

func TestTokens_CreatePublishesChangeAndHidesSecret(t *testing.T) {
	e, db, notifier := newRouter(t)

	w := doJSON(t, e, http.MethodPost, "/api/v1/tokens", map[string]any{
		"token": "secret-tok", "name": "Rotated", "test": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create token status = %d; body=%s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("secret-tok")) {
		t.Fatalf("token value leaked in response: %s", w.Body.String())
	}
	if tok, _ := repo.TestBotToken(context.Background(), db); tok != "secret-tok" {
		t.Fatalf("stored test token = %q", tok)
	}
	if atomic.LoadInt32(&notifier.calls) != 1 {
		t.Fatalf("config-change publications = %d, want 1", notifier.calls)
	}

	if w := doJSON(t, e, http.MethodPost, "/api/v1/tokens", map[string]any{"name": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing token status = %d, want 400", w.Code)
	}
}
