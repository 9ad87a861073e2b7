package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-astro-bot/internal/domain"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

func newBotDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// tokenRecordingRegistry returns a registry whose clients remember the token
// they were built with.
func tokenRecordingRegistry(db *gorm.DB) (*Registry, *[]string) {
	var tokens []string
	r := NewRegistry(db)
	r.NewClient = func(token string) (*telegram.Client, error) {
		tokens = append(tokens, token)
		return telegram.NewClientWithAPI(nil, token), nil
	}
	return r, &tokens
}

func seedTokens(t *testing.T, db *gorm.DB, main, test string) {
	t.Helper()
	ctx := context.Background()
	if main != "" {
		if _, err := repo.CreateBotToken(ctx, db, main, "Main", false); err != nil {
			t.Fatalf("seed main: %v", err)
		}
	}
	if test != "" {
		if _, err := repo.CreateBotToken(ctx, db, test, "Test", true); err != nil {
			t.Fatalf("seed test: %v", err)
		}
	}
}

func TestRegistry_ResolvesAndCachesClients(t *testing.T) {
	db := newBotDB(t, &domain.BotToken{}, &domain.Configuration{})
	seedTokens(t, db, "m-tok", "t-tok")
	r, tokens := tokenRecordingRegistry(db)
	ctx := context.Background()

	c1, err := r.Get(ctx, HookMain)
	if err != nil {
		t.Fatalf("Get(main): %v", err)
	}
	c2, err := r.Get(ctx, HookMain)
	if err != nil || c1 != c2 {
		t.Fatalf("second Get must return the cached client")
	}
	if len(*tokens) != 1 || (*tokens)[0] != "m-tok" {
		t.Fatalf("tokens built = %v, want [m-tok]", *tokens)
	}

	if _, err := r.Get(ctx, HookTest); err != nil {
		t.Fatalf("Get(test): %v", err)
	}
	if (*tokens)[1] != "t-tok" {
		t.Fatalf("test client built with %q, want t-tok", (*tokens)[1])
	}
}

func TestRegistry_TestModeSwapsCredentials(t *testing.T) {
	db := newBotDB(t, &domain.BotToken{}, &domain.Configuration{})
	seedTokens(t, db, "m-tok", "t-tok")
	ctx := context.Background()
	if err := repo.SetTestMode(ctx, db, true); err != nil {
		t.Fatalf("set test mode: %v", err)
	}

	r, tokens := tokenRecordingRegistry(db)
	if _, err := r.Get(ctx, HookMain); err != nil {
		t.Fatalf("Get(main): %v", err)
	}
	if _, err := r.Get(ctx, HookTest); err != nil {
		t.Fatalf("Get(test): %v", err)
	}
	// In test mode the identities swap tokens.
	if (*tokens)[0] != "t-tok" || (*tokens)[1] != "m-tok" {
		t.Fatalf("tokens = %v, want swapped [t-tok m-tok]", *tokens)
	}
}

func TestRegistry_TestModeWithoutTestTokenKeepsMain(t *testing.T) {
	db := newBotDB(t, &domain.BotToken{}, &domain.Configuration{})
	seedTokens(t, db, "m-tok", "")
	ctx := context.Background()
	if err := repo.SetTestMode(ctx, db, true); err != nil {
		t.Fatalf("set test mode: %v", err)
	}

	r, tokens := tokenRecordingRegistry(db)
	if _, err := r.Get(ctx, HookMain); err != nil {
		t.Fatalf("Get(main): %v", err)
	}
	if (*tokens)[0] != "m-tok" {
		t.Fatalf("token = %q, want m-tok when no test credential exists", (*tokens)[0])
	}
}

func TestRegistry_ErrorsForMissingTokenAndUnknownHook(t *testing.T) {
	db := newBotDB(t, &domain.BotToken{}, &domain.Configuration{})
	r, _ := tokenRecordingRegistry(db)
	ctx := context.Background()

	if _, err := r.Get(ctx, HookMain); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if _, err := r.Get(ctx, "staging"); !errors.Is(err, ErrUnknownHook) {
		t.Fatalf("err = %v, want ErrUnknownHook", err)
	}
}

func TestRegistry_InvalidateRebuildsWithFreshCredentials(t *testing.T) {
	db := newBotDB(t, &domain.BotToken{}, &domain.Configuration{})
	seedTokens(t, db, "m-old", "")
	r, tokens := tokenRecordingRegistry(db)
	ctx := context.Background()

	if _, err := r.Get(ctx, HookMain); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Rotate the credential and invalidate; the next Get re-reads.
	seedTokens(t, db, "m-new", "")
	r.Invalidate()
	if _, ok := r.Peek(HookMain); ok {
		t.Fatalf("Peek should miss after Invalidate")
	}
	if _, err := r.Get(ctx, HookMain); err != nil {
		t.Fatalf("Get after rotate: %v", err)
	}
	if got := (*tokens)[len(*tokens)-1]; got != "m-new" {
		t.Fatalf("rebuilt with %q, want m-new", got)
	}
}

func TestCallbackData_RoundTrip(t *testing.T) {
	data := cbData(cbQuizLevel, 12, 3)
	if data != "qz_l:12:3" {
		t.Fatalf("cbData = %q", data)
	}
	code, args, ok := parseCB(data)
	if !ok || code != cbQuizLevel || len(args) != 2 || args[0] != 12 || args[1] != 3 {
		t.Fatalf("parseCB = (%q, %v, %v)", code, args, ok)
	}

	if _, _, ok := parseCB("qz_l:12:x"); ok {
		t.Fatalf("malformed args must not parse")
	}
	code, args, ok = parseCB("m")
	if !ok || code != "m" || len(args) != 0 {
		t.Fatalf("bare code parse = (%q, %v, %v)", code, args, ok)
	}
}
