// Package bot owns the bot-instance registry and inbound update handling:
// command and callback dispatch, inline keyboards, and the feature screens
// (menu, moon calculator, APOD, facts, articles, quizzes).
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

// Hook ids route webhook deliveries to the right bot instance.
const (
	HookMain = "main"
	HookTest = "test"
)

// ErrNoToken means the requested bot identity has no credential configured.
var ErrNoToken = errors.New("bot token not configured")

// ErrUnknownHook means the hook id does not name a bot identity.
var ErrUnknownHook = errors.New("unknown hook id")

// Registry holds the live bot clients with a controlled lifecycle: lazy
// create from stored credentials, cached get, and invalidate on reload. It
// replaces ad-hoc package-level singletons so tests can run isolated
// registries side by side.
type Registry struct {
	db *gorm.DB

	// NewClient is a seam for tests; defaults to telegram.NewClient.
	NewClient func(token string) (*telegram.Client, error)

	mu   sync.Mutex
	bots map[string]*telegram.Client
}

// NewRegistry returns an empty registry reading credentials from db.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db:        db,
		NewClient: telegram.NewClient,
		bots:      make(map[string]*telegram.Client),
	}
}

// Get returns the client for a hook id, creating it on first use. When the
// configuration singleton has test mode enabled the main and test credentials
// swap roles, so the "main" identity runs on the test token and vice versa.
func (r *Registry) Get(ctx context.Context, hookID string) (*telegram.Client, error) {
	if hookID != HookMain && hookID != HookTest {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHook, hookID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.bots[hookID]; ok {
		return c, nil
	}

	token, err := r.resolveToken(ctx, hookID)
	if err != nil {
		return nil, err
	}

	c, err := r.NewClient(token)
	if err != nil {
		return nil, fmt.Errorf("init %s bot: %w", hookID, err)
	}
	r.bots[hookID] = c
	return c, nil
}

// Peek returns the cached client for a hook id without creating one.
func (r *Registry) Peek(hookID string) (*telegram.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.bots[hookID]
	return c, ok
}

// Invalidate drops every cached client so the next Get re-reads credentials
// and configuration. Called by the reload path after a config change.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots = make(map[string]*telegram.Client)
}

func (r *Registry) resolveToken(ctx context.Context, hookID string) (string, error) {
	mainToken, err := repo.MainBotToken(ctx, r.db)
	if err != nil {
		return "", err
	}
	testToken, err := repo.TestBotToken(ctx, r.db)
	if err != nil {
		return "", err
	}

	cfg, err := repo.GetConfiguration(ctx, r.db)
	if err != nil {
		return "", err
	}
	if cfg.TestMode && testToken != "" {
		mainToken, testToken = testToken, mainToken
	}

	token := mainToken
	if hookID == HookTest {
		token = testToken
	}
	if token == "" {
		return "", fmt.Errorf("%w (%s)", ErrNoToken, hookID)
	}
	return token, nil
}
