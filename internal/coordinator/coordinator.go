// Package coordinator makes N identical worker processes behave like one
// logical bot. Every worker boots the same code against the same database;
// distributed gates in the shared cache decide which worker registers the
// Telegram webhooks and which one runs the background scheduler, and a
// polling watcher tears everything down and rebuilds it when the operator
// flips configuration.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-astro-bot/internal/bot"
	"github.com/tbourn/go-astro-bot/internal/cache"
	"github.com/tbourn/go-astro-bot/internal/config"
	"github.com/tbourn/go-astro-bot/internal/lock"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

// Coordination keys in the shared cache.
const (
	// keyWebhookSet* gate webhook registration: the worker that wins the
	// flag is the only one allowed to call setWebhook for that identity.
	keyMainWebhookSet = "main_wh_set"
	keyTestWebhookSet = "test_wh_set"

	// keySchedulerStarted gates the background scheduler to one worker.
	keySchedulerStarted = "scheduler_started"

	// keyConfigChangedAt holds an RFC3339Nano stamp; the watcher reloads
	// when the stored value differs from the one it last saw.
	keyConfigChangedAt = "config_changed_at"

	// keyLocksCleared makes the boot-time flag wipe run once per fleet
	// start instead of once per worker.
	keyLocksCleared = "locks_cleared"
)

// stampTTL keeps the config-change stamp alive long enough for every worker
// to observe it, including ones that boot later.
const stampTTL = 30 * 24 * time.Hour

func webhookKey(hookID string) string {
	if hookID == bot.HookTest {
		return keyTestWebhookSet
	}
	return keyMainWebhookSet
}

// Runner is the scheduler surface the coordinator manages. Stop must block
// until in-flight work finishes.
type Runner interface {
	Start()
	Stop()
	Running() bool
}

// Coordinator owns one worker's share of fleet-wide startup and reload. It
// tracks which gates this process won so reload and shutdown release only
// what this process holds.
type Coordinator struct {
	Cache *cache.Store
	Locks lock.Lock
	Reg   *bot.Registry
	Cfg   config.WebhookConfig

	// PollInterval is the config-change watcher cadence.
	PollInterval time.Duration

	// NewRunner builds a fresh scheduler; called at startup and again on
	// every reload so the rebuilt scheduler sees new configuration.
	NewRunner func() (Runner, error)

	// Sleep is a seam for retry backoff in tests; defaults to time.Sleep.
	Sleep func(time.Duration)
	Log   *zerolog.Logger

	mu        sync.Mutex
	runner    Runner
	held      map[string]bool // gate keys this process won
	lastStamp string
}

// New wires a coordinator. PollInterval and the webhook config come from the
// application config; runner construction is injected by the caller.
func New(store *cache.Store, locks lock.Lock, reg *bot.Registry, cfg config.WebhookConfig, poll time.Duration, newRunner func() (Runner, error)) *Coordinator {
	return &Coordinator{
		Cache:        store,
		Locks:        locks,
		Reg:          reg,
		Cfg:          cfg,
		PollInterval: poll,
		NewRunner:    newRunner,
		held:         make(map[string]bool),
	}
}

func (c *Coordinator) logger() *zerolog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return &log.Logger
}

func (c *Coordinator) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Start performs the boot sequence: wipe stale gates once per fleet start,
// remember the current config stamp, claim whatever gates are free, and
// launch the watcher. It returns once startup is underway; webhook
// registration runs in the background because it talks to an external API.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.clearLocksOnce(ctx); err != nil {
		return err
	}

	stamp, _, err := c.Cache.Get(ctx, keyConfigChangedAt)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.lastStamp = stamp
	c.mu.Unlock()

	c.startup(ctx)
	go c.watch(ctx)
	return nil
}

// clearLocksOnce wipes the coordination gates left over from the previous
// fleet run. All workers race for the marker; exactly one wins and clears,
// the rest see a fresh fleet state. The marker's short TTL bounds the window
// in which a late-booting worker could mistake an old fleet's marker for a
// fresh one.
func (c *Coordinator) clearLocksOnce(ctx context.Context) error {
	won, err := c.Cache.Add(ctx, keyLocksCleared, "1", c.Cfg.StartupFlagTTL)
	if err != nil {
		return err
	}
	if !won {
		c.logger().Debug().Msg("coordinator: another worker cleared startup locks")
		return nil
	}
	c.logger().Info().Msg("coordinator: clearing stale coordination gates")
	return c.Locks.Release(ctx, keyMainWebhookSet, keyTestWebhookSet, keySchedulerStarted)
}

// startup claims the webhook gates and the scheduler gate. Losing any gate is
// the expected outcome for all but one worker and is logged at debug.
func (c *Coordinator) startup(ctx context.Context) {
	for _, hookID := range []string{bot.HookMain, bot.HookTest} {
		go func(hookID string) {
			if err := c.ensureWebhook(ctx, hookID); err != nil {
				c.logger().Error().Err(err).Str("hook", hookID).Msg("coordinator: webhook setup failed")
			}
		}(hookID)
	}

	if err := c.ensureScheduler(ctx); err != nil {
		c.logger().Error().Err(err).Msg("coordinator: scheduler startup failed")
	}
}

// ensureWebhook registers the webhook for one bot identity iff this worker
// wins the identity's gate. Rate-limited attempts honor the server's
// retry-after and are capped; any other failure abandons the attempt and
// releases the gate so a later reload can retry.
func (c *Coordinator) ensureWebhook(ctx context.Context, hookID string) error {
	key := webhookKey(hookID)
	won, err := c.Locks.Acquire(ctx, key, c.Cfg.FlagTTL)
	if err != nil {
		return err
	}
	if !won {
		c.logger().Debug().Str("hook", hookID).Msg("coordinator: webhook gate held elsewhere")
		return nil
	}
	c.markHeld(key, true)

	if err := c.setWebhook(ctx, hookID); err != nil {
		c.markHeld(key, false)
		if rerr := c.Locks.Release(ctx, key); rerr != nil {
			c.logger().Error().Err(rerr).Str("hook", hookID).Msg("coordinator: gate release failed")
		}
		return err
	}
	c.logger().Info().Str("hook", hookID).Msg("coordinator: webhook registered")
	return nil
}

func (c *Coordinator) setWebhook(ctx context.Context, hookID string) error {
	client, err := c.Reg.Get(ctx, hookID)
	if err != nil {
		if errors.Is(err, bot.ErrNoToken) && hookID == bot.HookTest {
			// Running without a secondary identity is a valid deployment.
			c.logger().Info().Msg("coordinator: no test credential, skipping test bot")
			return nil
		}
		return err
	}

	url := c.Cfg.BaseURL + "/tg/" + hookID
	var lastErr error
	for attempt := 1; attempt <= c.Cfg.MaxSetRetries; attempt++ {
		lastErr = client.SetWebhook(url)
		if lastErr == nil {
			break
		}
		wait, isRateLimit := telegram.RetryAfter(lastErr)
		if !isRateLimit {
			return lastErr
		}
		c.logger().Warn().
			Str("hook", hookID).Int("attempt", attempt).Dur("retry_after", wait).
			Msg("coordinator: webhook registration rate limited")
		if attempt < c.Cfg.MaxSetRetries {
			c.sleep(wait)
		}
	}
	if lastErr != nil {
		return lastErr
	}

	if hookID == bot.HookMain {
		if err := client.RegisterCommands(botCommands()...); err != nil {
			c.logger().Warn().Err(err).Msg("coordinator: command registration failed")
		}
	}
	return nil
}

// ensureScheduler starts the background scheduler iff this worker wins the
// scheduler gate.
func (c *Coordinator) ensureScheduler(ctx context.Context) error {
	won, err := c.Locks.Acquire(ctx, keySchedulerStarted, c.Cfg.FlagTTL)
	if err != nil {
		return err
	}
	if !won {
		c.logger().Debug().Msg("coordinator: scheduler gate held elsewhere")
		return nil
	}
	c.markHeld(keySchedulerStarted, true)

	runner, err := c.NewRunner()
	if err != nil {
		c.markHeld(keySchedulerStarted, false)
		if rerr := c.Locks.Release(ctx, keySchedulerStarted); rerr != nil {
			c.logger().Error().Err(rerr).Msg("coordinator: scheduler gate release failed")
		}
		return err
	}
	runner.Start()

	c.mu.Lock()
	c.runner = runner
	c.mu.Unlock()
	return nil
}

// watch polls the config-change stamp and triggers a reload whenever it
// moves. The loop ends when ctx is cancelled.
func (c *Coordinator) watch(ctx context.Context) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stamp, ok, err := c.Cache.Get(ctx, keyConfigChangedAt)
			if err != nil {
				c.logger().Error().Err(err).Msg("coordinator: stamp poll failed")
				continue
			}
			if !ok {
				continue
			}
			c.mu.Lock()
			changed := stamp != c.lastStamp
			if changed {
				c.lastStamp = stamp
			}
			c.mu.Unlock()
			if changed {
				c.logger().Info().Str("stamp", stamp).Msg("coordinator: config change detected, reloading")
				c.Reload(ctx)
			}
		}
	}
}

// Reload tears down this worker's share of the fleet state and re-runs
// startup. Only gates this process holds are released, so the fleet keeps
// its exactly-one-winner property: the previous holder releases once, then
// the atomic gate picks a single new winner.
func (c *Coordinator) Reload(ctx context.Context) {
	c.mu.Lock()
	runner := c.runner
	c.runner = nil
	var release []string
	for key, held := range c.held {
		if held {
			release = append(release, key)
		}
	}
	c.held = make(map[string]bool)
	c.mu.Unlock()

	if runner != nil {
		runner.Stop()
	}
	if len(release) > 0 {
		if err := c.Locks.Release(ctx, release...); err != nil {
			c.logger().Error().Err(err).Strs("keys", release).Msg("coordinator: gate release failed")
		}
	}

	c.Reg.Invalidate()
	c.startup(ctx)
}

// Stop is the graceful-shutdown counterpart of Start: the scheduler joins and
// held gates are released so surviving workers can take over.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	runner := c.runner
	c.runner = nil
	var release []string
	for key, held := range c.held {
		if held {
			release = append(release, key)
		}
	}
	c.held = make(map[string]bool)
	c.mu.Unlock()

	if runner != nil {
		runner.Stop()
	}
	if len(release) > 0 {
		if err := c.Locks.Release(ctx, release...); err != nil {
			c.logger().Error().Err(err).Strs("keys", release).Msg("coordinator: gate release failed")
		}
	}
}

// MarkConfigChanged publishes a fresh change stamp; every worker's watcher
// (including this one's) reloads on its next poll.
func (c *Coordinator) MarkConfigChanged(ctx context.Context) error {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	return c.Cache.Set(ctx, keyConfigChangedAt, stamp, stampTTL)
}

// Running reports whether this worker currently runs the scheduler.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner != nil && c.runner.Running()
}

func (c *Coordinator) markHeld(key string, v bool) {
	c.mu.Lock()
	c.held[key] = v
	c.mu.Unlock()
}

// botCommands is the command list published to the Telegram UI.
func botCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "menu", Description: "Open the main menu"},
		{Command: "help", Description: "What this bot can do"},
	}
}
