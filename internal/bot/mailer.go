package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/cache"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/slot"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

// Mailer delivers the daily space fact to subscribers whose send time matches
// the current minute. It runs inside the scheduler tick on whichever worker
// holds the scheduler gate.
type Mailer struct {
	DB    *gorm.DB
	Cache *cache.Store
	Slots *slot.Reconciler
	Reg   *Registry
	Loc   *time.Location
	Log   *zerolog.Logger
}

// NewMailer wires a mailer over the shared collaborators.
func NewMailer(db *gorm.DB, store *cache.Store, slots *slot.Reconciler, reg *Registry, loc *time.Location) *Mailer {
	return &Mailer{DB: db, Cache: store, Slots: slots, Reg: reg, Loc: loc}
}

func (m *Mailer) logger() *zerolog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return &log.Logger
}

// Dispatch sends today's fact — or a no-fact-today notice — to every
// subscription due at the tick's minute. A cache marker makes the
// (date, minute) pair idempotent, so a scheduler handover mid-minute cannot
// double-send.
func (m *Mailer) Dispatch(ctx context.Context, now time.Time) {
	now = now.In(m.Loc)
	date := now.Format("2006-01-02")
	minute := now.Format("15:04")
	lg := m.logger().With().Str("date", date).Str("minute", minute).Logger()

	subs, err := repo.SubscriptionsDue(ctx, m.DB, minute)
	if err != nil {
		lg.Error().Err(err).Msg("mailer: list due subscriptions failed")
		return
	}
	if len(subs) == 0 {
		return
	}

	fact, err := repo.FactForDate(ctx, m.DB, date)
	if err != nil {
		lg.Error().Err(err).Msg("mailer: fetch fact failed")
		return
	}

	won, err := m.Cache.Add(ctx, fmt.Sprintf("mail:%s:%s", date, minute), "1", time.Hour)
	if err != nil {
		lg.Error().Err(err).Msg("mailer: idempotency marker failed")
		return
	}
	if !won {
		return
	}

	c, err := m.Reg.Get(ctx, HookMain)
	if err != nil {
		lg.Error().Err(err).Msg("mailer: resolve bot failed")
		return
	}

	// No fact on the schedule still notifies subscribers, so a silent day
	// reads as an operator choice rather than a broken bot.
	text := noFactTodayText
	if fact != nil {
		text = FormatFact(fact)
	}
	sent := 0
	for i := range subs {
		user := subs[i].TelegramUser
		if user.Blocked || user.BotWasBlocked {
			continue
		}
		// The fact replaces the user's slot so it lands at the bottom of
		// the chat like a fresh notification.
		_, serr := m.Slots.Render(ctx, c, &user, true,
			func() (int, error) { return c.SendText(user.ChatID, text, menuKeyboard()) },
			func(chatID int64, messageID int) error { return c.EditText(chatID, messageID, text, menuKeyboard()) },
		)
		switch {
		case serr == nil:
			sent++
		case telegram.IsBlockedByUser(serr):
			if merr := repo.MarkBotBlocked(ctx, m.DB, user.ID); merr != nil {
				lg.Error().Err(merr).Int64("chat_id", user.ChatID).Msg("mailer: mark blocked failed")
			}
		default:
			lg.Warn().Err(serr).Int64("chat_id", user.ChatID).Msg("mailer: send failed")
		}
	}
	lg.Info().Int("due", len(subs)).Int("sent", sent).Msg("mailer: dispatch complete")
}
