// Package slot maintains the per-user message slot: each user has at most one
// live bot-rendered message in their chat, edited in place as they navigate
// menus. When an edit target has gone stale the reconciler falls back to
// delete-and-resend, so the tracked state converges instead of accumulating.
package slot

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/domain"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

// SendFunc sends a fresh message and returns its Telegram message id.
type SendFunc func() (int, error)

// EditFunc edits the given message in place.
type EditFunc func(chatID int64, messageID int) error

// Deleter is the gateway slice the reconciler needs for cleanup.
type Deleter interface {
	DeleteMessage(chatID int64, messageID int) error
	DeleteMessages(chatID int64, messageIDs []int) error
}

// Reconciler implements the message-slot invariant over the sent_messages
// table. Renders for the same user are serialized with an in-process mutex so
// concurrent callback deliveries cannot interleave; cross-process races are
// accepted (one worker handles one user's updates at a time in practice).
type Reconciler struct {
	DB *gorm.DB

	// IsStale classifies edit/delete failures that are recovered locally.
	// Defaults to telegram.IsStaleMessage.
	IsStale func(error) bool

	// Log defaults to the global logger.
	Log *zerolog.Logger

	mu    sync.Mutex
	users map[uint]*sync.Mutex
}

// NewReconciler returns a Reconciler bound to db.
func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{DB: db, users: make(map[uint]*sync.Mutex)}
}

func (r *Reconciler) logger() *zerolog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return &log.Logger
}

func (r *Reconciler) isStale(err error) bool {
	if r.IsStale != nil {
		return r.IsStale(err)
	}
	return telegram.IsStaleMessage(err)
}

// userLock returns the mutex serializing renders for one user. Entries are
// never evicted; the map is bounded by the user table.
func (r *Reconciler) userLock(userID uint) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users == nil {
		r.users = make(map[uint]*sync.Mutex)
	}
	m, ok := r.users[userID]
	if !ok {
		m = &sync.Mutex{}
		r.users[userID] = m
	}
	return m
}

// Render reconciles the user's message slot:
//
//  1. forcedDelete wipes every tracked message first — remote delete is
//     best-effort, local rows are always cleared.
//  2. No tracked message → send fresh and record it.
//  3. Tracked message → edit in place; the tracked row keeps its id.
//  4. Stale edit target → best-effort delete of the old id, then send fresh.
//
// Errors outside the stale class (user blocked the bot, network) propagate to
// the caller; nothing at this layer can correct them. After a successful
// return exactly one tracked row exists for the user.
func (r *Reconciler) Render(ctx context.Context, gw Deleter, user *domain.TelegramUser, forcedDelete bool, send SendFunc, edit EditFunc) (int, error) {
	tr := otel.Tracer("slot/Reconciler")
	ctx, span := tr.Start(ctx, "Render",
		trace.WithAttributes(
			attribute.Int64("chat.id", user.ChatID),
			attribute.Bool("forced_delete", forcedDelete),
		),
	)
	defer span.End()

	lk := r.userLock(user.ID)
	lk.Lock()
	defer lk.Unlock()

	lg := r.logger().With().Int64("chat_id", user.ChatID).Logger()

	if forcedDelete {
		ids, err := repo.ListSentMessageIDs(ctx, r.DB, user.ID)
		if err != nil {
			return 0, err
		}
		if len(ids) > 0 {
			if derr := gw.DeleteMessages(user.ChatID, ids); derr != nil {
				lg.Warn().Err(derr).Ints("message_ids", ids).Msg("forced delete: remote delete incomplete")
			}
		}
		// Local rows must never outlive a forced delete, even when the
		// remote side failed silently.
		if derr := repo.DeleteSentMessages(ctx, r.DB, user.ID); derr != nil {
			lg.Error().Err(derr).Msg("forced delete: local cleanup failed")
		}
	}

	last, err := repo.LastSentMessage(ctx, r.DB, user.ID)
	if err != nil {
		return 0, err
	}

	if last == nil {
		id, serr := send()
		if serr != nil {
			return 0, serr
		}
		if _, cerr := repo.CreateSentMessage(ctx, r.DB, user.ID, id); cerr != nil {
			return 0, cerr
		}
		lg.Debug().Int("message_id", id).Msg("slot: sent fresh message")
		return id, nil
	}

	eerr := edit(user.ChatID, last.MessageID)
	if eerr == nil {
		lg.Debug().Int("message_id", last.MessageID).Msg("slot: edited in place")
		return last.MessageID, nil
	}
	if !r.isStale(eerr) {
		return 0, eerr
	}

	lg.Info().Err(eerr).Int("message_id", last.MessageID).Msg("slot: edit target stale, replacing")
	if derr := gw.DeleteMessage(user.ChatID, last.MessageID); derr != nil {
		lg.Debug().Err(derr).Int("message_id", last.MessageID).Msg("slot: stale delete failed")
	}
	if derr := repo.DeleteSentMessageByID(ctx, r.DB, user.ID, last.MessageID); derr != nil {
		return 0, derr
	}

	id, serr := send()
	if serr != nil {
		return 0, serr
	}
	if _, cerr := repo.CreateSentMessage(ctx, r.DB, user.ID, id); cerr != nil {
		return 0, cerr
	}
	return id, nil
}
