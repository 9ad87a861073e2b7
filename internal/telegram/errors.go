// Package telegram wraps the Telegram Bot API behind a small gateway surface
// and classifies its failures into the handful of classes the rest of the
// service reacts to: transient rate limits, stale message references, and
// permanent per-user blocks.
package telegram

import (
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RetryAfter extracts the server-advertised backoff from a rate-limit error.
// The second result is false when err is not a 429.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 429 {
		return 0, false
	}
	secs := apiErr.ResponseParameters.RetryAfter
	if secs <= 0 {
		secs = 1
	}
	return time.Duration(secs) * time.Second, true
}

// staleMarkers are the Bot API message fragments that mean the referenced
// message is gone or immutable — the reconciler recovers from these locally.
var staleMarkers = []string{
	"message to edit not found",
	"message to delete not found",
	"message can't be edited",
	"message can't be deleted",
	"message is not modified",
	"message_id_invalid",
}

// IsStaleMessage reports whether err is the "edit/delete target no longer
// usable" class of gateway error.
func IsStaleMessage(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	low := strings.ToLower(apiErr.Message)
	for _, m := range staleMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// IsBlockedByUser reports whether err means the recipient blocked the bot.
// This is permanent until the user comes back; callers record it as state.
func IsBlockedByUser(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "blocked by the user")
}
