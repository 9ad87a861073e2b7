package handlers

import (
	"errors"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-astro-bot/internal/bot"
	"github.com/tbourn/go-astro-bot/internal/http/middleware"
)

// Webhook receives Telegram update deliveries at POST /tg/:hookID and hands
// them to the dispatcher for the bot identity the hook names.
type Webhook struct {
	Reg        *bot.Registry
	Dispatcher *bot.Dispatcher
}

// NewWebhook constructs the webhook handler.
func NewWebhook(reg *bot.Registry, d *bot.Dispatcher) *Webhook {
	return &Webhook{Reg: reg, Dispatcher: d}
}

// Handle processes one update delivery. Telegram retries non-2xx responses,
// so once an update has been parsed and routed the response is 200 even when
// handling it failed — redelivering a user-level failure would not fix it.
func (h *Webhook) Handle(c *gin.Context) {
	hookID := c.Param("hookID")

	client, err := h.Reg.Get(c.Request.Context(), hookID)
	if err != nil {
		switch {
		case errors.Is(err, bot.ErrUnknownHook):
			fail(c, http.StatusBadRequest, ErrCodeUnknownHook, "unknown hook id")
		case errors.Is(err, bot.ErrNoToken):
			fail(c, http.StatusBadRequest, ErrCodeUnknownHook, "hook has no credential")
		default:
			middleware.LoggerFrom(c).Error().Err(err).Str("hook", hookID).Msg("webhook: bot resolution failed")
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "bot unavailable")
		}
		return
	}

	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed update")
		return
	}

	h.Dispatcher.HandleUpdate(c.Request.Context(), client, hookID, upd)
	c.Status(http.StatusOK)
}
