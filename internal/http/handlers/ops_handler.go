// Package handlers provides HTTP handler implementations for the ops API and
// the Telegram webhook endpoint.
//
// The ops API is the operator's surface: it manages the fact catalog, bot
// credentials, and the test-mode switch. Mutations that change how the fleet
// must behave (credentials, test mode) publish a config-change stamp so every
// worker hot-reloads.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/http/middleware"
	"github.com/tbourn/go-astro-bot/internal/repo"
)

// ConfigNotifier publishes the fleet-wide config-change stamp.
type ConfigNotifier interface {
	MarkConfigChanged(ctx context.Context) error
}

// Ops bundles the ops API handlers and their dependencies.
type Ops struct {
	DB       *gorm.DB
	Notifier ConfigNotifier
}

// NewOps constructs the ops handler set.
func NewOps(db *gorm.DB, notifier ConfigNotifier) *Ops {
	return &Ops{DB: db, Notifier: notifier}
}

// CreateFactRequest is the POST /facts payload.
type CreateFactRequest struct {
	Title       string `json:"title"`
	Body        string `json:"body" binding:"required"`
	MailingDate string `json:"mailing_date"`
}

// ListFacts handles GET /facts.
//
// @Summary      List space facts
// @Produce      json
// @Success      200 {array} domain.SpaceFact
// @Failure      500 {object} ErrorResponse
// @Router       /facts [get]
func (h *Ops) ListFacts(c *gin.Context) {
	facts, err := repo.ListFacts(c.Request.Context(), h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list facts")
		return
	}
	ok(c, http.StatusOK, facts)
}

// CreateFact handles POST /facts.
//
// @Summary      Create a space fact
// @Accept       json
// @Produce      json
// @Param        payload body CreateFactRequest true "fact"
// @Success      201 {object} domain.SpaceFact
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /facts [post]
func (h *Ops) CreateFact(c *gin.Context) {
	var req CreateFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body is required")
		return
	}
	if req.MailingDate != "" {
		if _, err := time.Parse("2006-01-02", req.MailingDate); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mailing_date must be YYYY-MM-DD")
			return
		}
	}
	fact, err := repo.CreateFact(c.Request.Context(), h.DB, strings.TrimSpace(req.Title), req.Body, req.MailingDate)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create fact")
		return
	}
	ok(c, http.StatusCreated, fact)
}

// GetConfig handles GET /config.
//
// @Summary      Read the configuration singleton
// @Produce      json
// @Success      200 {object} domain.Configuration
// @Failure      500 {object} ErrorResponse
// @Router       /config [get]
func (h *Ops) GetConfig(c *gin.Context) {
	cfg, err := repo.GetConfiguration(c.Request.Context(), h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read configuration")
		return
	}
	ok(c, http.StatusOK, cfg)
}

// SetTestModeRequest is the PUT /config/test-mode payload.
type SetTestModeRequest struct {
	TestMode *bool `json:"test_mode" binding:"required"`
}

// SetTestMode handles PUT /config/test-mode. Flipping the switch swaps the
// main and test bot credentials fleet-wide; the published stamp makes every
// worker tear down and rebuild its bots.
//
// @Summary      Toggle test mode
// @Accept       json
// @Produce      json
// @Param        payload body SetTestModeRequest true "mode"
// @Success      200 {object} domain.Configuration
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /config/test-mode [put]
func (h *Ops) SetTestMode(c *gin.Context) {
	var req SetTestModeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TestMode == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test_mode is required")
		return
	}
	ctx := c.Request.Context()
	if err := repo.SetTestMode(ctx, h.DB, *req.TestMode); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not update configuration")
		return
	}
	if err := h.Notifier.MarkConfigChanged(ctx); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not publish config change")
		return
	}
	cfg, err := repo.GetConfiguration(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read configuration")
		return
	}
	ok(c, http.StatusOK, cfg)
}

// CreateTokenRequest is the POST /tokens payload.
type CreateTokenRequest struct {
	Token string `json:"token" binding:"required"`
	Name  string `json:"name"`
	Test  bool   `json:"test"`
}

// CreateToken handles POST /tokens. The newest token per flavor wins, so
// rotating a credential is a POST followed by the fleet-wide reload the stamp
// triggers. The token value itself is never echoed back.
//
// @Summary      Register a bot token
// @Accept       json
// @Produce      json
// @Param        payload body CreateTokenRequest true "token"
// @Success      201 {object} domain.BotToken
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /tokens [post]
func (h *Ops) CreateToken(c *gin.Context) {
	var req CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token is required")
		return
	}
	ctx := c.Request.Context()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Bot"
	}
	tok, err := repo.CreateBotToken(ctx, h.DB, strings.TrimSpace(req.Token), name, req.Test)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not store token")
		return
	}
	if err := h.Notifier.MarkConfigChanged(ctx); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not publish config change")
		return
	}
	middleware.LoggerFrom(c).Info().Str("name", name).Bool("test", req.Test).Msg("bot token registered")
	ok(c, http.StatusCreated, tok)
}
