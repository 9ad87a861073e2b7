// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Telegram users.
package repo

import (
	"context"
	"errors"

	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/domain"
)

// ErrNotFound is the canonical not-found error for repo lookups.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertUser creates or refreshes the user identified by chatID and returns
// the stored row. Profile fields are updated on every contact so names stay
// current; flags (blocked, admin) are left untouched. Names are NFC-normalized
// so the same profile never produces two byte-distinct spellings.
func UpsertUser(ctx context.Context, db *gorm.DB, chatID int64, firstName, lastName, username string) (*domain.TelegramUser, error) {
	firstName = norm.NFC.String(firstName)
	lastName = norm.NFC.String(lastName)
	var u domain.TelegramUser
	err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = domain.TelegramUser{
			ChatID:    chatID,
			FirstName: firstName,
			LastName:  lastName,
			Username:  username,
		}
		if cerr := db.WithContext(ctx).Create(&u).Error; cerr != nil {
			return nil, cerr
		}
		return &u, nil
	case err != nil:
		return nil, err
	}

	updates := map[string]any{
		"first_name": firstName,
		"last_name":  lastName,
		"username":   username,
	}
	// A user who talks to us again evidently unblocked the bot.
	if u.BotWasBlocked {
		updates["bot_was_blocked"] = false
		u.BotWasBlocked = false
	}
	if err := db.WithContext(ctx).Model(&u).Updates(updates).Error; err != nil {
		return nil, err
	}
	u.FirstName, u.LastName, u.Username = firstName, lastName, username
	return &u, nil
}

// GetUserByChatID fetches a user by Telegram chat id or ErrNotFound.
func GetUserByChatID(ctx context.Context, db *gorm.DB, chatID int64) (*domain.TelegramUser, error) {
	var u domain.TelegramUser
	if err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// MarkBotBlocked records that the user blocked the bot, suppressing further
// sends until they come back.
func MarkBotBlocked(ctx context.Context, db *gorm.DB, userID uint) error {
	return db.WithContext(ctx).Model(&domain.TelegramUser{}).
		Where("id = ?", userID).
		Update("bot_was_blocked", true).Error
}
