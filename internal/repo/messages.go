// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the tracked
// sent-message rows the slot reconciler works against.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/domain"
)

// CreateSentMessage records a freshly sent Telegram message for the user.
func CreateSentMessage(ctx context.Context, db *gorm.DB, userID uint, messageID int) (*domain.SentMessage, error) {
	m := &domain.SentMessage{
		MessageID:      messageID,
		TelegramUserID: userID,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// LastSentMessage returns the most recently created tracked row for the user,
// or (nil, nil) when the user has none.
func LastSentMessage(ctx context.Context, db *gorm.DB, userID uint) (*domain.SentMessage, error) {
	var m domain.SentMessage
	err := db.WithContext(ctx).
		Where("telegram_user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListSentMessageIDs returns the Telegram message ids of every tracked row
// for the user, oldest first.
func ListSentMessageIDs(ctx context.Context, db *gorm.DB, userID uint) ([]int, error) {
	var ids []int
	err := db.WithContext(ctx).Model(&domain.SentMessage{}).
		Where("telegram_user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Pluck("message_id", &ids).Error
	return ids, err
}

// DeleteSentMessages hard-deletes every tracked row for the user.
func DeleteSentMessages(ctx context.Context, db *gorm.DB, userID uint) error {
	return db.WithContext(ctx).
		Where("telegram_user_id = ?", userID).
		Delete(&domain.SentMessage{}).Error
}

// DeleteSentMessageByID hard-deletes one tracked row by its Telegram message
// id. Used when a stale edit target is replaced.
func DeleteSentMessageByID(ctx context.Context, db *gorm.DB, userID uint, messageID int) error {
	return db.WithContext(ctx).
		Where("telegram_user_id = ? AND message_id = ?", userID, messageID).
		Delete(&domain.SentMessage{}).Error
}

// CountSentMessages returns the number of tracked rows for the user.
func CountSentMessages(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.SentMessage{}).
		Where("telegram_user_id = ?", userID).
		Count(&n).Error
	return n, err
}
