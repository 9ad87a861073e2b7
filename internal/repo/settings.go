// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the configuration singleton and the bot
// credential rows the registry resolves tokens from.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/domain"
)

// GetConfiguration returns the singleton configuration row, creating it with
// defaults on first access.
func GetConfiguration(ctx context.Context, db *gorm.DB) (*domain.Configuration, error) {
	var c domain.Configuration
	err := db.WithContext(ctx).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = domain.Configuration{}
		if cerr := db.WithContext(ctx).Create(&c).Error; cerr != nil {
			return nil, cerr
		}
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetTestMode flips the singleton's test_mode flag.
func SetTestMode(ctx context.Context, db *gorm.DB, enabled bool) error {
	c, err := GetConfiguration(ctx, db)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(c).Update("test_mode", enabled).Error
}

// MainBotToken returns the latest non-test bot token, or "" when none exists.
func MainBotToken(ctx context.Context, db *gorm.DB) (string, error) {
	return lastToken(ctx, db, false)
}

// TestBotToken returns the latest test bot token, or "" when none exists.
func TestBotToken(ctx context.Context, db *gorm.DB) (string, error) {
	return lastToken(ctx, db, true)
}

func lastToken(ctx context.Context, db *gorm.DB, test bool) (string, error) {
	var t domain.BotToken
	err := db.WithContext(ctx).
		Where("test = ?", test).
		Order("id DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return t.Token, nil
}

// CreateBotToken registers a new bot credential.
func CreateBotToken(ctx context.Context, db *gorm.DB, token, name string, test bool) (*domain.BotToken, error) {
	t := &domain.BotToken{Token: token, Name: name, Test: test}
	return t, db.WithContext(ctx).Create(t).Error
}
