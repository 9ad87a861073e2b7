// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the content catalog the bot serves: facts
// and subscriptions, the article tree, quizzes, and cached APOD entries.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-astro-bot/internal/domain"
)

// --- facts & subscriptions ---

// FactForDate returns the fact scheduled for the given YYYY-MM-DD date, or
// (nil, nil) when none is scheduled.
func FactForDate(ctx context.Context, db *gorm.DB, date string) (*domain.SpaceFact, error) {
	var f domain.SpaceFact
	err := db.WithContext(ctx).Where("mailing_date = ?", date).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFacts returns all facts, newest first.
func ListFacts(ctx context.Context, db *gorm.DB) ([]domain.SpaceFact, error) {
	var out []domain.SpaceFact
	err := db.WithContext(ctx).Order("id DESC").Find(&out).Error
	return out, err
}

// CreateFact inserts a fact row.
func CreateFact(ctx context.Context, db *gorm.DB, title, body, mailingDate string) (*domain.SpaceFact, error) {
	f := &domain.SpaceFact{Title: title, Body: body, MailingDate: mailingDate}
	return f, db.WithContext(ctx).Create(f).Error
}

// Subscribe upserts the user's daily subscription at sendTime ("HH:MM").
func Subscribe(ctx context.Context, db *gorm.DB, userID uint, sendTime string) error {
	sub := &domain.DailySubscription{TelegramUserID: userID, SendTime: sendTime}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"send_time"}),
		}).
		Create(sub).Error
}

// GetSubscription returns the user's daily subscription, or (nil, nil).
func GetSubscription(ctx context.Context, db *gorm.DB, userID uint) (*domain.DailySubscription, error) {
	var sub domain.DailySubscription
	err := db.WithContext(ctx).Where("telegram_user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unsubscribe removes the user's daily subscription if present.
func Unsubscribe(ctx context.Context, db *gorm.DB, userID uint) error {
	return db.WithContext(ctx).
		Where("telegram_user_id = ?", userID).
		Delete(&domain.DailySubscription{}).Error
}

// SubscriptionsDue returns subscriptions whose send time matches the given
// wall-clock minute ("HH:MM"), with owners preloaded.
func SubscriptionsDue(ctx context.Context, db *gorm.DB, sendTime string) ([]domain.DailySubscription, error) {
	var out []domain.DailySubscription
	err := db.WithContext(ctx).
		Preload("TelegramUser").
		Where("send_time = ?", sendTime).
		Find(&out).Error
	return out, err
}

// --- article tree ---

// ListArticleSections returns all sections ordered by id.
func ListArticleSections(ctx context.Context, db *gorm.DB) ([]domain.ArticleSection, error) {
	var out []domain.ArticleSection
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// ListArticleSubsections returns the subsections of one section.
func ListArticleSubsections(ctx context.Context, db *gorm.DB, sectionID uint) ([]domain.ArticleSubsection, error) {
	var out []domain.ArticleSubsection
	err := db.WithContext(ctx).Where("section_id = ?", sectionID).Order("id ASC").Find(&out).Error
	return out, err
}

// ListArticles returns the articles of one subsection.
func ListArticles(ctx context.Context, db *gorm.DB, subsectionID uint) ([]domain.Article, error) {
	var out []domain.Article
	err := db.WithContext(ctx).Where("subsection_id = ?", subsectionID).Order("id ASC").Find(&out).Error
	return out, err
}

// --- quizzes ---

// ListQuizTopics returns all quiz topics ordered by id.
func ListQuizTopics(ctx context.Context, db *gorm.DB) ([]domain.QuizTopic, error) {
	var out []domain.QuizTopic
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// ListQuizLevels returns all quiz levels ordered by id.
func ListQuizLevels(ctx context.Context, db *gorm.DB) ([]domain.QuizLevel, error) {
	var out []domain.QuizLevel
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// ListQuizzes returns the quizzes of one (topic, level) pair.
func ListQuizzes(ctx context.Context, db *gorm.DB, topicID, levelID uint) ([]domain.Quiz, error) {
	var out []domain.Quiz
	err := db.WithContext(ctx).
		Where("topic_id = ? AND level_id = ?", topicID, levelID).
		Order("id ASC").Find(&out).Error
	return out, err
}

// QuizQuestionAt returns the question at position pos (0-based) of a quiz, or
// (nil, nil) past the end.
func QuizQuestionAt(ctx context.Context, db *gorm.DB, quizID uint, pos int) (*domain.QuizQuestion, error) {
	var q domain.QuizQuestion
	err := db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("position ASC, id ASC").
		Offset(pos).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// CountQuizQuestions returns the number of questions in a quiz.
func CountQuizQuestions(ctx context.Context, db *gorm.DB, quizID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.QuizQuestion{}).
		Where("quiz_id = ?", quizID).Count(&n).Error
	return n, err
}

// ListQuizChoices returns the choices of one question.
func ListQuizChoices(ctx context.Context, db *gorm.DB, questionID uint) ([]domain.QuizChoice, error) {
	var out []domain.QuizChoice
	err := db.WithContext(ctx).Where("question_id = ?", questionID).Order("id ASC").Find(&out).Error
	return out, err
}

// GetQuizChoice fetches one choice with its question preloaded.
func GetQuizChoice(ctx context.Context, db *gorm.DB, choiceID uint) (*domain.QuizChoice, error) {
	var c domain.QuizChoice
	if err := db.WithContext(ctx).Preload("Question").First(&c, choiceID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ResetQuizSession starts (or restarts) the user's session for a quiz.
func ResetQuizSession(ctx context.Context, db *gorm.DB, userID, quizID uint) (*domain.QuizSession, error) {
	s := &domain.QuizSession{TelegramUserID: userID, QuizID: quizID, Position: 0, Correct: 0}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_user_id"}, {Name: "quiz_id"}},
			DoUpdates: clause.Assignments(map[string]any{"position": 0, "correct": 0}),
		}).
		Create(s).Error
	return s, err
}

// GetQuizSession fetches the user's session for a quiz, or ErrNotFound.
func GetQuizSession(ctx context.Context, db *gorm.DB, userID, quizID uint) (*domain.QuizSession, error) {
	var s domain.QuizSession
	err := db.WithContext(ctx).
		Where("telegram_user_id = ? AND quiz_id = ?", userID, quizID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AdvanceQuizSession moves the session to the next question, bumping the
// score when the last answer was correct.
func AdvanceQuizSession(ctx context.Context, db *gorm.DB, sessionID uint, correct bool) error {
	updates := map[string]any{"position": gorm.Expr("position + 1")}
	if correct {
		updates["correct"] = gorm.Expr("correct + 1")
	}
	return db.WithContext(ctx).Model(&domain.QuizSession{}).
		Where("id = ?", sessionID).
		Updates(updates).Error
}

// --- APOD cache ---

// GetApodEntry returns the cached entry for a YYYY-MM-DD date, or (nil, nil).
func GetApodEntry(ctx context.Context, db *gorm.DB, date string) (*domain.ApodEntry, error) {
	var e domain.ApodEntry
	err := db.WithContext(ctx).Where("date = ?", date).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertApodEntry stores APOD metadata for a date.
func UpsertApodEntry(ctx context.Context, db *gorm.DB, e *domain.ApodEntry) error {
	e.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "explanation", "image_url", "updated_at"}),
		}).
		Create(e).Error
}

// SetApodFileID caches the Telegram file id after the first successful send.
func SetApodFileID(ctx context.Context, db *gorm.DB, date, fileID string) error {
	return db.WithContext(ctx).Model(&domain.ApodEntry{}).
		Where("date = ?", date).
		Update("telegram_file_id", fileID).Error
}
