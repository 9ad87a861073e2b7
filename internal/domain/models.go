// Package domain defines the persistence models for Telegram users, tracked
// outbound messages, bot credentials, the configuration singleton, and the
// astronomy content catalog (facts, articles, quizzes, APOD entries). These
// types are mapped with GORM and form the core data layer of the bot.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// TelegramUser represents one end user of the bot, keyed by their Telegram
// chat id. Blocked tracks operator-side bans; BotWasBlocked records that the
// user blocked the bot (a permanent gateway error class), which suppresses
// further sends to them.
type TelegramUser struct {
	ID           uint   `json:"id"            gorm:"primaryKey"`
	ChatID       int64  `json:"chat_id"       gorm:"uniqueIndex;not null"`
	FirstName    string `json:"first_name"    gorm:"type:varchar(255)"`
	LastName     string `json:"last_name"     gorm:"type:varchar(255)"`
	Username     string `json:"username"      gorm:"type:varchar(255)"`
	Blocked      bool   `json:"blocked"       gorm:"not null;default:false"`
	BotWasBlocked bool  `json:"bot_was_blocked" gorm:"not null;default:false"`
	IsAdmin      bool   `json:"is_admin"      gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for TelegramUser.
func (TelegramUser) TableName() string { return "telegram_users" }

// SentMessage tracks one outbound bot message. For a given user the most
// recently created row is "the" live message the reconciler edits in place;
// older rows are stale and removed when superseded. Rows are hard-deleted —
// a lingering soft-delete marker would break the last-row lookup.
type SentMessage struct {
	ID             uint      `json:"id"         gorm:"primaryKey"`
	MessageID      int       `json:"message_id" gorm:"not null"`
	TelegramUserID uint      `json:"telegram_user_id" gorm:"not null;index:idx_user_sent,priority:1"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_user_sent,priority:2"`

	// TelegramUser is the owner; tracked rows go away with the user.
	TelegramUser TelegramUser `json:"-" gorm:"foreignKey:TelegramUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SentMessage.
func (SentMessage) TableName() string { return "sent_messages" }

// BotToken stores a Telegram bot credential. The latest row with Test=false
// is the main bot, the latest with Test=true is the test bot.
type BotToken struct {
	ID        uint      `json:"id"    gorm:"primaryKey"`
	Token     string    `json:"-"     gorm:"type:varchar(255);not null"`
	Name      string    `json:"name"  gorm:"type:varchar(255);not null;default:'Bot'"`
	Test      bool      `json:"test"  gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for BotToken.
func (BotToken) TableName() string { return "bot_tokens" }

// Configuration is the singleton settings row mutated through the ops API.
// When TestMode flips, the main and test credentials swap roles and every
// worker hot-reloads its bot instances.
type Configuration struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	TestMode  bool      `json:"test_mode" gorm:"not null;default:false"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Configuration.
func (Configuration) TableName() string { return "configuration" }

// DailySubscription subscribes a user to the daily space fact at a fixed
// local wall-clock minute ("HH:MM" in the service timezone).
type DailySubscription struct {
	ID             uint      `json:"id"        gorm:"primaryKey"`
	TelegramUserID uint      `json:"telegram_user_id" gorm:"uniqueIndex;not null"`
	SendTime       string    `json:"send_time" gorm:"type:varchar(5);not null;index"`
	CreatedAt      time.Time `json:"created_at"`

	TelegramUser TelegramUser `json:"-" gorm:"foreignKey:TelegramUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DailySubscription.
func (DailySubscription) TableName() string { return "daily_subscriptions" }

// SpaceFact is one entry of the "interesting facts" catalog. MailingDate
// (YYYY-MM-DD, nullable) marks the day the fact is dispatched to subscribers.
type SpaceFact struct {
	ID          uint           `json:"id"           gorm:"primaryKey"`
	Title       string         `json:"title"        gorm:"type:varchar(255)"`
	Body        string         `json:"body"         gorm:"type:text;not null"`
	MailingDate string         `json:"mailing_date" gorm:"type:varchar(10);index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for SpaceFact.
func (SpaceFact) TableName() string { return "space_facts" }

// ArticleSection is the top level of the article catalog tree.
type ArticleSection struct {
	ID    uint   `json:"id"    gorm:"primaryKey"`
	Title string `json:"title" gorm:"type:varchar(255);not null"`
}

// TableName returns the database table name for ArticleSection.
func (ArticleSection) TableName() string { return "article_sections" }

// ArticleSubsection groups articles under a section.
type ArticleSubsection struct {
	ID        uint   `json:"id"    gorm:"primaryKey"`
	Title     string `json:"title" gorm:"type:varchar(255);not null"`
	SectionID uint   `json:"section_id" gorm:"not null;index"`

	Section ArticleSection `json:"-" gorm:"foreignKey:SectionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ArticleSubsection.
func (ArticleSubsection) TableName() string { return "article_subsections" }

// Article is a titled external link shown in the subsection listing.
type Article struct {
	ID           uint   `json:"id"    gorm:"primaryKey"`
	Title        string `json:"title" gorm:"type:varchar(255);not null"`
	Link         string `json:"link"  gorm:"type:text;not null"`
	SubsectionID uint   `json:"subsection_id" gorm:"not null;index"`

	Subsection ArticleSubsection `json:"-" gorm:"foreignKey:SubsectionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Article.
func (Article) TableName() string { return "articles" }

// QuizTopic is a quiz category (e.g. "Solar system").
type QuizTopic struct {
	ID    uint   `json:"id"    gorm:"primaryKey"`
	Title string `json:"title" gorm:"type:varchar(50);uniqueIndex;not null"`
}

// TableName returns the database table name for QuizTopic.
func (QuizTopic) TableName() string { return "quiz_topics" }

// QuizLevel is a difficulty tier shared across topics.
type QuizLevel struct {
	ID    uint   `json:"id"    gorm:"primaryKey"`
	Title string `json:"title" gorm:"type:varchar(50);uniqueIndex;not null"`
}

// TableName returns the database table name for QuizLevel.
func (QuizLevel) TableName() string { return "quiz_levels" }

// Quiz is a question set belonging to a topic and level.
type Quiz struct {
	ID      uint   `json:"id"    gorm:"primaryKey"`
	Title   string `json:"title" gorm:"type:varchar(50);not null"`
	TopicID uint   `json:"topic_id" gorm:"not null;index"`
	LevelID uint   `json:"level_id" gorm:"not null;index"`

	Topic QuizTopic `json:"-" gorm:"foreignKey:TopicID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Level QuizLevel `json:"-" gorm:"foreignKey:LevelID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Quiz.
func (Quiz) TableName() string { return "quizzes" }

// QuizQuestion is one question of a quiz, ordered by Position.
type QuizQuestion struct {
	ID          uint   `json:"id"       gorm:"primaryKey"`
	QuizID      uint   `json:"quiz_id"  gorm:"not null;index:idx_quiz_questions,priority:1"`
	Position    int    `json:"position" gorm:"not null;index:idx_quiz_questions,priority:2"`
	Description string `json:"description" gorm:"type:text;not null"`
	Explanation string `json:"explanation" gorm:"type:text"`

	Quiz Quiz `json:"-" gorm:"foreignKey:QuizID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for QuizQuestion.
func (QuizQuestion) TableName() string { return "quiz_questions" }

// QuizChoice is one answer option of a question.
type QuizChoice struct {
	ID         uint   `json:"id"      gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text"    gorm:"type:varchar(255);not null"`
	Correct    bool   `json:"correct" gorm:"not null;default:false"`

	Question QuizQuestion `json:"-" gorm:"foreignKey:QuestionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for QuizChoice.
func (QuizChoice) TableName() string { return "quiz_choices" }

// QuizSession tracks a user's progress through one quiz: the index of the
// next question and the number of correct answers so far. One session per
// (user, quiz); restarting a quiz resets the row.
type QuizSession struct {
	ID             uint      `json:"id"       gorm:"primaryKey"`
	TelegramUserID uint      `json:"telegram_user_id" gorm:"not null;uniqueIndex:ux_session_user_quiz"`
	QuizID         uint      `json:"quiz_id"  gorm:"not null;uniqueIndex:ux_session_user_quiz"`
	Position       int       `json:"position" gorm:"not null;default:0"`
	Correct        int       `json:"correct"  gorm:"not null;default:0"`
	UpdatedAt      time.Time `json:"updated_at"`

	TelegramUser TelegramUser `json:"-" gorm:"foreignKey:TelegramUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Quiz         Quiz         `json:"-" gorm:"foreignKey:QuizID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for QuizSession.
func (QuizSession) TableName() string { return "quiz_sessions" }

// ApodEntry caches NASA "Astronomy Picture of the Day" metadata per date
// (YYYY-MM-DD). TelegramFileID is filled after the first successful photo
// send so later sends reuse the uploaded file instead of the source URL.
type ApodEntry struct {
	ID             uint      `json:"id"    gorm:"primaryKey"`
	Date           string    `json:"date"  gorm:"type:varchar(10);uniqueIndex;not null"`
	Title          string    `json:"title" gorm:"type:varchar(255)"`
	Explanation    string    `json:"explanation" gorm:"type:text"`
	ImageURL       string    `json:"image_url"   gorm:"type:text"`
	TelegramFileID string    `json:"-"     gorm:"type:varchar(255)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for ApodEntry.
func (ApodEntry) TableName() string { return "apod_entries" }

// CacheEntry is one key of the shared key-value coordination store. The
// primary-key constraint on Key is what makes add-if-absent atomic: the first
// INSERT wins, every other worker gets a unique violation. Expired rows are
// reclaimed in place rather than garbage-collected.
type CacheEntry struct {
	Key       string    `json:"key"   gorm:"primaryKey;size:255"`
	Value     string    `json:"value" gorm:"type:text"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string { return "cache_entries" }
