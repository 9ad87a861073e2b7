package bot

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-astro-bot/internal/domain"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

func (d *Dispatcher) showTopics(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	topics, err := repo.ListQuizTopics(ctx, d.DB)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return d.renderText(ctx, c, user, false, "🧠 No quizzes yet.", kb(backRow(cbMenu)))
	}
	return d.renderText(ctx, c, user, false, "🧠 *Quizzes*\n\nPick a topic.", topicsKeyboard(topics))
}

func (d *Dispatcher) showLevels(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, topicID uint) error {
	levels, err := repo.ListQuizLevels(ctx, d.DB)
	if err != nil {
		return err
	}
	return d.renderText(ctx, c, user, false, "🧠 Pick a difficulty.", levelsKeyboard(topicID, levels))
}

func (d *Dispatcher) showQuizzes(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, topicID, levelID uint) error {
	quizzes, err := repo.ListQuizzes(ctx, d.DB, topicID, levelID)
	if err != nil {
		return err
	}
	if len(quizzes) == 0 {
		return d.renderText(ctx, c, user, false, "🧠 Nothing at this level yet.", kb(backRow(cbData(cbQuizTopic, topicID))))
	}
	return d.renderText(ctx, c, user, false, "🧠 Pick a quiz.", quizzesKeyboard(topicID, quizzes))
}

// startQuiz resets the user's session and shows the first question.
// Re-entering a quiz always starts over.
func (d *Dispatcher) startQuiz(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, quizID uint) error {
	if _, err := repo.ResetQuizSession(ctx, d.DB, user.ID, quizID); err != nil {
		return err
	}
	return d.showQuestion(ctx, c, user, quizID, 0)
}

func (d *Dispatcher) showQuestion(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, quizID uint, pos int) error {
	q, err := repo.QuizQuestionAt(ctx, d.DB, quizID, pos)
	if err != nil {
		return err
	}
	if q == nil {
		return d.showQuizResult(ctx, c, user, quizID)
	}
	choices, err := repo.ListQuizChoices(ctx, d.DB, q.ID)
	if err != nil {
		return err
	}
	total, err := repo.CountQuizQuestions(ctx, d.DB, quizID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("❓ *Question %d of %d*\n\n%s", pos+1, total, q.Description)
	return d.renderText(ctx, c, user, false, text, choicesKeyboard(choices))
}

// answerQuestion grades the pressed choice, advances the session, and shows
// the explanation screen. The toast returned to the callback tells the user
// immediately whether they were right.
func (d *Dispatcher) answerQuestion(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, choiceID uint) (string, error) {
	choice, err := repo.GetQuizChoice(ctx, d.DB, choiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", d.showTopics(ctx, c, user)
		}
		return "", err
	}
	quizID := choice.Question.QuizID

	sess, err := repo.GetQuizSession(ctx, d.DB, user.ID, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Button from a finished or foreign session; restart cleanly.
			return "", d.startQuiz(ctx, c, user, quizID)
		}
		return "", err
	}
	// Ignore presses on questions the session has moved past (double taps,
	// old keyboards).
	if sess.Position != choice.Question.Position {
		return "", d.showQuestion(ctx, c, user, quizID, sess.Position)
	}

	if err := repo.AdvanceQuizSession(ctx, d.DB, sess.ID, choice.Correct); err != nil {
		return "", err
	}

	toast := "❌ Not quite"
	header := "❌ *Wrong.*"
	if choice.Correct {
		toast = "✅ Correct!"
		header = "✅ *Correct!*"
	}
	text := header
	if choice.Question.Explanation != "" {
		text += "\n\n" + choice.Question.Explanation
	}
	return toast, d.renderText(ctx, c, user, false, text, nextQuestionKeyboard(quizID))
}

func (d *Dispatcher) nextQuestion(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, quizID uint) error {
	sess, err := repo.GetQuizSession(ctx, d.DB, user.ID, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d.startQuiz(ctx, c, user, quizID)
		}
		return err
	}
	return d.showQuestion(ctx, c, user, quizID, sess.Position)
}

func (d *Dispatcher) showQuizResult(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, quizID uint) error {
	sess, err := repo.GetQuizSession(ctx, d.DB, user.ID, quizID)
	if err != nil {
		return err
	}
	total, err := repo.CountQuizQuestions(ctx, d.DB, quizID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🏁 *Quiz finished!*\n\nYour score: %d of %d.", sess.Correct, total)
	return d.renderText(ctx, c, user, false, text, quizDoneKeyboard())
}
