package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-astro-bot/internal/domain"
)

func btn(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func urlBtn(text, link string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonURL(text, link)
}

func backRow(data string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(btn("« Back", data))
}

func kb(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

func menuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return kb(
		tgbotapi.NewInlineKeyboardRow(btn("🌙 Moon calendar", cbMoon)),
		tgbotapi.NewInlineKeyboardRow(btn("🔭 Picture of the day", cbApod)),
		tgbotapi.NewInlineKeyboardRow(btn("💫 Interesting facts", cbFacts)),
		tgbotapi.NewInlineKeyboardRow(btn("📚 Articles", cbArticles)),
		tgbotapi.NewInlineKeyboardRow(btn("🧠 Quizzes", cbQuiz)),
	)
}

func moonKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return kb(
		tgbotapi.NewInlineKeyboardRow(btn("Today", cbMoonToday)),
		tgbotapi.NewInlineKeyboardRow(btn("Pick a date", cbMoonEnterDate)),
		backRow(cbMenu),
	)
}

func moonResultKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return kb(
		tgbotapi.NewInlineKeyboardRow(btn("Another date", cbMoonEnterDate)),
		backRow(cbMoon),
	)
}

func apodKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return kb(backRow(cbMenuForced))
}

func factsKeyboard(subscribed bool) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(btn("Today's fact", cbFactToday)),
	}
	if subscribed {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn("Unsubscribe", cbFactUnsub)))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn("Subscribe daily", cbFactSubscribe)))
	}
	rows = append(rows, backRow(cbMenu))
	return kb(rows...)
}

func sectionsKeyboard(sections []domain.ArticleSection) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(sections)+1)
	for _, s := range sections {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn(s.Title, cbData(cbArticleSection, s.ID))))
	}
	rows = append(rows, backRow(cbMenu))
	return kb(rows...)
}

func subsectionsKeyboard(subs []domain.ArticleSubsection) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(subs)+1)
	for _, s := range subs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn(s.Title, cbData(cbArticleSubsect, s.ID))))
	}
	rows = append(rows, backRow(cbArticles))
	return kb(rows...)
}

func articlesKeyboard(sectionID uint, articles []domain.Article) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(articles)+1)
	for _, a := range articles {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(urlBtn(a.Title, a.Link)))
	}
	rows = append(rows, backRow(cbData(cbArticleSection, sectionID)))
	return kb(rows...)
}

func topicsKeyboard(topics []domain.QuizTopic) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(topics)+1)
	for _, t := range topics {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn(t.Title, cbData(cbQuizTopic, t.ID))))
	}
	rows = append(rows, backRow(cbMenu))
	return kb(rows...)
}

func levelsKeyboard(topicID uint, levels []domain.QuizLevel) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(levels)+1)
	for _, l := range levels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn(l.Title, cbData(cbQuizLevel, topicID, l.ID))))
	}
	rows = append(rows, backRow(cbQuiz))
	return kb(rows...)
}

func quizzesKeyboard(topicID uint, quizzes []domain.Quiz) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(quizzes)+1)
	for _, q := range quizzes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn(q.Title, cbData(cbQuizStart, q.ID))))
	}
	rows = append(rows, backRow(cbData(cbQuizTopic, topicID)))
	return kb(rows...)
}

func choicesKeyboard(choices []domain.QuizChoice) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices)+1)
	for _, c := range choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn(c.Text, cbData(cbQuizAnswer, c.ID))))
	}
	rows = append(rows, backRow(cbQuiz))
	return kb(rows...)
}

func nextQuestionKeyboard(quizID uint) *tgbotapi.InlineKeyboardMarkup {
	return kb(
		tgbotapi.NewInlineKeyboardRow(btn("Next question »", cbData(cbQuizNext, quizID))),
		backRow(cbQuiz),
	)
}

func quizDoneKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return kb(
		tgbotapi.NewInlineKeyboardRow(btn("More quizzes", cbQuiz)),
		backRow(cbMenu),
	)
}
