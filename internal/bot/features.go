package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-astro-bot/internal/domain"
	"github.com/tbourn/go-astro-bot/internal/moon"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/telegram"
)

const (
	menuText = "🌌 *Astro bot*\n\nWhat would you like to explore?"

	helpText = "I can show the moon phase for any date, NASA's picture of " +
		"the day, astronomy articles and quizzes, and send you a daily " +
		"space fact.\n\nUse /menu to open the main menu."

	moonMenuText = "🌙 *Moon calendar*\n\nShow today's phase, or pick a date."

	moonDatePrompt = "Send me a date as DD.MM.YYYY (for example 12.04.1961)."

	subTimePrompt = "At what time should I send the daily fact? " +
		"Send it as HH:MM (for example 09:30)."

	noFactTodayText = "💫 No fact scheduled for today, check back tomorrow!"
)

func (d *Dispatcher) showMenu(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, forced bool) error {
	return d.renderText(ctx, c, user, forced, menuText, menuKeyboard())
}

// --- moon calendar ---

func (d *Dispatcher) showMoonMenu(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	return d.renderText(ctx, c, user, false, moonMenuText, moonKeyboard())
}

func (d *Dispatcher) promptMoonDate(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	if err := d.Cache.Set(ctx, awaitKey(user.ChatID), awaitMoonDate, awaitTTL); err != nil {
		return err
	}
	return d.renderText(ctx, c, user, false, moonDatePrompt, kb(backRow(cbMoon)))
}

func (d *Dispatcher) showMoonForInput(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, text string) error {
	t, err := moon.ParseUserDate(text, d.Loc)
	if err != nil {
		// Keep the await state so the user can just retype the date.
		msg := fmt.Sprintf("I couldn't read %q as a date.\n\n%s", text, moonDatePrompt)
		return d.renderText(ctx, c, user, true, msg, kb(backRow(cbMoon)))
	}
	if err := d.Cache.Delete(ctx, awaitKey(user.ChatID)); err != nil {
		return err
	}
	// The user's own message sits above the slot now, so replace rather
	// than edit to keep the answer at the bottom of the chat.
	return d.renderMoon(ctx, c, user, t, true)
}

func (d *Dispatcher) showMoonForDate(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, t time.Time) error {
	return d.renderMoon(ctx, c, user, t, false)
}

func (d *Dispatcher) renderMoon(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, t time.Time, forced bool) error {
	text := fmt.Sprintf("🌙 *Moon on %s*\n\n%s", t.Format("02.01.2006"), moon.Describe(t))
	return d.renderText(ctx, c, user, forced, text, moonResultKeyboard())
}

// --- picture of the day ---

// showApod renders today's NASA picture. The photo and its Telegram file id
// are cached per date; only the first request a day hits the NASA API, and
// only the first send uploads the image.
func (d *Dispatcher) showApod(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	date := d.now().Format("2006-01-02")

	entry, err := repo.GetApodEntry(ctx, d.DB, date)
	if err != nil {
		return err
	}
	if entry == nil {
		pic, ferr := d.Apod.Fetch(ctx, date)
		if ferr != nil {
			d.logger().Warn().Err(ferr).Str("date", date).Msg("apod fetch failed")
			return d.renderText(ctx, c, user, false,
				"🔭 Today's picture is not available right now, try again later.",
				kb(backRow(cbMenu)))
		}
		entry = &domain.ApodEntry{
			Date:        date,
			Title:       pic.Title,
			Explanation: pic.Explanation,
			ImageURL:    pic.URL,
		}
		if uerr := repo.UpsertApodEntry(ctx, d.DB, entry); uerr != nil {
			return uerr
		}
	}

	caption := fmt.Sprintf("🔭 *%s*\n\n%s", entry.Title, truncate(entry.Explanation, 900))
	var file tgbotapi.RequestFileData
	if entry.TelegramFileID != "" {
		file = tgbotapi.FileID(entry.TelegramFileID)
	} else {
		file = tgbotapi.FileURL(entry.ImageURL)
	}

	send := func() (int, error) {
		id, fileID, serr := c.SendPhoto(user.ChatID, file, caption, apodKeyboard())
		if serr != nil {
			return 0, serr
		}
		if entry.TelegramFileID == "" && fileID != "" {
			if ferr := repo.SetApodFileID(ctx, d.DB, date, fileID); ferr != nil {
				d.logger().Warn().Err(ferr).Str("date", date).Msg("apod: cache file id failed")
			}
		}
		return id, nil
	}
	edit := func(chatID int64, messageID int) error {
		return c.EditPhoto(chatID, messageID, file, caption, apodKeyboard())
	}

	_, err = d.Slots.Render(ctx, c, user, false, send, edit)
	return err
}

// --- interesting facts ---

func (d *Dispatcher) showFactsMenu(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	sub, err := repo.GetSubscription(ctx, d.DB, user.ID)
	if err != nil {
		return err
	}
	text := "💫 *Interesting facts*\n\nOne space fact every day."
	if sub != nil {
		text += fmt.Sprintf("\n\nYou are subscribed; delivery at %s.", sub.SendTime)
	}
	return d.renderText(ctx, c, user, false, text, factsKeyboard(sub != nil))
}

func (d *Dispatcher) showTodayFact(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	date := d.now().Format("2006-01-02")
	fact, err := repo.FactForDate(ctx, d.DB, date)
	if err != nil {
		return err
	}
	text := noFactTodayText
	if fact != nil {
		text = FormatFact(fact)
	}
	return d.renderText(ctx, c, user, false, text, kb(backRow(cbFacts)))
}

func (d *Dispatcher) promptSubTime(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	if err := d.Cache.Set(ctx, awaitKey(user.ChatID), awaitSubTime, awaitTTL); err != nil {
		return err
	}
	return d.renderText(ctx, c, user, false, subTimePrompt, kb(backRow(cbFacts)))
}

func (d *Dispatcher) subscribeAt(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, text string) error {
	t, err := time.Parse("15:04", text)
	if err != nil {
		msg := fmt.Sprintf("I couldn't read %q as a time.\n\n%s", text, subTimePrompt)
		return d.renderText(ctx, c, user, true, msg, kb(backRow(cbFacts)))
	}
	if err := d.Cache.Delete(ctx, awaitKey(user.ChatID)); err != nil {
		return err
	}
	sendTime := t.Format("15:04")
	if err := repo.Subscribe(ctx, d.DB, user.ID, sendTime); err != nil {
		return err
	}
	msg := fmt.Sprintf("✅ Subscribed! A space fact will arrive every day at %s.", sendTime)
	return d.renderText(ctx, c, user, true, msg, kb(backRow(cbFacts)))
}

func (d *Dispatcher) unsubscribe(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) (string, error) {
	if err := repo.Unsubscribe(ctx, d.DB, user.ID); err != nil {
		return "", err
	}
	return "Unsubscribed", d.showFactsMenu(ctx, c, user)
}

// FormatFact renders a fact the way both the bot screen and the daily mailing
// present it.
func FormatFact(f *domain.SpaceFact) string {
	if f.Title == "" {
		return "💫 " + f.Body
	}
	return fmt.Sprintf("💫 *%s*\n\n%s", f.Title, f.Body)
}

// --- articles ---

func (d *Dispatcher) showSections(ctx context.Context, c *telegram.Client, user *domain.TelegramUser) error {
	sections, err := repo.ListArticleSections(ctx, d.DB)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		return d.renderText(ctx, c, user, false, "📚 No articles yet.", kb(backRow(cbMenu)))
	}
	return d.renderText(ctx, c, user, false, "📚 *Articles*\n\nPick a section.", sectionsKeyboard(sections))
}

func (d *Dispatcher) showSubsections(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, sectionID uint) error {
	subs, err := repo.ListArticleSubsections(ctx, d.DB, sectionID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return d.renderText(ctx, c, user, false, "📚 Nothing in this section yet.", kb(backRow(cbArticles)))
	}
	return d.renderText(ctx, c, user, false, "📚 Pick a topic.", subsectionsKeyboard(subs))
}

func (d *Dispatcher) showArticles(ctx context.Context, c *telegram.Client, user *domain.TelegramUser, subsectionID uint) error {
	articles, err := repo.ListArticles(ctx, d.DB, subsectionID)
	if err != nil {
		return err
	}
	var sectionID uint
	if len(articles) > 0 {
		var sub domain.ArticleSubsection
		if err := d.DB.WithContext(ctx).First(&sub, subsectionID).Error; err == nil {
			sectionID = sub.SectionID
		}
	}
	if len(articles) == 0 {
		return d.renderText(ctx, c, user, false, "📚 Nothing here yet.", kb(backRow(cbArticles)))
	}
	return d.renderText(ctx, c, user, false, "📚 *Articles*", articlesKeyboard(sectionID, articles))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
