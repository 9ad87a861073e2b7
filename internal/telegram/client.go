package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the subset of *tgbotapi.BotAPI the service depends on. Tests swap in
// fakes; production code passes the real client.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Client is the outbound messaging gateway for one bot identity. All chat
// mutations (send/edit/delete, callbacks, webhook management, command
// registration) go through it.
type Client struct {
	api  API
	name string // bot username when known, for logs
}

// Markdown is the parse mode used for every formatted message the bot sends.
const Markdown = tgbotapi.ModeMarkdown

// NewClient connects to the Bot API with the given token.
func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Client{api: api, name: api.Self.UserName}, nil
}

// NewClientWithAPI wraps an existing API implementation (test seam).
func NewClientWithAPI(api API, name string) *Client {
	return &Client{api: api, name: name}
}

// Name returns the bot username when known.
func (c *Client) Name() string { return c.name }

// SendText sends a Markdown text message, optionally with an inline keyboard,
// and returns the new Telegram message id.
func (c *Client) SendText(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = Markdown
	msg.DisableWebPagePreview = true
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditText edits a message's text (and keyboard) in place.
func (c *Client) EditText(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	var edit tgbotapi.EditMessageTextConfig
	if kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = Markdown
	edit.DisableWebPagePreview = true
	_, err := c.api.Request(edit)
	return err
}

// SendPhoto sends a photo (by URL or cached Telegram file id) with a caption
// and returns (message id, file id of the stored photo).
func (c *Client) SendPhoto(chatID int64, file tgbotapi.RequestFileData, caption string, kb *tgbotapi.InlineKeyboardMarkup) (int, string, error) {
	msg := tgbotapi.NewPhoto(chatID, file)
	msg.Caption = caption
	msg.ParseMode = Markdown
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, "", err
	}
	fileID := ""
	if n := len(sent.Photo); n > 0 {
		fileID = sent.Photo[n-1].FileID
	}
	return sent.MessageID, fileID, nil
}

// EditPhoto replaces a message's media in place. The Bot API edits media and
// caption markup through separate calls, so the caption/keyboard follow in a
// second request.
func (c *Client) EditPhoto(chatID int64, messageID int, file tgbotapi.RequestFileData, caption string, kb *tgbotapi.InlineKeyboardMarkup) error {
	media := tgbotapi.NewInputMediaPhoto(file)
	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID},
		Media:    media,
	}
	if _, err := c.api.Request(edit); err != nil {
		return err
	}

	cap := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
	cap.ParseMode = Markdown
	if kb != nil {
		cap.ReplyMarkup = kb
	}
	if _, err := c.api.Request(cap); err != nil && !IsStaleMessage(err) {
		return err
	}
	return nil
}

// DeleteMessage removes one message from the chat.
func (c *Client) DeleteMessage(chatID int64, messageID int) error {
	_, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// DeleteMessages best-effort deletes a batch, returning the first error after
// attempting every id.
func (c *Client) DeleteMessages(chatID int64, messageIDs []int) error {
	var firstErr error
	for _, id := range messageIDs {
		if err := c.DeleteMessage(chatID, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AnswerCallback acknowledges a callback query, optionally with a toast text.
func (c *Client) AnswerCallback(callbackID, text string) error {
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// SetWebhook points the bot's webhook at url, replacing any previous one.
func (c *Client) SetWebhook(url string) error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return err
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = c.api.Request(wh)
	return err
}

// RemoveWebhook unregisters the bot's webhook.
func (c *Client) RemoveWebhook() error {
	_, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false})
	return err
}

// WebhookURL returns the currently registered webhook URL, if any.
func (c *Client) WebhookURL() (string, error) {
	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// RegisterCommands publishes the bot's command list shown in the Telegram UI.
func (c *Client) RegisterCommands(cmds ...tgbotapi.BotCommand) error {
	_, err := c.api.Request(tgbotapi.NewSetMyCommands(cmds...))
	return err
}
