// Package telegram adapts the Bot API to the conversation types.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"order-bot/internal/conversation"
)

// botAPI is the minimal Bot API surface required by Client.
// *tgbotapi.BotAPI satisfies this interface.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client sends conversation replies through the Bot API.
type Client struct {
	api botAPI
}

func New(api botAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	return &Client{api: api}, nil
}

// NewBot authenticates token against the Bot API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return bot, nil
}

// Send posts replies in order and stops at the first failure.
func (c *Client) Send(ctx context.Context, chatID int64, replies []conversation.Reply) error {
	for i, r := range replies {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, r.Text)
		if m := markup(r.Keyboard); m != nil {
			msg.ReplyMarkup = m
		}
		if _, err := c.api.Send(msg); err != nil {
			return fmt.Errorf("telegram: send reply %d/%d to chat %d: %w", i+1, len(replies), chatID, err)
		}
	}
	return nil
}

// AnswerCallback stops the client's loading indicator on a pressed button.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func markup(kb conversation.Keyboard) interface{} {
	switch kb.Kind {
	case conversation.KeyboardInline:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
		for _, r := range kb.Rows {
			row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
			for _, b := range r {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, row)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	case conversation.KeyboardReply:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
		for _, r := range kb.Rows {
			row := make([]tgbotapi.KeyboardButton, 0, len(r))
			for _, b := range r {
				row = append(row, tgbotapi.NewKeyboardButton(b.Text))
			}
			rows = append(rows, row)
		}
		m := tgbotapi.NewReplyKeyboard(rows...)
		m.ResizeKeyboard = true
		return m
	case conversation.KeyboardRemove:
		return tgbotapi.NewRemoveKeyboard(true)
	default:
		return nil
	}
}

// EventFromUpdate extracts the conversation event from an update. It
// reports false for updates the bot does not handle.
func EventFromUpdate(u tgbotapi.Update) (conversation.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return conversation.Event{}, false
		}
		return conversation.Event{
			UserID:     cq.From.ID,
			ChatID:     cq.Message.Chat.ID,
			Callback:   cq.Data,
			CallbackID: cq.ID,
		}, true
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return conversation.Event{}, false
		}
		return conversation.Event{UserID: m.From.ID, ChatID: m.Chat.ID, Text: m.Text}, true
	default:
		return conversation.Event{}, false
	}
}
