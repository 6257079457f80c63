package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"order-bot/internal/conversation"
)

type fakeBot struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failAt   int
	err      error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.err != nil && len(f.sent) == f.failAt {
		return tgbotapi.Message{}, f.err
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNewBot_EmptyToken(t *testing.T) {
	_, err := NewBot("  ")
	require.Error(t, err)
}

func TestSend_MapsKeyboards(t *testing.T) {
	bot := &fakeBot{}
	c, err := New(bot)
	require.NoError(t, err)

	replies := []conversation.Reply{
		{Text: "plain"},
		{Text: "inline", Keyboard: conversation.Keyboard{Kind: conversation.KeyboardInline, Rows: [][]conversation.Button{
			{{Text: "✅ Add", Data: "add_product"}, {Text: "❌ Cancel product", Data: "cancel_product"}},
		}}},
		{Text: "reply", Keyboard: conversation.Keyboard{Kind: conversation.KeyboardReply, Rows: [][]conversation.Button{
			{{Text: "Done"}},
		}}},
		{Text: "remove", Keyboard: conversation.Keyboard{Kind: conversation.KeyboardRemove}},
	}
	require.NoError(t, c.Send(context.Background(), 77, replies))
	require.Len(t, bot.sent, 4)

	plain := bot.sent[0].(tgbotapi.MessageConfig)
	require.Equal(t, int64(77), plain.ChatID)
	require.Equal(t, "plain", plain.Text)
	require.Nil(t, plain.ReplyMarkup)

	inline := bot.sent[1].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, inline.InlineKeyboard[0], 2)
	require.Equal(t, "add_product", *inline.InlineKeyboard[0][0].CallbackData)

	reply := bot.sent[2].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, reply.ResizeKeyboard)
	require.Equal(t, "Done", reply.Keyboard[0][0].Text)

	remove := bot.sent[3].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	require.True(t, remove.RemoveKeyboard)
}

func TestSend_StopsAtFirstFailure(t *testing.T) {
	bot := &fakeBot{failAt: 1, err: errors.New("Too Many Requests")}
	c, _ := New(bot)
	err := c.Send(context.Background(), 1, []conversation.Reply{{Text: "a"}, {Text: "b"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "reply 1/2")
	require.Len(t, bot.sent, 1)
}

func TestSend_CancelledContext(t *testing.T) {
	bot := &fakeBot{}
	c, _ := New(bot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.Send(ctx, 1, []conversation.Reply{{Text: "a"}}), context.Canceled)
	require.Empty(t, bot.sent)
}

func TestAnswerCallback(t *testing.T) {
	bot := &fakeBot{}
	c, _ := New(bot)
	require.NoError(t, c.AnswerCallback(context.Background(), "cb-1"))
	require.Len(t, bot.requests, 1)
	require.Equal(t, "cb-1", bot.requests[0].(tgbotapi.CallbackConfig).CallbackQueryID)
}

func TestEventFromUpdate(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 5}, Chat: &tgbotapi.Chat{ID: 6}, Text: "/start",
	}})
	require.True(t, ok)
	require.Equal(t, conversation.Event{UserID: 5, ChatID: 6, Text: "/start"}, ev)

	ev, ok = EventFromUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "q1", From: &tgbotapi.User{ID: 5}, Data: "confirm_order",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 6}},
	}})
	require.True(t, ok)
	require.Equal(t, conversation.Event{UserID: 5, ChatID: 6, Callback: "confirm_order", CallbackID: "q1"}, ev)

	_, ok = EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 5}, Chat: &tgbotapi.Chat{ID: 6},
	}})
	require.False(t, ok, "non-text message")

	_, ok = EventFromUpdate(tgbotapi.Update{UpdateID: 3})
	require.False(t, ok)
}
