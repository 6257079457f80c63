package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"order-bot/internal/conversation"
	"order-bot/internal/usecase"
)

type stubDispatcher struct {
	mu  sync.Mutex
	err error
	in  []conversation.Event
}

func (s *stubDispatcher) Handle(_ context.Context, ev conversation.Event) (*usecase.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in = append(s.in, ev)
	return nil, s.err
}

func (s *stubDispatcher) events() []conversation.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Event(nil), s.in...)
}

const textUpdate = `{"update_id":10,"message":{"message_id":1,"from":{"id":42,"is_bot":false,"first_name":"Anna"},"chat":{"id":4200,"type":"private"},"date":1753704000,"text":"/start"}}`

const callbackUpdate = `{"update_id":11,"callback_query":{"id":"q1","from":{"id":42,"is_bot":false,"first_name":"Anna"},"message":{"message_id":2,"chat":{"id":4200,"type":"private"},"date":1753704000},"chat_instance":"c","data":"confirm_order"}}`

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, "")
	require.Error(t, err)
}

func TestHandle_TextMessage(t *testing.T) {
	svc := &stubDispatcher{}
	h, err := NewHandler(svc, "")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(textUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []conversation.Event{{UserID: 42, ChatID: 4200, Text: "/start"}}, svc.events())
	require.Equal(t, "ok", parseBody[webhookResponse](t, resp.Body).Status)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_CallbackQuery(t *testing.T) {
	svc := &stubDispatcher{}
	h, _ := NewHandler(svc, "")

	resp, err := h.Handle(context.Background(), makeEvent(callbackUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []conversation.Event{{UserID: 42, ChatID: 4200, Callback: "confirm_order", CallbackID: "q1"}}, svc.events())
}

func TestHandle_Base64Body(t *testing.T) {
	svc := &stubDispatcher{}
	h, _ := NewHandler(svc, "")
	req := makeEvent(base64.StdEncoding.EncodeToString([]byte(textUpdate)))
	req.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.events(), 1)
}

func TestHandle_IgnoresUnsupportedUpdates(t *testing.T) {
	svc := &stubDispatcher{}
	h, _ := NewHandler(svc, "")

	resp, err := h.Handle(context.Background(), makeEvent(`{"update_id":12,"edited_message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ignored", parseBody[webhookResponse](t, resp.Body).Status)
	require.Empty(t, svc.events())
}

func TestHandle_InvalidBody(t *testing.T) {
	svc := &stubDispatcher{}
	h, _ := NewHandler(svc, "")

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorInvalidInput), parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_RejectsNonPost(t *testing.T) {
	h, _ := NewHandler(&stubDispatcher{}, "")
	req := makeEvent(textUpdate)
	req.HTTPMethod = http.MethodGet
	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_SecretToken(t *testing.T) {
	svc := &stubDispatcher{}
	h, _ := NewHandler(svc, "s3cret")

	resp, err := h.Handle(context.Background(), makeEvent(textUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, errorUnauthorized, parseBody[errorResponse](t, resp.Body).Error)
	require.Empty(t, svc.events())

	req := makeEvent(textUpdate)
	req.Headers["x-telegram-bot-api-secret-token"] = "s3cret"
	resp, err = h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.events(), 1)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_user"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "telegram_send_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "session_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHandler(&stubDispatcher{err: tc.err}, "")
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(textUpdate))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.code, parseBody[errorResponse](t, resp.Body).Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, _ := NewHandler(&stubDispatcher{}, "")

	event := makeEvent(textUpdate)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestPoller_HandlesUpdatesUntilClosed(t *testing.T) {
	svc := &stubDispatcher{err: errors.New("boom")}
	p, err := NewPoller(svc)
	require.NoError(t, err)

	updates := make(chan tgbotapi.Update, 3)
	updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "a"}}
	updates <- tgbotapi.Update{UpdateID: 2}
	updates <- tgbotapi.Update{UpdateID: 3, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "b"}}
	close(updates)

	require.NoError(t, p.Run(context.Background(), updates))
	evs := svc.events()
	require.Len(t, evs, 2, "errors do not stop the loop")
	require.Equal(t, "a", evs[0].Text)
	require.Equal(t, "b", evs[1].Text)
}

func TestPoller_StopsOnContext(t *testing.T) {
	p, _ := NewPoller(&stubDispatcher{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, make(chan tgbotapi.Update))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewPoller_ValidatesDependency(t *testing.T) {
	_, err := NewPoller(nil)
	require.Error(t, err)
}
