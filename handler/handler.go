package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"order-bot/internal/conversation"
	"order-bot/internal/integrations/telegram"
	"order-bot/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerSecretToken   = "X-Telegram-Bot-Api-Secret-Token"
	errorUnauthorized   = "UNAUTHORIZED"
	errorMethod         = "METHOD_NOT_ALLOWED"
)

// Dispatcher is the order service consumed by the transports.
type Dispatcher interface {
	Handle(ctx context.Context, ev conversation.Event) (*usecase.Job, error)
}

type webhookResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId"`
}

// Handler serves Telegram webhook calls delivered through API Gateway.
type Handler struct {
	svc    Dispatcher
	secret string
}

// NewHandler builds the webhook handler. When secret is non-empty every call
// must carry it in the Telegram secret-token header.
func NewHandler(svc Dispatcher, secret string) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	return &Handler{svc: svc, secret: secret}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = newUUID()
	}
	log := slog.With("correlation_id", correlationID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return errorJSON(http.StatusMethodNotAllowed, errorMethod, correlationID), nil
	}
	if h.secret != "" && header(req.Headers, headerSecretToken) != h.secret {
		log.Warn("webhook secret mismatch")
		return errorJSON(http.StatusUnauthorized, errorUnauthorized, correlationID), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), correlationID), nil
		}
		body = decoded
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		log.Warn("invalid update body", "err", err)
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), correlationID), nil
	}

	ev, ok := telegram.EventFromUpdate(update)
	if !ok {
		log.Debug("update ignored", "update_id", update.UpdateID)
		return okJSON("ignored", correlationID), nil
	}

	job, err := h.svc.Handle(ctx, ev)
	if err != nil {
		status, code := mapError(err)
		log.Error("update failed", "update_id", update.UpdateID, "user_id", ev.UserID, "code", code, "err", err)
		return errorJSON(status, code, correlationID), nil
	}
	if job != nil {
		select {
		case <-job.Done():
			if jobErr := job.Err(); jobErr != nil {
				log.Warn("order confirmed with fulfilment errors", "user_id", ev.UserID, "err", jobErr)
			}
		default:
		}
	}
	return okJSON("ok", correlationID), nil
}

func mapError(err error) (int, string) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ue.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ue.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

// header looks a header up case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func okJSON(status, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusOK, webhookResponse{Status: status}, correlationID)
}

func errorJSON(status int, code, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: code, CorrelationID: correlationID}, correlationID)
}

func jsonResponse(status int, v any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
