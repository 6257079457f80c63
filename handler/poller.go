package handler

import (
	"context"
	"errors"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"order-bot/internal/integrations/telegram"
)

// Poller feeds long-polled updates to the order service one at a time.
type Poller struct {
	svc Dispatcher
}

func NewPoller(svc Dispatcher) (*Poller, error) {
	if svc == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	return &Poller{svc: svc}, nil
}

// Run consumes updates until ctx ends or the channel closes. A failing update
// is logged and never stops the loop.
func (p *Poller) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, u)
		}
	}
}

func (p *Poller) handle(ctx context.Context, u tgbotapi.Update) {
	ev, ok := telegram.EventFromUpdate(u)
	if !ok {
		slog.Debug("update ignored", "update_id", u.UpdateID)
		return
	}
	if _, err := p.svc.Handle(ctx, ev); err != nil {
		slog.Error("update failed", "update_id", u.UpdateID, "user_id", ev.UserID, "err", err)
	}
}
