package usecase

import (
	"context"
	"log/slog"

	"order-bot/internal/domain"
)

// SessionRanger lists every stored session.
type SessionRanger interface {
	Range(fn func(sess domain.Session) error) error
}

// OrderRetainer drops orders whose owner keep rejects.
type OrderRetainer interface {
	Retain(ctx context.Context, keep func(userID int64) bool) (int, error)
}

// PruneOrphanOrders removes in-progress orders that no session points at.
// Run it at startup, before any event is handled: a restored order without
// a session can never be reached again.
func PruneOrphanOrders(ctx context.Context, sessions SessionRanger, orders OrderRetainer) (int, error) {
	live := make(map[int64]struct{})
	err := sessions.Range(func(sess domain.Session) error {
		live[sess.UserID] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, newError(ErrorInternal, "session_scan_error", err)
	}
	removed, err := orders.Retain(ctx, func(userID int64) bool {
		_, ok := live[userID]
		return ok
	})
	if err != nil {
		return removed, newError(ErrorInternal, "order_prune_error", err)
	}
	if removed > 0 {
		slog.Info("orphaned orders pruned", "removed", removed, "sessions", len(live))
	}
	return removed, nil
}
