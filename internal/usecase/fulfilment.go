package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"order-bot/internal/conversation"
	"order-bot/internal/domain"
)

const (
	msgFulfilled       = "✅ The order was sent to the accountant and archived."
	msgDeliveryFailed  = "⚠️ The order was archived, but the email to the accountant failed. Please send it manually."
	msgArchiveFailed   = "⚠️ The order was emailed, but archiving it failed."
	msgFulfilmentLost  = "❌ The order could not be emailed or archived. Please create it again."
	defaultFulfilLimit = 60 * time.Second
)

// Notifier emails a confirmed order.
type Notifier interface {
	Send(ctx context.Context, order domain.Order) error
}

// Archiver appends a confirmed order to the durable archive.
type Archiver interface {
	Append(ctx context.Context, order domain.Order) (domain.ArchiveEntry, error)
}

// Job is the handle of one order fulfilment: email and archive run
// concurrently and their outcomes are reported together.
type Job struct {
	UserID int64
	ChatID int64
	Order  domain.Order

	done        chan struct{}
	entry       domain.ArchiveEntry
	deliveryErr error
	archiveErr  error
}

// Done is closed once both the email and the archive attempt finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is nil when the order was both emailed and archived. Otherwise it
// joins a DELIVERY_FAILED and/or ARCHIVE_FAILED *Error. Call only after Done.
func (j *Job) Err() error {
	var errs []error
	if j.deliveryErr != nil {
		errs = append(errs, newError(ErrorDeliveryFailed, "email_error", j.deliveryErr))
	}
	if j.archiveErr != nil {
		errs = append(errs, newError(ErrorArchiveFailed, "archive_write_error", j.archiveErr))
	}
	return errors.Join(errs...)
}

// Entry is the archive record; zero when archiving failed.
func (j *Job) Entry() domain.ArchiveEntry { return j.entry }

// Reply is the follow-up message telling the user how fulfilment went.
func (j *Job) Reply() conversation.Reply {
	switch {
	case j.deliveryErr == nil && j.archiveErr == nil:
		return conversation.Reply{Text: msgFulfilled}
	case j.deliveryErr != nil && j.archiveErr != nil:
		return conversation.Reply{Text: msgFulfilmentLost}
	case j.deliveryErr != nil:
		return conversation.Reply{Text: msgDeliveryFailed}
	default:
		return conversation.Reply{Text: msgArchiveFailed}
	}
}

// startJob launches fulfilment. The job keeps ctx's values but not its
// cancellation, and is bounded by the fulfilment timeout instead.
func (s *OrderService) startJob(ctx context.Context, userID, chatID int64, order domain.Order) *Job {
	job := &Job{UserID: userID, ChatID: chatID, Order: order, done: make(chan struct{})}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fulfilTimeout)
	started := time.Now()

	go func() {
		defer close(job.done)
		defer cancel()

		// Plain Group, not WithContext: a failed email must not cancel the
		// archive write, nor the other way round.
		var g errgroup.Group
		g.Go(func() error {
			if err := s.notifier.Send(jobCtx, order); err != nil {
				job.deliveryErr = err
				return newError(ErrorDeliveryFailed, "email_error", err)
			}
			return nil
		})
		g.Go(func() error {
			entry, err := s.archiver.Append(jobCtx, order)
			if err != nil {
				job.archiveErr = err
				return newError(ErrorArchiveFailed, "archive_write_error", err)
			}
			job.entry = entry
			return nil
		})
		firstErr := g.Wait()

		s.observer.ObserveFulfilment(time.Since(started), job.deliveryErr, job.archiveErr)
		if firstErr != nil {
			slog.Error("order fulfilment failed", "user_id", userID, "manager", order.Manager,
				"first_err", firstErr, "err", job.Err())
			return
		}
		slog.Info("order fulfilled", "user_id", userID, "archive_id", job.entry.ID, "total", job.entry.Total.StringFixed(2))
	}()
	return job
}
