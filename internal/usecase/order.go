package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"order-bot/internal/conversation"
	"order-bot/internal/domain"
)

// Machine advances one user's conversation by one event.
type Machine interface {
	Handle(ctx context.Context, sess *domain.Session, ev conversation.Event) (conversation.Outcome, error)
}

type SessionStore interface {
	Get(ctx context.Context, userID int64) (domain.Session, bool, error)
	Put(ctx context.Context, sess domain.Session) error
	Delete(ctx context.Context, userID int64) error
}

// Flusher checkpoints in-progress orders.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Messenger delivers replies to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, replies []conversation.Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

type Observer interface {
	ObserveUpdate(kind string)
	ObserveConfirmed()
	ObserveCancelled()
	ObserveFulfilment(d time.Duration, deliveryErr, archiveErr error)
}

type nopObserver struct{}

func (nopObserver) ObserveUpdate(string)                          {}
func (nopObserver) ObserveConfirmed()                             {}
func (nopObserver) ObserveCancelled()                             {}
func (nopObserver) ObserveFulfilment(time.Duration, error, error) {}

// OrderService routes chat events through the conversation machine, keeps
// sessions, and fulfils confirmed orders.
type OrderService struct {
	machine   Machine
	sessions  SessionStore
	orders    Flusher
	messenger Messenger
	notifier  Notifier
	archiver  Archiver
	observer  Observer

	async         bool
	fulfilTimeout time.Duration
	locks         *keyedMutex
	pending       sync.WaitGroup
}

type Option func(*OrderService)

// WithObserver records service metrics.
func WithObserver(o Observer) Option {
	return func(s *OrderService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithAsyncFulfilment returns from Handle before the email and archive
// finish; the outcome is sent as a follow-up message.
func WithAsyncFulfilment() Option {
	return func(s *OrderService) { s.async = true }
}

func WithFulfilmentTimeout(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.fulfilTimeout = d
		}
	}
}

func NewOrderService(m Machine, sessions SessionStore, orders Flusher, messenger Messenger, notifier Notifier, archiver Archiver, opts ...Option) (*OrderService, error) {
	if m == nil {
		return nil, errors.New("usecase: conversation machine must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if orders == nil {
		return nil, errors.New("usecase: order store must not be nil")
	}
	if messenger == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("usecase: notifier must not be nil")
	}
	if archiver == nil {
		return nil, errors.New("usecase: archiver must not be nil")
	}
	s := &OrderService{
		machine:       m,
		sessions:      sessions,
		orders:        orders,
		messenger:     messenger,
		notifier:      notifier,
		archiver:      archiver,
		observer:      nopObserver{},
		fulfilTimeout: defaultFulfilLimit,
		locks:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle processes one event for one user. Events of the same user are
// handled strictly one after another. The returned job is non-nil when the
// event confirmed an order.
func (s *OrderService) Handle(ctx context.Context, ev conversation.Event) (*Job, error) {
	if ev.UserID == 0 || ev.ChatID == 0 {
		return nil, newError(ErrorInvalidInput, "missing_user", nil)
	}
	kind := "message"
	if ev.IsCallback() {
		kind = "callback"
	}
	s.observer.ObserveUpdate(kind)

	if ev.CallbackID != "" {
		if err := s.messenger.AnswerCallback(ctx, ev.CallbackID); err != nil {
			slog.Warn("answer callback failed", "user_id", ev.UserID, "err", err)
		}
	}

	unlock := s.locks.Lock(ev.UserID)
	job, replies, err := s.advance(ctx, ev)
	unlock()
	if err != nil {
		return nil, err
	}

	var sendErr error
	if err := s.messenger.Send(ctx, ev.ChatID, replies); err != nil {
		sendErr = newError(ErrorUpstream, "telegram_send_error", err)
	}
	if job == nil {
		return nil, sendErr
	}

	if s.async {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			<-job.Done()
			s.report(context.WithoutCancel(ctx), job)
		}()
		return job, sendErr
	}
	// The job always finishes before a sync call returns, even when the
	// confirmation reply could not be sent.
	if err := job.Wait(ctx); err != nil && ctx.Err() != nil {
		if sendErr != nil {
			return job, sendErr
		}
		return job, newError(ErrorInternal, "fulfilment_wait_error", err)
	}
	if sendErr != nil {
		slog.Warn("confirmation reply failed after fulfilment", "user_id", ev.UserID, "fulfilment_err", job.Err(), "err", sendErr)
	}
	s.report(ctx, job)
	return job, sendErr
}

func (s *OrderService) advance(ctx context.Context, ev conversation.Event) (*Job, []conversation.Reply, error) {
	var current *domain.Session
	sess, ok, err := s.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return nil, nil, newError(ErrorInternal, "session_load_error", err)
	}
	if ok {
		current = &sess
	}

	out, err := s.machine.Handle(ctx, current, ev)
	if err != nil {
		return nil, nil, newError(ErrorInternal, "order_store_error", err)
	}

	if out.End {
		if err := s.sessions.Delete(ctx, ev.UserID); err != nil {
			return nil, nil, newError(ErrorInternal, "session_delete_error", err)
		}
	} else {
		if err := s.sessions.Put(ctx, out.Session); err != nil {
			return nil, nil, newError(ErrorInternal, "session_write_error", err)
		}
		slog.Debug("conversation advanced", "user_id", ev.UserID, "state", out.Session.State.String())
	}

	if out.Checkpoint {
		if err := s.orders.Flush(ctx); err != nil {
			slog.Warn("order checkpoint failed", "user_id", ev.UserID, "err", err)
		}
	}
	if out.Cancelled {
		s.observer.ObserveCancelled()
		slog.Info("order cancelled", "user_id", ev.UserID)
	}
	if out.Confirmed == nil {
		return nil, out.Replies, nil
	}

	s.observer.ObserveConfirmed()
	slog.Info("order confirmed", "user_id", ev.UserID, "manager", out.Confirmed.Manager,
		"client", out.Confirmed.Client, "items", len(out.Confirmed.Items))
	return s.startJob(ctx, ev.UserID, ev.ChatID, *out.Confirmed), out.Replies, nil
}

func (s *OrderService) report(ctx context.Context, job *Job) {
	if err := s.messenger.Send(ctx, job.ChatID, []conversation.Reply{job.Reply()}); err != nil {
		slog.Warn("fulfilment follow-up failed", "user_id", job.UserID, "err", err)
	}
}

// Drain waits for asynchronous follow-ups still in flight, or for ctx.
func (s *OrderService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
