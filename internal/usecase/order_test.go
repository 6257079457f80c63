package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-bot/internal/conversation"
	"order-bot/internal/domain"
	"order-bot/internal/orders"
	"order-bot/internal/session"
)

type mockFinder struct{}

func (mockFinder) FindBySuffix(_ context.Context, suffix string) ([]domain.Product, error) {
	if suffix != "1234" {
		return nil, nil
	}
	return []domain.Product{{Code: "4750001231234", Name: "Milk", PriceNoVAT: "10.00", PriceWithVAT: "12.10"}}, nil
}

type mockMessenger struct {
	mu       sync.Mutex
	sent     map[int64][]string
	answered []string
	err      error
}

func (m *mockMessenger) Send(_ context.Context, chatID int64, replies []conversation.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[int64][]string)
	}
	for _, r := range replies {
		m.sent[chatID] = append(m.sent[chatID], r.Text)
	}
	return m.err
}

func (m *mockMessenger) AnswerCallback(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, id)
	return nil
}

func (m *mockMessenger) last(chatID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []domain.Order
	err   error
	block chan struct{}
}

func (m *mockNotifier) Send(ctx context.Context, order domain.Order) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, order)
	return m.err
}

type mockArchiver struct {
	mu      sync.Mutex
	entries []domain.ArchiveEntry
	err     error
}

func (m *mockArchiver) Append(_ context.Context, order domain.Order) (domain.ArchiveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.ArchiveEntry{}, m.err
	}
	e := domain.NewArchiveEntry("id-1", order, time.Date(2025, 7, 28, 12, 0, 0, 0, time.UTC))
	m.entries = append(m.entries, e)
	return e, nil
}

type mockFlusher struct {
	*orders.MemoryStore
	flushes int
}

func (m *mockFlusher) Flush(ctx context.Context) error {
	m.flushes++
	return m.MemoryStore.Flush(ctx)
}

type mockObserver struct {
	nopObserver
	confirmed, cancelled int
	fulfilments          int
}

func (m *mockObserver) ObserveConfirmed() { m.confirmed++ }
func (m *mockObserver) ObserveCancelled() { m.cancelled++ }
func (m *mockObserver) ObserveFulfilment(time.Duration, error, error) {
	m.fulfilments++
}

type harness struct {
	svc       *OrderService
	sessions  *session.MemoryStore
	orders    *mockFlusher
	messenger *mockMessenger
	notifier  *mockNotifier
	archiver  *mockArchiver
	observer  *mockObserver
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	mem, err := orders.NewMemoryStore(nil)
	require.NoError(t, err)
	h := &harness{
		sessions:  session.NewMemoryStore(),
		orders:    &mockFlusher{MemoryStore: mem},
		messenger: &mockMessenger{},
		notifier:  &mockNotifier{},
		archiver:  &mockArchiver{},
		observer:  &mockObserver{},
	}
	m, err := conversation.New(mockFinder{}, mem)
	require.NoError(t, err)
	opts = append([]Option{WithObserver(h.observer)}, opts...)
	h.svc, err = NewOrderService(m, h.sessions, h.orders, h.messenger, h.notifier, h.archiver, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) say(t *testing.T, userID int64, text string) *Job {
	t.Helper()
	job, err := h.svc.Handle(context.Background(), conversation.Event{UserID: userID, ChatID: userID, Text: text})
	require.NoError(t, err)
	return job
}

func (h *harness) press(t *testing.T, userID int64, data string) *Job {
	t.Helper()
	job, err := h.svc.Handle(context.Background(), conversation.Event{
		UserID: userID, ChatID: userID, Callback: data, CallbackID: "cb-" + data,
	})
	require.NoError(t, err)
	return job
}

func (h *harness) toReview(t *testing.T, userID int64) {
	t.Helper()
	for _, msg := range []string{"/start", "Anna", "Bravo Ltd", "1234"} {
		require.Nil(t, h.say(t, userID, msg))
	}
	h.press(t, userID, conversation.CallbackAddProduct)
	for _, msg := range []string{"3", "Done", "urgent", "28.07", "Riga St 1"} {
		require.Nil(t, h.say(t, userID, msg))
	}
}

func TestNewOrderService_ValidatesDependencies(t *testing.T) {
	mem, _ := orders.NewMemoryStore(nil)
	m, _ := conversation.New(mockFinder{}, mem)
	sess := session.NewMemoryStore()

	_, err := NewOrderService(nil, sess, mem, &mockMessenger{}, &mockNotifier{}, &mockArchiver{})
	require.Error(t, err)
	_, err = NewOrderService(m, nil, mem, &mockMessenger{}, &mockNotifier{}, &mockArchiver{})
	require.Error(t, err)
	_, err = NewOrderService(m, sess, nil, &mockMessenger{}, &mockNotifier{}, &mockArchiver{})
	require.Error(t, err)
	_, err = NewOrderService(m, sess, mem, nil, &mockNotifier{}, &mockArchiver{})
	require.Error(t, err)
	_, err = NewOrderService(m, sess, mem, &mockMessenger{}, nil, &mockArchiver{})
	require.Error(t, err)
	_, err = NewOrderService(m, sess, mem, &mockMessenger{}, &mockNotifier{}, nil)
	require.Error(t, err)
}

func TestHandle_MissingUserIsInvalidInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Handle(context.Background(), conversation.Event{Text: "/start"})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorInvalidInput, ue.Code)
}

func TestHandle_SyncConfirmFulfilsAndReports(t *testing.T) {
	h := newHarness(t)
	h.toReview(t, 42)
	require.Equal(t, 1, h.sessions.Len())
	require.Equal(t, 1, h.orders.flushes, "checkpoint on reaching review")

	job := h.press(t, 42, conversation.CallbackConfirmOrder)
	require.NotNil(t, job)
	require.NoError(t, job.Err())

	require.Len(t, h.notifier.sent, 1)
	require.Equal(t, "Anna", h.notifier.sent[0].Manager)
	require.Len(t, h.archiver.entries, 1)
	require.Equal(t, "36.30", h.archiver.entries[0].Total.StringFixed(2))
	require.Equal(t, "id-1", job.Entry().ID)

	require.Equal(t, msgFulfilled, h.messenger.last(42))
	require.Contains(t, h.messenger.answered, "cb-"+conversation.CallbackConfirmOrder)
	require.Equal(t, 0, h.sessions.Len())
	_, ok, err := h.orders.Get(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, h.observer.confirmed)
	require.Equal(t, 1, h.observer.fulfilments)
}

func TestHandle_DeliveryFailureStillArchives(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("535 auth failed")
	h.toReview(t, 42)

	job := h.press(t, 42, conversation.CallbackConfirmOrder)
	require.NotNil(t, job)
	err := job.Err()
	require.True(t, HasCode(err, ErrorDeliveryFailed))
	require.False(t, HasCode(err, ErrorArchiveFailed))
	require.Len(t, h.archiver.entries, 1)
	require.Equal(t, msgDeliveryFailed, h.messenger.last(42))
	require.Equal(t, 0, h.sessions.Len(), "session is gone even when email fails")
}

func TestHandle_ArchiveFailureReported(t *testing.T) {
	h := newHarness(t)
	h.archiver.err = errors.New("disk full")
	h.toReview(t, 42)

	job := h.press(t, 42, conversation.CallbackConfirmOrder)
	require.True(t, HasCode(job.Err(), ErrorArchiveFailed))
	require.Len(t, h.notifier.sent, 1)
	require.Equal(t, msgArchiveFailed, h.messenger.last(42))
}

func TestHandle_BothFailuresReported(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")
	h.archiver.err = errors.New("disk full")
	h.toReview(t, 42)

	job := h.press(t, 42, conversation.CallbackConfirmOrder)
	err := job.Err()
	require.True(t, HasCode(err, ErrorDeliveryFailed))
	require.True(t, HasCode(err, ErrorArchiveFailed))
	require.Equal(t, msgFulfilmentLost, h.messenger.last(42))
}

func TestHandle_AsyncConfirmReturnsBeforeEmail(t *testing.T) {
	h := newHarness(t, WithAsyncFulfilment())
	h.notifier.block = make(chan struct{})
	h.toReview(t, 42)

	job := h.press(t, 42, conversation.CallbackConfirmOrder)
	require.NotNil(t, job)
	select {
	case <-job.Done():
		t.Fatal("job finished while email was blocked")
	default:
	}
	require.NotEqual(t, msgFulfilled, h.messenger.last(42))

	// The user can start over while the previous order is still sending.
	require.Nil(t, h.say(t, 42, "/start"))
	require.Equal(t, 1, h.sessions.Len())

	close(h.notifier.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(ctx))
	require.NoError(t, h.svc.Drain(ctx))
	require.Equal(t, msgFulfilled, h.messenger.last(42))
}

func TestHandle_CancelDoesNotFulfil(t *testing.T) {
	h := newHarness(t)
	h.toReview(t, 42)

	require.Nil(t, h.press(t, 42, conversation.CallbackCancelOrder))
	require.Empty(t, h.notifier.sent)
	require.Empty(t, h.archiver.entries)
	require.Equal(t, 1, h.observer.cancelled)
	require.Equal(t, 0, h.sessions.Len())
}

func TestHandle_SendFailureIsUpstream(t *testing.T) {
	h := newHarness(t)
	h.messenger.err = errors.New("telegram 502")

	_, err := h.svc.Handle(context.Background(), conversation.Event{UserID: 1, ChatID: 1, Text: "/start"})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorUpstream, ue.Code)
	require.Equal(t, 1, h.sessions.Len(), "state is kept even if the reply is lost")
}

type failingSessions struct{ session.MemoryStore }

func (f *failingSessions) Get(context.Context, int64) (domain.Session, bool, error) {
	return domain.Session{}, false, errors.New("table unavailable")
}

func TestHandle_SessionLoadFailureIsInternal(t *testing.T) {
	mem, _ := orders.NewMemoryStore(nil)
	m, _ := conversation.New(mockFinder{}, mem)
	svc, err := NewOrderService(m, &failingSessions{}, mem, &mockMessenger{}, &mockNotifier{}, &mockArchiver{})
	require.NoError(t, err)

	_, err = svc.Handle(context.Background(), conversation.Event{UserID: 1, ChatID: 1, Text: "/start"})
	require.True(t, HasCode(err, ErrorInternal))
}

type overlapMachine struct {
	active  atomic.Int32
	overlap atomic.Bool
}

func (o *overlapMachine) Handle(_ context.Context, _ *domain.Session, ev conversation.Event) (conversation.Outcome, error) {
	if o.active.Add(1) > 1 {
		o.overlap.Store(true)
	}
	time.Sleep(2 * time.Millisecond)
	o.active.Add(-1)
	return conversation.Outcome{Session: domain.Session{UserID: ev.UserID}}, nil
}

func TestHandle_SerializesEventsPerUser(t *testing.T) {
	mem, _ := orders.NewMemoryStore(nil)
	om := &overlapMachine{}
	svc, err := NewOrderService(om, session.NewMemoryStore(), mem, &mockMessenger{}, &mockNotifier{}, &mockArchiver{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Handle(context.Background(), conversation.Event{UserID: 9, ChatID: 9, Text: "x"})
		}()
	}
	wg.Wait()
	require.False(t, om.overlap.Load())
	require.Empty(t, svc.locks.locks, "idle users hold no lock entry")
}

func TestHandle_SyncSendFailureStillAwaitsFulfilment(t *testing.T) {
	h := newHarness(t)
	h.toReview(t, 42)
	h.notifier.block = make(chan struct{})
	h.messenger.mu.Lock()
	h.messenger.err = errors.New("telegram 502")
	h.messenger.mu.Unlock()

	type result struct {
		job *Job
		err error
	}
	res := make(chan result, 1)
	go func() {
		job, err := h.svc.Handle(context.Background(), conversation.Event{
			UserID: 42, ChatID: 42, Callback: conversation.CallbackConfirmOrder,
		})
		res <- result{job, err}
	}()

	select {
	case <-res:
		t.Fatal("sync handle returned while the email was still sending")
	case <-time.After(50 * time.Millisecond):
	}
	close(h.notifier.block)

	r := <-res
	require.True(t, HasCode(r.err, ErrorUpstream))
	require.NotNil(t, r.job)
	select {
	case <-r.job.Done():
	default:
		t.Fatal("fulfilment still running after sync handle returned")
	}
	require.NoError(t, r.job.Err())
	require.Len(t, h.archiver.entries, 1)
	require.Len(t, h.notifier.sent, 1)
	require.Equal(t, 0, h.sessions.Len())
}
