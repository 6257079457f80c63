package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	r.ObserveUpdate("message")
	r.ObserveUpdate("message")
	r.ObserveUpdate("callback")
	r.ObserveConfirmed()
	r.ObserveCancelled()
	r.ObserveFulfilment(time.Second, errors.New("smtp"), nil)

	require.Equal(t, 2.0, testutil.ToFloat64(r.Updates.WithLabelValues("message")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.Updates.WithLabelValues("callback")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.OrdersConfirmed))
	require.Equal(t, 1.0, testutil.ToFloat64(r.OrdersCancelled))
	require.Equal(t, 1.0, testutil.ToFloat64(r.DeliveryFailures))
	require.Equal(t, 0.0, testutil.ToFloat64(r.ArchiveFailures))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.ObserveUpdate("message")
		r.ObserveCatalogLookup(time.Millisecond)
		r.ObserveConfirmed()
		r.ObserveCancelled()
		r.ObserveFulfilment(time.Second, nil, nil)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveConfirmed()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "orderbot_orders_confirmed_total 1")
}

func TestRegistry_LogSnapshot(t *testing.T) {
	r := NewRegistry()
	r.ObserveUpdate("callback")
	r.ObserveConfirmed()
	r.ObserveFulfilment(time.Second, nil, errors.New("disk full"))

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r.LogSnapshot(context.Background(), log)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "metrics snapshot", rec["msg"])
	require.Equal(t, 1.0, rec["orderbot_updates_total.callback"])
	require.Equal(t, 1.0, rec["orderbot_orders_confirmed_total"])
	require.Equal(t, 1.0, rec["orderbot_archive_failures_total"])
	require.Equal(t, 1.0, rec["orderbot_fulfilment_seconds_count"])

	buf.Reset()
	quiet := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	r.LogSnapshot(context.Background(), quiet)
	require.Zero(t, buf.Len(), "nothing is gathered below debug")
}
