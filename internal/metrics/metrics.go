package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the bot's Prometheus collectors. A nil *Registry is valid
// and records nothing.
type Registry struct {
	reg              *prometheus.Registry
	Updates          *prometheus.CounterVec
	OrdersConfirmed  prometheus.Counter
	OrdersCancelled  prometheus.Counter
	DeliveryFailures prometheus.Counter
	ArchiveFailures  prometheus.Counter
	CatalogLookupSec prometheus.Histogram
	FulfilmentSec    prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	updates := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderbot_updates_total"}, []string{"kind"})
	confirmed := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderbot_orders_confirmed_total"})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderbot_orders_cancelled_total"})
	deliveryFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderbot_delivery_failures_total"})
	archiveFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderbot_archive_failures_total"})
	lookup := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderbot_catalog_lookup_seconds",
		Buckets: prometheus.DefBuckets,
	})
	fulfilment := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderbot_fulfilment_seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	r.MustRegister(updates, confirmed, cancelled, deliveryFailures, archiveFailures, lookup, fulfilment)
	return &Registry{
		reg:              r,
		Updates:          updates,
		OrdersConfirmed:  confirmed,
		OrdersCancelled:  cancelled,
		DeliveryFailures: deliveryFailures,
		ArchiveFailures:  archiveFailures,
		CatalogLookupSec: lookup,
		FulfilmentSec:    fulfilment,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) ObserveUpdate(kind string) {
	if r == nil {
		return
	}
	r.Updates.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveCatalogLookup(d time.Duration) {
	if r == nil {
		return
	}
	r.CatalogLookupSec.Observe(d.Seconds())
}

func (r *Registry) ObserveConfirmed() {
	if r == nil {
		return
	}
	r.OrdersConfirmed.Inc()
}

func (r *Registry) ObserveCancelled() {
	if r == nil {
		return
	}
	r.OrdersCancelled.Inc()
}

// ObserveFulfilment records one finished fulfilment job and its failures.
func (r *Registry) ObserveFulfilment(d time.Duration, deliveryErr, archiveErr error) {
	if r == nil {
		return
	}
	r.FulfilmentSec.Observe(d.Seconds())
	if deliveryErr != nil {
		r.DeliveryFailures.Inc()
	}
	if archiveErr != nil {
		r.ArchiveFailures.Inc()
	}
}

// LogSnapshot writes the current value of every series as one debug record.
// Deployments without a scrape endpoint use it to surface the counters.
// Histograms are reported by sample count.
func (r *Registry) LogSnapshot(ctx context.Context, log *slog.Logger) {
	if r == nil || log == nil || !log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	families, err := r.reg.Gather()
	if err != nil {
		log.WarnContext(ctx, "metrics gather failed", "err", err)
		return
	}
	var attrs []any
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetValue())
			}
			if len(labels) > 0 {
				name += "." + strings.Join(labels, ".")
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, name, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				attrs = append(attrs, name+"_count", m.GetHistogram().GetSampleCount())
			}
		}
	}
	sortPairs(attrs)
	log.DebugContext(ctx, "metrics snapshot", attrs...)
}

func sortPairs(kv []any) {
	type pair struct {
		k string
		v any
	}
	pairs := make([]pair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, pair{kv[i].(string), kv[i+1]})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
	for i, p := range pairs {
		kv[2*i], kv[2*i+1] = p.k, p.v
	}
}
