package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: тики опросчиков и вычитанные строки
	TicksTotal    *prometheus.CounterVec
	EventsEmitted *prometheus.CounterVec

	// Errors: пропущенные тики (недоступность базы и т.п.)
	TickErrors *prometheus.CounterVec

	// Saturation: отставание курсора от максимума хранилища
	CursorLag *prometheus.GaugeVec

	// Staleness: 1 — монитор считает себя протухшим (N неудачных тиков
	// подряд или откат счетчика sequence ниже курсора)
	MonitorStale *prometheus.GaugeVec

	// Fan-out
	Subscribers   prometheus.Gauge
	DroppedEvents *prometheus.CounterVec

	// Snapshot latency
	SnapshotDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TicksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_monitor_ticks_total",
			Help: "Total number of poll cycles per monitor.",
		}, []string{"monitor"}),

		EventsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_emitted_total",
			Help: "Total number of events emitted downstream.",
		}, []string{"monitor", "kind"}),

		TickErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_monitor_tick_errors_total",
			Help: "Total number of skipped poll cycles by cause.",
		}, []string{"monitor", "cause"}), // причины: store_unavailable, scan_failed

		CursorLag: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_cursor_lag_rows",
			Help: "Rows between store max sequence and monitor cursor.",
		}, []string{"monitor"}),

		MonitorStale: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_monitor_stale",
			Help: "Monitor staleness flag (0=healthy, 1=stale).",
		}, []string{"monitor"}),

		Subscribers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pulse_hub_subscribers",
			Help: "Currently connected stream subscribers.",
		}),

		DroppedEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_hub_dropped_events_total",
			Help: "Events dropped due to slow subscriber queues.",
		}, []string{"kind"}),

		SnapshotDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_stats_snapshot_duration_seconds",
			Help:    "Histogram of stats snapshot recomputation latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}
