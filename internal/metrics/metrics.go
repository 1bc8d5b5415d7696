package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repair_desk"

const (
	CacheResultHit  = "hit"
	CacheResultMiss = "miss"

	NotifyResultSent      = "sent"
	NotifyResultFailed    = "failed"
	NotifyResultThrottled = "throttled"
)

// Metrics - счётчики бота. Методы безопасны для nil, чтобы тесты могли обходиться без регистрации.
type Metrics struct {
	updates            *prometheus.CounterVec
	updateDuration     *prometheus.HistogramVec
	updatesDropped     *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	cacheRequests      *prometheus.CounterVec
	activityLogFailure prometheus.Counter
	eventsPublished    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default регистрирует метрики в prometheus.DefaultRegisterer один раз.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Обработанные обновления Telegram по типу и результату.",
		}, []string{"kind", "result"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Время обработки одного обновления.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		updatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Отброшенные обновления (дубли, устаревшие, переполнение очереди).",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Смены статусов заявок.",
		}, []string{"from", "to"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Исходящие уведомления по результату.",
		}, []string{"result"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Обращения к read-through кешу.",
		}, []string{"type", "result"}),
		activityLogFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_log_failures_total",
			Help:      "Записи журнала, которые не удалось сохранить.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amqp_events_published_total",
			Help:      "События, отправленные во внешнюю шину.",
		}, []string{"event", "result"}),
	}

	registerer.MustRegister(
		m.updates,
		m.updateDuration,
		m.updatesDropped,
		m.transitions,
		m.notifications,
		m.cacheRequests,
		m.activityLogFailure,
		m.eventsPublished,
	)
	return m
}

func (m *Metrics) ObserveUpdate(kind string, err error, started time.Time) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.updates.WithLabelValues(kind, result).Inc()
	m.updateDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (m *Metrics) UpdateDropped(reason string) {
	if m == nil {
		return
	}
	m.updatesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Cache(cacheType, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cacheType, result).Inc()
}

func (m *Metrics) ActivityLogFailed() {
	if m == nil {
		return
	}
	m.activityLogFailure.Inc()
}

func (m *Metrics) EventPublished(event string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(event, result).Inc()
}
