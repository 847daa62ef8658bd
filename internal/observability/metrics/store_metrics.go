package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StoreOutcomeOK          = "ok"
	StoreOutcomeMiss        = "miss"
	StoreOutcomeError       = "error"
	StoreOutcomeGateBusy    = "gate_busy"
	StoreOutcomeBreakerOpen = "breaker_open"
)

const (
	TimerKindDaily   = "daily"
	TimerKindOneShot = "one_shot"
)

// StoreMetrics captures state-store and scheduler health signals.
type StoreMetrics struct {
	storeOps      *prometheus.CounterVec
	breakerTrips  *prometheus.CounterVec
	breakerOpen   *prometheus.GaugeVec
	timersFired   *prometheus.CounterVec
	timersActive  prometheus.Gauge
	quotaDenials  *prometheus.CounterVec
	activations   *prometheus.CounterVec
	deactivations *prometheus.CounterVec
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// Store returns the singleton state-store metrics registry.
func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

// StoreWithConfig returns the singleton state-store metrics registry using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

// ResetStoreMetricsForTest resets the singleton for tests.
func ResetStoreMetricsForTest() {
	storeMetricsOnce = sync.Once{}
	storeMetrics = nil
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "entitlements"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	storeOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entitlements_store_ops_total",
		Help:        "Durable store operations by kind, op, and outcome.",
		ConstLabels: constLabels,
	}, []string{"kind", "op", "outcome"})
	breakerTrips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entitlements_breaker_trips_total",
		Help:        "Circuit breaker trips by entity kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	breakerOpen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "entitlements_breaker_open",
		Help:        "1 when the kind's breaker is suppressing store calls.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	timersFired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entitlements_expiry_timers_fired_total",
		Help:        "Expiry timer fires by kind and timer type.",
		ConstLabels: constLabels,
	}, []string{"kind", "timer"})
	timersActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "entitlements_expiry_timers_active",
		Help:        "Currently registered expiry timers.",
		ConstLabels: constLabels,
	})
	quotaDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entitlements_quota_denials_total",
		Help:        "Usage recordings rejected by the quota ledger.",
		ConstLabels: constLabels,
	}, []string{"kind", "action"})
	activations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entitlements_entity_activations_total",
		Help:        "First-touch entity activations by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	deactivations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "entitlements_entity_deactivations_total",
		Help:        "Idle entity evictions by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})

	for _, collector := range []prometheus.Collector{
		storeOps, breakerTrips, breakerOpen, timersFired, timersActive, quotaDenials, activations, deactivations,
	} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return &StoreMetrics{
		storeOps:      storeOps,
		breakerTrips:  breakerTrips,
		breakerOpen:   breakerOpen,
		timersFired:   timersFired,
		timersActive:  timersActive,
		quotaDenials:  quotaDenials,
		activations:   activations,
		deactivations: deactivations,
	}
}

func (m *StoreMetrics) IncStoreOp(kind, op, outcome string) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(kind, op, outcome).Inc()
}

func (m *StoreMetrics) IncBreakerTrip(kind string) {
	if m == nil {
		return
	}
	m.breakerTrips.WithLabelValues(kind).Inc()
}

func (m *StoreMetrics) SetBreakerOpen(kind string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.breakerOpen.WithLabelValues(kind).Set(value)
}

func (m *StoreMetrics) IncTimerFired(kind, timer string) {
	if m == nil {
		return
	}
	m.timersFired.WithLabelValues(kind, timer).Inc()
}

func (m *StoreMetrics) SetTimersActive(n int) {
	if m == nil {
		return
	}
	m.timersActive.Set(float64(n))
}

func (m *StoreMetrics) IncQuotaDenial(kind, action string) {
	if m == nil {
		return
	}
	m.quotaDenials.WithLabelValues(kind, action).Inc()
}

func (m *StoreMetrics) IncActivation(kind string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(kind).Inc()
}

func (m *StoreMetrics) IncDeactivation(kind string) {
	if m == nil {
		return
	}
	m.deactivations.WithLabelValues(kind).Inc()
}
