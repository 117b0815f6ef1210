package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExplorerCollector bundles the coordinator's Prometheus metrics.
// A nil *ExplorerCollector is valid and records nothing.
type ExplorerCollector struct {
	Searches         *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
	SearchesInFlight prometheus.Gauge
	Gestures         *prometheus.CounterVec
	StopDiscoveries  *prometheus.CounterVec
}

// NewExplorerCollector registers explorer metrics against reg, defaulting to
// the global registry when nil. Registering twice on the same registry
// returns the already registered collectors.
func NewExplorerCollector(reg prometheus.Registerer) (*ExplorerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	searches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bus2hike",
		Subsystem: "explorer",
		Name:      "searches_total",
		Help:      "Trail searches by outcome (applied, stale, failed).",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bus2hike",
		Subsystem: "explorer",
		Name:      "search_duration_seconds",
		Help:      "Duration of trail searches, including failures.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}))
	if err != nil {
		return nil, err
	}

	inFlight, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bus2hike",
		Subsystem: "explorer",
		Name:      "searches_in_flight",
		Help:      "Trail searches currently waiting for the backend.",
	}))
	if err != nil {
		return nil, err
	}

	gestures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bus2hike",
		Subsystem: "explorer",
		Name:      "gestures_total",
		Help:      "Gestures dispatched to the coordinator, by kind and result.",
	}, []string{"kind", "result"}))
	if err != nil {
		return nil, err
	}

	discoveries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bus2hike",
		Subsystem: "explorer",
		Name:      "stop_discoveries_total",
		Help:      "Stop discovery calls by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	return &ExplorerCollector{
		Searches:         searches,
		SearchDuration:   duration,
		SearchesInFlight: inFlight,
		Gestures:         gestures,
		StopDiscoveries:  discoveries,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// SearchStarted marks one more search in flight.
func (c *ExplorerCollector) SearchStarted() {
	if c == nil {
		return
	}
	c.SearchesInFlight.Inc()
}

// SearchFinished records a completed search.
func (c *ExplorerCollector) SearchFinished(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.SearchesInFlight.Dec()
	c.Searches.WithLabelValues(outcome).Inc()
	c.SearchDuration.Observe(d.Seconds())
}

func (c *ExplorerCollector) Gesture(kind, result string) {
	if c == nil {
		return
	}
	c.Gestures.WithLabelValues(kind, result).Inc()
}

func (c *ExplorerCollector) StopDiscovery(outcome string) {
	if c == nil {
		return
	}
	c.StopDiscoveries.WithLabelValues(outcome).Inc()
}
