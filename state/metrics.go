package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the state core's counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	eventsDispatched *prometheus.CounterVec
	eventsDeferred   prometheus.Counter
	eventsCached     prometheus.Counter
	cacheReplays     prometheus.Counter
	chunksAccepted   prometheus.Counter
	guildsReady      prometheus.Counter
	lockedGuilds     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concord",
			Name:      "events_dispatched_total",
			Help:      "Gateway dispatch events processed, by event type.",
		}, []string{"type"}),
		eventsDeferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "concord",
			Name:      "events_deferred_total",
			Help:      "Events requeued because their guild was locked.",
		}),
		eventsCached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "concord",
			Name:      "events_cached_total",
			Help:      "Events parked in the event cache on a missing entity.",
		}),
		cacheReplays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "concord",
			Name:      "event_cache_replays_total",
			Help:      "Deferred continuations replayed from the event cache.",
		}),
		chunksAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "concord",
			Name:      "member_chunks_total",
			Help:      "Member chunk batches accepted by the coordinator.",
		}),
		guildsReady: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "concord",
			Name:      "guilds_ready_total",
			Help:      "Guild bootstraps completed.",
		}),
		lockedGuilds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "concord",
			Name:      "locked_guilds",
			Help:      "Guilds currently locked for bootstrap.",
		}),
	}
}

func (m *Metrics) eventDispatched(eventType string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(eventType).Inc()
}

func (m *Metrics) eventDeferred() {
	if m == nil {
		return
	}
	m.eventsDeferred.Inc()
}

func (m *Metrics) eventCached() {
	if m == nil {
		return
	}
	m.eventsCached.Inc()
}

func (m *Metrics) cacheReplayed() {
	if m == nil {
		return
	}
	m.cacheReplays.Inc()
}

func (m *Metrics) chunkAccepted() {
	if m == nil {
		return
	}
	m.chunksAccepted.Inc()
}

func (m *Metrics) guildReady() {
	if m == nil {
		return
	}
	m.guildsReady.Inc()
}

func (m *Metrics) guildLocked(delta float64) {
	if m == nil {
		return
	}
	m.lockedGuilds.Add(delta)
}
