// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
)

type Metrics struct {
	OnlineMembers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	MessagesRelayed  *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
	MeetingsStarted  prometheus.Counter
	BallotsCounted   prometheus.Counter
	VotesResolved    *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_members",
			Help:      "Number of members joined to a room",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Game messages routed between members",
		}, []string{"type"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		MeetingsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meetings_started_total",
			Help:      "Meetings opened by an authority",
		}),
		BallotsCounted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ballots_counted_total",
			Help:      "Ballots accepted into a tally",
		}),
		VotesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_resolved_total",
			Help:      "Resolved meetings by outcome",
		}, []string{"outcome"}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Session phases entered",
		}, []string{"phase"}),
	}

	reg.MustRegister(
		m.OnlineMembers,
		m.ActiveRooms,
		m.MessagesRelayed,
		m.MessageLatency,
		m.MeetingsStarted,
		m.BallotsCounted,
		m.VotesResolved,
		m.PhaseTransitions,
	)

	return m
}

// Monitor records relay and game metrics. It implements room.Recorder and
// game.Recorder.
type Monitor struct {
	metrics      *Metrics
	gatherer     prometheus.Gatherer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

// NewMonitor registers on the default registry.
func NewMonitor(namespace string) *Monitor {
	return NewMonitorWithRegistry(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func NewMonitorWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  gatherer,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

var publishOnce sync.Once

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// StartServer serves metrics on addr in the background.
func (m *Monitor) StartServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go srv.ListenAndServe()
	return srv
}

func (m *Monitor) MemberJoined() {
	m.metrics.OnlineMembers.Inc()
}

func (m *Monitor) MemberLeft() {
	m.metrics.OnlineMembers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) MessageRelayed(msgID uint16) {
	m.metrics.MessagesRelayed.WithLabelValues(network.MsgName(msgID)).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) MeetingStarted() {
	m.metrics.MeetingsStarted.Inc()
}

func (m *Monitor) BallotCounted() {
	m.metrics.BallotsCounted.Inc()
}

func (m *Monitor) VoteResolved(eliminated bool) {
	outcome := "none"
	if eliminated {
		outcome = "eliminated"
	}
	m.metrics.VotesResolved.WithLabelValues(outcome).Inc()
}

func (m *Monitor) PhaseChanged(phase models.Phase) {
	m.metrics.PhaseTransitions.WithLabelValues(phase.String()).Inc()
}
