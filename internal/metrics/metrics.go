// Package metrics exports acquisition loop health in Prometheus format.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/internal/network"
	"github.com/temoto/weathermatrix/internal/scheduler"
	"github.com/temoto/weathermatrix/internal/weather"
	"github.com/temoto/weathermatrix/log2"
)

const namespace = "weathermatrix"

type Metrics struct {
	reg *prometheus.Registry

	polls       *prometheus.CounterVec
	pollErrors  *prometheus.CounterVec
	pollTiming  prometheus.Summary
	attempt     prometheus.Gauge
	state       prometheus.Gauge
	link        prometheus.Gauge
	temperature prometheus.Gauge
	lastSuccess prometheus.Gauge
	quota       prometheus.Gauge
}

var _ scheduler.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Weather fetch attempts by result.",
		}, []string{"result"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed weather fetches by status category.",
		}, []string{"status"}),
		pollTiming: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  namespace,
			Name:       "poll_duration_seconds",
			Help:       "Weather fetch duration including link setup.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		attempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_attempt",
			Help:      "Consecutive failed polls, 0 when healthy.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "0=Idle 1=Polling 2=Backoff 3=Displaying",
		}),
		link: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_state",
			Help:      "0=Disconnected 1=Connecting 2=Connected 3=Degraded",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last fetched temperature.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of last successful poll.",
		}),
		quota: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "API requests left until daily reset, -1 when unlimited.",
		}),
	}
	m.reg.MustRegister(m.polls, m.pollErrors, m.pollTiming, m.attempt, m.state,
		m.link, m.temperature, m.lastSuccess, m.quota)
	return m
}

// SessionStats is the part of network.Session readable from any goroutine.
type SessionStats interface {
	Uptime(now time.Time) time.Duration
	Stats() (connects, failures uint32)
	Received() int64
}

// WatchSession exports link counters, read on scrape.
func (m *Metrics) WatchSession(s SessionStats, clock helpers.Clock) {
	if clock == nil {
		clock = helpers.SystemClock{}
	}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_uptime_seconds",
			Help:      "Time since link came up, 0 when not connected.",
		}, func() float64 { return s.Uptime(clock.Now()).Seconds() }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_connects_total",
			Help:      "Successful link associations.",
		}, func() float64 { c, _ := s.Stats(); return float64(c) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_failures_total",
			Help:      "Failed link association attempts.",
		}, func() float64 { _, f := s.Stats(); return float64(f) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_received_bytes_total",
			Help:      "HTTP response body bytes read from weather API.",
		}, func() float64 { return float64(s.Received()) }),
	)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) StateChanged(s scheduler.Snapshot) {
	m.state.Set(float64(s.State))
	m.attempt.Set(float64(s.Attempt))
	m.quota.Set(float64(s.Quota))
	if !s.LastSuccess.IsZero() {
		m.lastSuccess.Set(float64(s.LastSuccess.Unix()))
	}
}

func (m *Metrics) Polled(r weather.Reading, err error, took time.Duration) {
	m.pollTiming.Observe(took.Seconds())
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		m.pollErrors.WithLabelValues(scheduler.Classify(err).String()).Inc()
		return
	}
	m.polls.WithLabelValues("ok").Inc()
	m.temperature.Set(r.Temperature)
}

func (m *Metrics) LinkChanged(l network.LinkState) { m.link.Set(float64(l)) }

// Serve blocks until ctx is done or listener fails.
func (m *Metrics) Serve(ctx context.Context, log *log2.Log, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "metrics listen=%s", addr)
	}
	log.Infof("metrics listen=%s", ln.Addr())
	errch := make(chan error, 1)
	go func() { errch <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return errors.Trace(srv.Shutdown(shutCtx))
	case err = <-errch:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Annotate(err, "metrics serve")
	}
}
