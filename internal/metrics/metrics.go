// Package metrics holds the Prometheus collectors of the service. Collectors
// are usable before Register is called; registration only exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "koruforms"

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Form submissions by outcome (accepted, spam).",
	}, []string{"outcome"})

	mailDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_dispatch_total",
		Help:      "Mail delivery attempts by transport and result.",
	}, []string{"method", "result"})

	reconcileRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "Website reconciliation runs by result (completed, skipped).",
	}, []string{"result"})

	reconcileFlipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_flips_total",
		Help:      "Forms whose global flag was flipped by reconciliation.",
	}, []string{"direction"})

	reconcileSitesInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_sites_invalid_total",
		Help:      "Websites the identity broker rejected during reconciliation.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of a reconciliation run.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	})
)

// Register adds every collector to reg (DefaultRegisterer when nil) and, if
// pool is set, a collector for the connection pool.
func Register(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		httpRequestsTotal, httpRequestDuration,
		submissionsTotal, mailDispatchTotal,
		reconcileRunsTotal, reconcileFlipsTotal, reconcileSitesInvalid, reconcileDuration,
	}
	if pool != nil {
		collectors = append(collectors, newPoolCollector(pool))
	}
	for _, c := range collectors {
		if err := registerCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func SubmissionAccepted() { submissionsTotal.WithLabelValues("accepted").Inc() }
func SubmissionSpam()     { submissionsTotal.WithLabelValues("spam").Inc() }

// MailAttempt records one transport attempt.
func MailAttempt(method string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	mailDispatchTotal.WithLabelValues(method, result).Inc()
}

func ReconcileSkipped() { reconcileRunsTotal.WithLabelValues("skipped").Inc() }

func ReconcileCompleted(activated, deactivated, invalidSites int, d time.Duration) {
	reconcileRunsTotal.WithLabelValues("completed").Inc()
	reconcileFlipsTotal.WithLabelValues("activated").Add(float64(activated))
	reconcileFlipsTotal.WithLabelValues("deactivated").Add(float64(deactivated))
	reconcileSitesInvalid.Add(float64(invalidSites))
	reconcileDuration.Observe(d.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type poolCollector struct {
	pool     *pgxpool.Pool
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
}

func newPoolCollector(pool *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:     pool,
		acquired: prometheus.NewDesc(namespace+"_pgxpool_acquired", "Acquired connections.", nil, nil),
		idle:     prometheus.NewDesc(namespace+"_pgxpool_idle", "Idle connections.", nil, nil),
		total:    prometheus.NewDesc(namespace+"_pgxpool_total", "Total connections.", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
}
