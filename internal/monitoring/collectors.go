package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var reportBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type instruments struct {
	connections    prometheus.Gauge
	broadcasts     *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobLastSuccess *prometheus.GaugeVec
	reportRuns     *prometheus.CounterVec
	reportDuration prometheus.Histogram
	notifications  *prometheus.CounterVec
}

func newInstruments(ns string) *instruments {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, labels)
	}

	return &instruments{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "realtime_connections",
			Help:      "Open notification websocket connections.",
		}),
		broadcasts:    counter("realtime_broadcasts_total", "Realtime messages delivered per stream.", "stream"),
		dropped:       counter("realtime_failures_total", "Realtime messages that could not be delivered.", "stream", "type"),
		jobRuns:       counter("maintenance_runs_total", "Maintenance job runs by outcome.", "job", "result"),
		reportRuns:    counter("report_runs_total", "Scheduled and manual report runs by outcome.", "trigger", "result"),
		notifications: counter("notifications_created_total", "In-app notifications created per type.", "type"),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "maintenance_duration_seconds",
			Help:      "Maintenance job run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "maintenance_last_success_timestamp",
			Help:      "Unix time of each job's last successful run.",
		}, []string{"job"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "report_duration_seconds",
			Help:      "Report run time.",
			Buckets:   reportBuckets,
		}),
	}
}

func (i *instruments) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		i.connections, i.broadcasts, i.dropped,
		i.jobRuns, i.jobDuration, i.jobLastSuccess,
		i.reportRuns, i.reportDuration, i.notifications,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
