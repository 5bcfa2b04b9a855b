package monitoring

import (
	"strings"
	"time"
)

// RecordRealtimeConnection adjusts the open websocket count by delta.
func RecordRealtimeConnection(delta int64) {
	if delta == 0 {
		return
	}
	withModule(func(m *Module) {
		m.metrics.connections.Set(float64(m.stats.connection(delta)))
	})
}

// RecordRealtimeBroadcast counts one delivered message on stream.
func RecordRealtimeBroadcast(stream string) {
	withModule(func(m *Module) {
		m.metrics.broadcasts.WithLabelValues(streamLabel(stream)).Inc()
		m.stats.broadcast()
	})
}

// RecordRealtimeFailure counts one undelivered message and keeps it as the
// latest failure.
func RecordRealtimeFailure(stream, failureType, message string) {
	withModule(func(m *Module) {
		record := FailureRecord{
			Stream:   streamLabel(stream),
			Type:     label(failureType),
			Message:  strings.TrimSpace(message),
			Occurred: time.Now(),
		}
		m.metrics.dropped.WithLabelValues(record.Stream, record.Type).Inc()
		m.stats.drop(record)
	})
}

// RecordMaintenanceRun records one cron job run. Result is "success" or
// "failure"; message carries the error or a row count.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	withModule(func(m *Module) {
		name, outcome := label(job), label(result)
		now := time.Now()
		m.metrics.jobRuns.WithLabelValues(name, outcome).Inc()
		m.metrics.jobDuration.WithLabelValues(name).Observe(seconds(duration))
		if outcome == "success" {
			m.metrics.jobLastSuccess.WithLabelValues(name).Set(float64(now.Unix()))
		}
		m.stats.job(name, outcome == "success", strings.TrimSpace(message), duration, now)
	})
}

// RecordReportRun records a report run. Trigger is "manual" or "scheduled".
func RecordReportRun(trigger, result string, duration time.Duration) {
	withModule(func(m *Module) {
		m.metrics.reportRuns.WithLabelValues(label(trigger), label(result)).Inc()
		m.metrics.reportDuration.Observe(seconds(duration))
		m.stats.report(label(result) == "success", duration)
	})
}

// RecordNotification counts a created notification of the given type.
func RecordNotification(notificationType string) {
	withModule(func(m *Module) {
		kind := label(notificationType)
		m.metrics.notifications.WithLabelValues(kind).Inc()
		m.stats.notification(kind)
	})
}

func label(value string) string {
	if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
		return value
	}
	return "unknown"
}

func streamLabel(stream string) string {
	stream = strings.ReplaceAll(strings.Trim(strings.TrimSpace(stream), "/"), " ", "_")
	if stream == "" {
		return "unknown"
	}
	return stream
}
