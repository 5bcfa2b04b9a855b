package monitoring

import "time"

// Summary is the operator view returned by the monitoring endpoint.
type Summary struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	Realtime      RealtimeSummary     `json:"realtime"`
	Maintenance   MaintenanceSummary  `json:"maintenance"`
	Reports       ReportSummary       `json:"reports"`
	Notifications NotificationSummary `json:"notifications"`
}

// FailureRecord describes the most recent undelivered realtime message.
type FailureRecord struct {
	Stream   string    `json:"stream"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Broadcasts        uint64         `json:"broadcasts"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

// DropRate is the share of realtime messages that were not delivered.
func (r RealtimeSummary) DropRate() float64 {
	total := r.Broadcasts + r.Failures
	if total == 0 {
		return 0
	}
	return float64(r.Failures) / float64(total)
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

// MaintenanceJobSummary is one cron job's run history.
type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

type ReportSummary struct {
	Success                uint64  `json:"success"`
	Failure                uint64  `json:"failure"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}

type NotificationSummary struct {
	Created uint64            `json:"created"`
	ByType  map[string]uint64 `json:"by_type"`
}

// Snapshot returns the installed module's summary, or an empty one.
func Snapshot() Summary {
	if m := current.Load(); m != nil {
		return m.stats.summary()
	}
	return Summary{GeneratedAt: time.Now(), Notifications: NotificationSummary{ByType: map[string]uint64{}}}
}
