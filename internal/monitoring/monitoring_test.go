package monitoring_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/monitoring/checks"
)

func installModule(t *testing.T) *monitoring.Module {
	t.Helper()

	mod, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	return mod
}

func TestSummaryAggregatesMetrics(t *testing.T) {
	installModule(t)

	monitoring.RecordRealtimeConnection(1)
	monitoring.RecordRealtimeBroadcast("/notifications/")
	monitoring.RecordRealtimeFailure("notifications", "Backpressure", " send buffer full ")
	monitoring.RecordMaintenanceRun("sessions", "success", "4 rows", time.Second)
	monitoring.RecordReportRun("scheduled", "success", 2*time.Second)
	monitoring.RecordReportRun("manual", "failure", 0)
	monitoring.RecordNotification("task_assigned")
	monitoring.RecordNotification("task_assigned")
	monitoring.RecordNotification("opportunity_won")

	summary := monitoring.Snapshot()
	require.EqualValues(t, 1, summary.Realtime.ActiveConnections)
	require.EqualValues(t, 1, summary.Realtime.Broadcasts)
	require.NotNil(t, summary.Realtime.LastFailure)
	require.Equal(t, "backpressure", summary.Realtime.LastFailure.Type)
	require.Equal(t, "send buffer full", summary.Realtime.LastFailure.Message)
	require.InDelta(t, 0.5, summary.Realtime.DropRate(), 0.0001)

	require.Len(t, summary.Maintenance.Jobs, 1)
	require.Equal(t, "sessions", summary.Maintenance.Jobs[0].Job)
	require.Equal(t, "success", summary.Maintenance.Jobs[0].LastStatus)
	require.False(t, summary.Maintenance.Jobs[0].LastSuccessAt.IsZero())

	require.EqualValues(t, 1, summary.Reports.Success)
	require.EqualValues(t, 1, summary.Reports.Failure)
	require.InDelta(t, 1.0, summary.Reports.AverageDurationSeconds, 0.001)
	require.EqualValues(t, 3, summary.Notifications.Created)
	require.EqualValues(t, 2, summary.Notifications.ByType["task_assigned"])

	monitoring.RecordRealtimeConnection(-3)
	require.Zero(t, monitoring.Snapshot().Realtime.ActiveConnections)
}

func TestHandlerServesModuleAndDefaultSeries(t *testing.T) {
	mod := installModule(t)
	monitoring.RecordNotification("generic")

	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `crmhub_notifications_created_total{type="generic"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}

func TestHealthEvaluate(t *testing.T) {
	health := monitoring.NewHealth(time.Second)
	health.Add(monitoring.Readiness,
		monitoring.Check{Name: "database", Run: func(context.Context) monitoring.Result {
			return monitoring.Result{Status: monitoring.StatusUp}
		}},
		monitoring.Check{Name: "search", Run: func(context.Context) monitoring.Result {
			return monitoring.Result{Status: monitoring.StatusDown, Details: "connection refused"}
		}},
		monitoring.Check{Name: "no-runner"},
	)

	report := health.Evaluate(context.Background(), monitoring.Readiness)
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, "search", report.Checks[1].Component)

	live := health.Evaluate(context.Background(), monitoring.Liveness)
	require.True(t, live.Success)
	require.Empty(t, live.Checks)
}

func TestOptionalAndPanickingChecks(t *testing.T) {
	health := monitoring.NewHealth(0)
	health.Add(monitoring.Liveness,
		monitoring.Check{Name: "cache", Optional: true, Run: func(context.Context) monitoring.Result {
			return monitoring.FromError(errors.New("dial tcp: refused"), time.Now())
		}},
		monitoring.Check{Name: "slow", Run: func(context.Context) monitoring.Result {
			return monitoring.FromError(context.DeadlineExceeded, time.Now())
		}},
	)

	report := health.Evaluate(context.Background(), monitoring.Liveness)
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Equal(t, monitoring.StatusDegraded, report.Checks[0].Status)
	require.Equal(t, monitoring.StatusDegraded, report.Checks[1].Status)

	health.Add(monitoring.Liveness, monitoring.Check{Name: "broken", Run: func(context.Context) monitoring.Result {
		panic(errors.New("boom"))
	}})
	report = health.Evaluate(context.Background(), monitoring.Liveness)
	require.False(t, report.Success)
	require.Equal(t, "boom", report.Checks[2].Details)

	merged := monitoring.Combine(monitoring.Report{Checks: report.Checks[:1]}, monitoring.Report{})
	require.True(t, merged.Success)
	require.Equal(t, monitoring.StatusDegraded, merged.Status)
}

func TestDatabaseCheck(t *testing.T) {
	bare := testutil.MustOpenTestDB(t)
	result := checks.Database(bare).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Equal(t, "schema not migrated", result.Details)

	migrated := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	result = checks.Database(migrated).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	require.Equal(t, monitoring.StatusDown, checks.Database(nil).Run(context.Background()).Status)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestRedisCheckIsOptional(t *testing.T) {
	health := monitoring.NewHealth(time.Second)
	health.Add(monitoring.Readiness, checks.Redis(pinger{err: errors.New("connection refused")}))

	report := health.Evaluate(context.Background(), monitoring.Readiness)
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Checks[0].Status)
	require.Equal(t, "connection refused", report.Checks[0].Details)

	require.Equal(t, monitoring.StatusUp, checks.Redis(pinger{}).Run(context.Background()).Status)
}

type hubStub struct{ active int64 }

func (h hubStub) ActiveConnections() int64 { return h.active }

func TestRealtimeCheck(t *testing.T) {
	installModule(t)

	result := checks.Realtime(hubStub{active: 2}).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "2 connections", result.Details)

	monitoring.RecordRealtimeBroadcast("notifications")
	monitoring.RecordRealtimeFailure("notifications", "backpressure", "send buffer full")
	result = checks.Realtime(hubStub{active: 2}).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "50% of deliveries dropped")

	result = checks.Realtime(nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
}

func TestMaintenanceCheck(t *testing.T) {
	installModule(t)

	result := checks.Maintenance(time.Hour, nil).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	monitoring.RecordMaintenanceRun("sessions", "success", "", time.Second)
	monitoring.RecordMaintenanceRun("audit_retention", "failure", "timeout", time.Second)

	result = checks.Maintenance(time.Hour, nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "audit_retention failed: timeout")

	monitoring.RecordMaintenanceRun("audit_retention", "failure", "timeout", time.Second)
	monitoring.RecordMaintenanceRun("audit_retention", "failure", "timeout", time.Second)
	result = checks.Maintenance(time.Hour, nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)

	monitoring.RecordMaintenanceRun("audit_retention", "success", "", time.Second)
	result = checks.Maintenance(time.Hour, map[string]time.Duration{"sessions": time.Nanosecond}).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "sessions last succeeded")
	require.NotContains(t, result.Details, "audit_retention")
}
